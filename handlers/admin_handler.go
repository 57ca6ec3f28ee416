package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/tenantchat/backend/admin"
	"github.com/upb/tenantchat/backend/cookies"
	"github.com/upb/tenantchat/backend/models"
	"github.com/upb/tenantchat/backend/repositories"
	"github.com/upb/tenantchat/backend/services"
	"github.com/upb/tenantchat/backend/utils"
	"go.uber.org/zap"
)

// AdminLoginRequest is the body of POST /admin/login
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest is the body of POST /admin/password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// AssignRoleRequest is the body of POST /admin/users/{id}/roles
type AssignRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

// AdminSessionResponse describes the current admin session
type AdminSessionResponse struct {
	Username           string    `json:"username"`
	MustChangePassword bool      `json:"mustChangePassword"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

// AdminUserResponse is a user as seen by the administrator
type AdminUserResponse struct {
	*models.User
	Roles []string `json:"roles"`
}

// AdminHandler serves the local administrator endpoints
type AdminHandler struct {
	service  *admin.Service
	sessions *cookies.Envelope[cookies.AdminSession]
	users    repositories.UserRepository
	roles    repositories.RoleRepository
	logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	service *admin.Service,
	sessions *cookies.Envelope[cookies.AdminSession],
	users repositories.UserRepository,
	roles repositories.RoleRepository,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		service:  service,
		sessions: sessions,
		users:    users,
		roles:    roles,
		logger:   logger,
	}
}

// HandleLogin handles POST /admin/login
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeSession(w, session)
}

// HandleLogout handles POST /admin/logout
func (h *AdminHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	utils.WriteNoContent(w)
}

// HandleSession handles GET /admin/session. The session comes from the
// request context, where the admin middleware placed it.
func (h *AdminHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	session := admin.SessionFromContext(r.Context())
	if err := h.service.Authorize(session, true); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, sessionResponse(session))
}

// HandleChangePassword handles POST /admin/password. It is reachable while
// the default password is still pending rotation.
func (h *AdminHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	session, err := h.service.ChangePassword(r.Context(), admin.SessionFromContext(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeSession(w, session)
}

// HandleGetUser handles GET /admin/users/{id}
func (h *AdminHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ValidateUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidInput.WithMessage(err.Error()), h.logger)
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			HandleServiceError(w, services.ErrUserNotFound, h.logger)
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to load user", err), h.logger)
		return
	}

	roles, err := h.roles.ListRoleNamesForUser(ctx, id)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to load roles", err), h.logger)
		return
	}

	_ = utils.WriteOK(w, AdminUserResponse{User: user, Roles: roles})
}

// HandleAssignRole handles POST /admin/users/{id}/roles
func (h *AdminHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ValidateUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, services.ErrInvalidInput.WithMessage(err.Error()), h.logger)
		return
	}

	var req AssignRoleRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	if _, err := h.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			HandleServiceError(w, services.ErrUserNotFound, h.logger)
			return
		}
		HandleServiceError(w, services.WrapInternal("failed to load user", err), h.logger)
		return
	}

	if err := h.roles.AssignRoleToUser(ctx, id, req.Role); err != nil {
		HandleServiceError(w, services.WrapInternal("failed to assign role", err), h.logger)
		return
	}
	roles, err := h.roles.ListRoleNamesForUser(ctx, id)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to load roles", err), h.logger)
		return
	}

	h.logger.Info("role assigned by admin",
		zap.String("user_id", id.String()),
		zap.String("role", req.Role))
	_ = utils.WriteOK(w, map[string]interface{}{"roles": roles})
}

func (h *AdminHandler) writeSession(w http.ResponseWriter, session *cookies.AdminSession) {
	if err := h.sessions.Write(w, *session); err != nil {
		h.logger.Error("failed to write admin session cookie", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to create admin session")
		return
	}
	_ = utils.WriteOK(w, sessionResponse(session))
}

func sessionResponse(s *cookies.AdminSession) AdminSessionResponse {
	return AdminSessionResponse{
		Username:           s.Username,
		MustChangePassword: s.MustChangePassword,
		ExpiresAt:          s.ExpiresAt,
	}
}
