package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenantchat/backend/internal/identity"
	"github.com/upb/tenantchat/backend/models"
	"github.com/upb/tenantchat/backend/repositories"
	"github.com/upb/tenantchat/backend/services"
	"github.com/upb/tenantchat/backend/utils"
	"go.uber.org/zap"
)

// MeResponse describes the calling user
type MeResponse struct {
	ID          uuid.UUID  `json:"id"`
	Email       *string    `json:"email,omitempty"`
	Name        *string    `json:"name,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Issuer      string     `json:"issuer"`
	Subject     string     `json:"subject"`
	OrgID       *string    `json:"org_id,omitempty"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
	CreatedAt   time.Time  `json:"created_at"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// UpdateMeRequest is the body of PATCH /api/v1/me
type UpdateMeRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// UserHandler serves the self-service profile endpoints
type UserHandler struct {
	users  repositories.UserRepository
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repositories.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
	}
}

// HandleGetMe handles GET /api/v1/me
func (h *UserHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if !principal.IsProvisioned() {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}

	user, err := h.users.GetByID(r.Context(), *principal.UserID)
	if err != nil {
		HandleServiceError(w, h.lookupError(err), h.logger)
		return
	}

	_ = utils.WriteOK(w, newMeResponse(principal, user))
}

// HandleUpdateMe handles PATCH /api/v1/me. Only the display name is editable;
// the email stays owned by the identity provider.
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if !principal.IsProvisioned() {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}

	var req UpdateMeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		HandleServiceError(w, services.ErrInvalidInput.WithMessage("name must not be blank"), h.logger)
		return
	}

	ctx := r.Context()
	if err := h.users.UpdateProfile(ctx, *principal.UserID, models.ProfileUpdate{Name: &name}); err != nil {
		HandleServiceError(w, h.lookupError(err), h.logger)
		return
	}

	user, err := h.users.GetByID(ctx, *principal.UserID)
	if err != nil {
		HandleServiceError(w, h.lookupError(err), h.logger)
		return
	}

	h.logger.Info("user profile updated", zap.String("user_id", user.ID.String()))
	_ = utils.WriteOK(w, newMeResponse(principal, user))
}

func (h *UserHandler) lookupError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrUserNotFound
	}
	return services.WrapInternal("failed to load user", err)
}

func newMeResponse(p *identity.Principal, u *models.User) MeResponse {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	permissions := p.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return MeResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		AvatarURL:   u.AvatarURL,
		Issuer:      p.Issuer,
		Subject:     p.Subject,
		OrgID:       p.OrgID,
		Roles:       roles,
		Permissions: permissions,
		CreatedAt:   u.CreatedAt,
		LastSeenAt:  u.LastSeenAt,
	}
}
