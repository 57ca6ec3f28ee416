package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/tenantchat/backend/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// IssuerStatus reports whether any trusted issuer is configured
type IssuerStatus interface {
	Configured() bool
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	issuers IssuerStatus
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. Either dependency may be nil.
func NewHealthHandler(db *sql.DB, issuers IssuerStatus, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		issuers: issuers,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. It reports healthy while the process runs.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz. The database must answer; an empty
// issuer list is reported but does not fail readiness, since admin login
// still works without one.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status, httpStatus := "healthy", http.StatusOK

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	if h.issuers != nil && h.issuers.Configured() {
		checks["issuers"] = "configured"
	} else {
		checks["issuers"] = "none_configured"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
