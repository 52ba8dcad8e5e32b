package bot

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/fortune-bot/internal/entitlement"
	"github.com/example/fortune-bot/internal/platform/api"
	"github.com/example/fortune-bot/internal/platform/httpserver"
)

// Pinger is the diagnostic slice of the oracle client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AdminHandler serves the JWT-guarded diagnostic endpoints.
type AdminHandler struct {
	log    *zap.Logger
	oracle Pinger
	engine Entitlements
}

func NewAdminHandler(log *zap.Logger, pinger Pinger, engine Entitlements) *AdminHandler {
	return &AdminHandler{log: log, oracle: pinger, engine: engine}
}

// DiagOracle pings the completion API with a one-token request.
func (h *AdminHandler) DiagOracle(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.oracle.Ping(ctx); err != nil {
		h.log.Warn("oracle diagnostic failed", zap.Error(err))
		api.ServiceUnavailable(w, "ORACLE_UNAVAILABLE", "completion API did not respond", rid)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type entitlementView struct {
	Standing    string                   `json:"standing"`
	Entitlement *entitlement.Entitlement `json:"entitlement,omitempty"`
}

// InspectEntitlement reports a user's current standing and record.
func (h *AdminHandler) InspectEntitlement(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		api.BadRequest(w, "MISSING_USER_ID", "user id is required", rid, nil)
		return
	}

	standing, ent, err := h.engine.Check(r.Context(), userID)
	if err != nil {
		h.log.Error("entitlement inspection failed", zap.String("user_id", userID), zap.Error(err))
		api.Internal(w, rid)
		return
	}
	api.WriteJSON(w, http.StatusOK, entitlementView{Standing: standing.String(), Entitlement: ent})
}
