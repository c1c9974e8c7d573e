package health

import (
	"context"
	"net/http"
	"time"

	"github.com/hilthontt/buzzer/internal/infrastructure/json"
	"github.com/jonboulle/clockwork"
)

const checkTimeout = 2 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	clock     clockwork.Clock
	startedAt time.Time
	checks    map[string]Check
}

func NewHandler(clock clockwork.Clock, checks map[string]Check) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		clock:     clock,
		startedAt: clock.Now(),
		checks:    checks,
	}
}

// GetHealth is the liveness probe.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, h.response("ok", nil))
}

// GetReady runs every registered check and fails if any of them does.
func (h *Handler) GetReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	json.Write(w, code, h.response(status, results))
}

func (h *Handler) response(status string, checks map[string]string) healthResponse {
	now := h.clock.Now()
	return healthResponse{
		Status:    status,
		Timestamp: now.UTC().Format(time.RFC3339),
		Uptime:    now.Sub(h.startedAt).Truncate(time.Second).String(),
		Checks:    checks,
	}
}
