package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/membership/pkg/httputil"
	"github.com/platinummonkey/membership/pkg/observability"
)

// sweepTimeout bounds one scheduled expiry sweep
const sweepTimeout = 5 * time.Minute

// SweepResponse is the body returned by the manual sweep endpoint
type SweepResponse struct {
	Expired int `json:"expired"`
}

// AdminHandler serves /healthz, /readyz, POST /admin/invitations/sweep and,
// when metrics are enabled, /metrics
func (e *Engine) AdminHandler() http.Handler {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, e.Health)
	router.HandleFunc("/admin/invitations/sweep", e.handleSweep).Methods(http.MethodPost)
	if e.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{
			Registry: e.Registry,
		})).Methods(http.MethodGet)
	}
	handler := httputil.Chain(
		httputil.RequestID,
		httputil.Logging(e.Logger),
		httputil.Recovery(e.Logger),
	)(router)
	return otelhttp.NewHandler(handler, "membershipd.admin")
}

func (e *Engine) handleSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := e.SweepInvitations(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, SweepResponse{Expired: expired})
}

// SweepInvitations runs one expiry sweep and logs the outcome
func (e *Engine) SweepInvitations(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	expired, err := e.Invitations.SweepExpiredInvitations(ctx)
	logger := e.Logger.WithContext(ctx)
	if err != nil {
		logger.WithError(err).Error("Invitation expiry sweep failed")
		return 0, err
	}
	logger.WithField("expired", expired).Debug("Invitation expiry sweep finished")
	return expired, nil
}

// NewSweepScheduler returns a cron scheduler running SweepInvitations on
// the configured schedule. It is not started. An empty schedule yields a
// scheduler with no jobs.
func (e *Engine) NewSweepScheduler() (*cron.Cron, error) {
	c := cron.New()
	schedule := e.Config.Invitations.SweepSchedule
	if schedule == "" {
		return c, nil
	}
	if _, err := c.AddFunc(schedule, func() {
		_, _ = e.SweepInvitations(context.Background())
	}); err != nil {
		return nil, err
	}
	return c, nil
}
