package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mindhaven/provider-calendar/internal/calendar"
)

type RouterConfig struct {
	Engine  *calendar.Engine
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Get("/calendar", monthViewHandler(cfg.Engine))
		r.Get("/days/{date}", dayViewHandler(cfg.Engine))

		r.Post("/unavailability", markUnavailableHandler(cfg.Engine))
		r.Delete("/unavailability/{date}", markAvailableHandler(cfg.Engine))

		r.Get("/rules", listRulesHandler(cfg.Engine))
		r.Post("/rules", createRuleHandler(cfg.Engine))
		r.Delete("/rules/{ruleID}", deleteRuleHandler(cfg.Engine))

		r.Get("/requests", listPendingHandler(cfg.Engine))
		r.Post("/sessions", requestSessionHandler(cfg.Engine))
		r.Post("/sessions/{sessionID}/accept", acceptSessionHandler(cfg.Engine))
		r.Post("/sessions/{sessionID}/reject", rejectSessionHandler(cfg.Engine))
		r.Post("/sessions/{sessionID}/no-show", noShowSessionHandler(cfg.Engine))
		r.Post("/sessions/batch", batchSessionHandler(cfg.Engine))
	})

	return r
}
