package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stockledger-backend/api/controllers"
	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/internal/balances"
	"github.com/angelmondragon/stockledger-backend/internal/documents"
	"github.com/angelmondragon/stockledger-backend/internal/movements"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/stockledger-backend/pkg/redis"
)

// Services groups the domain services exposed over HTTP.
type Services struct {
	Documents documents.Service
	Balances  balances.Service
	Movements movements.Service

	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	idempotencyStore pkgredis.IdempotencyStore,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Observe(logg, svcs.HTTPMetrics),
		middleware.Recoverer(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisP,
		}))
	})
	r.Handle("/metrics", metrics.Handler())

	edit := middleware.Idempotency(idempotencyStore, logg, middleware.EditIdempotencyTTL)
	commit := middleware.Idempotency(idempotencyStore, logg, middleware.CommitIdempotencyTTL)
	supervisor := middleware.RequireRole(logg, enums.ActorRoleSupervisor, enums.ActorRoleSystem)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", controllers.DocumentList(svcs.Documents, logg))
			r.With(edit).Post("/", controllers.DocumentCreate(svcs.Documents, logg))
			r.Route("/{documentId}", func(r chi.Router) {
				r.Get("/", controllers.DocumentGet(svcs.Documents, logg))
				r.With(edit).Patch("/", controllers.DocumentUpdate(svcs.Documents, logg))
				r.With(commit).Post("/transitions", controllers.DocumentTransition(svcs.Documents, logg))
				r.With(commit).Post("/postings", controllers.DocumentPostingFromCounting(svcs.Documents, logg))
			})
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", controllers.BalanceList(svcs.Balances, logg))
			r.Route("/{productId}/{warehouseId}", func(r chi.Router) {
				r.Get("/", controllers.BalanceGet(svcs.Balances, logg))
				r.With(supervisor, edit).Put("/reorder-policy", controllers.BalanceReorderPolicy(svcs.Balances, logg))
				r.Get("/reconciliation", controllers.BalanceReconciliation(svcs.Movements, logg))
			})
		})

		r.Get("/movements", controllers.MovementList(svcs.Movements, logg))
	})

	return r
}
