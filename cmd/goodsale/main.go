package main

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drgood/goodsale-sub002/modules/admin"
	"github.com/drgood/goodsale-sub002/modules/jobs"
	"github.com/drgood/goodsale-sub002/modules/portal"
	"github.com/drgood/goodsale-sub002/pkg/audit"
	"github.com/drgood/goodsale-sub002/pkg/config"
	"github.com/drgood/goodsale-sub002/pkg/httpserver"
	"github.com/drgood/goodsale-sub002/pkg/logger"
	"github.com/drgood/goodsale-sub002/pkg/notifier"
	"github.com/drgood/goodsale-sub002/pkg/pg"
	"github.com/drgood/goodsale-sub002/pkg/redis"
	"github.com/drgood/goodsale-sub002/svc/subscription"
	"github.com/drgood/goodsale-sub002/svc/tenant"
)

type appConfig struct {
	Log    logger.Config
	PG     pg.Config
	Redis  redis.Config
	HTTP   httpserver.Config
	Jobs   jobs.Config
	Sub    subscription.Config
	Rename tenant.RenameConfig
	Tenant tenant.MiddlewareConfig

	PlansFile      string        `env:"PLANS_FILE" envDefault:"plans.yaml"`
	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.NewFromConfig(cfg.Log, logger.WithService("goodsale"))
	ctx := context.Background()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		log.Error("failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		log.Error("failed to run migrations", logger.Error(err))
		os.Exit(1)
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	tenantStore := tenant.NewPostgresStore(pool)
	subStore := subscription.NewPostgresStore(pool)
	trail := audit.NewTrail(audit.NewPostgresStorage(pool), audit.WithLogger(log))
	transport := notifier.NewSlogTransport(log)
	plans := subscription.NewYAMLSource(cfg.PlansFile)

	resolver := tenant.NewResolver(tenantStore,
		tenant.WithCache(tenant.NewRedisCache(redisClient, cfg.TenantCacheTTL)),
		tenant.WithResolverLogger(log),
	)

	subSvc := subscription.NewService(subStore, tenantStore, plans, trail, cfg.Sub,
		subscription.WithTransport(transport),
		subscription.WithLogger(log),
	)
	renameSvc := tenant.NewRenameService(tenantStore, tenantStore, trail, cfg.Rename,
		tenant.WithRenameTransport(transport),
		tenant.WithRenameCache(tenant.NewRedisCache(redisClient, cfg.TenantCacheTTL)),
		tenant.WithRenameLogger(log),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))
	r.Mount("/jobs", jobs.Router(cfg.Jobs, jobs.RouterOptions{
		Subscriptions: subSvc,
		Renames:       renameSvc,
		Logger:        log,
	}))
	// The auth provider's middleware must resolve sessions before these
	// routes; see modules/admin and modules/portal.
	r.Mount("/admin", admin.Router(admin.RouterOptions{
		Subscriptions: subSvc,
		Renames:       renameSvc,
		Logger:        log,
	}))
	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware(resolver, cfg.Tenant))
		r.Mount("/portal", portal.Router(portal.RouterOptions{
			Subscriptions: subSvc,
			Renames:       renameSvc,
			Logger:        log,
		}))
	})

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil {
		log.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}
