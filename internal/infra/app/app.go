package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/core/port"
	"github.com/siteproof/throttle-service/internal/infra/config"
	kafkainfra "github.com/siteproof/throttle-service/internal/infra/kafka"
	"github.com/siteproof/throttle-service/internal/infra/logger"
	redisinfra "github.com/siteproof/throttle-service/internal/infra/redis"
	"github.com/siteproof/throttle-service/internal/infra/security"
	"github.com/siteproof/throttle-service/internal/infra/telemetry"
	memoryrepo "github.com/siteproof/throttle-service/internal/repository/memory"
	redisrepo "github.com/siteproof/throttle-service/internal/repository/redis"
	"github.com/siteproof/throttle-service/internal/transport/http/routes"
	"github.com/siteproof/throttle-service/internal/usecase"
)

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	registry  *usecase.Registry
	telemetry *telemetry.Provider
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
}

func New(cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Attach(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	app := &Application{cfg: cfg, logger: log, telemetry: provider}

	store, err := app.buildStore(log)
	if err != nil {
		return nil, err
	}

	eventPublisher := app.buildEventPublisher(log)

	registry, err := buildRegistry(cfg.Scopes, store, eventPublisher, log)
	if err != nil {
		app.closeInfra()
		return nil, err
	}
	app.registry = registry

	var verifier *security.ServiceTokenVerifier
	if cfg.Security.ServiceTokenSecret != "" {
		verifier, err = security.NewServiceTokenVerifier(cfg.Security.ServiceTokenSecret, cfg.Security.ServiceTokenIssuer)
		if err != nil {
			app.closeInfra()
			return nil, fmt.Errorf("init service token verifier: %w", err)
		}
	} else {
		log.Warn("service token secret not configured, reset endpoint is unauthenticated")
	}

	var cache routes.CacheChecker
	if app.redis != nil {
		cache = app.redis
	}

	app.engine = routes.Register(routes.Dependencies{
		Config:    cfg,
		Logger:    log,
		Registry:  registry,
		Telemetry: provider,
		Verifier:  verifier,
		Cache:     cache,
	})

	return app, nil
}

// buildStore selects the attempt store backend. Memory is the default and
// keeps all state per process; redis shares state across replicas.
func (a *Application) buildStore(log *zap.Logger) (port.AttemptStore, error) {
	switch a.cfg.Store.Backend {
	case "", "memory":
		log.Info("using in-memory attempt store")
		return memoryrepo.NewAttemptStore(), nil
	case "redis":
		client, err := redisinfra.NewClient(a.cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = client
		return redisrepo.NewAttemptStore(client.Client(), redisrepo.AttemptStoreConfig{
			KeyPrefix: a.cfg.Redis.KeyPrefix,
		}), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}
}

func (a *Application) buildEventPublisher(log *zap.Logger) port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}

	a.producer = producer
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, log)
}

func buildRegistry(scopes config.ScopeSettings, store port.AttemptStore, events port.EventPublisher, log *zap.Logger) (*usecase.Registry, error) {
	if _, ok := scopes[usecase.DefaultScope]; !ok {
		return nil, fmt.Errorf("scope table must include the %q scope", usecase.DefaultScope)
	}

	limiters := make(map[string]*usecase.Limiter, len(scopes))
	for scope, profile := range scopes {
		limiter, err := usecase.NewLimiter(scope, domain.ScopeConfig{
			MaxAttempts:   profile.MaxAttempts,
			Window:        profile.Window,
			BlockDuration: profile.BlockDuration,
		}, store, log)
		if err != nil {
			return nil, fmt.Errorf("init limiter: %w", err)
		}
		limiters[scope] = limiter.WithEventPublisher(events)

		log.Info("scope configured",
			zap.String("scope", scope),
			zap.Int("max_attempts", profile.MaxAttempts),
			zap.Duration("window", profile.Window),
			zap.Duration("block_duration", profile.BlockDuration),
		)
	}

	return usecase.NewRegistry(limiters), nil
}

func (a *Application) closeInfra() {
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// Run serves HTTP until the context is cancelled, sweeping expired attempt
// records in the background at the configured interval.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.closeInfra()

	sweepDone := make(chan struct{})
	go a.sweepLoop(ctx, sweepDone)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting throttle API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.Strings("scopes", a.registry.Scopes()),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		<-sweepDone
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// sweepLoop periodically removes attempt records whose window and block have
// both elapsed. Sweeping is a memory reclamation concern only; decisions stay
// correct without it because reads trim lazily.
func (a *Application) sweepLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	interval := a.cfg.Store.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.registry.RemoveExpired(ctx)
			if err != nil {
				a.logger.Warn("sweep expired records failed", zap.Error(err))
				continue
			}
			a.telemetry.ObserveSweep(removed)
			if removed > 0 {
				a.logger.Debug("swept expired records", zap.Int("removed", removed))
			}
		}
	}
}
