package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/siteproof/throttle-service/internal/infra/config"
	"github.com/siteproof/throttle-service/internal/infra/security"
	"github.com/siteproof/throttle-service/internal/infra/telemetry"
	"github.com/siteproof/throttle-service/internal/transport/http/handlers"
	"github.com/siteproof/throttle-service/internal/transport/http/middleware"
	"github.com/siteproof/throttle-service/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Registry  *usecase.Registry
	Telemetry *telemetry.Provider
	Verifier  *security.ServiceTokenVerifier
	Cache     CacheChecker
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))

	if len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}

	if metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Namespace: deps.Config.Telemetry.Namespace,
	}); err != nil {
		deps.Logger.Warn("http metrics disabled", zap.Error(err))
	} else {
		r.Use(metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 1)
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		rateLimitGroup := api.Group("/ratelimit")
		rateLimitGroup.Use(buildSelfThrottle(deps)...)

		rateLimitHandler := handlers.NewRateLimitHandler(deps.Registry, deps.Telemetry)
		rateLimitHandler.RegisterRoutes(rateLimitGroup, buildResetMiddlewares(deps)...)
	}

	return r
}

// buildSelfThrottle guards the service's own API with the default scope,
// keyed by client IP.
func buildSelfThrottle(deps Dependencies) []gin.HandlerFunc {
	if deps.Registry == nil {
		return nil
	}

	limiter, err := deps.Registry.Get(usecase.DefaultScope)
	if err != nil {
		return nil
	}

	throttle := middleware.NewThrottle(deps.Logger)
	rule := middleware.ThrottleRule{
		Name:       "self",
		Limiter:    limiter,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{throttle.Limit(rule)}
}

// buildResetMiddlewares protects the admin reset route when a signing
// secret is configured; development deployments may leave it open.
func buildResetMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.Verifier == nil {
		return nil
	}
	return []gin.HandlerFunc{middleware.RequireServiceToken(deps.Verifier)}
}
