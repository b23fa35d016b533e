package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanqian/todoauth/internal/infra/config"
	"github.com/yanqian/todoauth/internal/infra/ratelimit"
	"github.com/yanqian/todoauth/pkg/metrics"
)

// NewRouter wires up the HTTP handlers and returns a configured server. gatherer may be
// nil, in which case /metrics is not served.
func NewRouter(cfg *config.Config, handler *Handler, limiter ratelimit.Limiter, gatherer prometheus.Gatherer, m *metrics.Auth, logger *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, ignoring forwarding headers", "error", err)
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(
		requestIDMiddleware(),
		requestLogger(logger),
		errorHandlingMiddleware(logger, cfg.IsProduction()),
		recoveryMiddleware(logger),
		corsMiddleware(cfg.CORSOrigins()),
	)
	router.NoRoute(handler.NotFound)

	router.GET("/", handler.Info)
	router.GET("/health", handler.Health)
	if gatherer != nil && cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	g := newGate(handler.svc, handler.transport, m, logger)
	limited := rateLimitMiddleware(limiter, logger)

	authGroup := router.Group("/auth", limited)
	{
		authGroup.GET("/google", handler.GoogleStart)
		authGroup.GET("/google/callback", handler.GoogleCallback)
		authGroup.GET("/login-failure", handler.LoginFailure)
		authGroup.POST("/register", handler.Register)
		authGroup.POST("/login", handler.Login)
		authGroup.POST("/refresh", handler.Refresh)
		authGroup.POST("/logout", handler.Logout)
		authGroup.GET("/me", g.requireAuthenticated(), handler.Me)
	}

	users := router.Group("/users", limited, g.requireAdmin())
	{
		users.GET("", handler.ListUsers)
		users.PATCH("/:id/role", handler.SetRole)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
