package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/lifeblood-api/internal/handler/prometheus"
	"github.com/jwalitptl/lifeblood-api/internal/middleware"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

const (
	apiPrefix = "/api/v1"
	wsPrefix  = apiPrefix + "/ws"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// PublicHandler also serves routes that need no token.
type PublicHandler interface {
	Handler
	RegisterPublicRoutes(*gin.RouterGroup)
}

// Handlers groups the route owners by access level.
type Handlers struct {
	Health       Handler
	Auth         PublicHandler
	User         Handler
	Notification Handler
	Offer        Handler
	Booking      Handler
	Dashboard    Handler
	Realtime     Handler
	Admin        Handler
	Metrics      *prometheus.Handler
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodySize    int64
	CORSConfig     middleware.CORSConfig
	Security       middleware.SecurityConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, config RouterConfig, log *logger.Logger) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
	)
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware())
	}
	engine.Use(
		middleware.Timeout(middleware.TimeoutConfig{
			Duration:     config.RequestTimeout,
			SkipPrefixes: []string{wsPrefix},
		}),
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.MaxBodySize),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group(apiPrefix)

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.setupHealthCheck(api)

	r.handlers.Auth.RegisterPublicRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	r.handlers.Health.RegisterRoutes(rg)
	if r.handlers.Metrics != nil {
		rg.GET("/health/metrics", r.handlers.Metrics.Handler())
	}
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	// reachable by hospitals still waiting for verification
	r.handlers.Auth.RegisterRoutes(rg)
	r.handlers.User.RegisterRoutes(rg)
	r.handlers.Notification.RegisterRoutes(rg)

	gated := rg.Group("")
	gated.Use(r.auth.RequireVerifiedHospital())
	r.handlers.Offer.RegisterRoutes(gated)
	r.handlers.Booking.RegisterRoutes(gated)
	r.handlers.Dashboard.RegisterRoutes(gated)
	r.handlers.Realtime.RegisterRoutes(gated)

	admin := rg.Group("")
	admin.Use(r.auth.RequireRole(model.RoleAdmin))
	r.handlers.Admin.RegisterRoutes(admin)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
