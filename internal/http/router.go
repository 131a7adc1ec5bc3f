package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kavinduw/donorhub/internal/auth"
	"github.com/kavinduw/donorhub/internal/cache"
	"github.com/kavinduw/donorhub/internal/config"
	"github.com/kavinduw/donorhub/internal/domain/user"
	"github.com/kavinduw/donorhub/internal/http/handlers"
	"github.com/kavinduw/donorhub/internal/http/middlewares"
	"github.com/kavinduw/donorhub/internal/observability"
	"github.com/kavinduw/donorhub/internal/payhere"
	"github.com/kavinduw/donorhub/internal/repo/postgres"
)

const maxJSONBody = 1 << 20 // 1 MiB

// NewRouter wires every dependency explicitly; nothing package-level
// holds the pool or config.
func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config, replay handlers.ReplayChecker) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("donorhub"))
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(maxJSONBody))

	// health + metrics
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	donationsRepo := postgres.NewDonationsRepo(pool, prom)
	sessionsRepo := postgres.NewRefreshTokensRepo(pool)

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	signer := payhere.NewSigner(cfg.PayHereMerchantID, cfg.PayHereSecret)
	statsCache := cache.New(30 * time.Second)

	// wire up handlers
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager, sessionsRepo, cfg)
	donationsHandler := handlers.NewDonationsHandler(donationsRepo, usersRepo, signer, replay, prom, log, cfg)
	adminsHandler := handlers.NewAdminsHandler(usersRepo, sessionsRepo, log, cfg)
	membersHandler := handlers.NewMembersHandler(usersRepo)
	statsHandler := handlers.NewStatsHandler(donationsRepo, usersRepo, statsCache)
	profileHandler := handlers.NewProfileHandler(usersRepo, donationsRepo)

	authMW := middlewares.NewAuthMiddleware(jwtManager)
	loginLimiter := middlewares.NewRateLimiter(10, time.Minute)

	// credential endpoints
	authGroup := r.Group("/auth", middlewares.RequireJSON())
	authGroup.POST("/register", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Register)
	authGroup.POST("/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)

	// gateway notification: unauthenticated, form-encoded
	r.POST("/donations/notify", donationsHandler.Notify)

	// member-facing API
	r.POST("/donations", middlewares.RequireJSON(), authMW.RequireAuth(), donationsHandler.Create)
	r.GET("/donations/history", authMW.RequireAuth(), donationsHandler.History)
	r.GET("/user/profile", authMW.RequireAuth(), profileHandler.Get)

	// owner-only admin management
	admins := r.Group("/admins", authMW.RequireAuth())
	admins.GET("", authMW.RequireOwner(), adminsHandler.List)
	admins.POST("", middlewares.RequireJSON(), authMW.RequireOwner(), adminsHandler.Create)
	admins.DELETE("/:id", authMW.RequireOwner(), adminsHandler.Delete)

	// admin-or-owner read views
	admins.GET("/donations", authMW.RequireAdminOrOwner(), statsHandler.AllDonations)
	r.GET("/donations/stats", authMW.RequireAuth(), authMW.RequireAdminOrOwner(), statsHandler.DonationStats)
	r.GET("/stats/registrations", authMW.RequireAuth(), authMW.RequireAdminOrOwner(), statsHandler.RegistrationStats)
	r.GET("/members", authMW.RequireAuth(), authMW.RequireAdminOrOwner(), membersHandler.List)

	// role-gated page prefixes; unauthenticated goes to /login, wrong
	// role goes home
	ownerPages := r.Group("/owner", authMW.PageGuard(user.RoleOwner))
	adminPages := r.Group("/admin", authMW.PageGuard(user.RoleAdmin, user.RoleOwner))
	memberPages := r.Group("/member", authMW.PageGuard(user.RoleMember))

	dashboard := func(name string) gin.HandlerFunc {
		return func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"page": name})
		}
	}

	// "/owner" itself 301s to "/owner/" via gin's trailing-slash redirect
	ownerPages.GET("/*path", dashboard("owner"))
	adminPages.GET("/*path", dashboard("admin"))
	memberPages.GET("/*path", dashboard("member"))

	return r
}
