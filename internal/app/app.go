// Package app wires configuration, storage and the session modules into an HTTP router.
package app

import (
	"context"
	"net/http"
	"time"

	"gameauth/internal/config"
	"gameauth/internal/identity"
	"gameauth/internal/middleware"
	"gameauth/internal/modules/audit"
	"gameauth/internal/modules/ledger"
	"gameauth/internal/modules/session"
	"gameauth/internal/modules/users"
	"gameauth/internal/pkg/jwt"
	"gameauth/internal/pkg/logger"
	"gameauth/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

type App struct {
	Router  *gin.Engine
	Users   *users.Directory
	Ledger  *ledger.Ledger
	Audit   *audit.Recorder
	Session *session.Service
}

// New builds the service on top of an open database.
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)

	refresh, err := NewLedger(cfg, db, log)
	if err != nil {
		return nil, err
	}
	userRepo := repository.NewUserRepository(db)
	dir := users.NewDirectory(userRepo, users.WithLogger(logger.WithComponent(log, "users")))
	recorder := NewRecorder(db, log)
	tokens := jwt.New(cfg.JWTSecret, cfg.JWTAccessTTL, jwt.WithIssuer(cfg.JWTIssuer))

	svc := session.NewService(
		NewIdentities(cfg, log),
		dir,
		tokens,
		refresh,
		recorder,
		session.WithLogger(logger.WithComponent(log, "session")),
	)
	handler := session.NewHandler(svc)

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger.WithComponent(log, "http")),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := dir.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limiter := middleware.NewIPRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst)
	handler.RegisterPublicRoutes(r.Group(""), middleware.RateLimit(limiter))

	protected := r.Group("")
	protected.Use(middleware.JWTAuth(tokens))
	handler.RegisterProtectedRoutes(protected)

	return &App{
		Router:  r,
		Users:   dir,
		Ledger:  refresh,
		Audit:   recorder,
		Session: svc,
	}, nil
}

// NewLedger builds the refresh-token ledger over the relational store.
func NewLedger(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*ledger.Ledger, error) {
	return ledger.New(repository.NewLedgerRepository(db), ledger.Config{
		RefreshTTL:        cfg.RefreshTTL,
		FamilyMaxTTL:      cfg.FamilyMaxTTL,
		MaxRefreshCount:   cfg.MaxRefreshCount,
		Pepper:            cfg.RefreshTokenPepper,
		MismatchPolicy:    ledger.MismatchPolicy(cfg.DeviceMismatchPolicy),
		AllowDeviceRebind: cfg.AllowDeviceRebind,
	}, ledger.WithLogger(logger.WithComponent(logger.OrNop(log), "ledger")))
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *audit.Recorder {
	return audit.NewRecorder(
		repository.NewSessionHistoryRepository(db),
		audit.WithLogger(logger.WithComponent(logger.OrNop(log), "audit")),
	)
}

// NewIdentities registers a verifier for every enabled provider.
func NewIdentities(cfg *config.Config, log *zap.Logger) *identity.Registry {
	reg := identity.NewRegistry(cfg.DefaultProvider)
	if cfg.HasProvider("google") {
		reg.Register("google", identity.NewGoogleVerifier(
			cfg.GoogleClientIDs,
			identity.WithCertsURL(cfg.GoogleCertsURL),
			identity.WithRefetchInterval(cfg.GoogleCertsRefetch),
			identity.WithLogger(logger.WithComponent(logger.OrNop(log), "google")),
		))
	}
	if cfg.HasProvider("dev") {
		reg.Register("dev", identity.NewDevVerifier(cfg.DevIdentitySecret))
	}
	return reg
}
