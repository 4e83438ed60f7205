package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lucasberan/keygate/internal/api"
	"github.com/lucasberan/keygate/internal/app"
	"github.com/lucasberan/keygate/internal/app/maintenance"
	"github.com/lucasberan/keygate/internal/audit"
	"github.com/lucasberan/keygate/internal/auth"
	"github.com/lucasberan/keygate/internal/database"
	"github.com/lucasberan/keygate/internal/twofactor"
	"github.com/lucasberan/keygate/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Audits     *audit.Service
	Challenges *twofactor.Coordinator
	StepUpGate *auth.StepUpGate
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, services, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	authenticator, err := auth.NewPasswordAuthenticator(stack.DB, auth.LocalConfig{
		LockoutThreshold: cfg.Auth.Local.LockoutThreshold,
		LockoutDuration:  cfg.Auth.Local.LockoutDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise authenticator: %w", err)
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
		RememberMeTTL:  cfg.Auth.JWT.RememberTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	stack.StepUpGate = auth.NewStepUpGate(cfg.Auth.StepUp.Window, nil)

	key, err := app.DecodeKey(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	codec, err := twofactor.NewSecretCodec(key)
	if err != nil {
		return nil, fmt.Errorf("initialise secret codec: %w", err)
	}

	store, err := twofactor.NewProfileStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise profile store: %w", err)
	}

	twoFactor, err := twofactor.NewService(store, codec, stack.StepUpGate, cfg.Auth.TwoFactor.Issuer,
		twofactor.WithRecoveryCodeCount(cfg.Auth.TwoFactor.RecoveryCodes),
		twofactor.WithQRCodeSize(cfg.Auth.TwoFactor.QRCodeSize),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise two-factor service: %w", err)
	}

	stack.Challenges, err = twofactor.NewCoordinator(twoFactor, cfg.Auth.TwoFactor.ChallengeTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise challenge coordinator: %w", err)
	}

	stack.Audits, err = audit.NewService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Challenges, stack.StepUpGate, stack.Audits,
		maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays))

	stack.Router, err = api.NewRouter(api.Dependencies{
		Authenticator:  authenticator,
		Tokens:         tokens,
		StepUpGate:     stack.StepUpGate,
		TwoFactor:      twoFactor,
		Challenges:     stack.Challenges,
		Audits:         stack.Audits,
		AuthRateLimit:  cfg.Auth.RateLimit.MaxRequests,
		AuthRateWindow: cfg.Auth.RateLimit.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	return stack, nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Database = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.Username = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = cfg.Database.Postgres.Password
		dbCfg.SSLMode = strings.TrimSpace(cfg.Database.Postgres.SSLMode)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Database = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.Username = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	cfg.Security.EncryptionKey = strings.TrimSpace(cfg.Security.EncryptionKey)
	key, err := app.DecodeKey(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("security.encryption_key: %w", err)
	}
	if keyLen := len(key); keyLen != 16 && keyLen != 24 && keyLen != 32 {
		return fmt.Errorf("security.encryption_key must decode to 16, 24, or 32 bytes (current: %d)", keyLen)
	}

	return nil
}
