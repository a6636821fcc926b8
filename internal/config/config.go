package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr           = ":8080"
	defaultDatabaseURL        = "file:gameauth.db?_pragma=busy_timeout(5000)"
	defaultDBMaxOpenConns     = "10"
	defaultLogLevel           = "info"
	defaultJWTIssuer          = "gameauth"
	defaultJWTAccessTTL       = "15m"
	defaultRefreshTTL         = "30d"
	defaultFamilyMaxTTL       = "90d"
	defaultMaxRefreshCount    = "200"
	defaultDeviceMismatch     = DeviceMismatchReject
	defaultAllowDeviceRebind  = "true"
	defaultIdentityProviders  = "google"
	defaultGoogleCertsURL     = "https://www.googleapis.com/oauth2/v3/certs"
	defaultCertsRefetch       = "30s"
	defaultLoginRateLimit     = "1"
	defaultLoginRateBurst     = "10"
	defaultHistoryRetention   = "180d"
	defaultSpentRetention     = "7d"
	defaultJWTSecret          = "change-me-jwt-secret"
	defaultRefreshTokenPepper = "change-me-refresh-pepper"

	minSecretLen     = 8
	minProdSecretLen = 32
)

// Device mismatch policies for refresh verification.
const (
	DeviceMismatchReject       = "reject"
	DeviceMismatchRevokeFamily = "revoke_family"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	DatabaseURL    string
	DBMaxOpenConns int
	MigrateOnStart bool
	LogLevel       string

	JWTSecret    string
	JWTIssuer    string
	JWTAccessTTL time.Duration

	RefreshTTL           time.Duration
	FamilyMaxTTL         time.Duration
	MaxRefreshCount      int
	RefreshTokenPepper   string
	DeviceMismatchPolicy string
	AllowDeviceRebind    bool

	IdentityProviders  []string
	DefaultProvider    string
	GoogleClientIDs    []string
	GoogleCertsURL     string
	GoogleCertsRefetch time.Duration // minimum spacing between JWKS fetches
	DevIdentitySecret  string

	LoginRateLimit     float64
	LoginRateBurst     int
	CORSAllowedOrigins []string

	SessionHistoryRetention time.Duration
	SpentTokenRetention     time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.MigrateOnStart = parseBoolEnv("MIGRATE_ON_START", "false")
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", defaultLogLevel)))

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.JWTIssuer = strings.TrimSpace(getEnv("JWT_ISSUER", defaultJWTIssuer))
	cfg.RefreshTokenPepper = strings.TrimSpace(getEnv("REFRESH_TOKEN_PEPPER", defaultRefreshTokenPepper))
	cfg.DeviceMismatchPolicy = strings.ToLower(strings.TrimSpace(getEnv("DEVICE_MISMATCH_POLICY", defaultDeviceMismatch)))
	cfg.AllowDeviceRebind = parseBoolEnv("ALLOW_DEVICE_REBIND", defaultAllowDeviceRebind)

	for _, p := range parseListEnv("IDENTITY_PROVIDERS", defaultIdentityProviders) {
		cfg.IdentityProviders = append(cfg.IdentityProviders, strings.ToLower(p))
	}
	cfg.GoogleClientIDs = parseListEnv("GOOGLE_CLIENT_IDS", "")
	cfg.GoogleCertsURL = strings.TrimSpace(getEnv("GOOGLE_CERTS_URL", defaultGoogleCertsURL))
	cfg.DevIdentitySecret = strings.TrimSpace(os.Getenv("DEV_IDENTITY_SECRET"))
	cfg.DefaultProvider = strings.ToLower(strings.TrimSpace(os.Getenv("DEFAULT_PROVIDER")))
	if cfg.DefaultProvider == "" && len(cfg.IdentityProviders) > 0 {
		cfg.DefaultProvider = cfg.IdentityProviders[0]
	}
	cfg.CORSAllowedOrigins = parseListEnv("CORS_ALLOWED_ORIGINS", "")

	var err error
	if cfg.DBMaxOpenConns, err = parseIntEnv("DB_MAX_OPEN_CONNS", defaultDBMaxOpenConns); err != nil {
		return nil, err
	}
	if cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = parseDurationEnv("REFRESH_TTL", defaultRefreshTTL); err != nil {
		return nil, err
	}
	if cfg.FamilyMaxTTL, err = parseDurationEnv("FAMILY_MAX_TTL", defaultFamilyMaxTTL); err != nil {
		return nil, err
	}
	if cfg.MaxRefreshCount, err = parseIntEnv("MAX_REFRESH_COUNT", defaultMaxRefreshCount); err != nil {
		return nil, err
	}
	if cfg.LoginRateLimit, err = parseFloatEnv("LOGIN_RATE_LIMIT", defaultLoginRateLimit); err != nil {
		return nil, err
	}
	if cfg.LoginRateBurst, err = parseIntEnv("LOGIN_RATE_BURST", defaultLoginRateBurst); err != nil {
		return nil, err
	}
	if cfg.GoogleCertsRefetch, err = parseDurationEnv("GOOGLE_CERTS_REFETCH_INTERVAL", defaultCertsRefetch); err != nil {
		return nil, err
	}
	if cfg.SessionHistoryRetention, err = parseDurationEnv("SESSION_HISTORY_RETENTION", defaultHistoryRetention); err != nil {
		return nil, err
	}
	if cfg.SpentTokenRetention, err = parseDurationEnv("SPENT_TOKEN_RETENTION", defaultSpentRetention); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProdLike() bool {
	return isProdLike(c.AppEnv)
}

// HasProvider reports whether the named identity provider is enabled.
func (c *Config) HasProvider(name string) bool {
	for _, p := range c.IdentityProviders {
		if p == name {
			return true
		}
	}
	return false
}

func validateConfig(cfg *Config) error {
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return fmt.Errorf("REFRESH_TTL must be > 0")
	}
	if cfg.FamilyMaxTTL <= 0 {
		return fmt.Errorf("FAMILY_MAX_TTL must be > 0")
	}
	if cfg.RefreshTTL > cfg.FamilyMaxTTL {
		return fmt.Errorf("REFRESH_TTL must not exceed FAMILY_MAX_TTL")
	}
	if cfg.MaxRefreshCount < 1 {
		return fmt.Errorf("MAX_REFRESH_COUNT must be >= 1")
	}
	if cfg.DBMaxOpenConns < 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be >= 0")
	}
	if cfg.LoginRateLimit <= 0 || cfg.LoginRateBurst < 1 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be > 0 and LOGIN_RATE_BURST >= 1")
	}
	if cfg.GoogleCertsRefetch <= 0 {
		return fmt.Errorf("GOOGLE_CERTS_REFETCH_INTERVAL must be > 0")
	}
	if cfg.SessionHistoryRetention <= 0 || cfg.SpentTokenRetention <= 0 {
		return fmt.Errorf("retention periods must be > 0")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if len(cfg.JWTSecret) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen)
	}
	if cfg.RefreshTokenPepper == "" {
		return fmt.Errorf("REFRESH_TOKEN_PEPPER must not be empty")
	}

	switch cfg.DeviceMismatchPolicy {
	case DeviceMismatchReject, DeviceMismatchRevokeFamily:
	default:
		return fmt.Errorf("DEVICE_MISMATCH_POLICY must be one of: %s, %s", DeviceMismatchReject, DeviceMismatchRevokeFamily)
	}

	if len(cfg.IdentityProviders) == 0 {
		return fmt.Errorf("IDENTITY_PROVIDERS must name at least one provider")
	}
	for _, p := range cfg.IdentityProviders {
		switch p {
		case "google":
			if len(cfg.GoogleClientIDs) == 0 {
				return fmt.Errorf("GOOGLE_CLIENT_IDS is required when the google provider is enabled")
			}
		case "dev":
			if len(cfg.DevIdentitySecret) < minSecretLen {
				return fmt.Errorf("DEV_IDENTITY_SECRET must be at least %d characters when the dev provider is enabled", minSecretLen)
			}
		default:
			return fmt.Errorf("unknown identity provider %q", p)
		}
	}
	if !cfg.HasProvider(cfg.DefaultProvider) {
		return fmt.Errorf("DEFAULT_PROVIDER %q is not in IDENTITY_PROVIDERS", cfg.DefaultProvider)
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) || len(cfg.JWTSecret) < minProdSecretLen {
			return fmt.Errorf("in prod/release JWT_SECRET must be set, not default and at least %d characters", minProdSecretLen)
		}
		if isEmptyOrDefault(cfg.RefreshTokenPepper, defaultRefreshTokenPepper) {
			return fmt.Errorf("in prod/release REFRESH_TOKEN_PEPPER must be set and not default")
		}
		if cfg.HasProvider("dev") {
			return fmt.Errorf("in prod/release the dev identity provider must not be enabled")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

// parseDurationEnv accepts Go durations plus a whole-day suffix ("30d").
func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseFloatEnv(name, fallback string) (float64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return f, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func parseListEnv(name, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(name, fallback), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
