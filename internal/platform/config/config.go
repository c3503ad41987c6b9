package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "docverify/pkg/platform/strings"
)

// Mode is chosen once at process start and passed to every component that
// behaves differently per deployment.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
	// ModeDegraded keeps verification running on in-memory fallbacks while
	// issuance and revocation are refused with 503.
	ModeDegraded Mode = "degraded"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDevelopment, ModeProduction, ModeDegraded:
		return m, nil
	case "":
		return ModeDevelopment, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// IssuanceEnabled reports whether documents can be generated or revoked.
func (m Mode) IssuanceEnabled() bool { return m != ModeDegraded }

type Config struct {
	Mode            Mode
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration

	DatabaseURL  string
	StoreTimeout time.Duration

	Redis RedisConfig

	KafkaBrokers string
	AuditTopic   string
	AuditTimeout time.Duration
	AuditQueue   int

	Signing SigningConfig
	Auth    AuthConfig

	VerifyBaseURL string

	RateLimit RateLimitConfig
	GeoIP     GeoIPConfig
	MinIO     MinIOConfig

	PolicyFile         string
	TrustedProxies     []string
	CORSAllowedOrigins []string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SigningConfig struct {
	KeysDir          string
	ActiveKeyID      string
	MicroprintSecret string
}

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

type RateLimitConfig struct {
	MaxAttempts      int
	Window           time.Duration
	IssueMaxAttempts int
}

type GeoIPConfig struct {
	PrimaryURL    string
	FallbackURL   string
	Timeout       time.Duration
	CacheTTL      time.Duration
	SweepInterval time.Duration
	ProviderQPS   float64
	DevCountry    string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads the process configuration from the environment and validates it.
func Load() (*Config, error) {
	mode, err := ParseMode(os.Getenv("DOCVERIFY_MODE"))
	if err != nil {
		return nil, err
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		Mode:            mode,
		Addr:            getEnv("DOCVERIFY_ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", "15s"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StoreTimeout:    duration("STORE_TIMEOUT", "2s"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 20),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  duration("REDIS_DIAL_TIMEOUT", "2s"),
			ReadTimeout:  duration("REDIS_READ_TIMEOUT", "500ms"),
			WriteTimeout: duration("REDIS_WRITE_TIMEOUT", "500ms"),
		},
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		AuditTopic:   getEnv("DOCVERIFY_AUDIT_TOPIC", "docverify.audit"),
		AuditTimeout: duration("AUDIT_TIMEOUT", "1s"),
		AuditQueue:   getEnvInt("AUDIT_QUEUE_SIZE", 1024),
		Signing: SigningConfig{
			KeysDir:          os.Getenv("SIGNING_KEYS_DIR"),
			ActiveKeyID:      os.Getenv("SIGNING_ACTIVE_KEY_ID"),
			MicroprintSecret: os.Getenv("MICROPRINT_SECRET"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", "docverify"),
		},
		VerifyBaseURL: strings.TrimRight(getEnv("VERIFY_BASE_URL", "http://localhost:8080"), "/"),
		RateLimit: RateLimitConfig{
			MaxAttempts:      getEnvInt("RATE_LIMIT_MAX", 20),
			Window:           duration("RATE_LIMIT_WINDOW", "1m"),
			IssueMaxAttempts: getEnvInt("ISSUE_RATE_LIMIT_MAX", 60),
		},
		GeoIP: GeoIPConfig{
			PrimaryURL:    os.Getenv("GEOIP_PRIMARY_URL"),
			FallbackURL:   os.Getenv("GEOIP_FALLBACK_URL"),
			Timeout:       duration("GEOIP_TIMEOUT", "2s"),
			CacheTTL:      duration("GEOIP_CACHE_TTL", "1h"),
			SweepInterval: duration("GEOIP_SWEEP_INTERVAL", "5m"),
			ProviderQPS:   getEnvFloat("GEOIP_PROVIDER_QPS", 10),
			DevCountry:    strings.ToUpper(getEnv("GEOIP_DEV_COUNTRY", "ZA")),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "docverify-artifacts"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		PolicyFile:         os.Getenv("DOCVERIFY_POLICY_FILE"),
		TrustedProxies:     splitCSV(os.Getenv("TRUSTED_PROXIES")),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cfg.Mode == ModeDevelopment && cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "dev-secret-key-change-in-production"
	}
	if cfg.Mode == ModeDevelopment && cfg.Signing.MicroprintSecret == "" {
		cfg.Signing.MicroprintSecret = "dev-microprint-secret"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.Signing.MicroprintSecret == "" {
		errs = append(errs, errors.New("MICROPRINT_SECRET is required"))
	}
	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.IssueMaxAttempts <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX and ISSUE_RATE_LIMIT_MAX must be > 0"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.GeoIP.Timeout <= 0 || c.GeoIP.Timeout > 3*time.Second {
		errs = append(errs, errors.New("GEOIP_TIMEOUT must be between 1ms and 3s"))
	}
	if c.GeoIP.CacheTTL <= 0 {
		errs = append(errs, errors.New("GEOIP_CACHE_TTL must be > 0"))
	}
	if len(c.GeoIP.DevCountry) != 2 {
		errs = append(errs, errors.New("GEOIP_DEV_COUNTRY must be an ISO 3166-1 alpha-2 code"))
	}
	if c.StoreTimeout <= 0 || c.AuditTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT and AUDIT_TIMEOUT must be > 0"))
	}
	if c.AuditQueue <= 0 {
		errs = append(errs, errors.New("AUDIT_QUEUE_SIZE must be > 0"))
	}
	if c.Mode == ModeProduction {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required in production"))
		}
		if c.Signing.KeysDir == "" || c.Signing.ActiveKeyID == "" {
			errs = append(errs, errors.New("SIGNING_KEYS_DIR and SIGNING_ACTIVE_KEY_ID are required in production"))
		}
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 chars in production"))
		}
		if c.GeoIP.PrimaryURL == "" {
			errs = append(errs, errors.New("GEOIP_PRIMARY_URL is required in production"))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	return pstrings.SplitCSV(v)
}
