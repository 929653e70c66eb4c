package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imssbienestar/medicos/internal/platform/blobstore"
)

const devSigningKey = "development-only-signing-key-change-me"

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DevAuth     bool     `mapstructure:"DEV_AUTH"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSigningKey     string `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer         string `mapstructure:"JWT_ISSUER"`
	JWTTTLMinutes     int    `mapstructure:"JWT_TTL_MINUTES"`
	DeleteConfirmHash string `mapstructure:"DELETE_CONFIRM_HASH"`

	StorageBackend   string `mapstructure:"STORAGE_BACKEND"`
	StorageURL       string `mapstructure:"STORAGE_URL"`
	StorageBucket    string `mapstructure:"STORAGE_BUCKET"`
	StorageAPIKey    string `mapstructure:"STORAGE_API_KEY"`
	StoragePublicURL string `mapstructure:"STORAGE_PUBLIC_URL"`
	UploadMaxSize    int64  `mapstructure:"UPLOAD_MAX_SIZE"`
	ExpiryAlertDays  int    `mapstructure:"EXPIRY_ALERT_DAYS"`
	MigrationsDir    string `mapstructure:"MIGRATIONS_DIR"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled     bool    `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string  `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string  `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "DEV_AUTH", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "CORS_ORIGINS", "JWT_SIGNING_KEY", "JWT_ISSUER", "JWT_TTL_MINUTES",
	"DELETE_CONFIRM_HASH", "STORAGE_BACKEND", "STORAGE_URL", "STORAGE_BUCKET",
	"STORAGE_API_KEY", "STORAGE_PUBLIC_URL", "UPLOAD_MAX_SIZE", "EXPIRY_ALERT_DAYS",
	"MIGRATIONS_DIR", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TLS_ENABLED",
	"TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DEV_AUTH", false)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_ISSUER", "medicos-imss-bienestar")
	v.SetDefault("JWT_TTL_MINUTES", 60)
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("STORAGE_BUCKET", "medicos")
	v.SetDefault("UPLOAD_MAX_SIZE", blobstore.DefaultMaxFileSize)
	v.SetDefault("EXPIRY_ALERT_DAYS", 15)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSigningKey == "" {
		log.Println("WARNING: JWT_SIGNING_KEY is not set; using the development signing key.")
		cfg.JWTSigningKey = devSigningKey
	}
	if cfg.DevAuth {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: DEV_AUTH is enabled: requests without a token act as admin.")
		log.Println("WARNING: Do NOT use this configuration outside local development.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TokenTTL is the lifetime of issued access tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLMinutes) * time.Minute
}

// Storage returns the object store settings passed to blobstore.New.
func (c *Config) Storage() blobstore.Config {
	return blobstore.Config{
		Backend:   c.StorageBackend,
		BaseURL:   c.StorageURL,
		Bucket:    c.StorageBucket,
		APIKey:    c.StorageAPIKey,
		PublicURL: c.StoragePublicURL,
		MaxSize:   c.UploadMaxSize,
	}
}

// Validate checks that the configuration is safe to run. Outside
// development a real signing key is required and DEV_AUTH is refused.
func (c *Config) Validate() error {
	if c.DevAuth && !c.IsDev() {
		return fmt.Errorf("DEV_AUTH may only be enabled with ENV=development (current ENV=%q)", c.Env)
	}
	if !c.IsDev() {
		if c.JWTSigningKey == "" || c.JWTSigningKey == devSigningKey {
			return fmt.Errorf("JWT_SIGNING_KEY must be set when ENV=%q", c.Env)
		}
		if len(c.JWTSigningKey) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 characters, got %d", len(c.JWTSigningKey))
		}
	}
	if c.JWTTTLMinutes <= 0 {
		return fmt.Errorf("JWT_TTL_MINUTES must be positive, got %d", c.JWTTTLMinutes)
	}

	if c.DeleteConfirmHash != "" && !strings.HasPrefix(c.DeleteConfirmHash, "$2") {
		return fmt.Errorf("DELETE_CONFIRM_HASH must be a bcrypt hash; generate one with \"medicos-server secret hash\"")
	}
	if c.IsProduction() && c.DeleteConfirmHash == "" {
		return fmt.Errorf("DELETE_CONFIRM_HASH is required in production")
	}

	switch c.StorageBackend {
	case "memory":
	case "http":
		if c.StorageURL == "" || c.StorageBucket == "" {
			return fmt.Errorf("STORAGE_URL and STORAGE_BUCKET are required when STORAGE_BACKEND is \"http\"")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be \"memory\" or \"http\", got %q", c.StorageBackend)
	}
	if c.UploadMaxSize <= 0 {
		return fmt.Errorf("UPLOAD_MAX_SIZE must be positive, got %d", c.UploadMaxSize)
	}
	if c.ExpiryAlertDays <= 0 {
		return fmt.Errorf("EXPIRY_ALERT_DAYS must be positive, got %d", c.ExpiryAlertDays)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
