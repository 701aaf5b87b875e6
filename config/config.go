package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/database"
	"github.com/civic-assembly/backend/pkg/redis"
)

// Audit sink selectors for AUDIT_SINK.
const (
	AuditSinkQueue    = "queue"
	AuditSinkDatabase = "database"
	AuditSinkLog      = "log"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	AWS        AWSConfig
	Governance GovernanceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins []string // CORS_ALLOWED_ORIGINS, comma-separated; "*" allows all
	WorkerMetricsAddr  string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/assembly?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// PoolOptions returns the pgx pool tuning.
func (c DatabaseConfig) PoolOptions() database.PoolOptions {
	return database.PoolOptions{MaxConns: int32(c.MaxConns), MinConns: int32(c.MinConns), MaxConnLifetime: time.Hour}
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Options returns the Redis client options.
func (c RedisConfig) Options() redis.Options {
	return redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB, PoolSize: c.PoolSize}
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	Issuer      string
	ExpireHours int
}

// TTL returns the access token lifetime.
func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpireHours) * time.Hour
}

// AWSConfig holds AWS credentials and the signed protocols bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ProtocolsBucket      string
	PresignExpireMinutes int
}

// GovernanceConfig holds the process-wide governance defaults.
type GovernanceConfig struct {
	GAMode            models.GAMode
	QuorumNumerator   int
	QuorumDenominator int
	QuorumRounding    models.QuorumRounding
	EarlyVotingDays   int
	ConsentWindowDays int
	AuditSink         string
	AuditBufferSize   int
	QuorumCacheTTL    time.Duration
}

// ConsentWindow returns the consent deadline offset for new memberships.
func (g GovernanceConfig) ConsentWindow() time.Duration {
	return time.Duration(g.ConsentWindowDays) * 24 * time.Hour
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			WorkerMetricsAddr:  getEnv("WORKER_METRICS_ADDR", ":9091"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "assembly"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			Issuer:      getEnv("JWT_ISSUER", "civic-assembly"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ProtocolsBucket:      getEnv("AWS_S3_PROTOCOLS_BUCKET", "assembly-protocols"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Governance: GovernanceConfig{
			GAMode:            models.GAMode(strings.ToUpper(getEnv("GA_MODE", string(models.GAModeProduction)))),
			QuorumNumerator:   getEnvInt("QUORUM_NUMERATOR", 1),
			QuorumDenominator: getEnvInt("QUORUM_DENOMINATOR", 2),
			QuorumRounding:    models.QuorumRounding(strings.ToUpper(getEnv("QUORUM_ROUNDING", string(models.RoundCeil)))),
			EarlyVotingDays:   getEnvInt("EARLY_VOTING_DAYS", 0),
			ConsentWindowDays: getEnvInt("CONSENT_WINDOW_DAYS", 14),
			AuditSink:         strings.ToLower(getEnv("AUDIT_SINK", AuditSinkQueue)),
			AuditBufferSize:   getEnvInt("AUDIT_BUFFER_SIZE", 256),
			QuorumCacheTTL:    time.Duration(getEnvInt("QUORUM_CACHE_TTL_SEC", 15)) * time.Second,
		},
	}
	if err := cfg.Governance.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g GovernanceConfig) validate() error {
	if !g.GAMode.Valid() {
		return fmt.Errorf("GA_MODE must be TEST or PRODUCTION, got %q", g.GAMode)
	}
	if g.QuorumDenominator <= 0 || g.QuorumNumerator <= 0 || g.QuorumNumerator > g.QuorumDenominator {
		return fmt.Errorf("quorum fraction %d/%d must lie in (0, 1]", g.QuorumNumerator, g.QuorumDenominator)
	}
	if !g.QuorumRounding.Valid() {
		return fmt.Errorf("QUORUM_ROUNDING must be CEIL or FLOOR, got %q", g.QuorumRounding)
	}
	if g.EarlyVotingDays < 0 || g.ConsentWindowDays < 0 {
		return fmt.Errorf("EARLY_VOTING_DAYS and CONSENT_WINDOW_DAYS must not be negative")
	}
	switch g.AuditSink {
	case AuditSinkQueue, AuditSinkDatabase, AuditSinkLog:
	default:
		return fmt.Errorf("AUDIT_SINK must be queue, database or log, got %q", g.AuditSink)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, fallback), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
