package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Store backends selectable with STORE.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port       string        `env:"PORT,        default=8080"`
	Env        string        `env:"ENV,         default=development"`
	JWTSecret  string        `env:"JWT_SECRET"`
	LogLevel   string        `env:"LOG_LEVEL,   default=info"`
	SessionTTL time.Duration `env:"SESSION_TTL, default=12h"`
	Store      string        `env:"STORE,       default=mongo"`
	BcryptCost int           `env:"BCRYPT_COST, default=10"`

	// AllowedOrigins are host patterns accepted for CORS and websocket
	// upgrades, e.g. "portal.example.com,*.example.com".
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	Mongo     MongoConfig
	Redis     RedisConfig
	S3        S3Config
	Admission AdmissionConfig
	Dispatch  DispatchConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=raven_portal"`
}

// RedisConfig sizes the single client shared by sessions, admissions and
// notifications. Every open stream holds one pub/sub connection on top of
// the pool.
type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR,           default=localhost:6379"`
	DB           int           `env:"REDIS_DB,             default=0"`
	ClientName   string        `env:"REDIS_CLIENT_NAME,    default=raven-portal"`
	PoolSize     int           `env:"REDIS_POOL_SIZE,      default=20"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT,   default=5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT,   default=3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT,  default=3s"`
}

// S3Config points at any S3-compatible bucket. Endpoint is set for MinIO.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET,     default=raven-portal"`
	Region    string `env:"S3_REGION,     default=us-east-1"`
	Endpoint  string `env:"S3_ENDPOINT"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
}

// AdmissionConfig seeds the gateway and tunes the approval queue. The policy
// flags only apply when the gateway is first seeded.
type AdmissionConfig struct {
	OperativePhrase     string        `env:"GATEWAY_OPERATIVE_PHRASE, default=raven.oracle"`
	AdminPhrase         string        `env:"GATEWAY_ADMIN_PHRASE"`
	ApprovalTimeout     time.Duration `env:"APPROVAL_TIMEOUT,         default=15m"`
	SweepInterval       time.Duration `env:"EXPIRY_SWEEP_INTERVAL,    default=1m"`
	TTL                 time.Duration `env:"ADMISSION_TTL,            default=24h"`
	InvitedSkipApproval bool          `env:"INVITED_SKIP_APPROVAL,    default=false"`
	AllowUninvitedQueue bool          `env:"ALLOW_UNINVITED_QUEUE,    default=false"`
}

type DispatchConfig struct {
	Workers int `env:"DISPATCH_WORKERS, default=8"`
}

// devSecret signs tokens in development when JWT_SECRET is unset.
const devSecret = "raven-portal-development-secret"

// IsDevelopment reports whether the process runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Validate checks the settings envconfig cannot express.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return errors.New("JWT_SECRET is required outside development")
		}
		c.JWTSecret = devSecret
	}
	switch c.Store {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreMongo, StoreMemory, c.Store)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := load(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
