package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server is the full process configuration, read once at startup.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	AdminToken        string
	PayloadKey        string
	WebhookSecret     string
	EntityEndpoints   string
	WebhookTimeout    time.Duration
	AutoApprove       bool
	AutoCreateSubject bool

	Transfer  TransferConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Retention time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KickChannel  string
}

type KafkaConfig struct {
	Brokers    string
	AuditTopic string
}

type TransferConfig struct {
	TTL            time.Duration
	MaxRetries     int
	ForwardTimeout time.Duration
}

// RateLimitConfig caps public API calls per client network. Zero Requests
// disables limiting.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	Concurrency int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Default is the development configuration: in-memory stores, auto-approval
// on, and fixed development secrets.
func Default() Server {
	return Server{
		Addr:              ":8080",
		Environment:       "development",
		LogLevel:          "info",
		PayloadKey:        "dev-payload-key-change-in-production",
		WebhookSecret:     "dev-webhook-secret-change-in-production",
		WebhookTimeout:    10 * time.Second,
		AutoApprove:       true,
		AutoCreateSubject: true,
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			KickChannel:  "hie:scheduler:kick",
		},
		Kafka: KafkaConfig{AuditTopic: "hie.audit"},
		Transfer: TransferConfig{
			TTL:            24 * time.Hour,
			MaxRetries:     5,
			ForwardTimeout: 15 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Interval:    5 * time.Second,
			Concurrency: 8,
			BackoffBase: 5 * time.Second,
			BackoffCap:  10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Requests: 600,
			Window:   time.Minute,
		},
		Retention: 30 * 24 * time.Hour,
	}
}

// FromEnv loads an optional .env file, then overlays environment variables
// on Default. Malformed values are errors rather than silent fallbacks.
func FromEnv() (Server, error) {
	_ = godotenv.Load()
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Server, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.str("HIE_ADDR", &cfg.Addr)
	p.str("ENVIRONMENT", &cfg.Environment)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("DATABASE_URL", &cfg.Database.URL)
	p.str("REDIS_URL", &cfg.Redis.URL)
	p.str("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	p.str("KAFKA_AUDIT_TOPIC", &cfg.Kafka.AuditTopic)
	p.str("HIE_ADMIN_TOKEN", &cfg.AdminToken)
	p.str("HIE_PAYLOAD_KEY", &cfg.PayloadKey)
	p.str("HIE_WEBHOOK_SECRET", &cfg.WebhookSecret)
	p.str("HIE_ENTITY_ENDPOINTS", &cfg.EntityEndpoints)
	p.boolean("HIE_AUTO_APPROVE_CONSENT", &cfg.AutoApprove)
	p.boolean("HIE_AUTO_CREATE_SUBJECT", &cfg.AutoCreateSubject)
	p.duration("HIE_TRANSFER_TTL", &cfg.Transfer.TTL)
	p.integer("HIE_MAX_RETRIES", &cfg.Transfer.MaxRetries)
	p.duration("HIE_FORWARD_TIMEOUT", &cfg.Transfer.ForwardTimeout)
	p.duration("HIE_SCHEDULER_INTERVAL", &cfg.Scheduler.Interval)
	p.integer("HIE_SCHEDULER_CONCURRENCY", &cfg.Scheduler.Concurrency)
	p.duration("HIE_BACKOFF_BASE", &cfg.Scheduler.BackoffBase)
	p.duration("HIE_BACKOFF_CAP", &cfg.Scheduler.BackoffCap)
	p.duration("HIE_WEBHOOK_TIMEOUT", &cfg.WebhookTimeout)
	p.integer("HIE_RATE_LIMIT", &cfg.RateLimit.Requests)
	p.duration("HIE_RATE_WINDOW", &cfg.RateLimit.Window)
	p.duration("HIE_RETENTION", &cfg.Retention)

	if p.err != nil {
		return Server{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// IsProduction reports whether development defaults must be rejected.
func (c Server) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c Server) validate() error {
	switch {
	case c.Transfer.MaxRetries < 0:
		return fmt.Errorf("HIE_MAX_RETRIES must be >= 0")
	case c.Transfer.TTL <= 0:
		return fmt.Errorf("HIE_TRANSFER_TTL must be positive")
	case c.Scheduler.Interval <= 0:
		return fmt.Errorf("HIE_SCHEDULER_INTERVAL must be positive")
	case c.Scheduler.Concurrency < 1:
		return fmt.Errorf("HIE_SCHEDULER_CONCURRENCY must be >= 1")
	case c.Scheduler.BackoffBase <= 0 || c.Scheduler.BackoffCap < c.Scheduler.BackoffBase:
		return fmt.Errorf("HIE_BACKOFF_BASE must be positive and not above HIE_BACKOFF_CAP")
	case c.RateLimit.Requests < 0:
		return fmt.Errorf("HIE_RATE_LIMIT must be >= 0")
	case c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0:
		return fmt.Errorf("HIE_RATE_WINDOW must be positive when rate limiting is enabled")
	case len(c.PayloadKey) < 16:
		return fmt.Errorf("HIE_PAYLOAD_KEY must be at least 16 bytes")
	}
	if c.IsProduction() && (c.PayloadKey == Default().PayloadKey || c.WebhookSecret == Default().WebhookSecret) {
		return fmt.Errorf("development secrets are not allowed in production")
	}
	return nil
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) boolean(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = b
	}
}

func (p *parser) integer(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = n
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = d
	}
}
