package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/akylbek/payment-system/credential-payments/internal/publisher"
	"github.com/akylbek/payment-system/credential-payments/internal/security"
	"github.com/akylbek/payment-system/credential-payments/internal/worker"
)

type Config struct {
	APP
	Stores
	Kafka
	Verifier
	Security
	SideEffects
}

type APP struct {
	Port            string        `env:"PORT" envDefault:"8082"`
	JaegerEndpoint  string        `env:"JAEGER_ENDPOINT"`
	PaymentWindow   time.Duration `env:"PAYMENT_WINDOW" envDefault:"30m"`
	RetentionWindow time.Duration `env:"RETENTION_WINDOW" envDefault:"720h"`
	CleanupSchedule string        `env:"CLEANUP_SCHEDULE" envDefault:"@every 5m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Stores selects persistence and locking. Empty URLs select the in-process
// implementations.
type Stores struct {
	DatabaseURL      string        `env:"DATABASE_URL"`
	RedisURL         string        `env:"REDIS_URL"`
	LockTimeout      time.Duration `env:"LOCK_TIMEOUT" envDefault:"10s"`
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	AccountsSeedFile string        `env:"ACCOUNTS_SEED_FILE"`
}

type Kafka struct {
	Brokers string `env:"KAFKA_BROKERS"`
}

type Verifier struct {
	NatsURL string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Timeout time.Duration `env:"VERIFIER_TIMEOUT" envDefault:"5s"`
}

type Security struct {
	AlertThreshold  int    `env:"ALERT_THRESHOLD" envDefault:"3"`
	RevokeThreshold int    `env:"REVOKE_THRESHOLD" envDefault:"5"`
	PolicyFile      string `env:"SECURITY_POLICY_FILE"`
}

// SideEffects configures the dispatcher. It owns all retrying of event
// publishing and notifications.
type SideEffects struct {
	Workers   int           `env:"SIDE_EFFECT_WORKERS" envDefault:"4"`
	QueueSize int           `env:"SIDE_EFFECT_QUEUE_SIZE" envDefault:"256"`
	Timeout   time.Duration `env:"SIDE_EFFECT_TIMEOUT" envDefault:"10s"`
	Retries   int           `env:"SIDE_EFFECT_RETRIES" envDefault:"3"`
	BaseDelay time.Duration `env:"SIDE_EFFECT_RETRY_BASE_DELAY" envDefault:"200ms"`
	MaxDelay  time.Duration `env:"SIDE_EFFECT_RETRY_MAX_DELAY" envDefault:"5s"`
	Jitter    bool          `env:"SIDE_EFFECT_RETRY_JITTER" envDefault:"true"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// PublisherRetry is a single attempt: every publish runs inside a dispatcher
// task, which already retries it.
func (k Kafka) PublisherRetry() publisher.RetryConfig {
	return publisher.RetryConfig{MaxAttempts: 1}
}

func (s SideEffects) WorkerConfig() worker.Config {
	return worker.Config{
		Workers:     s.Workers,
		QueueSize:   s.QueueSize,
		Timeout:     s.Timeout,
		MaxAttempts: s.Retries,
		BaseDelay:   s.BaseDelay,
		MaxDelay:    s.MaxDelay,
		Jitter:      s.Jitter,
	}
}

type policyFile struct {
	AlertThreshold  *int `yaml:"alert_threshold"`
	RevokeThreshold *int `yaml:"revoke_threshold"`
}

// SecurityPolicy builds the clamped policy from the env thresholds, letting
// values in PolicyFile override them. Clamp warnings are returned, not errors.
func (s Security) SecurityPolicy() (security.Policy, []string, error) {
	alert, revoke := s.AlertThreshold, s.RevokeThreshold
	if s.PolicyFile != "" {
		raw, err := os.ReadFile(s.PolicyFile)
		if err != nil {
			return security.Policy{}, nil, fmt.Errorf("read security policy: %w", err)
		}
		var pf policyFile
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return security.Policy{}, nil, fmt.Errorf("parse security policy %s: %w", s.PolicyFile, err)
		}
		if pf.AlertThreshold != nil {
			alert = *pf.AlertThreshold
		}
		if pf.RevokeThreshold != nil {
			revoke = *pf.RevokeThreshold
		}
	}
	policy, warnings := security.NewPolicy(alert, revoke)
	return policy, warnings, nil
}
