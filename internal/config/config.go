package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validatorv10 "github.com/go-playground/validator/v10"
)

// Queue backends.
const (
	BackendSQS    = "sqs"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Authorizer validation modes.
const (
	AuthModeJWT           = "jwt"
	AuthModeIntrospection = "introspection"
)

// Config is read from the environment. Account, region, environment name,
// stage and role only parameterise resource names.
type Config struct {
	AccountID        string `env:"AWS_ACCOUNT_ID"`
	Region           string `env:"AWS_REGION" envDefault:"us-east-1"`
	EndpointOverride string `env:"AWS_ENDPOINT_OVERRIDE"`
	Env              string `env:"APP_ENV" envDefault:"dev" validate:"required,alphanum"`
	Stage            string `env:"STAGE" envDefault:"prod" validate:"required"`
	RoleARN          string `env:"EXECUTION_ROLE_ARN"`

	TableName          string `env:"TABLE_NAME"`
	IndexName          string `env:"INDEX_NAME"`
	SuccessQueueURL    string `env:"SUCCESS_QUEUE_URL"`
	FailureQueueURL    string `env:"FAILURE_QUEUE_URL"`
	DeadLetterQueueURL string `env:"DEAD_LETTER_QUEUE_URL"`

	QueueBackend      string        `env:"QUEUE_BACKEND" envDefault:"sqs" validate:"oneof=sqs redis memory"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s" validate:"gt=0"`
	MaxDeliveries     int           `env:"MAX_DELIVERIES" envDefault:"5" validate:"min=1"`
	WriteConcurrency  int           `env:"WRITE_CONCURRENCY" envDefault:"5" validate:"min=1"`

	FunctionName       string        `env:"FUNCTION_NAME"`
	InvokeTimeout      time.Duration `env:"INVOKE_TIMEOUT" envDefault:"20s" validate:"gt=0"`
	ExecutionTimeout   time.Duration `env:"EXECUTION_TIMEOUT" envDefault:"20s"`
	EnqueueMaxAttempts int           `env:"ENQUEUE_MAX_ATTEMPTS" envDefault:"5" validate:"min=1"`
	EnqueueBackoff     time.Duration `env:"ENQUEUE_BACKOFF" envDefault:"100ms" validate:"gt=0"`

	AuthMode         string        `env:"AUTH_MODE" envDefault:"jwt" validate:"oneof=jwt introspection"`
	AuthCacheTTL     time.Duration `env:"AUTH_CACHE_TTL" envDefault:"0s" validate:"gte=0"`
	JWTSigningKey    string        `env:"JWT_SIGNING_KEY"`
	JWTIssuer        string        `env:"JWT_ISSUER"`
	JWTAudience      string        `env:"JWT_AUDIENCE"`
	IntrospectionURL string        `env:"INTROSPECTION_URL" validate:"omitempty,url"`

	APIKeys        map[string]string `env:"API_KEYS" envSeparator:"," envKeyValSeparator:":"`
	UsagePlanName  string            `env:"USAGE_PLAN_NAME"`
	RateLimit      float64           `env:"USAGE_RATE_LIMIT" envDefault:"8000" validate:"gte=0"`
	Burst          int               `env:"USAGE_BURST" envDefault:"4000" validate:"gte=0"`
	QuotaLimit     int               `env:"USAGE_QUOTA_LIMIT" envDefault:"0" validate:"gte=0"`
	QuotaPeriod    time.Duration     `env:"USAGE_QUOTA_PERIOD" envDefault:"24h" validate:"gt=0"`
	WorkerMode     string            `env:"WORKER_MODE" envDefault:"lambda" validate:"oneof=lambda poll"`
	MetricsNS      string            `env:"METRICS_NAMESPACE" envDefault:"DispatchPipeline"`
	PublishMetrics bool              `env:"PUBLISH_FAULT_METRICS" envDefault:"true"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	RunLocal   bool   `env:"RUN_LOCAL"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses an explicit environment, used by tests and the CLI.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	c.applyNames()
	if err := validatorv10.New().Struct(c); err != nil {
		return c, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// applyNames fills unset resource names from the environment name.
func (c *Config) applyNames() {
	names := NamesFor(c.Env)
	if c.TableName == "" {
		c.TableName = names.Table
	}
	if c.IndexName == "" {
		c.IndexName = names.Index
	}
	if c.UsagePlanName == "" {
		c.UsagePlanName = names.UsagePlan
	}
	if c.FunctionName == "" {
		c.FunctionName = names.PrimaryFunction
	}
}

// ValidateAuth checks the settings the token authorizer needs. Only the
// gateway and the authorizer function call it; the worker never validates
// tokens.
func (c Config) ValidateAuth() error {
	switch c.AuthMode {
	case AuthModeIntrospection:
		if c.IntrospectionURL == "" {
			return fmt.Errorf("invalid config: INTROSPECTION_URL is required when AUTH_MODE=%s", AuthModeIntrospection)
		}
	default:
		if c.JWTSigningKey == "" {
			return fmt.Errorf("invalid config: JWT_SIGNING_KEY is required when AUTH_MODE=%s", AuthModeJWT)
		}
	}
	return nil
}

// ResourceNames are the per-environment names of the provisioned resources.
type ResourceNames struct {
	Table            string
	Index            string
	SuccessQueue     string
	FailureQueue     string
	UsagePlan        string
	APIKey           string
	PrimaryFunction  string
	ConsumerFunction string
	AuthFunction     string
}

// NamesFor derives resource names for an environment.
func NamesFor(envName string) ResourceNames {
	return ResourceNames{
		Table:            "Lambda-DDB-Table" + envName,
		Index:            "lambda-gsi-ddb-" + envName,
		SuccessQueue:     "On-Success-lambda-sqs-queue-" + envName,
		FailureQueue:     "On-Failure-lambda-sqs-queue-" + envName,
		UsagePlan:        "RestAPIG-Usage-Plan-" + envName,
		APIKey:           "RestAPI-Key-" + envName,
		PrimaryFunction:  "Deloitte-POC-Lambda-" + envName,
		ConsumerFunction: "Deloitte-POC-Second-Lambda-" + envName,
		AuthFunction:     "Deloitte-POC-Auth-Lambda-" + envName,
	}
}

// Names returns the resource names of this config's environment.
func (c Config) Names() ResourceNames {
	return NamesFor(c.Env)
}
