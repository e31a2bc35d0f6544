// Package app builds the pipeline components from a Config. Each binary
// takes only the pieces it runs.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/authorizer"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/aws"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/config"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/consumer"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/dispatch"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/employees"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/faults"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/handlers"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/queue"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/usageplan"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/validation"
)

const maxLongPoll = 20 * time.Second

// RecordStore is the full store surface used by the worker and the CLI.
type RecordStore interface {
	consumer.RecordWriter
	employees.Reader
}

// Deps holds the backing clients for one process.
type Deps struct {
	Config config.Config
	Logger *zap.Logger
	AWS    *aws.AWSClients
	Redis  *r.Client

	memQueues map[string]*queue.MemoryQueue
	memStore  *employees.MemoryStore
}

// NewDeps connects the clients the configured backend needs. The memory
// backend needs none and keeps records in process as well.
func NewDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: logger, memQueues: map[string]*queue.MemoryQueue{}}

	switch cfg.QueueBackend {
	case config.BackendMemory:
		d.memStore = employees.NewMemoryStore(0)
		return d, nil
	case config.BackendRedis:
		d.Redis = r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
	}

	clients, err := aws.NewAWSClients(ctx, cfg.Region, cfg.EndpointOverride)
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	d.AWS = clients
	return d, nil
}

// Close releases the redis client when there is one.
func (d *Deps) Close() error {
	if d.Redis != nil {
		return d.Redis.Close()
	}
	return nil
}

// queueFor returns the queue for a logical name. For SQS, url wins over a
// GetQueueUrl lookup by name.
func (d *Deps) queueFor(ctx context.Context, name, url string) (queue.Queue, error) {
	cfg := d.Config
	switch cfg.QueueBackend {
	case config.BackendMemory:
		q, ok := d.memQueues[name]
		if !ok {
			q = queue.NewMemoryQueue(name, cfg.VisibilityTimeout)
			d.memQueues[name] = q
		}
		return q, nil
	case config.BackendRedis:
		return queue.NewRedisQueue(d.Redis, name, cfg.VisibilityTimeout), nil
	}

	if url == "" {
		resolved, err := queue.ResolveQueueURL(ctx, d.AWS.SQS, name)
		if err != nil {
			return nil, err
		}
		url = resolved
	}
	wait := cfg.PollInterval
	if wait > maxLongPoll {
		wait = maxLongPoll
	}
	return queue.NewSQSQueue(d.AWS.SQS, url, wait, cfg.VisibilityTimeout), nil
}

// SuccessQueue returns the queue for succeeded outcomes.
func (d *Deps) SuccessQueue(ctx context.Context) (queue.Queue, error) {
	return d.queueFor(ctx, d.Config.Names().SuccessQueue, d.Config.SuccessQueueURL)
}

// FailureQueue returns the queue for failed outcomes.
func (d *Deps) FailureQueue(ctx context.Context) (queue.Queue, error) {
	return d.queueFor(ctx, d.Config.Names().FailureQueue, d.Config.FailureQueueURL)
}

// DeadLetterQueue returns nil when no dead-letter queue is configured. For
// the redis and memory backends the setting is a queue name.
func (d *Deps) DeadLetterQueue(ctx context.Context) (queue.Queue, error) {
	v := d.Config.DeadLetterQueueURL
	if v == "" {
		return nil, nil
	}
	if d.Config.QueueBackend == config.BackendSQS {
		return d.queueFor(ctx, "", v)
	}
	return d.queueFor(ctx, v, "")
}

// Store returns the record store.
func (d *Deps) Store() RecordStore {
	if d.memStore != nil {
		return d.memStore
	}
	return employees.NewStore(d.AWS.DynamoDB, d.Config.TableName, d.Config.IndexName)
}

// Faults returns the fault reporter: logs always, CloudWatch when enabled.
func (d *Deps) Faults() faults.Reporter {
	logReporter := faults.NewLogReporter(d.Logger)
	if d.AWS == nil || !d.Config.PublishMetrics {
		return logReporter
	}
	return faults.Multi{logReporter, faults.NewCloudWatchReporter(d.AWS.CloudWatch, d.Config.MetricsNS, d.Config.Env, d.Logger)}
}

// Dispatcher wires the default unit to the result queues.
func (d *Deps) Dispatcher(ctx context.Context, unit dispatch.Unit) (*dispatch.Dispatcher, error) {
	success, err := d.SuccessQueue(ctx)
	if err != nil {
		return nil, err
	}
	failure, err := d.FailureQueue(ctx)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		unit = dispatch.DateReport(validation.New())
	}
	names := d.Config.Names()
	router := &dispatch.Router{
		Success:        success,
		Failure:        failure,
		SuccessName:    names.SuccessQueue,
		FailureName:    names.FailureQueue,
		MaxAttempts:    d.Config.EnqueueMaxAttempts,
		InitialBackoff: d.Config.EnqueueBackoff,
		Faults:         d.Faults(),
		Logger:         d.Logger,
	}
	return dispatch.NewDispatcher(unit, d.Config.FunctionName, router, d.Config.ExecutionTimeout, d.Logger), nil
}

// Poller wires the success queue to the store.
func (d *Deps) Poller(ctx context.Context) (*consumer.Poller, error) {
	success, err := d.SuccessQueue(ctx)
	if err != nil {
		return nil, err
	}
	dlq, err := d.DeadLetterQueue(ctx)
	if err != nil {
		return nil, err
	}
	return &consumer.Poller{
		Queue:         success,
		QueueName:     d.Config.Names().SuccessQueue,
		Processor:     consumer.NewProcessor(d.Store(), validation.New(), d.Config.WriteConcurrency, d.Logger),
		DeadLetter:    dlq,
		MaxDeliveries: d.Config.MaxDeliveries,
		PollInterval:  d.Config.PollInterval,
		Faults:        d.Faults(),
		Logger:        d.Logger,
	}, nil
}

// Gateway builds the HTTP router around a dispatcher.
func (d *Deps) Gateway(dispatcher *dispatch.Dispatcher) (*gin.Engine, error) {
	plans, err := NewUsagePlans(d.Config)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthorizer(d.Config, d.Logger)
	if err != nil {
		return nil, err
	}
	return handlers.NewRouter(handlers.HandlerConfig{
		Invoker:       dispatcher,
		Authorizer:    auth,
		UsagePlans:    plans,
		InvokeTimeout: d.Config.InvokeTimeout,
		Logger:        d.Logger,
	}), nil
}

// NewAuthorizer builds the token authorizer for the configured mode.
func NewAuthorizer(cfg config.Config, logger *zap.Logger) (*authorizer.Authorizer, error) {
	if err := cfg.ValidateAuth(); err != nil {
		return nil, err
	}
	var v authorizer.Validator
	switch cfg.AuthMode {
	case config.AuthModeIntrospection:
		v = authorizer.NewIntrospectionValidator(cfg.IntrospectionURL, 5*time.Second, logger)
	default:
		v = authorizer.NewJWTValidator([]byte(cfg.JWTSigningKey), cfg.JWTIssuer, cfg.JWTAudience)
	}
	return authorizer.New(v, cfg.AuthCacheTTL, logger), nil
}

// NewUsagePlans provisions every configured API key into the plan.
func NewUsagePlans(cfg config.Config) (*usageplan.Registry, error) {
	reg := usageplan.NewRegistry()
	reg.AddPlan(usageplan.Plan{
		Name:        cfg.UsagePlanName,
		RateLimit:   cfg.RateLimit,
		Burst:       cfg.Burst,
		QuotaLimit:  cfg.QuotaLimit,
		QuotaPeriod: cfg.QuotaPeriod,
	})
	for name, value := range cfg.APIKeys {
		if err := reg.Provision(cfg.UsagePlanName, name, value); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
