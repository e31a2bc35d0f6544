// Package authorizer decides whether a bearer credential may call the
// gateway. Decisions are cached per credential hash for a fixed TTL.
package authorizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// ErrBackend is returned when the validation backend cannot decide.
var ErrBackend = pipeline.ErrAuthBackend

const defaultCapacity = 10000

// Decision is the outcome of one authorization.
type Decision struct {
	Allowed     bool
	PrincipalID string
}

// AuthDecision is a cached decision.
type AuthDecision struct {
	CredentialHash string
	Allowed        bool
	PrincipalID    string
	ExpiresAt      time.Time
}

// Validator checks a credential against the source of truth. Invalid
// credentials are a deny with a nil error; an error means no decision.
type Validator interface {
	Validate(ctx context.Context, token string) (Decision, error)
}

// Authorizer caches Validator decisions, allows and denies alike.
type Authorizer struct {
	validator Validator
	ttl       time.Duration
	cache     *ttlcache.Cache[string, AuthDecision]
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithClock replaces time.Now when checking cached expiries.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

// New returns an authorizer. A ttl of zero disables caching.
func New(v Validator, ttl time.Duration, logger *zap.Logger, opts ...Option) *Authorizer {
	a := &Authorizer{
		validator: v,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
	if ttl > 0 {
		a.cache = ttlcache.New(
			ttlcache.WithTTL[string, AuthDecision](ttl),
			ttlcache.WithCapacity[string, AuthDecision](defaultCapacity),
			ttlcache.WithDisableTouchOnHit[string, AuthDecision](),
		)
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Authorize validates the raw Authorization header value. An optional
// "Bearer " prefix is ignored.
func (a *Authorizer) Authorize(ctx context.Context, header string) (Decision, error) {
	token := strings.TrimSpace(header)
	if f := strings.Fields(token); len(f) > 0 && strings.EqualFold(f[0], "bearer") {
		token = strings.TrimSpace(token[len(f[0]):])
	}
	if token == "" {
		return Decision{}, nil
	}

	if a.cache == nil {
		return a.validate(ctx, token)
	}

	key := hashCredential(token)
	now := a.now()
	if item := a.cache.Get(key); item != nil {
		cached := item.Value()
		if now.Before(cached.ExpiresAt) {
			cacheHits.Add(ctx, 1)
			return Decision{Allowed: cached.Allowed, PrincipalID: cached.PrincipalID}, nil
		}
		a.cache.Delete(key)
	}
	cacheMisses.Add(ctx, 1)

	d, err := a.validate(ctx, token)
	if err != nil {
		return d, err
	}
	a.cache.Set(key, AuthDecision{
		CredentialHash: key,
		Allowed:        d.Allowed,
		PrincipalID:    d.PrincipalID,
		ExpiresAt:      now.Add(a.ttl),
	}, ttlcache.DefaultTTL)
	return d, nil
}

func (a *Authorizer) validate(ctx context.Context, token string) (Decision, error) {
	d, err := a.validator.Validate(ctx, token)
	if err != nil {
		backendFaults.Add(ctx, 1)
		a.logger.Error("token validation backend failed", zap.Error(err))
		return Decision{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	decisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", d.Allowed)))
	return d, nil
}

// Len reports the number of cached decisions, expired ones included until
// they are evicted.
func (a *Authorizer) Len() int {
	if a.cache == nil {
		return 0
	}
	return a.cache.Len()
}

func hashCredential(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
