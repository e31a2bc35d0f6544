// Package usageplan admits requests by API key. Keys belong to a plan that
// carries a steady rate, a burst and an optional quota per period.
package usageplan

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

var (
	// ErrMissingKey means the request carried no API key.
	ErrMissingKey = errors.New("missing api key")
	// ErrInvalidKey means the key is not provisioned in any plan.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrThrottled means the key exceeded its plan's rate.
	ErrThrottled = fmt.Errorf("%w: throttled", pipeline.ErrQuotaExceeded)
	// ErrQuotaExhausted means the key used up its quota for the period.
	ErrQuotaExhausted = fmt.Errorf("%w: quota exhausted", pipeline.ErrQuotaExceeded)
)

// Plan is a named set of limits.
type Plan struct {
	Name string
	// RateLimit is the steady request rate per second. Zero means unlimited.
	RateLimit float64
	Burst     int
	// QuotaLimit is the number of requests per QuotaPeriod. Zero means unlimited.
	QuotaLimit  int
	QuotaPeriod time.Duration
}

type keyState struct {
	name        string
	plan        *Plan
	limiter     *rate.Limiter
	used        int
	periodStart time.Time
}

// Registry holds provisioned keys by hash.
type Registry struct {
	mu    sync.Mutex
	plans map[string]*Plan
	keys  map[string]*keyState
	now   func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plans: map[string]*Plan{},
		keys:  map[string]*keyState{},
		now:   time.Now,
	}
}

// SetClock replaces time.Now for rate and quota accounting.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// AddPlan registers or replaces a plan.
func (r *Registry) AddPlan(p Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.plans[p.Name] = &cp
}

// Provision attaches a key to a plan. The key value itself is not kept.
func (r *Registry) Provision(planName, keyName, keyValue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[planName]
	if !ok {
		return fmt.Errorf("usage plan %q not found", planName)
	}
	if keyValue == "" {
		return fmt.Errorf("api key %q: %w", keyName, ErrMissingKey)
	}
	limit, burst := rate.Inf, p.Burst
	if p.RateLimit > 0 {
		limit = rate.Limit(p.RateLimit)
	}
	if burst < 1 {
		burst = 1
	}
	r.keys[hashKey(keyValue)] = &keyState{
		name:        keyName,
		plan:        p,
		limiter:     rate.NewLimiter(limit, burst),
		periodStart: r.now(),
	}
	return nil
}

// Admit charges one request to the key. It returns the key's name on success.
func (r *Registry) Admit(keyValue string) (string, error) {
	if keyValue == "" {
		return "", ErrMissingKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.keys[hashKey(keyValue)]
	if !ok {
		return "", ErrInvalidKey
	}
	now := r.now()

	if st.plan.QuotaLimit > 0 {
		if now.Sub(st.periodStart) >= st.plan.QuotaPeriod {
			st.periodStart, st.used = now, 0
		}
		if st.used >= st.plan.QuotaLimit {
			return st.name, ErrQuotaExhausted
		}
	}
	if !st.limiter.AllowN(now, 1) {
		return st.name, ErrThrottled
	}
	st.used++
	return st.name, nil
}

// Len returns the number of provisioned keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func hashKey(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
