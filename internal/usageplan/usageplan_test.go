package usageplan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

func newRegistry(t *testing.T, p Plan, now *time.Time) *Registry {
	t.Helper()
	r := NewRegistry()
	r.SetClock(func() time.Time { return *now })
	r.AddPlan(p)
	require.NoError(t, r.Provision(p.Name, "mobile", "k-123"))
	return r
}

func TestAdmit_KeyChecks(t *testing.T) {
	now := time.Unix(0, 0)
	r := newRegistry(t, Plan{Name: "basic", QuotaPeriod: time.Hour}, &now)

	name, err := r.Admit("k-123")
	require.NoError(t, err)
	assert.Equal(t, "mobile", name)

	_, err = r.Admit("")
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = r.Admit("nope")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAdmit_Throttles(t *testing.T) {
	now := time.Unix(0, 0)
	r := newRegistry(t, Plan{Name: "basic", RateLimit: 1, Burst: 2, QuotaPeriod: time.Hour}, &now)

	for i := 0; i < 2; i++ {
		_, err := r.Admit("k-123")
		require.NoError(t, err)
	}
	_, err := r.Admit("k-123")
	assert.ErrorIs(t, err, ErrThrottled)
	assert.ErrorIs(t, err, pipeline.ErrQuotaExceeded)

	now = now.Add(time.Second)
	_, err = r.Admit("k-123")
	assert.NoError(t, err)
}

func TestAdmit_QuotaResetsEachPeriod(t *testing.T) {
	now := time.Unix(0, 0)
	r := newRegistry(t, Plan{Name: "basic", QuotaLimit: 2, QuotaPeriod: time.Hour}, &now)

	for i := 0; i < 2; i++ {
		_, err := r.Admit("k-123")
		require.NoError(t, err)
	}
	_, err := r.Admit("k-123")
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.ErrorIs(t, err, pipeline.ErrQuotaExceeded)

	now = now.Add(time.Hour)
	_, err = r.Admit("k-123")
	assert.NoError(t, err)
}

func TestProvision_UnknownPlan(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Provision("missing", "mobile", "k"))
	assert.Equal(t, 0, r.Len())
}
