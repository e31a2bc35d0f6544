package authorizer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

type countingValidator struct {
	calls   atomic.Int32
	allowed map[string]bool
	err     error
}

func (v *countingValidator) Validate(ctx context.Context, token string) (Decision, error) {
	v.calls.Add(1)
	if v.err != nil {
		return Decision{}, v.err
	}
	if v.allowed[token] {
		return Decision{Allowed: true, PrincipalID: "p-" + token}, nil
	}
	return Decision{}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAuthorize_CachesAllowAndDenyWithinTTL(t *testing.T) {
	v := &countingValidator{allowed: map[string]bool{"good": true}}
	clk := &clock{now: time.Unix(0, 0)}
	a := New(v, 5*time.Minute, zap.NewNop(), WithClock(clk.Now))
	ctx := context.Background()

	first, err := a.Authorize(ctx, "Bearer good")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, PrincipalID: "p-good"}, first)

	clk.Advance(4 * time.Minute)
	second, err := a.Authorize(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, v.calls.Load())

	deny, err := a.Authorize(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, deny.Allowed)
	_, err = a.Authorize(ctx, "bad")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.calls.Load())
	assert.Equal(t, 2, a.Len())
}

func TestAuthorize_RevalidatesAfterTTL(t *testing.T) {
	v := &countingValidator{allowed: map[string]bool{"good": true}}
	clk := &clock{now: time.Unix(0, 0)}
	a := New(v, time.Minute, zap.NewNop(), WithClock(clk.Now))
	ctx := context.Background()

	_, err := a.Authorize(ctx, "good")
	require.NoError(t, err)

	// revoked at the source; the cached allow holds until expiry
	v.allowed["good"] = false
	d, err := a.Authorize(ctx, "good")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	clk.Advance(time.Minute)
	d, err = a.Authorize(ctx, "good")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.EqualValues(t, 2, v.calls.Load())
}

func TestAuthorize_ZeroTTLBypassesCache(t *testing.T) {
	v := &countingValidator{allowed: map[string]bool{"good": true}}
	a := New(v, 0, zap.NewNop())

	for i := 0; i < 3; i++ {
		d, err := a.Authorize(context.Background(), "good")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.EqualValues(t, 3, v.calls.Load())
	assert.Equal(t, 0, a.Len())
}

func TestAuthorize_BackendErrorIsNotCached(t *testing.T) {
	v := &countingValidator{err: errors.New("connection refused")}
	a := New(v, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := a.Authorize(ctx, "good")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, pipeline.ErrAuthBackend)

	v.err = nil
	v.allowed = map[string]bool{"good": true}
	d, err := a.Authorize(ctx, "good")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.EqualValues(t, 2, v.calls.Load())
}

func TestAuthorize_EmptyCredentialIsDenied(t *testing.T) {
	v := &countingValidator{}
	a := New(v, time.Minute, zap.NewNop())

	for _, h := range []string{"", "   ", "Bearer "} {
		d, err := a.Authorize(context.Background(), h)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	}
	assert.EqualValues(t, 0, v.calls.Load())
}

func TestAuthorize_ConcurrentCallers(t *testing.T) {
	v := &countingValidator{allowed: map[string]bool{"a": true, "b": true}}
	a := New(v, time.Minute, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := "a"
			if i%2 == 0 {
				token = "b"
			}
			d, err := a.Authorize(context.Background(), token)
			assert.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, "p-"+token, d.PrincipalID)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 2, a.Len())
}

func signed(t *testing.T, key []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWTValidator(t *testing.T) {
	key := []byte("secret")
	v := NewJWTValidator(key, "dispatch", "")
	ctx := context.Background()
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	d, err := v.Validate(ctx, signed(t, key, jwt.RegisteredClaims{Subject: "alice", Issuer: "dispatch", ExpiresAt: future}))
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, PrincipalID: "alice"}, d)

	tests := map[string]string{
		"wrong key":    signed(t, []byte("other"), jwt.RegisteredClaims{Issuer: "dispatch", ExpiresAt: future}),
		"wrong issuer": signed(t, key, jwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: future}),
		"expired":      signed(t, key, jwt.RegisteredClaims{Issuer: "dispatch", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}),
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			d, err := v.Validate(ctx, token)
			require.NoError(t, err)
			assert.False(t, d.Allowed)
		})
	}
}

func TestIntrospectionValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("token") {
		case "active":
			_, _ = w.Write([]byte(`{"active":true,"sub":"svc-1"}`))
		case "malformed":
			w.WriteHeader(http.StatusBadRequest)
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`{"active":false}`))
		}
	}))
	defer srv.Close()

	v := NewIntrospectionValidator(srv.URL, time.Second, zap.NewNop())
	ctx := context.Background()

	d, err := v.Validate(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, PrincipalID: "svc-1"}, d)

	d, err = v.Validate(ctx, "revoked")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = v.Validate(ctx, "malformed")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	_, err = v.Validate(ctx, "boom")
	assert.Error(t, err)
}

func TestHandleTokenEvent(t *testing.T) {
	v := &countingValidator{allowed: map[string]bool{"good": true}}
	a := New(v, time.Minute, zap.NewNop())
	ctx := context.Background()
	arn := "arn:aws:execute-api:us-east-1:123456789012:abc/prod/GET/new/route/2024-01-01"

	resp, err := a.HandleTokenEvent(ctx, events.APIGatewayCustomAuthorizerRequest{AuthorizationToken: "good", MethodArn: arn})
	require.NoError(t, err)
	assert.Equal(t, "p-good", resp.PrincipalID)
	require.Len(t, resp.PolicyDocument.Statement, 1)
	assert.Equal(t, "Allow", resp.PolicyDocument.Statement[0].Effect)
	assert.Equal(t, []string{arn}, resp.PolicyDocument.Statement[0].Resource)

	resp, err = a.HandleTokenEvent(ctx, events.APIGatewayCustomAuthorizerRequest{AuthorizationToken: "bad", MethodArn: arn})
	require.NoError(t, err)
	assert.Equal(t, "Deny", resp.PolicyDocument.Statement[0].Effect)

	_, err = a.HandleTokenEvent(ctx, events.APIGatewayCustomAuthorizerRequest{MethodArn: arn})
	assert.ErrorIs(t, err, ErrUnauthorized)

	failing := New(&countingValidator{err: errors.New("down")}, time.Minute, zap.NewNop())
	_, err = failing.HandleTokenEvent(ctx, events.APIGatewayCustomAuthorizerRequest{AuthorizationToken: "x", MethodArn: arn})
	assert.ErrorIs(t, err, ErrBackend)
}
