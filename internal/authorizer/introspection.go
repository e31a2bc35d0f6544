package authorizer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type introspectionResponse struct {
	Active  bool   `json:"active"`
	Subject string `json:"sub"`
}

// IntrospectionValidator asks a remote endpoint whether a token is active,
// in the style of OAuth 2.0 token introspection.
type IntrospectionValidator struct {
	client *resty.Client
	url    string
}

// NewIntrospectionValidator returns a validator posting to url.
func NewIntrospectionValidator(url string, timeout time.Duration, logger *zap.Logger) *IntrospectionValidator {
	client := resty.New()
	client.
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(50 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// only connection errors, a 5xx is answered as a backend fault
			return err != nil
		})

	client.OnError(func(req *resty.Request, err error) {
		logger.Debug("introspection request failed", zap.String("url", req.URL), zap.Error(err))
	})

	return &IntrospectionValidator{client: client, url: url}
}

// Validate maps an inactive token or a 4xx answer to a deny. Transport
// errors and 5xx answers are backend errors.
func (v *IntrospectionValidator) Validate(ctx context.Context, token string) (Decision, error) {
	var out introspectionResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"token": token}).
		SetResult(&out).
		Post(v.url)
	if err != nil {
		return Decision{}, fmt.Errorf("introspect: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code >= http.StatusInternalServerError || code == http.StatusTooManyRequests:
		return Decision{}, fmt.Errorf("introspect: status %d", code)
	case code >= http.StatusBadRequest:
		return Decision{}, nil
	}

	if !out.Active {
		return Decision{}, nil
	}
	return Decision{Allowed: true, PrincipalID: principal(out.Subject)}, nil
}
