package authorizer

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTValidator verifies HS256 tokens locally.
type JWTValidator struct {
	key    []byte
	parser *jwt.Parser
}

// NewJWTValidator returns a validator for tokens signed with key. Empty issuer
// or audience are not checked.
func NewJWTValidator(key []byte, issuer, audience string) *JWTValidator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWTValidator{key: key, parser: jwt.NewParser(opts...)}
}

// Validate never returns an error: a token that fails to verify is a deny.
func (v *JWTValidator) Validate(ctx context.Context, token string) (Decision, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return Decision{}, nil
	}
	return Decision{Allowed: true, PrincipalID: principal(claims.Subject)}, nil
}

func principal(subject string) string {
	if subject == "" {
		return "user"
	}
	return subject
}
