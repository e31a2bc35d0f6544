package authorizer

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
)

// ErrUnauthorized makes API Gateway answer 401 to a TOKEN authorizer call.
var ErrUnauthorized = errors.New("Unauthorized")

// HandleTokenEvent answers an API Gateway TOKEN authorizer event with an IAM
// policy for the called method. A backend failure is returned as an error so
// the gateway fails closed.
func (a *Authorizer) HandleTokenEvent(ctx context.Context, event events.APIGatewayCustomAuthorizerRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	if event.AuthorizationToken == "" {
		return events.APIGatewayCustomAuthorizerResponse{}, ErrUnauthorized
	}

	d, err := a.Authorize(ctx, event.AuthorizationToken)
	if err != nil {
		return events.APIGatewayCustomAuthorizerResponse{}, err
	}

	effect, principalID := "Deny", "user"
	if d.Allowed {
		effect, principalID = "Allow", d.PrincipalID
	}
	return policy(principalID, effect, event.MethodArn), nil
}

func policy(principalID, effect, resource string) events.APIGatewayCustomAuthorizerResponse {
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID: principalID,
		PolicyDocument: events.APIGatewayCustomAuthorizerPolicy{
			Version: "2012-10-17",
			Statement: []events.IAMPolicyStatement{{
				Action:   []string{"execute-api:Invoke"},
				Effect:   effect,
				Resource: []string{resource},
			}},
		},
	}
}
