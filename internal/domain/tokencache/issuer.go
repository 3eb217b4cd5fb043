package tokencache

import (
	"context"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/httpclient"
)

// HTTPIssuer asks the backend token endpoint for a micro-app token.
type HTTPIssuer struct {
	client *httpclient.Client
}

// NewHTTPIssuer creates an issuer on the shared backend client.
func NewHTTPIssuer(client *httpclient.Client) *HTTPIssuer {
	return &HTTPIssuer{client: client}
}

// Issue implements Issuer.
func (i *HTTPIssuer) Issue(ctx context.Context, user, appID string) (Issued, error) {
	if user == "" {
		return Issued{}, ErrMissingUser
	}
	if appID == "" {
		return Issued{}, ErrMissingApp
	}
	var out Issued
	err := i.client.GetJSON(ctx, "micro-app-token", map[string]string{
		"emp_id":       user,
		"micro_app_id": appID,
	}, &out)
	if err != nil {
		return Issued{}, err
	}
	if out.Token == "" {
		return Issued{}, ErrMissingToken
	}
	return out, nil
}
