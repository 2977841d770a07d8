package instagram

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/digger"
	"github.com/pysugar/creator-insights/internal/upstream"
	"golang.org/x/oauth2"
)

// ClientSecretName is the secret holding the Instagram app secret.
const ClientSecretName = "INSTAGRAM_CLIENT_SECRET"

// SecretSource resolves a named credential.
type SecretSource interface {
	Secret(name string) (string, error)
}

// Auth manages long-lived Instagram tokens. Instagram has no refresh
// token: a long-lived access token is extended with itself before it
// expires.
type Auth struct {
	client  *Client
	secrets SecretSource
	clock   clock.Clock
}

// NewAuth creates an Auth. secrets may be nil when only refreshes are needed.
func NewAuth(client *Client, secrets SecretSource, clk clock.Clock) *Auth {
	if clk == nil {
		clk = clock.New()
	}
	return &Auth{client: client, secrets: secrets, clock: clk}
}

// Exchange swaps the short-lived connect token for a long-lived one.
func (a *Auth) Exchange(ctx context.Context, creds digger.Credentials) (digger.Credentials, error) {
	if a.secrets == nil {
		return creds, fmt.Errorf("no secret source for %s", ClientSecretName)
	}
	secret, err := a.secrets.Secret(ClientSecretName)
	if err != nil {
		return creds, err
	}
	resp, err := a.client.ExchangeToken(ctx, creds.AccessToken, secret)
	if err != nil {
		if upstream.IsAuthError(err) {
			return creds, fmt.Errorf("%w: %v", accounts.ErrPlatformAuthorization, err)
		}
		return creds, err
	}
	return digger.Credentials{AccessToken: resp.AccessToken, ExpiresIn: resp.ExpiresIn}, nil
}

// Refresh implements token.Refresher with the handle's access token.
func (a *Auth) Refresh(ctx context.Context, h *models.SocialMediaHandle) (*oauth2.Token, error) {
	if h.AccessToken == "" {
		return nil, fmt.Errorf("%w: handle %s has no access token", accounts.ErrPlatformAuthorization, h.ID)
	}
	resp, err := a.client.RefreshToken(ctx, h.AccessToken)
	if err != nil {
		if upstream.IsAuthError(err) {
			return nil, fmt.Errorf("%w: %v", accounts.ErrPlatformAuthorization, err)
		}
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: resp.AccessToken, TokenType: resp.TokenType}
	if resp.ExpiresIn > 0 {
		tok.Expiry = a.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	return tok, nil
}
