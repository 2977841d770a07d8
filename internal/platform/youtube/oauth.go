package youtube

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/digger"
	"golang.org/x/oauth2"
)

// Auth refreshes and exchanges Google OAuth tokens.
type Auth struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewAuth wraps config. Token requests go through httpClient when set.
func NewAuth(config *oauth2.Config, httpClient *http.Client) *Auth {
	return &Auth{config: config, httpClient: httpClient}
}

func (a *Auth) context(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// Refresh exchanges the handle's refresh token for a new access token.
func (a *Auth) Refresh(ctx context.Context, h *models.SocialMediaHandle) (*oauth2.Token, error) {
	if h.RefreshToken == "" {
		return nil, fmt.Errorf("%w: handle %s has no refresh token", accounts.ErrPlatformAuthorization, h.ID)
	}
	src := a.config.TokenSource(a.context(ctx), &oauth2.Token{RefreshToken: h.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// ExchangeCode trades an authorization code for connect credentials. An
// empty redirectURL keeps the configured one.
func (a *Auth) ExchangeCode(ctx context.Context, code, redirectURL string) (digger.Credentials, error) {
	var opts []oauth2.AuthCodeOption
	if redirectURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURL))
	}
	tok, err := a.config.Exchange(a.context(ctx), code, opts...)
	if err != nil {
		return digger.Credentials{}, fmt.Errorf("%w: %v", accounts.ErrPlatformAuthorization, err)
	}
	creds := digger.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		creds.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return creds, nil
}
