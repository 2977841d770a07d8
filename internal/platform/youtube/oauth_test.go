package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		switch {
		case r.PostForm.Get("grant_type") == "refresh_token" && r.PostForm.Get("refresh_token") == "good":
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "fresh", "token_type": "Bearer", "expires_in": 3599, "refresh_token": "rotated",
			})
		case r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("code") == "abc":
			if got := r.PostForm.Get("redirect_uri"); got != "https://app.example/cb" {
				t.Errorf("redirect_uri = %q", got)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "first", "token_type": "Bearer", "expires_in": 3599, "refresh_token": "keep",
			})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Token has been expired or revoked."})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAuth(srv *httptest.Server) *Auth {
	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://default.example/cb",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	return NewAuth(cfg, srv.Client())
}

func TestAuthRefresh(t *testing.T) {
	auth := newTestAuth(newTokenServer(t))

	tok, err := auth.Refresh(context.Background(), &models.SocialMediaHandle{ID: "h1", RefreshToken: "good"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tok.AccessToken != "fresh" || tok.RefreshToken != "rotated" || tok.Expiry.IsZero() {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestAuthRefresh_Rejected(t *testing.T) {
	auth := newTestAuth(newTokenServer(t))

	_, err := auth.Refresh(context.Background(), &models.SocialMediaHandle{ID: "h1", RefreshToken: "revoked"})
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode != "invalid_grant" {
		t.Fatalf("expected invalid_grant, got %v", err)
	}

	_, err = auth.Refresh(context.Background(), &models.SocialMediaHandle{ID: "h2"})
	if !errors.Is(err, accounts.ErrPlatformAuthorization) {
		t.Fatalf("expected ErrPlatformAuthorization without a refresh token, got %v", err)
	}
}

func TestAuthExchangeCode(t *testing.T) {
	auth := newTestAuth(newTokenServer(t))

	creds, err := auth.ExchangeCode(context.Background(), "abc", "https://app.example/cb")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if creds.AccessToken != "first" || creds.RefreshToken != "keep" || creds.ExpiresIn <= 0 {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	if _, err := auth.ExchangeCode(context.Background(), "stale", "https://app.example/cb"); !errors.Is(err, accounts.ErrPlatformAuthorization) {
		t.Fatalf("expected ErrPlatformAuthorization, got %v", err)
	}
}
