package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/platform"
	"golang.org/x/oauth2"
)

var now = time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	expiring []models.SocialMediaHandle
	saved    []models.SocialMediaHandle
}

func (f *fakeStore) HandlesWithExpiringTokens(_ context.Context, deadline time.Time) ([]models.SocialMediaHandle, error) {
	var out []models.SocialMediaHandle
	for _, h := range f.expiring {
		if h.TokenExpiresAt.Before(deadline) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) BulkUpdateHandles(_ context.Context, handles []models.SocialMediaHandle) error {
	f.saved = append(f.saved, handles...)
	return nil
}

func newTestManager(store HandleStore) *Manager {
	clk := clock.NewMock()
	clk.Set(now)
	return NewManager(store, clk)
}

func TestEnsureFresh_SkipsValidToken(t *testing.T) {
	m := newTestManager(&fakeStore{})
	calls := 0
	m.Register(platform.YouTube, RefresherFunc(func(context.Context, *models.SocialMediaHandle) (*oauth2.Token, error) {
		calls++
		return &oauth2.Token{}, nil
	}))

	h := &models.SocialMediaHandle{Platform: "youtube", TokenExpiresAt: now.Add(time.Minute)}
	refreshed, err := m.EnsureFresh(context.Background(), h)
	if err != nil || refreshed || calls != 0 {
		t.Fatalf("EnsureFresh = %v, %v, calls=%d", refreshed, err, calls)
	}
}

func TestEnsureFresh_RefreshesAndRotates(t *testing.T) {
	m := newTestManager(&fakeStore{})
	m.Register(platform.YouTube, RefresherFunc(func(_ context.Context, h *models.SocialMediaHandle) (*oauth2.Token, error) {
		if h.RefreshToken != "old-refresh" {
			t.Errorf("refresher got refresh token %q", h.RefreshToken)
		}
		return &oauth2.Token{AccessToken: "new-access", RefreshToken: "new-refresh", Expiry: now.Add(time.Hour)}, nil
	}))

	h := &models.SocialMediaHandle{Platform: "youtube", AccessToken: "old", RefreshToken: "old-refresh", TokenExpiresAt: now}
	refreshed, err := m.EnsureFresh(context.Background(), h)
	if err != nil || !refreshed {
		t.Fatalf("EnsureFresh = %v, %v", refreshed, err)
	}
	if h.AccessToken != "new-access" || h.RefreshToken != "new-refresh" || !h.TokenExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("handle not updated: %+v", h)
	}
}

func TestEnsureFresh_PermanentFailure(t *testing.T) {
	m := newTestManager(&fakeStore{})
	m.Register(platform.YouTube, RefresherFunc(func(context.Context, *models.SocialMediaHandle) (*oauth2.Token, error) {
		return nil, &oauth2.RetrieveError{ErrorCode: "invalid_grant"}
	}))

	h := &models.SocialMediaHandle{Platform: "youtube", AccessToken: "old", TokenExpiresAt: now.Add(-time.Hour)}
	_, err := m.EnsureFresh(context.Background(), h)
	if !errors.Is(err, accounts.ErrPlatformAuthorization) {
		t.Fatalf("expected ErrPlatformAuthorization, got %v", err)
	}
	if h.AccessToken != "old" {
		t.Fatal("handle should be left as-is on failure")
	}
}

func TestEnsureFresh_NoRefresher(t *testing.T) {
	m := newTestManager(&fakeStore{})
	h := &models.SocialMediaHandle{Platform: "instagram", TokenExpiresAt: now}
	if _, err := m.EnsureFresh(context.Background(), h); !errors.Is(err, ErrNoRefresher) {
		t.Fatalf("expected ErrNoRefresher, got %v", err)
	}
}

func TestRefreshExpiring(t *testing.T) {
	store := &fakeStore{expiring: []models.SocialMediaHandle{
		{ID: "ok", Platform: "youtube", TokenExpiresAt: now.Add(5 * time.Minute)},
		{ID: "bad", Platform: "youtube", TokenExpiresAt: now.Add(10 * time.Minute)},
		{ID: "later", Platform: "youtube", TokenExpiresAt: now.Add(48 * time.Hour)},
	}}
	m := newTestManager(store)
	m.Register(platform.YouTube, RefresherFunc(func(_ context.Context, h *models.SocialMediaHandle) (*oauth2.Token, error) {
		if h.ID == "bad" {
			return nil, errors.New("context deadline exceeded")
		}
		return &oauth2.Token{AccessToken: "fresh-" + h.ID, Expiry: now.Add(time.Hour)}, nil
	}))

	n, err := m.RefreshExpiring(context.Background(), 20*time.Minute)
	if n != 1 {
		t.Fatalf("refreshed %d handles, want 1", n)
	}
	if err == nil {
		t.Fatal("expected the failed handle to be reported")
	}
	if len(store.saved) != 1 || store.saved[0].AccessToken != "fresh-ok" {
		t.Fatalf("unexpected saved handles %+v", store.saved)
	}
}

func TestIsPermanentRefreshError(t *testing.T) {
	tests := []struct {
		name      string
		errText   string
		permanent bool
	}{
		{name: "invalid grant", errText: "oauth2: cannot fetch token: 400 Bad Request {\"error\":\"invalid_grant\"}", permanent: true},
		{name: "revoked", errText: "token has been expired or revoked", permanent: true},
		{name: "graph oauth", errText: "upstream returned 400 (OAuthException): Error validating access token", permanent: true},
		{name: "timeout", errText: "context deadline exceeded", permanent: false},
		{name: "temporary", errText: "temporarily_unavailable", permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPermanentRefreshError(assertErr(tt.errText))
			if got != tt.permanent {
				t.Fatalf("expected %v, got %v", tt.permanent, got)
			}
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
