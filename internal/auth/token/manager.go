// Package token keeps handle access tokens fresh.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/pysugar/creator-insights/internal/platform"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// ErrNoRefresher is returned for a platform without a registered Refresher.
var ErrNoRefresher = errors.New("no token refresher for platform")

// Refresher exchanges a handle's stored credentials for a new token.
type Refresher interface {
	Refresh(ctx context.Context, h *models.SocialMediaHandle) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, h *models.SocialMediaHandle) (*oauth2.Token, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, h *models.SocialMediaHandle) (*oauth2.Token, error) {
	return f(ctx, h)
}

// HandleStore is the persistence the refresh sweep needs.
type HandleStore interface {
	HandlesWithExpiringTokens(ctx context.Context, deadline time.Time) ([]models.SocialMediaHandle, error)
	BulkUpdateHandles(ctx context.Context, handles []models.SocialMediaHandle) error
}

// Manager refreshes handle tokens through per-platform refreshers.
type Manager struct {
	store HandleStore
	clock clock.Clock

	mu         sync.RWMutex
	refreshers map[platform.Platform]Refresher
}

// NewManager creates a token manager.
func NewManager(store HandleStore, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		store:      store,
		clock:      clk,
		refreshers: make(map[platform.Platform]Refresher),
	}
}

// Register installs the refresher for p.
func (m *Manager) Register(p platform.Platform, r Refresher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshers[p] = r
}

func (m *Manager) refresher(p platform.Platform) (Refresher, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.refreshers[p]
	return r, ok
}

// EnsureFresh refreshes h in place when its token has expired. The caller
// persists the handle. A rejected refresh token is reported as
// accounts.ErrPlatformAuthorization.
func (m *Manager) EnsureFresh(ctx context.Context, h *models.SocialMediaHandle) (bool, error) {
	if !h.TokenExpired(m.clock.Now()) {
		return false, nil
	}
	return true, m.Refresh(ctx, h)
}

// Refresh unconditionally refreshes h in place.
func (m *Manager) Refresh(ctx context.Context, h *models.SocialMediaHandle) error {
	p, err := platform.Parse(h.Platform)
	if err != nil {
		return err
	}
	r, ok := m.refresher(p)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRefresher, p)
	}

	log := logging.Entry(ctx).WithFields(logrus.Fields{"handle": h.ID, "platform": p})
	tok, err := r.Refresh(ctx, h)
	if err != nil {
		if isPermanentRefreshError(err) {
			log.WithError(err).Warn("refresh token rejected, handle needs to reconnect")
			return fmt.Errorf("%w: %v", accounts.ErrPlatformAuthorization, err)
		}
		log.WithError(err).Warn("transient token refresh failure")
		return err
	}

	h.AccessToken = tok.AccessToken
	h.TokenExpiresAt = tok.Expiry
	if tok.RefreshToken != "" && tok.RefreshToken != h.RefreshToken {
		log.Info("rotating refresh token")
		h.RefreshToken = tok.RefreshToken
	}
	log.WithField("token", maskToken(tok.AccessToken)).
		WithField("expires", tok.Expiry.Format(time.RFC3339)).
		Info("refreshed handle token")
	return nil
}

// RefreshExpiring refreshes every handle whose token expires within lead
// and persists the successful ones in one write. Failed handles are left
// as they are and reported in the joined error.
func (m *Manager) RefreshExpiring(ctx context.Context, lead time.Duration) (int, error) {
	handles, err := m.store.HandlesWithExpiringTokens(ctx, m.clock.Now().Add(lead))
	if err != nil {
		return 0, err
	}

	var (
		refreshed []models.SocialMediaHandle
		errs      []error
	)
	for i := range handles {
		h := handles[i]
		if err := m.Refresh(ctx, &h); err != nil {
			errs = append(errs, fmt.Errorf("handle %s: %w", h.ID, err))
			continue
		}
		refreshed = append(refreshed, h)
	}
	if err := m.store.BulkUpdateHandles(ctx, refreshed); err != nil {
		return 0, err
	}
	return len(refreshed), errors.Join(errs...)
}

func maskToken(t string) string {
	if len(t) < 20 {
		return "***"
	}
	return "..." + t[len(t)-8:]
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, accounts.ErrPlatformAuthorization) {
		return true
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode != "" {
		switch re.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"oauthexception",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
