package insights

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/platform"
)

// DefaultLookback is the range used when a caller gives no start.
const DefaultLookback = 24 * time.Hour

// Directory looks up accounts and handles.
type Directory interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetHandle(ctx context.Context, id string) (*models.SocialMediaHandle, error)
	ListHandles(ctx context.Context, accountID string, p platform.Platform) ([]models.SocialMediaHandle, error)
}

// Service answers insight queries.
type Service struct {
	dir   Directory
	store *Store
	clock clock.Clock
}

// NewService returns a Service.
func NewService(dir Directory, store *Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{dir: dir, store: store, clock: clk}
}

// ResolveRange fills a missing end with now and a missing start with
// DefaultLookback before the end.
func (s *Service) ResolveRange(start, end time.Time) Range {
	if end.IsZero() {
		end = s.clock.Now()
	}
	if start.IsZero() {
		start = end.Add(-DefaultLookback)
	}
	return Range{Start: start, End: end}
}

// CalculatePlatformMetric rolls up every handle of an account on one
// platform. viewerID is the account asking; private metrics are removed
// unless it is the owner.
func (s *Service) CalculatePlatformMetric(ctx context.Context, accountID string, p platform.Platform, r Range, viewerID string) (*Table, error) {
	acc, err := s.dir.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	handles, err := s.dir.ListHandles(ctx, acc.ID, p)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(handles))
	for _, h := range handles {
		ids = append(ids, h.ID)
	}
	return s.table(ctx, acc, p, ids, r, viewerID)
}

// CalculateAccountMetrics runs CalculatePlatformMetric for every platform.
func (s *Service) CalculateAccountMetrics(ctx context.Context, accountID string, r Range, viewerID string) (map[platform.Platform]*Table, error) {
	out := make(map[platform.Platform]*Table, len(platform.All))
	for _, p := range platform.All {
		t, err := s.CalculatePlatformMetric(ctx, accountID, p, r, viewerID)
		if err != nil {
			return nil, err
		}
		out[p] = t
	}
	return out, nil
}

// GetHandleInsights rolls up one handle's documents.
func (s *Service) GetHandleInsights(ctx context.Context, handleID string, r Range, viewerID string) (*Table, error) {
	h, err := s.dir.GetHandle(ctx, handleID)
	if err != nil {
		return nil, err
	}
	acc, err := s.dir.GetAccount(ctx, h.AccountID)
	if err != nil {
		return nil, err
	}
	p, err := platform.Parse(h.Platform)
	if err != nil {
		return nil, err
	}
	return s.table(ctx, acc, p, []string{h.ID}, r, viewerID)
}

func (s *Service) table(ctx context.Context, acc *models.Account, p platform.Platform, handleIDs []string, r Range, viewerID string) (*Table, error) {
	docs, err := s.store.Query(ctx, handleIDs, r)
	if err != nil {
		return nil, err
	}
	rollup := GetTotalPlatformMetric(docs)
	rollup = FilterPrivate(rollup, acc.PrivateFor(p.String()), viewerID == acc.ID)
	t := BuildTable(rollup)
	return &t, nil
}
