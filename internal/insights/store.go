package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/platform"
	"gorm.io/gorm"
)

// RulesSource supplies the aggregation rules of a platform.
type RulesSource interface {
	Rules(p platform.Platform) metric.Rules
}

// RangeMode selects how a date range matches document windows.
type RangeMode string

const (
	// RangeOverlap matches every window intersecting the range.
	RangeOverlap RangeMode = "overlap"
	// RangeLegacy matches windows created on or after the start that had not
	// expired by the end. Windows closed before the end are left out.
	RangeLegacy RangeMode = "legacy"
)

// ParseRangeMode validates a range mode name. Empty means RangeOverlap.
func ParseRangeMode(s string) (RangeMode, error) {
	switch RangeMode(s) {
	case "", RangeOverlap:
		return RangeOverlap, nil
	case RangeLegacy:
		return RangeLegacy, nil
	}
	return "", fmt.Errorf("unknown range mode %q", s)
}

// Range is an inclusive time range.
type Range struct {
	Start time.Time
	End   time.Time
}

type metaData struct {
	Totals     metric.Totals `json:"totals"`
	PrevTotals metric.Totals `json:"prev_totals"`
	Since      string        `json:"since,omitempty"`
}

// Store persists documents. The caller serializes writers of one handle.
type Store struct {
	db    *gorm.DB
	rules RulesSource
	clock clock.Clock
	mode  RangeMode
}

// NewStore returns a Store using clk as the current time.
func NewStore(db *gorm.DB, rules RulesSource, clk clock.Clock, mode RangeMode) *Store {
	if clk == nil {
		clk = clock.New()
	}
	if mode == "" {
		mode = RangeOverlap
	}
	return &Store{db: db, rules: rules, clock: clk, mode: mode}
}

// GetActive returns the document of handleID whose window is open now, or
// nil when there is none.
func (s *Store) GetActive(ctx context.Context, handleID string) (*Document, error) {
	return s.active(s.db.WithContext(ctx), handleID, s.now())
}

func (s *Store) active(tx *gorm.DB, handleID string, now time.Time) (*Document, error) {
	var row models.MetricDocument
	err := tx.Where("handle_id = ? AND expired_on >= ?", handleID, now).
		Order("created_on DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decode(&row)
}

// GetOrCreate returns the active document of handle, opening a new window
// when none is active. A new window carries the grand totals of the most
// recently expired one in PrevTotals and starts at the day after the last
// day that window stored.
func (s *Store) GetOrCreate(ctx context.Context, handle *models.SocialMediaHandle) (*Document, bool, error) {
	p, err := platform.Parse(handle.Platform)
	if err != nil {
		return nil, false, err
	}
	now := s.now()

	var (
		doc     *Document
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.active(tx, handle.ID, now)
		if err != nil {
			return err
		}
		if active != nil {
			doc = active
			return nil
		}

		doc = NewDocument(handle.ID, p, now, s.rules.Rules(p))
		doc.ID = uuid.New().String()

		var prev models.MetricDocument
		err = tx.Where("handle_id = ? AND expired_on < ?", handle.ID, now).
			Order("expired_on DESC").
			First(&prev).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			old, err := s.decode(&prev)
			if err != nil {
				return err
			}
			doc.PrevTotals = old.GrandTotals()
			doc.Since = old.Since
			if last := old.LastDay(); last != "" {
				doc.Since = metric.NextDay(last)
			}
		}

		row, err := encode(doc)
		if err != nil {
			return err
		}
		created = true
		return tx.Create(row).Error
	})
	if err != nil {
		return nil, false, err
	}
	return doc, created, nil
}

// Save writes doc back.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	row, err := encode(doc)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(row).Select("metrics", "meta_data").Updates(row).Error
}

// Apply runs update against the active document of handle and saves it.
func (s *Store) Apply(ctx context.Context, handle *models.SocialMediaHandle, update Update) (*Document, error) {
	doc, _, err := s.GetOrCreate(ctx, handle)
	if err != nil {
		return nil, err
	}
	update.Apply(doc, s.now())
	if err := s.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Query returns the documents of handleIDs matching r, oldest first.
func (s *Store) Query(ctx context.Context, handleIDs []string, r Range) ([]*Document, error) {
	if len(handleIDs) == 0 {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Where("handle_id IN ?", handleIDs)
	switch s.mode {
	case RangeLegacy:
		q = q.Where("created_on >= ? AND expired_on >= ?", r.Start.UTC(), r.End.UTC())
	default:
		q = q.Where("created_on <= ? AND expired_on >= ?", r.End.UTC(), r.Start.UTC())
	}

	var rows []models.MetricDocument
	if err := q.Order("created_on").Find(&rows).Error; err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(rows))
	for i := range rows {
		doc, err := s.decode(&rows[i])
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// now is UTC so stored and bound times compare as text.
func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Store) decode(row *models.MetricDocument) (*Document, error) {
	p, err := platform.Parse(row.Platform)
	if err != nil {
		return nil, err
	}
	doc := NewDocument(row.HandleID, p, row.CreatedOn.UTC(), s.rules.Rules(p))
	doc.ID = row.ID
	doc.ExpiredOn = row.ExpiredOn.UTC()

	if len(row.Metrics) > 0 {
		if err := json.Unmarshal(row.Metrics, &doc.Metrics); err != nil {
			return nil, fmt.Errorf("document %s metrics: %w", row.ID, err)
		}
	}
	if len(row.MetaData) > 0 {
		var meta metaData
		if err := json.Unmarshal(row.MetaData, &meta); err != nil {
			return nil, fmt.Errorf("document %s meta data: %w", row.ID, err)
		}
		if meta.Totals != nil {
			doc.Totals = meta.Totals
		}
		if meta.PrevTotals != nil {
			doc.PrevTotals = meta.PrevTotals
		}
		doc.Since = meta.Since
	}
	if doc.Metrics == nil {
		doc.Metrics = metric.Set{}
	}
	return doc, nil
}

func encode(doc *Document) (*models.MetricDocument, error) {
	metrics, err := json.Marshal(doc.Metrics)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(metaData{Totals: doc.Totals, PrevTotals: doc.PrevTotals, Since: doc.Since})
	if err != nil {
		return nil, err
	}
	return &models.MetricDocument{
		ID:        doc.ID,
		HandleID:  doc.HandleID,
		Platform:  doc.Platform.String(),
		CreatedOn: doc.CreatedOn,
		ExpiredOn: doc.ExpiredOn,
		Metrics:   metrics,
		MetaData:  meta,
	}, nil
}
