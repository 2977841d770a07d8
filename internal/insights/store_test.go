package insights

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glebarez/sqlite"
	"github.com/pysugar/creator-insights/internal/db"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/platform"
	"gorm.io/gorm"
)

type staticRules metric.Rules

func (r staticRules) Rules(platform.Platform) metric.Rules { return metric.Rules(r) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return gdb
}

func newTestStore(t *testing.T, mode RangeMode) (*Store, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(t0)
	return NewStore(newTestDB(t), staticRules(testRules), clk, mode), clk
}

func testHandle(id string) *models.SocialMediaHandle {
	return &models.SocialMediaHandle{ID: id, AccountID: "acc", Platform: "youtube", HandleUID: "uid-" + id}
}

func addViews(n float64) Update {
	return UpdateFunc(func(doc *Document, now time.Time) {
		doc.SetMetric(metric.Views, metric.Record{metric.Day(now): {metric.TotalKey: n}})
	})
}

func TestGetActive_None(t *testing.T) {
	store, _ := newTestStore(t, RangeOverlap)
	doc, err := store.GetActive(context.Background(), "h1")
	if err != nil || doc != nil {
		t.Fatalf("GetActive = %+v, %v; want nil, nil", doc, err)
	}
}

func TestGetOrCreate_IdempotentWithinWindow(t *testing.T) {
	store, clk := newTestStore(t, RangeOverlap)
	ctx := context.Background()
	h := testHandle("h1")

	first, created, err := store.GetOrCreate(ctx, h)
	if err != nil || !created {
		t.Fatalf("GetOrCreate = %v, created=%v", err, created)
	}
	clk.Add(6 * 24 * time.Hour)
	second, created, err := store.GetOrCreate(ctx, h)
	if err != nil || created {
		t.Fatalf("second GetOrCreate = %v, created=%v", err, created)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same document, got %s and %s", first.ID, second.ID)
	}

	active, err := store.GetActive(ctx, "h1")
	if err != nil || active == nil || active.ID != first.ID {
		t.Fatalf("GetActive = %+v, %v", active, err)
	}
}

func TestGetOrCreate_RollsTotalsForward(t *testing.T) {
	store, clk := newTestStore(t, RangeOverlap)
	ctx := context.Background()
	h := testHandle("h1")

	d1, err := store.Apply(ctx, h, addViews(100))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := d1.Totals[metric.Views].Total(); got != 100 {
		t.Fatalf("d1 views = %v, want 100", got)
	}

	clk.Add(Window + time.Second)
	d2, created, err := store.GetOrCreate(ctx, h)
	if err != nil || !created {
		t.Fatalf("GetOrCreate after expiry = %v, created=%v", err, created)
	}
	if d2.ID == d1.ID {
		t.Fatal("expected a new document after expiry")
	}
	if got := d2.PrevTotals[metric.Views].Total(); got != 100 {
		t.Fatalf("prev_totals views = %v, want 100", got)
	}
	if got := d2.Totals[metric.Views].Total(); got != 0 {
		t.Fatalf("fresh totals views = %v, want 0", got)
	}

	d2, err = store.Apply(ctx, h, addViews(40))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := d2.GrandTotals()[metric.Views].Total(); got != 140 {
		t.Fatalf("grand_totals views = %v, want 140", got)
	}

	clk.Add(Window + time.Second)
	d3, _, err := store.GetOrCreate(ctx, h)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got := d3.PrevTotals[metric.Views].Total(); got != 140 {
		t.Fatalf("third window prev_totals = %v, want 140", got)
	}
}

// trailingViews writes perDay views for each of the n days ending today,
// the shape of a digger re-fetching its report window every run.
func trailingViews(n int, perDay float64) Update {
	return UpdateFunc(func(doc *Document, now time.Time) {
		rec := metric.Record{}
		for i := 0; i < n; i++ {
			rec.Add(metric.Day(now.AddDate(0, 0, -i)), perDay)
		}
		doc.SetMetric(metric.Views, rec)
	})
}

func TestApply_OverlappingFetchesAcrossRollover(t *testing.T) {
	store, clk := newTestStore(t, RangeOverlap)
	ctx := context.Background()
	h := testHandle("h1")

	const runs = 10
	days := map[string]bool{}
	var last *Document
	for i := 0; i < runs; i++ {
		if i > 0 {
			clk.Add(24 * time.Hour)
		}
		for d := 0; d < 3; d++ {
			days[metric.Day(clk.Now().AddDate(0, 0, -d))] = true
		}
		doc, err := store.Apply(ctx, h, trailingViews(3, 10))
		if err != nil {
			t.Fatalf("Apply run %d: %v", i, err)
		}
		last = doc
	}
	want := float64(len(days) * 10)

	if last.Since == "" {
		t.Fatal("expected the rolled window to start after the previous one")
	}
	if got := last.GrandTotals()[metric.Views].Total(); got != want {
		t.Fatalf("grand_totals views = %v, want %v over %d days", got, want, len(days))
	}

	loaded, err := store.GetActive(ctx, "h1")
	if err != nil || loaded == nil {
		t.Fatalf("GetActive = %+v, %v", loaded, err)
	}
	if loaded.Since != last.Since {
		t.Fatalf("since not persisted: %q, want %q", loaded.Since, last.Since)
	}

	docs, err := store.Query(ctx, []string{"h1"}, Range{Start: t0.AddDate(0, 0, -5), End: clk.Now()})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Query returned %d documents, want 2", len(docs))
	}
	r := GetTotalPlatformMetric(docs)
	for day, values := range r.Metrics[metric.Views] {
		if values[metric.TotalKey] != 10 {
			t.Fatalf("row %s views = %v, want 10", day, values)
		}
	}
	if len(r.Metrics[metric.Views]) != len(days) {
		t.Fatalf("rollup has %d days, want %d", len(r.Metrics[metric.Views]), len(days))
	}
	if got := r.Totals[metric.Views].Total(); got != want {
		t.Fatalf("rollup totals views = %v, want %v", got, want)
	}
	if got := r.GrandTotals[metric.Views].Total(); got != want {
		t.Fatalf("rollup grand_totals views = %v, want %v", got, want)
	}
}

func TestGetOrCreate_EmptyWindowKeepsStart(t *testing.T) {
	store, clk := newTestStore(t, RangeOverlap)
	ctx := context.Background()
	h := testHandle("h1")

	if _, err := store.Apply(ctx, h, addViews(5)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	clk.Add(Window + time.Second)
	d2, _, err := store.GetOrCreate(ctx, h)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	want := metric.NextDay(metric.Day(t0))
	if d2.Since != want {
		t.Fatalf("second window since = %q, want %q", d2.Since, want)
	}

	// the second window never stores anything; the third keeps its start
	clk.Add(Window + time.Second)
	d3, _, err := store.GetOrCreate(ctx, h)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if d3.Since != want {
		t.Fatalf("third window since = %q, want %q", d3.Since, want)
	}
}

func TestSave_PersistsMetricsAndMeta(t *testing.T) {
	store, _ := newTestStore(t, RangeOverlap)
	ctx := context.Background()
	h := testHandle("h1")

	doc, _, _ := store.GetOrCreate(ctx, h)
	doc.SetMetric("viewer_percentage", metric.Record{"2020-10-07": {"M.age18-24": 33.5}})
	doc.PrevTotals = metric.Totals{metric.Views: {metric.TotalKey: 9}}
	if err := store.Save(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.GetActive(ctx, "h1")
	if err != nil || loaded == nil {
		t.Fatalf("GetActive = %+v, %v", loaded, err)
	}
	if v, _ := loaded.Metrics["viewer_percentage"].Get("2020-10-07.M.age18-24"); v != 33.5 {
		t.Fatalf("stored value = %v", v)
	}
	if loaded.PrevTotals[metric.Views].Total() != 9 {
		t.Fatalf("prev totals not persisted: %v", loaded.PrevTotals)
	}
	if loaded.Rules().Of("viewer_percentage") != metric.Latest {
		t.Fatal("loaded document lost its rules")
	}
}

func TestQuery_RangeModes(t *testing.T) {
	ctx := context.Background()
	for _, tt := range []struct {
		mode RangeMode
		want int
	}{
		{mode: RangeOverlap, want: 2},
		{mode: RangeLegacy, want: 0},
	} {
		t.Run(string(tt.mode), func(t *testing.T) {
			store, clk := newTestStore(t, tt.mode)
			h := testHandle("h1")

			_, _ = store.Apply(ctx, h, addViews(1))
			clk.Add(Window + time.Second)
			_, _ = store.Apply(ctx, h, addViews(2))

			// both windows fall inside the range, but the second closes
			// before its end
			r := Range{Start: t0.Add(-time.Hour), End: t0.Add(30 * 24 * time.Hour)}
			docs, err := store.Query(ctx, []string{"h1"}, r)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(docs) != tt.want {
				t.Fatalf("Query returned %d documents, want %d", len(docs), tt.want)
			}
		})
	}
}

func TestQuery_LegacyKeepsOpenWindows(t *testing.T) {
	store, _ := newTestStore(t, RangeLegacy)
	ctx := context.Background()
	_, _ = store.Apply(ctx, testHandle("h1"), addViews(1))

	docs, err := store.Query(ctx, []string{"h1"}, Range{Start: t0.Add(-time.Hour), End: t0.Add(time.Hour)})
	if err != nil || len(docs) != 1 {
		t.Fatalf("Query = %d docs, %v", len(docs), err)
	}
}

func TestQuery_NoHandles(t *testing.T) {
	store, _ := newTestStore(t, RangeOverlap)
	docs, err := store.Query(context.Background(), nil, Range{})
	if err != nil || docs != nil {
		t.Fatalf("Query = %v, %v", docs, err)
	}
}

func TestParseRangeMode(t *testing.T) {
	if m, err := ParseRangeMode(""); err != nil || m != RangeOverlap {
		t.Fatalf("ParseRangeMode(\"\") = %v, %v", m, err)
	}
	if m, err := ParseRangeMode("legacy"); err != nil || m != RangeLegacy {
		t.Fatalf("ParseRangeMode(legacy) = %v, %v", m, err)
	}
	if _, err := ParseRangeMode("union"); err == nil {
		t.Fatal("expected error")
	}
}
