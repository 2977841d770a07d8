// Package insights stores per-handle metric windows and rolls them up into
// the tables served to callers.
package insights

import (
	"time"

	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/platform"
)

// Window is the lifetime of a metric document.
const Window = 7 * 24 * time.Hour

// Document is one handle's metrics for one window.
//
// Metrics accumulate for the window only. Totals collapses each metric over
// the window, PrevTotals carries the grand totals of every earlier window.
type Document struct {
	ID        string
	HandleID  string
	Platform  platform.Platform
	CreatedOn time.Time
	ExpiredOn time.Time

	Metrics    metric.Set
	Totals     metric.Totals
	PrevTotals metric.Totals

	// Since is the first day this window accepts. Earlier days are already
	// counted by a previous window and are dropped by SetMetric. Empty
	// accepts every day.
	Since string

	rules metric.Rules
}

// NewDocument opens a window for handleID starting at now.
func NewDocument(handleID string, p platform.Platform, now time.Time, rules metric.Rules) *Document {
	return &Document{
		HandleID:   handleID,
		Platform:   p,
		CreatedOn:  now,
		ExpiredOn:  now.Add(Window),
		Metrics:    metric.Set{},
		Totals:     metric.Totals{},
		PrevTotals: metric.Totals{},
		rules:      rules,
	}
}

// Active reports whether the window is still open at now.
func (d *Document) Active(now time.Time) bool {
	return !d.ExpiredOn.Before(now)
}

// Rules returns the aggregation rules the document was loaded with.
func (d *Document) Rules() metric.Rules {
	return d.rules
}

// SetMetric merges rec into the named metric and recomputes its total.
// Values already stored for the same day and key are replaced, so fetching
// a day twice does not double count it.
func (d *Document) SetMetric(name metric.Name, rec metric.Record) {
	if d.Since != "" {
		rec = rec.From(d.Since)
	}
	if len(rec) == 0 {
		return
	}
	dst, ok := d.Metrics[name]
	if !ok {
		dst = metric.Record{}
		d.Metrics[name] = dst
	}
	dst.Overlay(rec)
	d.SetTotalOfMetric(name)
}

// SetTotalOfMetric recomputes Totals[name] from the window's record.
func (d *Document) SetTotalOfMetric(name metric.Name) {
	rec, ok := d.Metrics[name]
	if !ok {
		return
	}
	d.Totals[name] = d.rules.Total(name, rec)
}

// Stamp records a point-in-time value, such as a follower count, under
// TotalKey for the day of now.
func (d *Document) Stamp(name metric.Name, value float64, now time.Time) {
	rec := metric.Record{}
	rec.Add(metric.Day(now), value)
	d.SetMetric(name, rec)
}

// ReduceSnapshot stores a lifetime snapshot as the delta against what the
// handle had accumulated before day.
//
// The baseline is PrevTotals plus every other day of this window, so a
// fresh window diffs against the carried totals and a repeated fetch of the
// same day replaces that day's delta.
func (d *Document) ReduceSnapshot(name metric.Name, day string, snapshot metric.Values) {
	if len(snapshot) == 0 {
		return
	}
	base := d.PrevTotals[name].Clone()
	if base == nil {
		base = metric.Values{}
	}
	for stored, values := range d.Metrics[name] {
		if stored != day {
			base.Merge(values)
		}
	}
	d.SetMetric(name, metric.Record{day: snapshot.Subtract(base)})
}

// LastDay returns the most recent day stored for any metric, or "".
func (d *Document) LastDay() string {
	var last string
	for _, rec := range d.Metrics {
		for day := range rec {
			if day > last {
				last = day
			}
		}
	}
	return last
}

// GrandTotals returns Totals merged with PrevTotals. Latest metrics keep
// this window's value and fall back to the carried one.
func (d *Document) GrandTotals() metric.Totals {
	grand := d.PrevTotals.Clone()
	for name, values := range d.Totals {
		if d.rules.Of(name) == metric.Latest && len(values) > 0 {
			grand[name] = values.Clone()
			continue
		}
		grand.Merge(metric.Totals{name: values})
	}
	return grand
}

// CalculateEngagement derives the engagement metrics from the window totals
// and files them under the day of now. The rate is zero when there were no
// views.
func (d *Document) CalculateEngagement(now time.Time) {
	total := func(name metric.Name) float64 { return d.Totals[name].Total() }

	positive := total(metric.Likes) + total(metric.Shares) + total(metric.Comments)
	negative := total(metric.Dislikes)
	engagement := positive + negative

	d.Stamp(metric.PositiveEngagement, positive, now)
	d.Stamp(metric.NegativeEngagement, negative, now)
	d.Stamp(metric.Engagement, engagement, now)
	d.Stamp(metric.EngagementRate, metric.Ratio(engagement, total(metric.Views)), now)
}

// Update is normalized report data for one handle, applied to its active
// document.
type Update interface {
	Apply(doc *Document, now time.Time)
}

// UpdateFunc adapts a function to Update.
type UpdateFunc func(doc *Document, now time.Time)

// Apply calls f.
func (f UpdateFunc) Apply(doc *Document, now time.Time) { f(doc, now) }
