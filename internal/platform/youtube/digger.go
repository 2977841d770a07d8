package youtube

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/digger"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/platform"
	"github.com/pysugar/creator-insights/internal/reports/catalog"
)

// ProfileReport names the channel profile request in report outcomes.
const ProfileReport = "profile"

var errChannelNotFound = errors.New("channel not returned for token")

// Digger fetches YouTube channel reports.
type Digger struct {
	client  *Client
	reports []catalog.Report
	clock   clock.Clock
	// days is how many days back from today each report covers.
	days int
}

// NewDigger creates a digger running reports for the last days days,
// today included.
func NewDigger(client *Client, def catalog.Platform, clk clock.Clock, days int) *Digger {
	if clk == nil {
		clk = clock.New()
	}
	if days < 1 {
		days = 1
	}
	return &Digger{client: client, reports: def.Reports, clock: clk, days: days}
}

// Platform implements digger.Digger.
func (d *Digger) Platform() platform.Platform { return platform.YouTube }

// ListAccounts returns the channels owned by the token.
func (d *Digger) ListAccounts(ctx context.Context, accessToken string) ([]digger.Profile, error) {
	channels, err := d.client.ListChannels(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	profiles := make([]digger.Profile, 0, len(channels))
	for _, ch := range channels {
		profiles = append(profiles, ch.Profile())
	}
	return profiles, nil
}

// Fetch reads the channel profile and runs every configured report.
func (d *Digger) Fetch(ctx context.Context, h *models.SocialMediaHandle) digger.Result {
	now := d.clock.Now().UTC()
	today := metric.Day(now)
	start := now.AddDate(0, 0, -(d.days - 1))

	var res digger.Result
	profile, err := d.profile(ctx, h)
	res.Reports = append(res.Reports, digger.ReportOutcome{Report: ProfileReport, Err: err})
	if err == nil {
		res.Profile = profile
	}

	var sets []metric.Set
	for _, report := range d.reports {
		// rows of a report without a day column are filed under today, so
		// only today may be requested
		from := start
		if !report.Daily() {
			from = now
		}
		resp, err := d.client.Report(ctx, h.AccessToken, report, from, now)
		var set metric.Set
		if err == nil {
			set, err = ParseReport(resp, report, today)
		}
		res.Reports = append(res.Reports, digger.ReportOutcome{Report: report.Name, Err: err})
		if err == nil {
			sets = append(sets, set)
		}
	}

	if len(sets) == 0 && res.Profile == nil {
		return res
	}
	res.Update = channelUpdate(Combine(sets...), res.Profile)
	return res
}

func (d *Digger) profile(ctx context.Context, h *models.SocialMediaHandle) (*digger.Profile, error) {
	resp, err := d.client.Channels(ctx, h.AccessToken, "")
	if err != nil {
		return nil, err
	}
	for _, ch := range resp.Items {
		if ch.ID == h.HandleUID || h.HandleUID == "" {
			p := ch.Profile()
			return &p, nil
		}
	}
	return nil, errChannelNotFound
}

// channelUpdate stores the report metrics, stamps the channel counters and
// recomputes engagement from the window totals.
func channelUpdate(set metric.Set, profile *digger.Profile) insights.Update {
	return insights.UpdateFunc(func(doc *insights.Document, now time.Time) {
		for _, name := range set.Names() {
			doc.SetMetric(name, set[name])
		}
		if profile != nil {
			doc.Stamp(metric.FollowerCount, float64(profile.FollowerCount), now)
			doc.Stamp(metric.MediaCount, float64(profile.MediaCount), now)
		}
		doc.CalculateEngagement(now)
	})
}
