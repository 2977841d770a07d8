package instagram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/digger"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/platform"
	"github.com/pysugar/creator-insights/internal/reports/catalog"
)

// ProfileReport names the account profile request in report outcomes.
const ProfileReport = "profile"

// Digger fetches Instagram business account insights.
type Digger struct {
	client  *Client
	auth    *Auth
	reports []catalog.Report
	clock   clock.Clock
	days    int
}

// NewDigger creates a digger whose day reports cover the last days days.
// auth may be nil, in which case connect tokens are stored as given.
func NewDigger(client *Client, auth *Auth, def catalog.Platform, clk clock.Clock, days int) *Digger {
	if clk == nil {
		clk = clock.New()
	}
	if days < 1 {
		days = 1
	}
	return &Digger{client: client, auth: auth, reports: def.Reports, clock: clk, days: days}
}

// Platform implements digger.Digger.
func (d *Digger) Platform() platform.Platform { return platform.Instagram }

// Exchange implements digger.Exchanger.
func (d *Digger) Exchange(ctx context.Context, creds digger.Credentials) (digger.Credentials, error) {
	if d.auth == nil {
		return creds, nil
	}
	return d.auth.Exchange(ctx, creds)
}

// ListAccounts returns the Instagram business accounts linked to the pages
// the token manages. Pages without one are skipped.
func (d *Digger) ListAccounts(ctx context.Context, accessToken string) ([]digger.Profile, error) {
	pages, err := d.client.ListPages(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	var (
		profiles []digger.Profile
		errs     []error
	)
	for _, page := range pages {
		if page.InstagramBusinessAccount == nil || page.InstagramBusinessAccount.ID == "" {
			continue
		}
		u, err := d.client.User(ctx, accessToken, page.InstagramBusinessAccount.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("page %s: %w", page.ID, err))
			continue
		}
		profiles = append(profiles, u.Profile())
	}
	if len(profiles) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return profiles, nil
}

// Fetch reads the account profile and runs every configured report.
func (d *Digger) Fetch(ctx context.Context, h *models.SocialMediaHandle) digger.Result {
	now := d.clock.Now().UTC()
	since := now.AddDate(0, 0, -d.days)

	var res digger.Result
	u, err := d.client.User(ctx, h.AccessToken, h.HandleUID)
	res.Reports = append(res.Reports, digger.ReportOutcome{Report: ProfileReport, Err: err})
	if err == nil {
		p := u.Profile()
		res.Profile = &p
	}

	var (
		daily     []metric.Set
		snapshots = map[metric.Name]metric.Values{}
	)
	for _, report := range d.reports {
		resp, err := d.client.Insights(ctx, h.AccessToken, h.HandleUID, report, since, now)
		if err == nil {
			if lifetime(report) {
				var snap map[metric.Name]metric.Values
				if snap, err = ParseSnapshot(resp); err == nil {
					for name, values := range snap {
						snapshots[name] = values
					}
				}
			} else {
				var set metric.Set
				if set, err = ParseDaily(resp); err == nil {
					daily = append(daily, set)
				}
			}
		}
		res.Reports = append(res.Reports, digger.ReportOutcome{Report: report.Name, Err: err})
	}

	if len(daily) == 0 && len(snapshots) == 0 && res.Profile == nil {
		return res
	}
	res.Update = accountUpdate(daily, snapshots, res.Profile)
	return res
}

// accountUpdate stores the day metrics, reduces the audience snapshots to
// today's delta and stamps the media count.
func accountUpdate(daily []metric.Set, snapshots map[metric.Name]metric.Values, profile *digger.Profile) insights.Update {
	return insights.UpdateFunc(func(doc *insights.Document, now time.Time) {
		for _, set := range daily {
			for _, name := range set.Names() {
				doc.SetMetric(name, set[name])
			}
		}
		today := metric.Day(now)
		for name, values := range snapshots {
			doc.ReduceSnapshot(name, today, values)
		}
		if profile != nil {
			doc.Stamp(metric.MediaCount, float64(profile.MediaCount), now)
		}
	})
}
