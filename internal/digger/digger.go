// Package digger fetches platform reports for connected handles and folds
// them into the handles' metric documents.
package digger

import (
	"context"
	"time"

	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/platform"
)

// Credentials are the tokens produced by connecting a platform account.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds. Zero or less means
	// the platform did not say.
	ExpiresIn int64
}

// Expiry returns the absolute expiry of the access token, or the zero time.
func (c Credentials) Expiry(now time.Time) time.Time {
	if c.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(c.ExpiresIn) * time.Second).UTC()
}

// Profile is a platform account as the platform describes it.
type Profile struct {
	UID           string
	URL           string
	Username      string
	Avatar        string
	FollowerCount int64
	MediaCount    int64
	MetaData      map[string]any

	// AccessToken, when set, replaces the connect token for this handle.
	AccessToken string
}

// ReportOutcome is the result of one report request.
type ReportOutcome struct {
	Report string
	Err    error
}

// Result is everything one fetch produced for a handle.
type Result struct {
	// Profile is nil when the profile request failed.
	Profile *Profile
	// Update folds the successful reports into the handle's document. It is
	// nil when no report succeeded.
	Update  insights.Update
	Reports []ReportOutcome
}

// Failed counts the failed reports.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Reports {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Status summarizes the result as a metrics status label.
func (r Result) Status() string {
	failed := r.Failed()
	switch {
	case failed == 0:
		return StatusSuccess
	case failed < len(r.Reports):
		return StatusPartial
	default:
		return StatusFailure
	}
}

// Digger talks to one platform.
type Digger interface {
	Platform() platform.Platform

	// ListAccounts returns every account the access token can read,
	// following the platform's pagination to the end.
	ListAccounts(ctx context.Context, accessToken string) ([]Profile, error)

	// Fetch requests the handle's profile and every report. A failing
	// request is recorded in Result.Reports and does not stop the others.
	Fetch(ctx context.Context, h *models.SocialMediaHandle) Result
}

// Exchanger is implemented by diggers whose connect tokens must be swapped
// for longer lived ones before they are stored.
type Exchanger interface {
	Exchange(ctx context.Context, creds Credentials) (Credentials, error)
}

// Registry holds one Digger per platform.
type Registry map[platform.Platform]Digger

// NewRegistry indexes diggers by platform. A later digger for the same
// platform replaces an earlier one.
func NewRegistry(diggers ...Digger) Registry {
	r := make(Registry, len(diggers))
	for _, d := range diggers {
		r[d.Platform()] = d
	}
	return r
}

// Platforms returns the registered platforms in platform.All order.
func (r Registry) Platforms() []platform.Platform {
	out := make([]platform.Platform, 0, len(r))
	for _, p := range platform.All {
		if _, ok := r[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
