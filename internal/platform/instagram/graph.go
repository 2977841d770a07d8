// Package instagram digs Instagram business accounts through the Facebook
// Graph API.
package instagram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pysugar/creator-insights/internal/digger"
	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/reports/catalog"
	"github.com/pysugar/creator-insights/internal/upstream"
)

// ProfileURL prefixes a username to form the public profile link.
const ProfileURL = "https://www.instagram.com/"

// endTimeLayout is how the Graph API formats end_time.
const endTimeLayout = "2006-01-02T15:04:05-0700"

// GraphError is the error object the Graph API embeds in a response body.
type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("graph error %d (%s): %s", e.Code, e.Type, e.Message)
}

// apiError lifts an embedded error into an upstream.APIError so callers can
// tell credential rejections apart with upstream.IsAuthError.
func (e *GraphError) apiError() error {
	status := http.StatusBadRequest
	if e.Code == 190 {
		status = http.StatusUnauthorized
	}
	return &upstream.APIError{StatusCode: status, Code: e.Type, Message: e.Message}
}

// Cursors point at the neighbouring pages of a list.
type Cursors struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Paging is attached to every list response.
type Paging struct {
	Cursors  Cursors `json:"cursors"`
	Next     string  `json:"next"`
	Previous string  `json:"previous"`
}

// BusinessAccount is the Instagram account linked to a Facebook page.
type BusinessAccount struct {
	ID string `json:"id"`
}

// Page is a Facebook page managed by the token's user.
type Page struct {
	ID                       string           `json:"id"`
	Name                     string           `json:"name"`
	InstagramBusinessAccount *BusinessAccount `json:"instagram_business_account"`
}

// PagesResponse is one page of /me/accounts.
type PagesResponse struct {
	Data   []Page      `json:"data"`
	Paging Paging      `json:"paging"`
	Error  *GraphError `json:"error"`
}

// User is an Instagram business account.
type User struct {
	ID                string      `json:"id"`
	IGID              int64       `json:"ig_id"`
	Username          string      `json:"username"`
	Name              string      `json:"name"`
	Biography         string      `json:"biography"`
	ProfilePictureURL string      `json:"profile_picture_url"`
	FollowersCount    int64       `json:"followers_count"`
	MediaCount        int64       `json:"media_count"`
	Error             *GraphError `json:"error"`
}

// Profile converts the account into the fields stored on a handle.
func (u User) Profile() digger.Profile {
	p := digger.Profile{
		UID:           u.ID,
		Username:      u.Username,
		Avatar:        u.ProfilePictureURL,
		FollowerCount: u.FollowersCount,
		MediaCount:    u.MediaCount,
		MetaData:      map[string]any{},
	}
	if u.Username != "" {
		p.URL = ProfileURL + u.Username
	}
	if u.Name != "" {
		p.MetaData["name"] = u.Name
	}
	if u.Biography != "" {
		p.MetaData["description"] = u.Biography
	}
	return p
}

// InsightValue is one measurement of an insight.
type InsightValue struct {
	Value   json.RawMessage `json:"value"`
	EndTime string          `json:"end_time"`
}

// Insight is one metric in an insights response.
type Insight struct {
	Name   string         `json:"name"`
	Period string         `json:"period"`
	Title  string         `json:"title"`
	Values []InsightValue `json:"values"`
}

// InsightsResponse is the body of /{ig-user-id}/insights.
type InsightsResponse struct {
	Data   []Insight   `json:"data"`
	Paging Paging      `json:"paging"`
	Error  *GraphError `json:"error"`
}

// ParseDaily converts a period=day response into one record per metric.
// A value's end_time closes the day it measures, so it is filed under the
// day before.
func ParseDaily(resp *InsightsResponse) (metric.Set, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty insights response")
	}
	if resp.Error != nil {
		return nil, resp.Error.apiError()
	}
	set := metric.Set{}
	for _, in := range resp.Data {
		name := metric.Name(metric.SnakeCase(in.Name))
		rec := metric.Record{}
		for _, v := range in.Values {
			end, err := time.Parse(endTimeLayout, v.EndTime)
			if err != nil {
				return nil, fmt.Errorf("%s: bad end_time %q: %w", in.Name, v.EndTime, err)
			}
			var n float64
			if err := json.Unmarshal(v.Value, &n); err != nil {
				return nil, fmt.Errorf("%s: value is not a number: %w", in.Name, err)
			}
			rec.Add(metric.Day(end.AddDate(0, 0, -1)), n)
		}
		if len(rec) > 0 {
			set[name] = rec
		}
	}
	return set, nil
}

// ParseSnapshot reads a period=lifetime response. Each metric maps to its
// latest keyed snapshot, e.g. audience_city to {"Pune, Maharashtra": 70}.
func ParseSnapshot(resp *InsightsResponse) (map[metric.Name]metric.Values, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty insights response")
	}
	if resp.Error != nil {
		return nil, resp.Error.apiError()
	}
	out := make(map[metric.Name]metric.Values, len(resp.Data))
	for _, in := range resp.Data {
		if len(in.Values) == 0 {
			continue
		}
		var snap map[string]float64
		if err := json.Unmarshal(in.Values[len(in.Values)-1].Value, &snap); err != nil {
			return nil, fmt.Errorf("%s: value is not a keyed snapshot: %w", in.Name, err)
		}
		if len(snap) == 0 {
			continue
		}
		out[metric.Name(metric.SnakeCase(in.Name))] = metric.Values(snap)
	}
	return out, nil
}

// lifetime reports whether report is read as a snapshot.
func lifetime(report catalog.Report) bool {
	return report.Snapshot || report.Period == "lifetime"
}
