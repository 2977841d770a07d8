package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/reports/catalog"
	"github.com/pysugar/creator-insights/internal/upstream"
)

// Default API roots.
const (
	DefaultDataURL      = "https://www.googleapis.com/youtube/v3"
	DefaultAnalyticsURL = "https://youtubeanalytics.googleapis.com/v2"

	channelParts = "snippet,topicDetails,statistics,auditDetails"
	maxPages     = 50
)

// Endpoints are the API roots the client talks to.
type Endpoints struct {
	Data      string
	Analytics string
}

// DefaultEndpoints returns the public Google API roots.
func DefaultEndpoints() Endpoints {
	return Endpoints{Data: DefaultDataURL, Analytics: DefaultAnalyticsURL}
}

// Client calls the YouTube Data and Analytics APIs on behalf of a channel.
type Client struct {
	http      *upstream.Client
	endpoints Endpoints
}

// NewClient creates a client. Empty endpoints use the public roots.
func NewClient(http *upstream.Client, endpoints Endpoints) *Client {
	def := DefaultEndpoints()
	if endpoints.Data == "" {
		endpoints.Data = def.Data
	}
	if endpoints.Analytics == "" {
		endpoints.Analytics = def.Analytics
	}
	endpoints.Data = strings.TrimRight(endpoints.Data, "/")
	endpoints.Analytics = strings.TrimRight(endpoints.Analytics, "/")
	return &Client{http: http, endpoints: endpoints}
}

// Channels fetches one page of the channels owned by the token.
func (c *Client) Channels(ctx context.Context, accessToken, pageToken string) (*ChannelListResponse, error) {
	q := url.Values{}
	q.Set("part", channelParts)
	q.Set("mine", "true")
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	var resp ChannelListResponse
	if err := c.http.GetJSON(ctx, c.endpoints.Data+"/channels", q, upstream.BearerHeader(accessToken), &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &resp, nil
}

// ListChannels follows nextPageToken until the last page.
func (c *Client) ListChannels(ctx context.Context, accessToken string) ([]Channel, error) {
	var (
		channels  []Channel
		pageToken string
	)
	for page := 0; page < maxPages; page++ {
		resp, err := c.Channels(ctx, accessToken, pageToken)
		if err != nil {
			return nil, err
		}
		channels = append(channels, resp.Items...)
		if resp.NextPageToken == "" || len(resp.Items) == 0 {
			return channels, nil
		}
		pageToken = resp.NextPageToken
	}
	return channels, fmt.Errorf("channel list exceeded %d pages", maxPages)
}

// Report runs one analytics query for the token's channel over the days
// from start to end inclusive.
func (c *Client) Report(ctx context.Context, accessToken string, report catalog.Report, start, end time.Time) (*ReportResponse, error) {
	q := url.Values{}
	q.Set("ids", "channel==MINE")
	q.Set("startDate", metric.Day(start))
	q.Set("endDate", metric.Day(end))
	q.Set("metrics", strings.Join(report.Metrics, ","))
	if len(report.Dimensions) > 0 {
		q.Set("dimensions", strings.Join(report.Dimensions, ","))
	}
	if report.Sort != "" {
		q.Set("sort", report.Sort)
	}

	var resp ReportResponse
	if err := c.http.GetJSON(ctx, c.endpoints.Analytics+"/reports", q, upstream.BearerHeader(accessToken), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
