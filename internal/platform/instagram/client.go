package instagram

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/creator-insights/internal/reports/catalog"
	"github.com/pysugar/creator-insights/internal/upstream"
)

// Default API roots.
const (
	DefaultGraphURL     = "https://graph.facebook.com/v12.0"
	DefaultInstagramURL = "https://graph.instagram.com"

	userFields = "biography,id,ig_id,followers_count,media_count,name,profile_picture_url,username"
	pageFields = "id,name,instagram_business_account"
	maxPages   = 50
)

// Endpoints are the API roots the client talks to.
type Endpoints struct {
	// Graph serves pages, users and insights.
	Graph string
	// Instagram serves long-lived token exchange and refresh.
	Instagram string
}

// DefaultEndpoints returns the public roots.
func DefaultEndpoints() Endpoints {
	return Endpoints{Graph: DefaultGraphURL, Instagram: DefaultInstagramURL}
}

// Client calls the Graph API with a user access token.
type Client struct {
	http      *upstream.Client
	endpoints Endpoints
}

// NewClient creates a client. Empty endpoints use the public roots.
func NewClient(http *upstream.Client, endpoints Endpoints) *Client {
	def := DefaultEndpoints()
	if endpoints.Graph == "" {
		endpoints.Graph = def.Graph
	}
	if endpoints.Instagram == "" {
		endpoints.Instagram = def.Instagram
	}
	endpoints.Graph = strings.TrimRight(endpoints.Graph, "/")
	endpoints.Instagram = strings.TrimRight(endpoints.Instagram, "/")
	return &Client{http: http, endpoints: endpoints}
}

func tokenQuery(accessToken string) url.Values {
	q := url.Values{}
	q.Set("access_token", accessToken)
	return q
}

// Pages fetches one page of the Facebook pages the token manages.
func (c *Client) Pages(ctx context.Context, accessToken, after string) (*PagesResponse, error) {
	q := tokenQuery(accessToken)
	q.Set("fields", pageFields)
	if after != "" {
		q.Set("after", after)
	}
	var resp PagesResponse
	if err := c.http.GetJSON(ctx, c.endpoints.Graph+"/me/accounts", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.apiError()
	}
	return &resp, nil
}

// ListPages follows the after cursor until the last page.
func (c *Client) ListPages(ctx context.Context, accessToken string) ([]Page, error) {
	var (
		pages []Page
		after string
	)
	for n := 0; n < maxPages; n++ {
		resp, err := c.Pages(ctx, accessToken, after)
		if err != nil {
			return nil, err
		}
		pages = append(pages, resp.Data...)
		if resp.Paging.Next == "" || resp.Paging.Cursors.After == "" || len(resp.Data) == 0 {
			return pages, nil
		}
		after = resp.Paging.Cursors.After
	}
	return pages, fmt.Errorf("page list exceeded %d pages", maxPages)
}

// User fetches the business account igUserID.
func (c *Client) User(ctx context.Context, accessToken, igUserID string) (*User, error) {
	q := tokenQuery(accessToken)
	q.Set("fields", userFields)
	var u User
	if err := c.http.GetJSON(ctx, c.endpoints.Graph+"/"+url.PathEscape(igUserID), q, nil, &u); err != nil {
		return nil, err
	}
	if u.Error != nil {
		return nil, u.Error.apiError()
	}
	return &u, nil
}

// Insights runs report for igUserID. Day reports cover since to until,
// lifetime reports ignore the range.
func (c *Client) Insights(ctx context.Context, accessToken, igUserID string, report catalog.Report, since, until time.Time) (*InsightsResponse, error) {
	q := tokenQuery(accessToken)
	q.Set("metric", strings.Join(report.Metrics, ","))
	period := report.Period
	if period == "" {
		period = "day"
	}
	q.Set("period", period)
	if !lifetime(report) {
		q.Set("since", strconv.FormatInt(since.Unix(), 10))
		q.Set("until", strconv.FormatInt(until.Unix(), 10))
	}
	var resp InsightsResponse
	if err := c.http.GetJSON(ctx, c.endpoints.Graph+"/"+url.PathEscape(igUserID)+"/insights", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TokenResponse is returned by the long-lived token endpoints.
type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	Error       *GraphError `json:"error"`
}

// token calls one of the long-lived token endpoints.
func (c *Client) token(ctx context.Context, path string, q url.Values) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.http.GetJSON(ctx, c.endpoints.Instagram+path, q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error.apiError()
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%s returned no access token", path)
	}
	return &resp, nil
}

// ExchangeToken trades a short-lived token for a long-lived one.
func (c *Client) ExchangeToken(ctx context.Context, shortLived, clientSecret string) (*TokenResponse, error) {
	q := tokenQuery(shortLived)
	q.Set("grant_type", "ig_exchange_token")
	q.Set("client_secret", clientSecret)
	return c.token(ctx, "/access_token", q)
}

// RefreshToken extends a long-lived token that has not expired yet.
func (c *Client) RefreshToken(ctx context.Context, longLived string) (*TokenResponse, error) {
	q := tokenQuery(longLived)
	q.Set("grant_type", "ig_refresh_token")
	return c.token(ctx, "/refresh_access_token", q)
}
