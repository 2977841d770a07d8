// Package handlers serves the account, handle and insights endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/creator-insights/internal/accounts"
	"github.com/pysugar/creator-insights/internal/db/models"
	"github.com/pysugar/creator-insights/internal/digger"
	"github.com/pysugar/creator-insights/internal/insights"
	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/pysugar/creator-insights/internal/platform"
)

// ViewerHeader names the account making the request. Private metrics are
// only shown when it matches the owner.
const ViewerHeader = "X-Account"

// AccountStore persists accounts and lists their handles.
type AccountStore interface {
	CreateAccount(ctx context.Context, username, entityType string) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	SetPrivateMetrics(ctx context.Context, accountID string, p platform.Platform, metrics []string) (*models.Account, error)
	ListHandles(ctx context.Context, accountID string, p platform.Platform) ([]models.SocialMediaHandle, error)
}

// Digger connects handles and refreshes their insights.
type Digger interface {
	CreateOrUpdateHandles(ctx context.Context, accountID string, p platform.Platform, creds digger.Credentials) ([]models.SocialMediaHandle, error)
	ResyncHandles(ctx context.Context, accountID string) ([]models.SocialMediaHandle, error)
	UpdateAllHandlesInsights(ctx context.Context, accountID string) ([]*insights.Document, error)
}

// InsightsReader answers insight table queries.
type InsightsReader interface {
	ResolveRange(start, end time.Time) insights.Range
	CalculatePlatformMetric(ctx context.Context, accountID string, p platform.Platform, r insights.Range, viewerID string) (*insights.Table, error)
	CalculateAccountMetrics(ctx context.Context, accountID string, r insights.Range, viewerID string) (map[platform.Platform]*insights.Table, error)
	GetHandleInsights(ctx context.Context, handleID string, r insights.Range, viewerID string) (*insights.Table, error)
}

// CodeExchanger trades an OAuth authorization code for connect credentials.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURL string) (digger.Credentials, error)
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, accounts.ErrAccountAlreadyExists), errors.Is(err, accounts.ErrHandleAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, accounts.ErrAccountDoesNotExist), errors.Is(err, accounts.ErrNoSocialMediaHandle):
		return http.StatusNotFound
	case errors.Is(err, accounts.ErrPlatformAuthorization):
		return http.StatusUnauthorized
	case errors.Is(err, accounts.ErrUnsupportedPlatform), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.Entry(r.Context()).WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"message": msg, "status": status},
	})
}

func parsePlatform(s string) (platform.Platform, error) {
	p, err := platform.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", accounts.ErrUnsupportedPlatform, err)
	}
	return p, nil
}

// parseTime accepts unix seconds or a YYYY-MM-DD day in UTC. With endOfDay
// a day resolves to its last second.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	day, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, badRequest("invalid date %q: use unix seconds or YYYY-MM-DD", s)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Second)
	}
	return day, nil
}

// queryRange reads start_date and end_date. Missing bounds default to the
// last day up to now.
func queryRange(r *http.Request, svc InsightsReader) (insights.Range, error) {
	q := r.URL.Query()
	start, err := parseTime(q.Get("start_date"), false)
	if err != nil {
		return insights.Range{}, err
	}
	end, err := parseTime(q.Get("end_date"), true)
	if err != nil {
		return insights.Range{}, err
	}
	rng := svc.ResolveRange(start, end)
	if rng.End.Before(rng.Start) {
		return insights.Range{}, badRequest("end_date is before start_date")
	}
	return rng, nil
}

func viewerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ViewerHeader))
}
