package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ParseRetryDelay returns how long a throttled platform response asks the
// caller to wait, or zero when it gives no hint. Sources, in order:
//
//   - Retry-After (seconds or HTTP date)
//   - Graph API X-Business-Use-Case-Usage estimated_time_to_regain_access (minutes)
//   - a Google API error body with a retryDelay detail
//
// A consumed body is restored.
func ParseRetryDelay(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if d := retryAfter(resp.Header.Get("Retry-After")); d > 0 {
		return d
	}
	if d := graphRegainAccess(resp.Header.Get("X-Business-Use-Case-Usage")); d > 0 {
		return d
	}
	return googleRetryDelay(resp)
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// graphRegainAccess reads the header the Graph API keys by business id:
// {"<id>":[{"type":"instagram","estimated_time_to_regain_access":5}]}
func graphRegainAccess(v string) time.Duration {
	if v == "" {
		return 0
	}
	var usage map[string][]struct {
		Type          string `json:"type"`
		RegainMinutes int    `json:"estimated_time_to_regain_access"`
	}
	if err := json.Unmarshal([]byte(v), &usage); err != nil {
		return 0
	}
	var longest int
	for _, entries := range usage {
		for _, e := range entries {
			longest = max(longest, e.RegainMinutes)
		}
	}
	return time.Duration(longest) * time.Minute
}

type googleError struct {
	Error struct {
		Details []struct {
			Reason     string            `json:"reason"`
			Metadata   map[string]string `json:"metadata"`
			RetryDelay string            `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

func googleRetryDelay(resp *http.Response) time.Duration {
	if resp.Body == nil {
		return 0
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return 0
	}

	var ge googleError
	if json.Unmarshal(body, &ge) != nil {
		return 0
	}
	for _, detail := range ge.Error.Details {
		for _, raw := range []string{detail.RetryDelay, detail.Metadata["retryDelay"]} {
			if raw == "" {
				continue
			}
			if d, err := time.ParseDuration(raw); err == nil {
				return d
			}
		}
	}
	return 0
}

// truncate shortens s to maxLen bytes for logs and error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s... [%d bytes]", s[:maxLen], len(s))
}
