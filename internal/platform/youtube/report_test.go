package youtube

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/reports/catalog"
)

const today = "2020-10-07"

func decodeReport(t *testing.T, body string) *ReportResponse {
	t.Helper()
	var resp ReportResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &resp
}

func TestParseReport_TimeBased(t *testing.T) {
	resp := decodeReport(t, `{
		"kind": "youtubeAnalytics#resultTable",
		"columnHeaders": [
			{"name": "day", "columnType": "DIMENSION", "dataType": "STRING"},
			{"name": "views", "columnType": "METRIC", "dataType": "INTEGER"},
			{"name": "estimatedMinutesWatched", "columnType": "METRIC", "dataType": "INTEGER"},
			{"name": "averageViewPercentage", "columnType": "METRIC", "dataType": "FLOAT"}
		],
		"rows": [
			["2020-10-05", 120, 300, 41.5],
			["2020-10-06", 80, 150, 38.25]
		]
	}`)
	set, err := ParseReport(resp, catalog.Report{Name: "time_based"}, today)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}

	if got, _ := set["views"].Get("2020-10-05.TOTAL"); got != 120.0 {
		t.Fatalf("views on 2020-10-05 = %v", got)
	}
	if got, _ := set["estimated_minutes_watched"].Get("2020-10-06.TOTAL"); got != 150.0 {
		t.Fatalf("estimated_minutes_watched on 2020-10-06 = %v", got)
	}
	if got, _ := set["average_view_percentage"].Get("2020-10-06.TOTAL"); got != 38.25 {
		t.Fatalf("average_view_percentage on 2020-10-06 = %v", got)
	}
	if _, ok := set["day"]; ok {
		t.Fatal("dimension columns must not become metrics")
	}
}

func TestParseReport_DemographicKeys(t *testing.T) {
	resp := decodeReport(t, `{
		"columnHeaders": [
			{"name": "ageGroup", "columnType": "DIMENSION"},
			{"name": "gender", "columnType": "DIMENSION"},
			{"name": "viewerPercentage", "columnType": "METRIC"}
		],
		"rows": [
			["age18-24", "male", 30.5],
			["age18-24", "female", 20],
			["age25-34", "user_specified", 1.5]
		]
	}`)
	report := catalog.Report{Name: "demographic", Key: "ageGroup", KeyPrefix: []string{"gender"}}
	set, err := ParseReport(resp, report, today)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}

	rec := set["viewer_percentage"]
	want := metric.Values{"M.age18-24": 30.5, "F.age18-24": 20, "U.age25-34": 1.5}
	got := rec[today]
	if len(got) != len(want) {
		t.Fatalf("viewer_percentage[%s] = %v, want %v", today, got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("viewer_percentage[%s][%s] = %v, want %v", today, k, got[k], v)
		}
	}
}

func TestParseReport_SubscriptionKeys(t *testing.T) {
	resp := decodeReport(t, `{
		"columnHeaders": [
			{"name": "subscribedStatus", "columnType": "DIMENSION"},
			{"name": "day", "columnType": "DIMENSION"},
			{"name": "views", "columnType": "METRIC"}
		],
		"rows": [
			["SUBSCRIBED", "2020-10-06", 7],
			["UNSUBSCRIBED", "2020-10-06", 5]
		]
	}`)
	set, err := ParseReport(resp, catalog.Report{Name: "subscription", Key: "subscribedStatus"}, today)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if got, _ := set["views"].Get("2020-10-06.UNSUBSCRIBED"); got != 5.0 {
		t.Fatalf("views UNSUBSCRIBED = %v", got)
	}
}

func TestParseReport_Errors(t *testing.T) {
	withError := decodeReport(t, `{"error": {"code": 403, "status": "PERMISSION_DENIED", "message": "forbidden"}}`)
	if _, err := ParseReport(withError, catalog.Report{Name: "time_based"}, today); err == nil || !strings.Contains(err.Error(), "PERMISSION_DENIED") {
		t.Fatalf("expected the embedded error, got %v", err)
	}

	ragged := decodeReport(t, `{
		"columnHeaders": [{"name": "day", "columnType": "DIMENSION"}, {"name": "views", "columnType": "METRIC"}],
		"rows": [["2020-10-06"]]
	}`)
	if _, err := ParseReport(ragged, catalog.Report{Name: "time_based"}, today); err == nil {
		t.Fatal("expected an error for a short row")
	}

	if _, err := ParseReport(nil, catalog.Report{Name: "time_based"}, today); err == nil {
		t.Fatal("expected an error for a nil response")
	}
}

func TestCombine(t *testing.T) {
	timeBased := metric.Set{"shares": {"2020-10-06": {metric.TotalKey: 4}}}
	sharing := metric.Set{"shares": {today: {"WHATS_APP": 3, "FACEBOOK": 1}}}
	subscription := metric.Set{"views": {"2020-10-06": {"SUBSCRIBED": 2}}}

	out := Combine(timeBased, subscription, sharing)
	if got, _ := out["shares"].Get("2020-10-06.TOTAL"); got != 4.0 {
		t.Fatalf("shares TOTAL = %v", got)
	}
	if got, _ := out["shares"].Get(today + ".WHATS_APP"); got != 3.0 {
		t.Fatalf("shares WHATS_APP = %v", got)
	}
	if got, _ := out["views"].Get("2020-10-06.SUBSCRIBED"); got != 2.0 {
		t.Fatalf("views SUBSCRIBED = %v", got)
	}
	if len(Combine()) != 0 {
		t.Fatal("combining nothing must be empty")
	}
}
