package insights

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pysugar/creator-insights/internal/metric"
)

func TestBuildTable(t *testing.T) {
	r := Rollup{
		Metrics: metric.Set{
			"views": {
				"2020-10-08": {"TOTAL": 5},
				"2020-10-07": {"TOTAL": 10},
			},
			"viewer_percentage": {
				"2020-10-07": {"M.age18-24": 40},
			},
		},
		Totals:      metric.Totals{"views": {"TOTAL": 15}, "viewer_percentage": {"M.age18-24": 40}},
		GrandTotals: metric.Totals{"views": {"TOTAL": 115}},
	}

	table := BuildTable(r)

	wantCols := []string{"day", "VIEWER_PERCENTAGE_M.age18-24", "VIEWS_TOTAL"}
	if strings.Join(table.Columns, ",") != strings.Join(wantCols, ",") {
		t.Fatalf("columns = %v, want %v", table.Columns, wantCols)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(table.Rows))
	}
	first := table.Rows[0]
	if first[0] != "2020-10-07" || first[1] != 40.0 || first[2] != 10.0 {
		t.Fatalf("unexpected first row %v", first)
	}
	second := table.Rows[1]
	if second[0] != "2020-10-08" || second[1] != 0.0 || second[2] != 5.0 {
		t.Fatalf("unexpected second row %v", second)
	}
	if table.Totals["VIEWS_TOTAL"] != 15 || table.GrandTotals["VIEWS_TOTAL"] != 115 {
		t.Fatalf("unexpected totals %v / %v", table.Totals, table.GrandTotals)
	}
}

func TestBuildTable_JSONShape(t *testing.T) {
	data, err := json.Marshal(BuildTable(Rollup{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"columns":["day"],"rows":[],"totals":{},"grand_totals":{}}`
	if string(data) != want {
		t.Fatalf("json = %s, want %s", data, want)
	}
}
