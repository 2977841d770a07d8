package insights

import (
	"sort"
	"strings"

	"github.com/pysugar/creator-insights/internal/metric"
)

// DayColumn is the first column of every table.
const DayColumn = "day"

// Table is the tabular form of a Rollup. Each row is a day followed by one
// value per column.
type Table struct {
	Columns     []string           `json:"columns"`
	Rows        [][]any            `json:"rows"`
	Totals      map[string]float64 `json:"totals"`
	GrandTotals map[string]float64 `json:"grand_totals"`
}

// ColumnName names the column of metric name and compound key, e.g.
// VIEWS_TOTAL or AUDIENCE_CITY_Pune.
func ColumnName(name metric.Name, key string) string {
	return strings.ToUpper(string(name)) + "_" + key
}

// BuildTable flattens r into one row per day. Missing cells are zero.
func BuildTable(r Rollup) Table {
	type column struct {
		name metric.Name
		key  string
	}

	keysOf := make(map[metric.Name]map[string]struct{})
	addKey := func(name metric.Name, key string) {
		if keysOf[name] == nil {
			keysOf[name] = make(map[string]struct{})
		}
		keysOf[name][key] = struct{}{}
	}
	days := make(map[string]struct{})
	for name, rec := range r.Metrics {
		for day, values := range rec {
			days[day] = struct{}{}
			for key := range values {
				addKey(name, key)
			}
		}
	}
	for _, totals := range []metric.Totals{r.Totals, r.GrandTotals} {
		for name, values := range totals {
			for key := range values {
				addKey(name, key)
			}
		}
	}

	names := make([]metric.Name, 0, len(keysOf))
	for name := range keysOf {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var cols []column
	for _, name := range names {
		keys := make([]string, 0, len(keysOf[name]))
		for key := range keysOf[name] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			cols = append(cols, column{name: name, key: key})
		}
	}

	t := Table{
		Columns:     make([]string, 0, len(cols)+1),
		Rows:        [][]any{},
		Totals:      make(map[string]float64, len(cols)),
		GrandTotals: make(map[string]float64, len(cols)),
	}
	t.Columns = append(t.Columns, DayColumn)
	for _, c := range cols {
		col := ColumnName(c.name, c.key)
		t.Columns = append(t.Columns, col)
		t.Totals[col] = r.Totals[c.name][c.key]
		t.GrandTotals[col] = r.GrandTotals[c.name][c.key]
	}

	sortedDays := make([]string, 0, len(days))
	for day := range days {
		sortedDays = append(sortedDays, day)
	}
	sort.Strings(sortedDays)
	for _, day := range sortedDays {
		row := make([]any, 0, len(cols)+1)
		row = append(row, day)
		for _, c := range cols {
			row = append(row, r.Metrics[c.name][day][c.key])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
