// Package youtube reads channel profiles and analytics reports from the
// YouTube Data and Analytics APIs.
package youtube

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/reports/catalog"
)

// Column types of an analytics report.
const (
	ColumnDimension = "DIMENSION"
	ColumnMetric    = "METRIC"
)

// ResponseError is the error object Google APIs embed in a response body.
type ResponseError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("youtube error %d (%s): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("youtube error %d: %s", e.Code, e.Message)
}

// ColumnHeader describes one column of a report.
type ColumnHeader struct {
	Name       string `json:"name"`
	ColumnType string `json:"columnType"`
	DataType   string `json:"dataType"`
}

// ReportResponse is a reports query result.
type ReportResponse struct {
	Kind          string         `json:"kind"`
	ColumnHeaders []ColumnHeader `json:"columnHeaders"`
	Rows          [][]any        `json:"rows"`
	Error         *ResponseError `json:"error,omitempty"`
}

// ParseReport turns the rows of resp into one record per metric column.
//
// Column names are stored in snake_case. The report's key and key prefix
// dimensions form the compound key; rows without a day column are filed
// under today. A response carrying an error yields that error.
func ParseReport(resp *ReportResponse, report catalog.Report, today string) (metric.Set, error) {
	if resp == nil {
		return nil, fmt.Errorf("report %s: empty response", report.Name)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("report %s: %w", report.Name, resp.Error)
	}

	prefix := make([]string, 0, len(report.KeyPrefix))
	for _, p := range report.KeyPrefix {
		prefix = append(prefix, metric.SnakeCase(p))
	}
	key := metric.SnakeCase(report.Key)

	builders := make(map[metric.Name]*metric.Builder)
	for rowIdx, row := range resp.Rows {
		if len(row) != len(resp.ColumnHeaders) {
			return nil, fmt.Errorf("report %s: row %d has %d cells, want %d", report.Name, rowIdx, len(row), len(resp.ColumnHeaders))
		}
		dims := make(map[string]string)
		for i, col := range resp.ColumnHeaders {
			if col.ColumnType == ColumnDimension {
				name := metric.SnakeCase(col.Name)
				dims[name] = dimensionValue(name, row[i])
			}
		}
		for i, col := range resp.ColumnHeaders {
			if col.ColumnType != ColumnMetric {
				continue
			}
			value, err := number(row[i])
			if err != nil {
				return nil, fmt.Errorf("report %s: row %d column %s: %w", report.Name, rowIdx, col.Name, err)
			}
			name := metric.Name(metric.SnakeCase(col.Name))
			b, ok := builders[name]
			if !ok {
				b = metric.NewBuilder(key, prefix, today)
				builders[name] = b
			}
			b.Add(dims, value)
		}
	}

	set := make(metric.Set, len(builders))
	for name, b := range builders {
		set[name] = b.Record()
	}
	return set, nil
}

// Combine merges the per report sets into one set. The reports use
// disjoint keys (TOTAL, subscription status, gender and age group, sharing
// service) so merging is a union.
func Combine(sets ...metric.Set) metric.Set {
	out := metric.Set{}
	for _, s := range sets {
		out.Merge(s)
	}
	return out
}

var genderCodes = map[string]string{
	"male":           "M",
	"female":         "F",
	"user_specified": "U",
}

func dimensionValue(name string, v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		s = fmt.Sprint(t)
	}
	if name == "gender" {
		if code, ok := genderCodes[strings.ToLower(s)]; ok {
			return code
		}
	}
	return s
}

func number(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected value %v", v)
}
