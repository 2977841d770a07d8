package insights

import (
	"sort"

	"github.com/pysugar/creator-insights/internal/metric"
)

// Rollup is the combination of a set of documents.
type Rollup struct {
	Metrics     metric.Set
	Totals      metric.Totals
	GrandTotals metric.Totals
}

// GetTotalPlatformMetric combines docs, typically every handle of an
// account on one platform, into one Rollup.
//
// Per-day records are merged across every document. Each handle then
// contributes once to the totals: summed metrics add up the totals of all
// its windows, latest metrics take its newest window. Grand totals already
// carry earlier windows, so only each handle's newest window counts there.
func GetTotalPlatformMetric(docs []*Document) Rollup {
	out := Rollup{
		Metrics:     metric.Set{},
		Totals:      metric.Totals{},
		GrandTotals: metric.Totals{},
	}

	byHandle := make(map[string][]*Document)
	var order []string
	for _, doc := range docs {
		if _, seen := byHandle[doc.HandleID]; !seen {
			order = append(order, doc.HandleID)
		}
		byHandle[doc.HandleID] = append(byHandle[doc.HandleID], doc)
	}

	for _, handleID := range order {
		windows := byHandle[handleID]
		sort.SliceStable(windows, func(i, j int) bool {
			return windows[i].CreatedOn.Before(windows[j].CreatedOn)
		})
		newest := windows[len(windows)-1]

		totals := metric.Totals{}
		for _, doc := range windows {
			out.Metrics.Merge(doc.Metrics)
			for name, values := range doc.Totals {
				if doc.rules.Of(name) == metric.Latest {
					continue
				}
				totals.Merge(metric.Totals{name: values})
			}
		}
		for name, values := range newest.Totals {
			if newest.rules.Of(name) == metric.Latest {
				totals[name] = values.Clone()
			}
		}
		out.Totals.Merge(totals)
		out.GrandTotals.Merge(newest.GrandTotals())
	}
	return out
}
