package insights

import "github.com/pysugar/creator-insights/internal/metric"

// FilterPrivate removes the private metrics from r unless the viewer owns
// the account.
func FilterPrivate(r Rollup, private []string, isOwner bool) Rollup {
	if isOwner || len(private) == 0 {
		return r
	}
	for _, name := range private {
		n := metric.Name(name)
		delete(r.Metrics, n)
		delete(r.Totals, n)
		delete(r.GrandTotals, n)
	}
	return r
}
