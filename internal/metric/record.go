// Package metric holds the day and dimension keyed value maps every tracked
// platform metric is stored as.
package metric

import (
	"sort"
	"strings"
	"time"
)

const (
	// TotalKey is the compound key used when a row carries no key dimension.
	TotalKey = "TOTAL"

	// DayLayout is the format of the day keys of a Record.
	DayLayout = "2006-01-02"

	keySeparator = "."
)

// Day formats t as a Record day key.
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// NextDay returns the day after day, or "" when day is not a DayLayout day.
func NextDay(day string) string {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return ""
	}
	return Day(t.AddDate(0, 0, 1))
}

// Values maps a compound dimension key to a number.
type Values map[string]float64

// Record maps a day to the values recorded for it.
//
// The zero value is an empty record and is safe to read, but must be
// allocated before Add.
type Record map[string]Values

// JoinKey builds a compound key from dimension values. Empty values are
// skipped and no values at all yields TotalKey.
func JoinKey(dims ...string) string {
	parts := make([]string, 0, len(dims))
	for _, d := range dims {
		if d == "" {
			continue
		}
		parts = append(parts, d)
	}
	if len(parts) == 0 {
		return TotalKey
	}
	return strings.Join(parts, keySeparator)
}

// Add sets the value for day and the compound key formed by dims,
// overwriting any previous value for that exact key.
func (r Record) Add(day string, value float64, dims ...string) {
	key := JoinKey(dims...)
	values, ok := r[day]
	if !ok {
		values = Values{}
		r[day] = values
	}
	values[key] = value
}

// Merge adds every value of other into r, summing values that share a day
// and key.
func (r Record) Merge(other Record) {
	for day, values := range other {
		dst, ok := r[day]
		if !ok {
			dst = make(Values, len(values))
			r[day] = dst
		}
		dst.Merge(values)
	}
}

// Overlay copies every value of other into r, replacing values that share a
// day and key. Re-fetching a day that was already stored uses this.
func (r Record) Overlay(other Record) {
	for day, values := range other {
		dst, ok := r[day]
		if !ok {
			dst = make(Values, len(values))
			r[day] = dst
		}
		for key, v := range values {
			dst[key] = v
		}
	}
}

// Get looks up a dot separated path. "day" returns that day's Values and
// "day.key" returns the number stored under key. Compound keys may contain
// dots themselves, so everything after the day is treated as one key.
func (r Record) Get(path string) (any, bool) {
	day, key, hasKey := strings.Cut(path, keySeparator)
	values, ok := r[day]
	if !ok {
		return nil, false
	}
	if !hasKey {
		return values, true
	}
	v, ok := values[key]
	if !ok {
		return nil, false
	}
	return v, true
}

// Contains reports whether Get would find path.
func (r Record) Contains(path string) bool {
	_, ok := r.Get(path)
	return ok
}

// Days returns the day keys in ascending order.
func (r Record) Days() []string {
	days := make([]string, 0, len(r))
	for day := range r {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// From returns the days of r on or after day. Values are shared, not copied.
func (r Record) From(day string) Record {
	out := make(Record, len(r))
	for d, values := range r {
		if d >= day {
			out[d] = values
		}
	}
	return out
}

// Latest returns a copy of the values of the most recent day.
func (r Record) Latest() (Values, bool) {
	days := r.Days()
	if len(days) == 0 {
		return nil, false
	}
	return r[days[len(days)-1]].Clone(), true
}

// Sum merges the values of all days into one Values.
func (r Record) Sum() Values {
	total := Values{}
	for _, values := range r {
		total.Merge(values)
	}
	return total
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for day, values := range r {
		out[day] = values.Clone()
	}
	return out
}

// Merge adds other into v, summing shared keys.
func (v Values) Merge(other Values) {
	for key, n := range other {
		v[key] += n
	}
}

// Subtract returns v minus base for every key of v. Keys only present in
// base are dropped. It turns a lifetime snapshot into a per-period delta.
func (v Values) Subtract(base Values) Values {
	out := make(Values, len(v))
	for key, n := range v {
		out[key] = n - base[key]
	}
	return out
}

// Clone returns a copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for key, n := range v {
		out[key] = n
	}
	return out
}

// Total returns the value under TotalKey, or zero.
func (v Values) Total() float64 {
	return v[TotalKey]
}

// MergeValues sums any number of Values into a new one.
func MergeValues(all ...Values) Values {
	out := Values{}
	for _, v := range all {
		out.Merge(v)
	}
	return out
}

// Ratio divides num by den and returns 0 when den is zero.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
