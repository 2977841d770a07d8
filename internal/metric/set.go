package metric

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Name identifies a tracked metric, e.g. "views" or "audience_city".
type Name string

// Metrics derived by the pipeline rather than read from a report.
const (
	FollowerCount      Name = "follower_count"
	MediaCount         Name = "media_count"
	Views              Name = "views"
	Likes              Name = "likes"
	Dislikes           Name = "dislikes"
	Shares             Name = "shares"
	Comments           Name = "comments"
	PositiveEngagement Name = "positive_engagement"
	NegativeEngagement Name = "negative_engagement"
	Engagement         Name = "engagement"
	EngagementRate     Name = "engagement_rate"
)

// SnakeCase converts a camelCase API field name to snake_case by prefixing
// every upper case letter with an underscore.
//
//	estimatedMinutesWatched -> estimated_minutes_watched
//	AnnotateMe              -> _annotate_me
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Set holds one Record per metric.
type Set map[Name]Record

// Merge sums other into s record by record.
func (s Set) Merge(other Set) {
	for name, rec := range other {
		dst, ok := s[name]
		if !ok {
			dst = Record{}
			s[name] = dst
		}
		dst.Merge(rec)
	}
}

// Names returns the metric names in s sorted.
func (s Set) Names() []Name {
	names := make([]Name, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Clone returns a deep copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for name, rec := range s {
		out[name] = rec.Clone()
	}
	return out
}

// Totals holds the collapsed (day-less) values of each metric.
type Totals map[Name]Values

// Merge sums other into t.
func (t Totals) Merge(other Totals) {
	for name, values := range other {
		dst, ok := t[name]
		if !ok {
			dst = Values{}
			t[name] = dst
		}
		dst.Merge(values)
	}
}

// Clone returns a deep copy of t.
func (t Totals) Clone() Totals {
	out := make(Totals, len(t))
	for name, values := range t {
		out[name] = values.Clone()
	}
	return out
}

// Aggregation decides how a Record collapses into its total.
type Aggregation string

const (
	// Sum adds every day together. Counts such as views use it.
	Sum Aggregation = "sum"
	// Latest keeps only the most recent day. Snapshots such as audience
	// breakdowns or media counts use it.
	Latest Aggregation = "latest"
)

// ParseAggregation validates an aggregation name. Empty means Sum.
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(s))) {
	case "", Sum:
		return Sum, nil
	case Latest:
		return Latest, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// Rules maps a metric to its aggregation. Metrics without a rule are summed.
type Rules map[Name]Aggregation

// Of returns the aggregation used for name.
func (r Rules) Of(name Name) Aggregation {
	if agg, ok := r[name]; ok {
		return agg
	}
	return Sum
}

// Total collapses rec according to the rule for name.
func (r Rules) Total(name Name, rec Record) Values {
	if r.Of(name) == Latest {
		if latest, ok := rec.Latest(); ok {
			return latest
		}
		return Values{}
	}
	return rec.Sum()
}

// Builder turns dimension rows into a Record.
//
// The compound key is the Prefix dimension values in order followed by the
// Key dimension value. Rows without the key dimension are filed under
// TotalKey, rows without a day under Today.
type Builder struct {
	Key    string
	Prefix []string
	Today  string

	rec Record
}

// NewBuilder returns a Builder for the given key layout.
func NewBuilder(key string, prefix []string, today string) *Builder {
	return &Builder{Key: key, Prefix: prefix, Today: today, rec: Record{}}
}

// Add files value under the day and compound key found in row.
func (b *Builder) Add(row map[string]string, value float64) {
	day := row["day"]
	if day == "" {
		day = b.Today
	}
	dims := make([]string, 0, len(b.Prefix)+1)
	for _, p := range b.Prefix {
		dims = append(dims, row[p])
	}
	key := ""
	if b.Key != "" {
		key = row[b.Key]
	}
	if key == "" {
		key = TotalKey
	}
	dims = append(dims, key)
	b.rec.Add(day, value, dims...)
}

// Record returns the accumulated record.
func (b *Builder) Record() Record {
	return b.rec
}
