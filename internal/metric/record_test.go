package metric

import (
	"testing"
	"time"
)

func TestRecordAdd_Overwrites(t *testing.T) {
	rec := Record{}
	rec.Add("2020-10-07", 5)
	rec.Add("2020-10-07", 7)
	rec.Add("2020-10-07", 3, "SUBSCRIBED")

	if got := rec["2020-10-07"][TotalKey]; got != 7 {
		t.Fatalf("expected TOTAL=7, got %v", got)
	}
	if got := rec["2020-10-07"]["SUBSCRIBED"]; got != 3 {
		t.Fatalf("expected SUBSCRIBED=3, got %v", got)
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		dims []string
		want string
	}{
		{dims: nil, want: TotalKey},
		{dims: []string{""}, want: TotalKey},
		{dims: []string{"M", "age18-24"}, want: "M.age18-24"},
		{dims: []string{"", "SUBSCRIBED"}, want: "SUBSCRIBED"},
	}
	for _, tt := range tests {
		if got := JoinKey(tt.dims...); got != tt.want {
			t.Fatalf("JoinKey(%v) = %q, want %q", tt.dims, got, tt.want)
		}
	}
}

func TestRecordMerge_SumsSharedAndUnionsRest(t *testing.T) {
	a := Record{
		"2020-10-07": {"TOTAL": 10, "SUBSCRIBED": 4},
		"2020-10-08": {"TOTAL": 1},
	}
	b := Record{
		"2020-10-07": {"TOTAL": 5, "UNSUBSCRIBED": 2},
		"2020-10-09": {"TOTAL": 9},
	}

	a.Merge(b)

	want := Record{
		"2020-10-07": {"TOTAL": 15, "SUBSCRIBED": 4, "UNSUBSCRIBED": 2},
		"2020-10-08": {"TOTAL": 1},
		"2020-10-09": {"TOTAL": 9},
	}
	assertRecordEqual(t, a, want)
}

func TestRecordMerge_EmptyIsIdentity(t *testing.T) {
	full := Record{"2020-10-07": {"TOTAL": 3}}

	left := Record{}
	left.Merge(full)
	assertRecordEqual(t, left, full)

	right := full.Clone()
	right.Merge(Record{})
	assertRecordEqual(t, right, full)
}

func TestRecordMerge_DoesNotAliasOther(t *testing.T) {
	src := Record{"2020-10-07": {"TOTAL": 3}}
	dst := Record{}
	dst.Merge(src)
	dst["2020-10-07"]["TOTAL"] = 100

	if src["2020-10-07"]["TOTAL"] != 3 {
		t.Fatalf("merge aliased the source values")
	}
}

func TestRecordOverlay_Replaces(t *testing.T) {
	rec := Record{"2020-10-07": {"TOTAL": 10, "SUBSCRIBED": 4}}
	rec.Overlay(Record{"2020-10-07": {"TOTAL": 12}, "2020-10-08": {"TOTAL": 1}})

	want := Record{
		"2020-10-07": {"TOTAL": 12, "SUBSCRIBED": 4},
		"2020-10-08": {"TOTAL": 1},
	}
	assertRecordEqual(t, rec, want)
}

func TestRecordGet(t *testing.T) {
	rec := Record{
		"2020-10-07": {"M.age18-24": 0.33, "TOTAL": 9},
	}

	if v, ok := rec.Get("2020-10-07.M.age18-24"); !ok || v.(float64) != 0.33 {
		t.Fatalf("expected 0.33, got %v ok=%v", v, ok)
	}
	if v, ok := rec.Get("2020-10-07"); !ok || len(v.(Values)) != 2 {
		t.Fatalf("expected day sub-map, got %v ok=%v", v, ok)
	}
	if rec.Contains("2020-10-07.F.age18-24") {
		t.Fatal("unexpected key found")
	}
	if rec.Contains("2020-10-08") {
		t.Fatal("unexpected day found")
	}
}

func TestRecordLatestAndSum(t *testing.T) {
	rec := Record{
		"2020-10-09": {"Pune": 3},
		"2020-10-07": {"Pune": 1, "Delhi": 2},
	}

	latest, ok := rec.Latest()
	if !ok || latest["Pune"] != 3 || len(latest) != 1 {
		t.Fatalf("unexpected latest %v", latest)
	}

	sum := rec.Sum()
	if sum["Pune"] != 4 || sum["Delhi"] != 2 {
		t.Fatalf("unexpected sum %v", sum)
	}

	if _, ok := (Record{}).Latest(); ok {
		t.Fatal("empty record has no latest day")
	}
}

func TestValuesSubtract(t *testing.T) {
	got := Values{"Pune": 70, "Delhi": 5}.Subtract(Values{"Pune": 50, "Mumbai": 9})
	if got["Pune"] != 20 || got["Delhi"] != 5 {
		t.Fatalf("unexpected delta %v", got)
	}
	if _, ok := got["Mumbai"]; ok {
		t.Fatal("keys only in the base must be dropped")
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(5, 0); got != 0 {
		t.Fatalf("expected zero guard, got %v", got)
	}
	if got := Ratio(1, 4); got != 0.25 {
		t.Fatalf("expected 0.25, got %v", got)
	}
}

func TestDay(t *testing.T) {
	ts := time.Date(2021, 11, 20, 23, 30, 0, 0, time.UTC)
	if got := Day(ts); got != "2021-11-20" {
		t.Fatalf("unexpected day %q", got)
	}
}

func TestNextDay(t *testing.T) {
	if got := NextDay("2020-12-31"); got != "2021-01-01" {
		t.Fatalf("NextDay = %q", got)
	}
	if got := NextDay("yesterday"); got != "" {
		t.Fatalf("NextDay(invalid) = %q, want empty", got)
	}
}

func TestRecordFrom(t *testing.T) {
	r := Record{
		"2020-10-05": {TotalKey: 1},
		"2020-10-06": {TotalKey: 2},
		"2020-10-07": {TotalKey: 3},
	}
	assertRecordEqual(t, r.From("2020-10-06"), Record{
		"2020-10-06": {TotalKey: 2},
		"2020-10-07": {TotalKey: 3},
	})
	if len(r) != 3 {
		t.Fatal("From must not modify the receiver")
	}
}

func assertRecordEqual(t *testing.T, got, want Record) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d days, got %d: %v", len(want), len(got), got)
	}
	for day, values := range want {
		g, ok := got[day]
		if !ok {
			t.Fatalf("missing day %s in %v", day, got)
		}
		if len(g) != len(values) {
			t.Fatalf("day %s: expected %v, got %v", day, values, g)
		}
		for key, v := range values {
			if g[key] != v {
				t.Fatalf("day %s key %s: expected %v, got %v", day, key, v, g[key])
			}
		}
	}
}
