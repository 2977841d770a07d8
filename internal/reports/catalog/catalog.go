// Package catalog loads the report and metric definitions the platform
// diggers request and aggregate.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pysugar/creator-insights/internal/metric"
	"github.com/pysugar/creator-insights/internal/platform"
	"gopkg.in/yaml.v3"
)

//go:embed reports.yaml
var defaultReports []byte

type fileConfig struct {
	Platforms map[string]platformConfig `yaml:"platforms"`
}

type platformConfig struct {
	Metrics map[string]string `yaml:"metrics"`
	Reports []ReportConfig    `yaml:"reports"`
}

// ReportConfig is one report entry as written in YAML.
type ReportConfig struct {
	Name       string   `yaml:"name"`
	Dimensions []string `yaml:"dimensions"`
	Key        string   `yaml:"key"`
	KeyPrefix  []string `yaml:"key_prefix"`
	Metrics    []string `yaml:"metrics"`
	Sort       string   `yaml:"sort"`
	Period     string   `yaml:"period"`
	Snapshot   bool     `yaml:"snapshot"`
}

// Report is a validated report definition.
type Report struct {
	Name       string
	Dimensions []string
	Key        string
	KeyPrefix  []string
	Metrics    []string
	Sort       string
	Period     string
	Snapshot   bool
}

// Daily reports whether the report breaks its rows down by day. Reports
// that do not return one aggregate over the whole requested range.
func (r Report) Daily() bool {
	return slices.Contains(r.Dimensions, "day")
}

// MetricNames returns the report metrics in stored (snake_case) form.
func (r Report) MetricNames() []metric.Name {
	names := make([]metric.Name, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		names = append(names, metric.Name(metric.SnakeCase(m)))
	}
	return names
}

// Platform holds the definitions for one platform.
type Platform struct {
	Rules   metric.Rules
	Reports []Report
}

// Report looks up a report by name.
func (p Platform) Report(name string) (Report, bool) {
	for _, r := range p.Reports {
		if r.Name == name {
			return r, true
		}
	}
	return Report{}, false
}

// Metrics returns the tracked metric names sorted.
func (p Platform) Metrics() []metric.Name {
	names := make([]metric.Name, 0, len(p.Rules))
	for name := range p.Rules {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Catalog is the loaded set of platform definitions.
type Catalog struct {
	platforms map[platform.Platform]Platform
}

// Default returns the catalog built from the embedded reports.yaml.
func Default() (*Catalog, error) {
	return Parse(defaultReports)
}

// Load reads the catalog from path. An empty path falls back to
// DIGGER_REPORTS_FILE, then to the well known locations, then to the
// embedded defaults.
func Load(path string) (*Catalog, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		return Default()
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports file %q: %w", resolved, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reports file %q: %w", resolved, err)
	}
	return c, nil
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Platforms) == 0 {
		return nil, fmt.Errorf("no platforms defined")
	}

	c := &Catalog{platforms: make(map[platform.Platform]Platform, len(cfg.Platforms))}
	for rawID, pc := range cfg.Platforms {
		id, err := platform.Parse(rawID)
		if err != nil {
			return nil, err
		}
		p, err := normalizePlatform(pc)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", id, err)
		}
		c.platforms[id] = p
	}
	return c, nil
}

// Platform returns the definitions for p.
func (c *Catalog) Platform(p platform.Platform) (Platform, bool) {
	def, ok := c.platforms[p]
	return def, ok
}

// Rules returns the aggregation rules for p, or nil when p is unknown.
func (c *Catalog) Rules(p platform.Platform) metric.Rules {
	return c.platforms[p].Rules
}

func normalizePlatform(pc platformConfig) (Platform, error) {
	rules := make(metric.Rules, len(pc.Metrics))
	for name, raw := range pc.Metrics {
		agg, err := metric.ParseAggregation(raw)
		if err != nil {
			return Platform{}, fmt.Errorf("metric %s: %w", name, err)
		}
		rules[metric.Name(strings.TrimSpace(name))] = agg
	}

	reports := make([]Report, 0, len(pc.Reports))
	seen := make(map[string]struct{}, len(pc.Reports))
	for _, rc := range pc.Reports {
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			return Platform{}, fmt.Errorf("report without a name")
		}
		if _, dup := seen[name]; dup {
			return Platform{}, fmt.Errorf("duplicate report %q", name)
		}
		seen[name] = struct{}{}
		metrics := trimAll(rc.Metrics)
		if len(metrics) == 0 {
			return Platform{}, fmt.Errorf("report %q has no metrics", name)
		}
		reports = append(reports, Report{
			Name:       name,
			Dimensions: trimAll(rc.Dimensions),
			Key:        strings.TrimSpace(rc.Key),
			KeyPrefix:  trimAll(rc.KeyPrefix),
			Metrics:    metrics,
			Sort:       strings.TrimSpace(rc.Sort),
			Period:     strings.TrimSpace(rc.Period),
			Snapshot:   rc.Snapshot,
		})
	}
	return Platform{Rules: rules, Reports: reports}, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func resolvePath(explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("DIGGER_REPORTS_FILE"))
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/reports.yaml",
		"/etc/digger/reports.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "digger", "reports.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}
