package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jsonflat/internal/compress"
	"jsonflat/internal/ids"
	"jsonflat/internal/logging"
)

// Pipeline is one flattening job: where the JSON comes from, how the engine
// infers structure, and where the tables go.
type Pipeline struct {
	Job     string        `json:"job" yaml:"job"`
	Source  SourceConfig  `json:"source" yaml:"source"`
	Parser  ParserConfig  `json:"parser" yaml:"parser"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Trigger TriggerConfig `json:"trigger" yaml:"trigger"`
}

// SourceConfig lists the input files.
type SourceConfig struct {
	// Kind is "file" (the only supported source).
	Kind string `json:"kind" yaml:"kind"`

	// Paths are explicit input files.
	Paths []string `json:"paths" yaml:"paths"`

	// Glob selects input files in addition to Paths.
	Glob string `json:"glob" yaml:"glob"`

	// Type is the root type path of every record. Defaults to "root".
	Type string `json:"type" yaml:"type"`

	// Envelope names the array field of a root object holding the records.
	// "*" picks the first array field.
	Envelope string `json:"envelope" yaml:"envelope"`

	// BatchSize is the number of records per engine batch.
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// ParserConfig drives structure inference.
type ParserConfig struct {
	// AnalyzeRows is the confidence threshold; -1 analyzes every row.
	// nil keeps the engine default.
	AnalyzeRows *int `json:"analyze_rows" yaml:"analyze_rows"`

	// StructFile seeds the structure map from a previous run.
	StructFile string `json:"struct_file" yaml:"struct_file"`

	// StructOut receives the final structure map.
	StructOut string `json:"struct_out" yaml:"struct_out"`

	// IDs selects the child identifier generator: "uuid" or "sequence".
	IDs string `json:"ids" yaml:"ids"`

	FoldAccents           bool   `json:"fold_accents" yaml:"fold_accents"`
	PreserveZeroValues    bool   `json:"preserve_zero_values" yaml:"preserve_zero_values"`
	TrustInitialStructure bool   `json:"trust_initial_structure" yaml:"trust_initial_structure"`
	LogLevel              string `json:"log_level" yaml:"log_level"`
}

// CacheConfig bounds the deferred batch queue.
type CacheConfig struct {
	SpillAfter int    `json:"spill_after" yaml:"spill_after"`
	Codec      string `json:"codec" yaml:"codec"`
}

// StorageConfig selects the sink.
type StorageConfig struct {
	Kind      string  `json:"kind" yaml:"kind"`
	DSN       string  `json:"dsn" yaml:"dsn"`
	BatchSize int     `json:"batch_size" yaml:"batch_size"`
	Options   Options `json:"options" yaml:"options"`
}

// ExpandedDSN returns DSN with ${VAR} references resolved from the environment.
func (s StorageConfig) ExpandedDSN() string { return os.ExpandEnv(s.DSN) }

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	// Backend is "" / "none" or "datadog".
	Backend    string   `json:"backend" yaml:"backend"`
	Tags       []string `json:"tags" yaml:"tags"`
	FlushEvery string   `json:"flush_every" yaml:"flush_every"`
}

// FlushInterval parses FlushEvery; zero when unset or invalid.
func (m MetricsConfig) FlushInterval() time.Duration { return parseDuration(m.FlushEvery) }

// TriggerConfig re-runs the pipeline on a schedule or on file changes.
type TriggerConfig struct {
	// Schedule is a cron expression (five fields, or descriptors like "@hourly").
	Schedule string `json:"schedule" yaml:"schedule"`

	// Watch is a directory whose create/write events start a run.
	Watch string `json:"watch" yaml:"watch"`

	// Debounce coalesces bursts of watch events. Defaults to one second.
	Debounce string `json:"debounce" yaml:"debounce"`
}

// DebounceInterval parses Debounce; zero when unset or invalid.
func (t TriggerConfig) DebounceInterval() time.Duration { return parseDuration(t.Debounce) }

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Inputs resolves Paths and Glob into the ordered, de-duplicated file list.
func (s SourceConfig) Inputs() ([]string, error) {
	out := make([]string, 0, len(s.Paths))
	seen := map[string]struct{}{}
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range s.Paths {
		add(p)
	}
	if s.Glob != "" {
		matches, err := filepath.Glob(s.Glob)
		if err != nil {
			return nil, fmt.Errorf("source.glob: %w", err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

// TypeName returns Type or "root".
func (s SourceConfig) TypeName() string {
	if s.Type == "" {
		return "root"
	}
	return s.Type
}

// LoadPipeline reads a pipeline file (JSON or YAML by extension).
func LoadPipeline(path string) (Pipeline, error) {
	var p Pipeline
	if err := Load(path, &p); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// ValidatePipeline checks p without touching the filesystem or the network.
//
// Errors make the pipeline unusable. Warnings flag settings that are valid
// but probably not what the author meant.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	errf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(path, format string, args ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		warnf("job", "empty job name; metrics and logs use %q", "jsonflat")
	}

	switch p.Source.Kind {
	case "", "file":
	default:
		errf("source.kind", "unsupported source kind %q", p.Source.Kind)
	}
	if len(p.Source.Paths) == 0 && p.Source.Glob == "" && p.Trigger.Watch == "" {
		errf("source", "no input: set paths, glob or trigger.watch")
	}
	if p.Source.Glob != "" {
		if _, err := filepath.Match(p.Source.Glob, ""); err != nil {
			errf("source.glob", "bad pattern: %v", err)
		}
	}
	if strings.HasPrefix(p.Source.Type, ".") || strings.HasSuffix(p.Source.Type, ".") {
		errf("source.type", "type %q must not start or end with %q", p.Source.Type, ".")
	}
	if p.Source.BatchSize < 0 {
		errf("source.batch_size", "must be >= 0, got %d", p.Source.BatchSize)
	}

	if n := p.Parser.AnalyzeRows; n != nil && *n < -1 {
		errf("parser.analyze_rows", "must be -1 (analyze all) or >= 0, got %d", *n)
	}
	if n := p.Parser.AnalyzeRows; n != nil && *n == -1 && p.Cache.SpillAfter == 0 {
		warnf("parser.analyze_rows", "analyze all keeps every batch in memory until the run ends; consider cache.spill_after")
	}
	if _, ok := ids.ByName(p.Parser.IDs); !ok {
		errf("parser.ids", "unknown generator %q (want uuid or sequence)", p.Parser.IDs)
	}
	if _, ok := logging.ParseLevel(p.Parser.LogLevel); !ok {
		errf("parser.log_level", "unknown level %q", p.Parser.LogLevel)
	}
	if p.Parser.TrustInitialStructure && p.Parser.StructFile == "" {
		warnf("parser.trust_initial_structure", "has no effect without parser.struct_file")
	}

	if p.Cache.SpillAfter < 0 {
		errf("cache.spill_after", "must be >= 0, got %d", p.Cache.SpillAfter)
	}
	if p.Cache.Codec != "" {
		if _, err := compress.ByName(p.Cache.Codec); err != nil {
			errf("cache.codec", "%v", err)
		}
	}

	if p.Storage.Kind == "" {
		errf("storage.kind", "must be set")
	}
	if p.Storage.BatchSize < 0 {
		errf("storage.batch_size", "must be >= 0, got %d", p.Storage.BatchSize)
	}
	switch p.Storage.Kind {
	case "postgres", "mysql", "mssql", "mongo":
		if p.Storage.DSN == "" {
			errf("storage.dsn", "required for %s", p.Storage.Kind)
		}
	}

	switch p.Metrics.Backend {
	case "", "none", "datadog":
	default:
		errf("metrics.backend", "unsupported backend %q", p.Metrics.Backend)
	}
	if p.Metrics.FlushEvery != "" && p.Metrics.FlushInterval() <= 0 {
		errf("metrics.flush_every", "bad duration %q", p.Metrics.FlushEvery)
	}

	if p.Trigger.Debounce != "" && p.Trigger.DebounceInterval() <= 0 {
		errf("trigger.debounce", "bad duration %q", p.Trigger.Debounce)
	}
	if p.Trigger.Schedule != "" && p.Trigger.Watch != "" {
		errf("trigger", "schedule and watch are mutually exclusive")
	}
	return issues
}
