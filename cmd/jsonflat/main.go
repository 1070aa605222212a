// Command jsonflat flattens JSON documents into relational tables.
//
// It loads a pipeline file (JSON or YAML), validates it and runs it once, on
// a cron schedule or whenever files land in a watched directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"jsonflat/internal/config"
	"jsonflat/internal/logging"
	"jsonflat/internal/metrics"
	"jsonflat/internal/metrics/datadog"
	"jsonflat/internal/multitable"
	"jsonflat/internal/trigger"

	// register every sink kind with the storage factory.
	_ "jsonflat/internal/storage/all"
)

const usage = "usage: jsonflat -config <pipeline.json|pipeline.yaml> [-validate] [-schedule expr | -watch dir] [-metrics-backend none|datadog] [-v]"

// runner is the part of *multitable.Runner the CLI needs.
type runner interface {
	Run(ctx context.Context, cfg config.Pipeline) error
}

// metricsBackend is what cleanup needs from a constructed backend.
type metricsBackend interface {
	Close() error
}

// appDeps are the side effects runMain performs. Tests replace them.
type appDeps struct {
	readFile    func(path string) ([]byte, error)
	unmarshal   func(format config.Format, data []byte, v any) error
	newRunner   func(out logging.Printfer) runner
	initMetrics func(ctx context.Context, jobName, backendName string, mc config.MetricsConfig) (func(), error)
	schedule    func(ctx context.Context, expr string, fn trigger.RunFunc, opts trigger.Options) error
	watch       func(ctx context.Context, dir string, fn trigger.RunFunc, opts trigger.Options) error
}

func defaultDeps() appDeps {
	return appDeps{
		readFile:  os.ReadFile,
		unmarshal: config.Unmarshal,
		newRunner: func(out logging.Printfer) runner {
			return multitable.NewDefaultRunner(out)
		},
		initMetrics: initMetrics,
		schedule:    trigger.Schedule,
		watch:       trigger.Watch,
	}
}

// Seams for initMetrics.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain is main without process globals. It returns the exit code:
// 0 on success, 1 on config or run failures and 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("jsonflat", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath  string
		backend  string
		schedule string
		watchDir string
		validate bool
		verbose  bool
	)
	fs.StringVar(&cfgPath, "config", "", "pipeline config path (.json, .yaml or .yml)")
	fs.StringVar(&backend, "metrics-backend", "", "metrics backend (none|datadog); overrides metrics.backend and env METRICS_BACKEND")
	fs.StringVar(&schedule, "schedule", "", "cron expression; overrides trigger.schedule")
	fs.StringVar(&watchDir, "watch", "", "directory to watch; overrides trigger.watch")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&verbose, "v", false, "enable debug logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(cfgPath) == "" {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	raw, err := deps.readFile(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}
	var p config.Pipeline
	if err := deps.unmarshal(config.FormatOf(cfgPath), raw, &p); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)
		return 1
	}

	if schedule != "" {
		p.Trigger.Schedule = schedule
	}
	if watchDir != "" {
		p.Trigger.Watch = watchDir
	}
	if verbose {
		p.Parser.LogLevel = "debug"
	}
	if p.Trigger.Watch != "" && len(p.Source.Paths) == 0 && p.Source.Glob == "" {
		p.Source.Glob = filepath.Join(p.Trigger.Watch, "*.json*")
	}

	issues := validatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "invalid config: %s\n", cfgPath)
		return 1
	}
	if validate {
		fmt.Fprintln(stdout, "ok")
		return 0
	}

	if backend == "" {
		backend = p.Metrics.Backend
	}
	if backend == "" {
		backend = os.Getenv("METRICS_BACKEND")
	}
	cleanup, err := deps.initMetrics(ctx, p.Job, backend, p.Metrics)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	out := log.New(stderr, "", log.LstdFlags)
	r := deps.newRunner(out)
	run := func(ctx context.Context) error { return r.Run(ctx, p) }
	level, _ := logging.ParseLevel(p.Parser.LogLevel)
	topts := trigger.Options{
		Logger:   logging.New(out, level),
		Debounce: p.Trigger.DebounceInterval(),
	}

	switch {
	case p.Trigger.Schedule != "":
		err = deps.schedule(ctx, p.Trigger.Schedule, run, topts)
	case p.Trigger.Watch != "":
		err = deps.watch(ctx, p.Trigger.Watch, run, topts)
	default:
		err = run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

// validatePipeline adds the trigger checks that need the cron parser to
// config.ValidatePipeline.
func validatePipeline(p config.Pipeline) []config.Issue {
	issues := config.ValidatePipeline(p)
	if p.Trigger.Schedule != "" {
		if _, err := trigger.ParseSchedule(p.Trigger.Schedule); err != nil {
			issues = append(issues, config.Issue{Severity: config.SeverityError, Path: "trigger.schedule", Message: err.Error()})
		}
	}
	return issues
}

// initMetrics installs the named backend as the process default and returns
// its cleanup. cleanup is never nil.
func initMetrics(ctx context.Context, jobName, backendName string, mc config.MetricsConfig) (func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return noop, nil
	case "datadog", "dd":
		if jobName == "" {
			jobName = "jsonflat"
		}
		tags := append([]string(nil), mc.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: mc.FlushInterval(),
		})
		if err != nil {
			return noop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil
	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}
