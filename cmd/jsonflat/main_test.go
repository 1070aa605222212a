package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"jsonflat/internal/config"
	"jsonflat/internal/logging"
	"jsonflat/internal/metrics/datadog"
	"jsonflat/internal/trigger"
)

// fakeRunner records the pipeline it was asked to run.
type fakeRunner struct {
	err     error
	calls   atomic.Int64
	lastCfg config.Pipeline
}

func (r *fakeRunner) Run(_ context.Context, cfg config.Pipeline) error {
	r.calls.Add(1)
	r.lastCfg = cfg
	return r.err
}

type fakeMetricsBackend struct {
	closeErr error
	closed   atomic.Int64
}

func (b *fakeMetricsBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

// validPipeline is what the fake unmarshal produces unless a test changes it.
func validPipeline() config.Pipeline {
	return config.Pipeline{
		Job:     "job1",
		Source:  config.SourceConfig{Paths: []string{"in.json"}},
		Storage: config.StorageConfig{Kind: "memory"},
	}
}

// testDeps returns deps whose side effects are all fakes.
func testDeps(fr *fakeRunner, p config.Pipeline) appDeps {
	return appDeps{
		readFile: func(string) ([]byte, error) { return []byte(`{}`), nil },
		unmarshal: func(_ config.Format, _ []byte, v any) error {
			*(v.(*config.Pipeline)) = p
			return nil
		},
		newRunner:   func(logging.Printfer) runner { return fr },
		initMetrics: func(context.Context, string, string, config.MetricsConfig) (func(), error) { return func() {}, nil },
		schedule: func(ctx context.Context, _ string, fn trigger.RunFunc, _ trigger.Options) error {
			return fn(ctx)
		},
		watch: func(ctx context.Context, _ string, fn trigger.RunFunc, _ trigger.Options) error {
			return fn(ctx)
		},
	}
}

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		args []string
		want string
	}{
		{nil, "usage: jsonflat -config"},
		{[]string{"-config", "   "}, "usage: jsonflat -config"},
		{[]string{"-nope"}, "flag provided but not defined"},
	} {
		var stdout, stderr bytes.Buffer
		deps := testDeps(&fakeRunner{}, validPipeline())
		deps.readFile = func(string) ([]byte, error) {
			t.Fatalf("args %q: config read on a usage error", tc.args)
			return nil, nil
		}

		if code := runMain(context.Background(), tc.args, &stdout, &stderr, deps); code != 2 {
			t.Fatalf("args %q: exit code=%d, want 2; stderr=%q", tc.args, code, stderr.String())
		}
		if !strings.Contains(stderr.String(), tc.want) {
			t.Fatalf("args %q: stderr=%q, want contains %q", tc.args, stderr.String(), tc.want)
		}
		if stdout.Len() != 0 {
			t.Fatalf("args %q: stdout=%q, want empty", tc.args, stdout.String())
		}
	}
}

func TestRunMain_ReadParseMetricsRun_FullFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		readErr          error
		unmarshalErr     error
		initMetricsErr   error
		runErr           error
		wantCode         int
		wantStderrSub    string
		wantStdout       string
		wantRunnerCalls  int64
		wantCleanupCalls int64
	}{
		{name: "read_config_error", readErr: errors.New("no such file"), wantCode: 1, wantStderrSub: "read config:"},
		{name: "parse_config_error", unmarshalErr: errors.New("bad json"), wantCode: 1, wantStderrSub: "parse config:"},
		{name: "init_metrics_error", initMetricsErr: errors.New("metrics unavailable"), wantCode: 1, wantStderrSub: "init metrics:"},
		{
			name:             "runner_error_runs_cleanup",
			runErr:           errors.New("db failed"),
			wantCode:         1,
			wantStderrSub:    "run:",
			wantRunnerCalls:  1,
			wantCleanupCalls: 1,
		},
		{
			name:             "success",
			wantStdout:       "ok\n",
			wantRunnerCalls:  1,
			wantCleanupCalls: 1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			fr := &fakeRunner{err: tc.runErr}
			var cleanupCalls atomic.Int64

			deps := testDeps(fr, validPipeline())
			deps.readFile = func(path string) ([]byte, error) {
				if path != "cfg.yaml" {
					t.Fatalf("readFile path=%q, want %q", path, "cfg.yaml")
				}
				if tc.readErr != nil {
					return nil, tc.readErr
				}
				return []byte("job: job1\n"), nil
			}
			deps.unmarshal = func(format config.Format, _ []byte, v any) error {
				if format != config.FormatYAML {
					t.Fatalf("format=%q, want %q", format, config.FormatYAML)
				}
				if tc.unmarshalErr != nil {
					return tc.unmarshalErr
				}
				*(v.(*config.Pipeline)) = validPipeline()
				return nil
			}
			deps.initMetrics = func(_ context.Context, jobName, backendName string, _ config.MetricsConfig) (func(), error) {
				if jobName != "job1" {
					t.Fatalf("jobName=%q, want %q", jobName, "job1")
				}
				if backendName != "none" {
					t.Fatalf("backendName=%q, want %q", backendName, "none")
				}
				if tc.initMetricsErr != nil {
					return func() {}, tc.initMetricsErr
				}
				return func() { cleanupCalls.Add(1) }, nil
			}

			code := runMain(context.Background(),
				[]string{"-config", "cfg.yaml", "-metrics-backend", "none"},
				&stdout, &stderr, deps)

			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if tc.wantStderrSub != "" && !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if tc.wantStdout != "" {
				if got := stdout.String(); got != tc.wantStdout {
					t.Fatalf("stdout=%q, want %q", got, tc.wantStdout)
				}
			} else if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
			if got := fr.calls.Load(); got != tc.wantRunnerCalls {
				t.Fatalf("runner calls=%d, want %d", got, tc.wantRunnerCalls)
			}
			if got := cleanupCalls.Load(); got != tc.wantCleanupCalls {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanupCalls)
			}
		})
	}
}

func TestRunMain_ValidateOnly(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	fr := &fakeRunner{}
	deps := testDeps(fr, validPipeline())
	deps.initMetrics = func(context.Context, string, string, config.MetricsConfig) (func(), error) {
		t.Fatalf("initMetrics must not be called with -validate")
		return func() {}, nil
	}

	code := runMain(context.Background(), []string{"-config", "cfg.json", "-validate"}, &stdout, &stderr, deps)
	if code != 0 {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}
	if stdout.String() != "ok\n" {
		t.Fatalf("stdout=%q, want %q", stdout.String(), "ok\n")
	}
	if fr.calls.Load() != 0 {
		t.Fatalf("runner calls=%d, want 0", fr.calls.Load())
	}
}

func TestRunMain_InvalidConfigListsIssues(t *testing.T) {
	t.Parallel()

	p := validPipeline()
	p.Storage.Kind = ""
	p.Parser.IDs = "serial"

	var stdout, stderr bytes.Buffer
	fr := &fakeRunner{}
	code := runMain(context.Background(), []string{"-config", "cfg.json"}, &stdout, &stderr, testDeps(fr, p))

	if code != 1 {
		t.Fatalf("exit code=%d, want 1", code)
	}
	for _, want := range []string{"error: storage.kind: must be set", "error: parser.ids:", "invalid config: cfg.json"} {
		if !strings.Contains(stderr.String(), want) {
			t.Fatalf("stderr=%q, want contains %q", stderr.String(), want)
		}
	}
	if fr.calls.Load() != 0 {
		t.Fatalf("runner calls=%d, want 0", fr.calls.Load())
	}
}

func TestRunMain_BadScheduleFailsValidation(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(),
		[]string{"-config", "cfg.json", "-schedule", "every tuesday", "-validate"},
		&stdout, &stderr, testDeps(&fakeRunner{}, validPipeline()))

	if code != 1 {
		t.Fatalf("exit code=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "trigger.schedule") {
		t.Fatalf("stderr=%q, want contains %q", stderr.String(), "trigger.schedule")
	}
}

func TestRunMain_TriggersAndOverrides(t *testing.T) {
	t.Parallel()

	t.Run("schedule_flag", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		fr := &fakeRunner{}
		var gotExpr string
		deps := testDeps(fr, validPipeline())
		deps.schedule = func(ctx context.Context, expr string, fn trigger.RunFunc, _ trigger.Options) error {
			gotExpr = expr
			if err := fn(ctx); err != nil {
				return err
			}
			return context.Canceled
		}

		code := runMain(context.Background(), []string{"-config", "cfg.json", "-schedule", "@hourly", "-v"}, &stdout, &stderr, deps)
		if code != 0 {
			t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
		}
		if gotExpr != "@hourly" {
			t.Fatalf("schedule expr=%q, want %q", gotExpr, "@hourly")
		}
		if fr.lastCfg.Parser.LogLevel != "debug" {
			t.Fatalf("log level=%q, want debug", fr.lastCfg.Parser.LogLevel)
		}
		if fr.lastCfg.Trigger.Schedule != "@hourly" {
			t.Fatalf("trigger.schedule=%q, want %q", fr.lastCfg.Trigger.Schedule, "@hourly")
		}
	})

	t.Run("watch_defaults_glob", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		fr := &fakeRunner{}
		p := validPipeline()
		p.Source.Paths = nil
		var gotDir string
		deps := testDeps(fr, p)
		deps.watch = func(ctx context.Context, dir string, fn trigger.RunFunc, opts trigger.Options) error {
			gotDir = dir
			if opts.Logger == nil {
				t.Fatalf("watch logger=nil, want non-nil")
			}
			return fn(ctx)
		}

		code := runMain(context.Background(), []string{"-config", "cfg.json", "-watch", "incoming"}, &stdout, &stderr, deps)
		if code != 0 {
			t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
		}
		if gotDir != "incoming" {
			t.Fatalf("watch dir=%q, want %q", gotDir, "incoming")
		}
		if fr.lastCfg.Source.Glob != "incoming/*.json*" {
			t.Fatalf("source.glob=%q, want %q", fr.lastCfg.Source.Glob, "incoming/*.json*")
		}
	})
}

func TestInitMetrics_None_DoesNotMutateGlobalState(t *testing.T) {
	oldSet := setMetricsBackend
	defer func() { setMetricsBackend = oldSet }()
	setMetricsBackend = func(any) {
		t.Fatalf("setMetricsBackend must not be called for none/noop")
	}

	for _, name := range []string{"", "none", "noop"} {
		cleanup, err := initMetrics(context.Background(), "job", name, config.MetricsConfig{})
		if err != nil {
			t.Fatalf("initMetrics(%q) err=%v, want nil", name, err)
		}
		if cleanup == nil {
			t.Fatalf("cleanup=nil, want non-nil")
		}
		cleanup()
	}
}

func TestInitMetrics_Datadog_WiresBackendAndCloses(t *testing.T) {
	b := &fakeMetricsBackend{}
	var (
		newCalls atomic.Int64
		setCalls atomic.Int64
		gotOpts  datadog.Options
	)

	oldNew, oldSet, oldLog := newDatadogBackend, setMetricsBackend, logPrintf
	defer func() {
		newDatadogBackend, setMetricsBackend, logPrintf = oldNew, oldSet, oldLog
	}()
	t.Setenv("METRICS_TAGS", "team:data")

	newDatadogBackend = func(_ context.Context, opts datadog.Options) (metricsBackend, error) {
		newCalls.Add(1)
		gotOpts = opts
		return b, nil
	}
	setMetricsBackend = func(any) { setCalls.Add(1) }
	var logged bytes.Buffer
	logPrintf = func(format string, v ...any) { fmt.Fprintf(&logged, format, v...) }

	cleanup, err := initMetrics(context.Background(), "", "datadog", config.MetricsConfig{
		Tags:       []string{"env:test"},
		FlushEvery: "10s",
	})
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	if gotOpts.JobName != "jsonflat" {
		t.Fatalf("JobName=%q, want %q", gotOpts.JobName, "jsonflat")
	}
	if strings.Join(gotOpts.Tags, ",") != "env:test,team:data" {
		t.Fatalf("Tags=%v, want [env:test team:data]", gotOpts.Tags)
	}
	if gotOpts.FlushEvery.String() != "10s" {
		t.Fatalf("FlushEvery=%v, want 10s", gotOpts.FlushEvery)
	}
	if newCalls.Load() != 1 || setCalls.Load() != 1 {
		t.Fatalf("new calls=%d set calls=%d, want 1 and 1", newCalls.Load(), setCalls.Load())
	}

	cleanup()
	if b.closed.Load() != 1 {
		t.Fatalf("backend closed=%d, want 1", b.closed.Load())
	}
	if logged.Len() != 0 {
		t.Fatalf("unexpected log output: %q", logged.String())
	}
}

func TestInitMetrics_Datadog_CloseErrorIsLogged(t *testing.T) {
	b := &fakeMetricsBackend{closeErr: errors.New("flush failed")}

	oldNew, oldSet, oldLog := newDatadogBackend, setMetricsBackend, logPrintf
	defer func() {
		newDatadogBackend, setMetricsBackend, logPrintf = oldNew, oldSet, oldLog
	}()
	newDatadogBackend = func(context.Context, datadog.Options) (metricsBackend, error) { return b, nil }
	setMetricsBackend = func(any) {}
	var logged bytes.Buffer
	logPrintf = func(format string, v ...any) { fmt.Fprintf(&logged, format, v...) }

	cleanup, err := initMetrics(context.Background(), "job", "dd", config.MetricsConfig{})
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	cleanup()

	if !strings.Contains(logged.String(), "metrics: datadog close error") {
		t.Fatalf("log=%q, want contains close error prefix", logged.String())
	}
	if !strings.Contains(logged.String(), "flush failed") {
		t.Fatalf("log=%q, want contains underlying error", logged.String())
	}
}

func TestInitMetrics_UnknownBackendErrors(t *testing.T) {
	t.Parallel()

	cleanup, err := initMetrics(context.Background(), "job", "nope", config.MetricsConfig{})
	if err == nil {
		t.Fatalf("initMetrics err=nil, want error")
	}
	if cleanup == nil {
		t.Fatalf("cleanup=nil, want non-nil")
	}
	cleanup()
	if !strings.Contains(err.Error(), "unknown metrics backend") || !strings.Contains(err.Error(), "none|datadog") {
		t.Fatalf("err=%q, want unknown backend message", err.Error())
	}
}
