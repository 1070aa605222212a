package multitable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"jsonflat/internal/config"
	"jsonflat/internal/logging"
	"jsonflat/internal/metrics"
	"jsonflat/internal/storage"
	"jsonflat/internal/storage/memory"
	"jsonflat/internal/structure"
)

type fakeLogger struct {
	msgs []string
}

func (l *fakeLogger) Printf(format string, v ...any) {
	l.msgs = append(l.msgs, fmt.Sprintf(format, v...))
}

type runnerHarness struct {
	r         *Runner
	sink      *memory.Sink
	sinkCfg   storage.Config
	sinkCalls int
	out       *fakeLogger
}

func newRunnerHarness() *runnerHarness {
	h := &runnerHarness{sink: memory.New(), out: &fakeLogger{}}
	h.r = NewDefaultRunner(h.out)
	h.r.Metrics = metrics.NewRecorder()
	h.r.NewSink = func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		h.sinkCalls++
		h.sinkCfg = cfg
		return h.sink, nil
	}
	return h
}

func writeInput(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func intPtr(n int) *int { return &n }

func TestRunnerWritesTablesAndStructure(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "orders.json", `{"orders":[{"id":1,"lines":[{"sku":"a"},{"sku":"b"}]},{"id":2,"lines":[]}]}`)
	structOut := filepath.Join(dir, "struct.json")

	h := newRunnerHarness()
	cfg := config.Pipeline{
		Job:     "orders",
		Source:  config.SourceConfig{Paths: []string{in}, Envelope: "orders", Type: "order"},
		Parser:  config.ParserConfig{IDs: "sequence", StructOut: structOut, LogLevel: "debug"},
		Storage: config.StorageConfig{Kind: "memory", DSN: "${JSONFLAT_RUNNER_UNSET}"},
	}
	require.NoError(t, h.r.Run(context.Background(), cfg))

	require.Equal(t, 1, h.sinkCalls)
	require.Equal(t, "memory", h.sinkCfg.Kind)
	require.Empty(t, h.sinkCfg.DSN)
	require.NotNil(t, h.sinkCfg.Temp)

	require.Equal(t, []string{"order", "order_lines"}, h.sink.Names())
	order, _ := h.sink.Table("order")
	require.Equal(t, [][]string{{"1", "order_1"}, {"2", ""}}, order.Records())
	lines, _ := h.sink.Table("order_lines")
	require.Equal(t, [][]string{{"a", "order_1"}, {"b", "order_1"}}, lines.Records())

	m, err := structure.LoadFile(structOut)
	require.NoError(t, err)
	require.Equal(t, []string{"order.lines", "order"}, m.Paths())

	require.NotEmpty(t, h.out.msgs)
	last := h.out.msgs[len(h.out.msgs)-1]
	require.True(t, strings.HasPrefix(last, `level=info msg="run complete"`), last)
	require.Contains(t, last, "rows_written=4")
}

func TestRunnerSeedsFromStructFile(t *testing.T) {
	dir := t.TempDir()
	seed := writeInput(t, dir, "struct.json", `{"root":{"a":"number","b":"string"}}`)
	in := writeInput(t, dir, "in.jsonl", "{\"a\":1}\n{\"a\":2,\"b\":\"x\"}\n")

	h := newRunnerHarness()
	rec := &logging.Recorder{}
	h.r.Logger = rec
	cfg := config.Pipeline{
		Source:  config.SourceConfig{Paths: []string{in}, BatchSize: 1},
		Parser:  config.ParserConfig{StructFile: seed, TrustInitialStructure: true},
		Storage: config.StorageConfig{Kind: "memory"},
	}
	require.NoError(t, h.r.Run(context.Background(), cfg))

	tbl, ok := h.sink.Table("root")
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, tbl.Header())
	require.Equal(t, [][]string{{"1", ""}, {"2", "x"}}, tbl.Records())
	for _, e := range rec.Entries {
		require.NotEqual(t, "analyzing root", e.Msg, "trusted types are never analyzed")
	}
}

func TestRunnerSkipsEmptyInput(t *testing.T) {
	dir := t.TempDir()
	empty := writeInput(t, dir, "a.json", `[]`)
	full := writeInput(t, dir, "b.json", `[{"a":1}]`)

	h := newRunnerHarness()
	rec := &logging.Recorder{}
	h.r.Logger = rec
	cfg := config.Pipeline{
		Source:  config.SourceConfig{Paths: []string{empty, full}},
		Storage: config.StorageConfig{Kind: "memory"},
	}
	require.NoError(t, h.r.Run(context.Background(), cfg))

	warns := rec.Filter(logging.Warning)
	require.Len(t, warns, 1)
	require.Equal(t, "empty data set received for root", warns[0].Msg)
	tbl, _ := h.sink.Table("root")
	require.Equal(t, [][]string{{"1"}}, tbl.Records())
}

func TestRunnerNoInputs(t *testing.T) {
	h := newRunnerHarness()
	cfg := config.Pipeline{
		Source:  config.SourceConfig{Glob: filepath.Join(t.TempDir(), "*.json")},
		Storage: config.StorageConfig{Kind: "memory"},
	}
	require.NoError(t, h.r.Run(context.Background(), cfg))
	require.Zero(t, h.sinkCalls)
}

func TestRunnerRejectsInvalidPipeline(t *testing.T) {
	h := newRunnerHarness()
	err := h.r.Run(context.Background(), config.Pipeline{Source: config.SourceConfig{Paths: []string{"x.json"}}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid pipeline")
	require.Contains(t, err.Error(), "storage.kind")
	require.Zero(t, h.sinkCalls)
}

func TestRunnerSurfacesTypeConflict(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "in.json", `[{"a":1},{"a":"x"}]`)

	h := newRunnerHarness()
	cfg := config.Pipeline{
		Source:  config.SourceConfig{Paths: []string{in}},
		Parser:  config.ParserConfig{AnalyzeRows: intPtr(AnalyzeAll)},
		Storage: config.StorageConfig{Kind: "memory"},
	}
	err := h.r.Run(context.Background(), cfg)

	var tc *structure.TypeConflictError
	require.True(t, errors.As(err, &tc), "got %v", err)
	require.Contains(t, err.Error(), in)
}

func TestRunnerOpenError(t *testing.T) {
	h := newRunnerHarness()
	cfg := config.Pipeline{
		Source:  config.SourceConfig{Paths: []string{filepath.Join(t.TempDir(), "missing.json")}},
		Storage: config.StorageConfig{Kind: "memory"},
	}
	err := h.r.Run(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "open input")
}

func TestRunnerRecordsStepDuration(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "in.json", `[{"a":1}]`)

	h := newRunnerHarness()
	rec := metrics.NewRecorder()
	h.r.Metrics = rec
	cfg := config.Pipeline{
		Source:  config.SourceConfig{Paths: []string{in}},
		Storage: config.StorageConfig{Kind: "memory"},
	}
	require.NoError(t, h.r.Run(context.Background(), cfg))
	require.Len(t, rec.Samples[metrics.StepDuration], 2, "finalize + run")
	require.Equal(t, float64(1), rec.Counter(metrics.RowsWritten))
}
