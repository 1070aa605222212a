package multitable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"jsonflat/internal/compress"
	"jsonflat/internal/config"
	"jsonflat/internal/ids"
	"jsonflat/internal/logging"
	"jsonflat/internal/metrics"
	"jsonflat/internal/parent"
	jsonparser "jsonflat/internal/parser/json"
	"jsonflat/internal/storage"
	"jsonflat/internal/structure"
	"jsonflat/internal/temp"
	"jsonflat/internal/value"
)

// Runner executes a config.Pipeline: it reads every input file, feeds the
// records through a fresh Engine and writes the tables to the configured sink.
type Runner struct {
	// NewSink opens the sink. Tests inject an in-memory sink here.
	NewSink func(ctx context.Context, cfg storage.Config) (storage.Sink, error)

	// Open opens an input file.
	Open func(path string) (io.ReadCloser, error)

	// Out receives log lines at the pipeline's parser.log_level.
	Out logging.Printfer

	// Logger, when set, replaces the logger built from Out.
	Logger logging.Logger

	// Metrics defaults to metrics.Default().
	Metrics metrics.Backend
}

// NewDefaultRunner returns a Runner using the storage registry and the filesystem.
func NewDefaultRunner(out logging.Printfer) *Runner {
	return &Runner{
		NewSink: storage.New,
		Open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
		Out: out,
	}
}

// Run executes one pass over cfg's inputs.
//
// Edge cases:
//   - No matching input files is not an error; the run logs and returns.
//   - An input file with no records is skipped with a warning.
//
// Errors:
//   - Validation errors, struct file errors and sink errors abort the run.
//   - Engine errors (*EmptyDataError, *BatchError) abort the run unwrapped
//     apart from the file name, so errors.As still reaches them.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) (err error) {
	start := time.Now()
	m := r.Metrics
	if m == nil {
		m = metrics.Default()
	}
	defer func() { metrics.RecordStep(m, "run", start, err) }()

	if issues := config.ValidatePipeline(cfg); config.HasErrors(issues) {
		return validationError(issues)
	}
	log := r.logger(cfg)

	inputs, err := cfg.Source.Inputs()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		log.Log(logging.Info, "no input files", logging.Fields{"job": cfg.Job, "glob": cfg.Source.Glob})
		return nil
	}

	engineCfg, err := r.engineConfig(cfg, log, m)
	if err != nil {
		return err
	}

	out := temp.New(jobName(cfg))
	sink, err := r.newSink(ctx, storage.Config{
		Kind:      cfg.Storage.Kind,
		DSN:       cfg.Storage.ExpandedDSN(),
		BatchSize: cfg.Storage.BatchSize,
		Options:   cfg.Storage.Options,
		Temp:      out,
	})
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	engineCfg.Sink = sink

	eng := NewEngine(engineCfg)
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			log.Log(logging.Warning, "engine cleanup failed", logging.Fields{"err": cerr})
		}
	}()

	for _, path := range inputs {
		if err := r.feed(ctx, eng, cfg, path, log); err != nil {
			_ = sink.Close(ctx)
			return err
		}
	}

	tables, err := eng.Finalize(ctx)
	if err != nil {
		_ = sink.Close(ctx)
		return err
	}
	if err := sink.Close(ctx); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}

	if cfg.Parser.StructOut != "" {
		if err := structure.SaveFile(cfg.Parser.StructOut, eng.Structure()); err != nil {
			return err
		}
	}

	st := eng.Stats()
	fields := logging.Fields{
		"job":              jobName(cfg),
		"files":            len(inputs),
		"tables":           len(tables),
		"rows_written":     st.RowsWritten,
		"batches_deferred": st.BatchesDeferred,
		"batches_direct":   st.BatchesDirect,
		"type_drift":       st.Drift,
		"duration":         time.Since(start).Truncate(time.Millisecond),
	}
	if out.Created() {
		dir, _ := out.Dir()
		fields["output_dir"] = dir
	}
	log.Log(logging.Info, "run complete", fields)
	return nil
}

// feed streams one input file into the engine.
func (r *Runner) feed(ctx context.Context, eng *Engine, cfg config.Pipeline, path string, log logging.Logger) error {
	open := r.Open
	if open == nil {
		open = func(p string) (io.ReadCloser, error) { return os.Open(p) }
	}
	f, err := open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	typ := cfg.Source.TypeName()
	records := 0
	opts := jsonparser.Options{
		BatchSize: cfg.Source.BatchSize,
		Envelope:  cfg.Source.Envelope,
		OnParseErr: func(record int, err error) {
			log.Log(logging.Error, "input parse error", logging.Fields{"file": path, "record": record, "err": err})
		},
	}
	err = jsonparser.StreamBatches(ctx, f, opts, func(batch []value.Value) error {
		records += len(batch)
		return eng.Process(ctx, batch, typ, parent.None())
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if records == 0 {
		err := eng.Process(ctx, nil, typ, parent.None())
		var empty *EmptyDataError
		if errors.As(err, &empty) {
			log.Log(logging.Warning, "empty data set received for "+typ, logging.Fields{"file": path})
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	log.Log(logging.Debug, "input read", logging.Fields{"file": path, "records": records})
	return nil
}

func (r *Runner) engineConfig(cfg config.Pipeline, log logging.Logger, m metrics.Backend) (Config, error) {
	gen, ok := ids.ByName(cfg.Parser.IDs)
	if !ok {
		return Config{}, fmt.Errorf("parser.ids: unknown generator %q", cfg.Parser.IDs)
	}
	codec, err := compress.ByName(cfg.Cache.Codec)
	if err != nil {
		return Config{}, err
	}

	ec := Config{
		TrustInitialStructure: cfg.Parser.TrustInitialStructure,
		PreserveZeroValues:    cfg.Parser.PreserveZeroValues,
		Logger:                log,
		Metrics:               m,
		IDs:                   gen,
	}
	ec.Naming.FoldAccents = cfg.Parser.FoldAccents
	ec.Cache.SpillAfter = cfg.Cache.SpillAfter
	ec.Cache.Codec = codec

	if n := cfg.Parser.AnalyzeRows; n != nil {
		ec.AnalyzeRows = Threshold(*n)
	}

	if cfg.Parser.StructFile != "" {
		sm, err := structure.LoadFile(cfg.Parser.StructFile)
		if err != nil {
			return Config{}, err
		}
		ec.Structure = sm
	}
	return ec, nil
}

func (r *Runner) newSink(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	if r.NewSink != nil {
		return r.NewSink(ctx, cfg)
	}
	return storage.New(ctx, cfg)
}

func (r *Runner) logger(cfg config.Pipeline) logging.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	level, _ := logging.ParseLevel(cfg.Parser.LogLevel)
	return logging.New(r.Out, level)
}

func jobName(cfg config.Pipeline) string {
	if strings.TrimSpace(cfg.Job) == "" {
		return "jsonflat"
	}
	return cfg.Job
}

func validationError(issues []config.Issue) error {
	var msgs []string
	for _, i := range issues {
		if i.Severity == config.SeverityError {
			msgs = append(msgs, i.Path+": "+i.Message)
		}
	}
	return fmt.Errorf("invalid pipeline: %s", strings.Join(msgs, "; "))
}
