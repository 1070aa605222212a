// Package multitable turns batches of nested JSON values into flat tables.
//
// The Engine learns the structure of every type path from the first rows it
// sees, parks those batches in a deferred queue, and flattens later batches
// directly once the path is confident. Finalize replays the queue. Nested
// arrays become child tables joined to their parent row via JSON_parentId.
//
// Ordering:
//   - Batches flattened directly reach their table before deferred batches
//     of the same type, even when the deferred ones arrived first.
//   - Within the deferred queue, batches replay in arrival order.
package multitable

import (
	"context"
	"fmt"
	"slices"
	"time"

	"jsonflat/internal/cache"
	"jsonflat/internal/ids"
	"jsonflat/internal/logging"
	"jsonflat/internal/metrics"
	"jsonflat/internal/naming"
	"jsonflat/internal/nodepath"
	"jsonflat/internal/parent"
	"jsonflat/internal/storage"
	"jsonflat/internal/storage/memory"
	"jsonflat/internal/structure"
	"jsonflat/internal/temp"
	"jsonflat/internal/value"
)

// Stats summarizes what an Engine has done so far.
type Stats struct {
	Tables          int
	RowsWritten     int
	BatchesDeferred int
	BatchesDirect   int
	BatchesDrained  int
	Drift           int
}

// Engine is the flattening orchestrator.
//
// Concurrency:
//   - Not safe for concurrent use. Shard by type namespace (one Engine each)
//     or serialize calls.
//   - The context is handed to the sink; the engine itself does not poll it.
type Engine struct {
	cfg      Config
	log      logging.Logger
	metrics  metrics.Backend
	sink     storage.Sink
	ids      ids.Generator
	analyzer *structure.Analyzer
	queue    *cache.Queue

	temp    *temp.Temp
	ownTemp bool

	seeded    map[string]bool
	counters  map[string]int
	announced map[string]bool
	headers   map[string]*header
	tables    map[string]storage.Table
	owners    map[string]string
	byPath    map[string]storage.Table
	warned    map[string]bool

	draining bool
	stats    Stats
}

// NewEngine builds an Engine from cfg, filling in defaults.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		sink:      cfg.Sink,
		ids:       cfg.IDs,
		temp:      cfg.Temp,
		seeded:    map[string]bool{},
		counters:  map[string]int{},
		announced: map[string]bool{},
		headers:   map[string]*header{},
		tables:    map[string]storage.Table{},
		owners:    map[string]string{},
		byPath:    map[string]storage.Table{},
		warned:    map[string]bool{},
	}
	if e.log == nil {
		e.log = logging.Nop()
	}
	if e.metrics == nil {
		e.metrics = metrics.Default()
	}
	if e.sink == nil {
		e.sink = memory.New()
	}
	if e.ids == nil {
		e.ids = ids.UUID{}
	}
	if e.temp == nil {
		e.temp = temp.New(TempPrefix)
		e.ownTemp = true
	}

	var m *structure.Map
	if cfg.Structure != nil {
		m = cfg.Structure.Clone()
		for _, p := range m.Paths() {
			e.seeded[p] = true
		}
	}
	e.analyzer = structure.NewAnalyzer(m)
	e.analyzer.OnChange = e.structureChanged

	qopts := cfg.Cache
	if qopts.Temp == nil {
		qopts.Temp = e.temp
	}
	e.queue = cache.New(qopts)
	return e
}

// Process feeds one batch of rows of type typ.
//
// Rules:
//   - An empty batch for a type with no known structure is an *EmptyDataError.
//   - While the type is not confident the batch is analyzed and deferred.
//   - Once confident the batch is flattened into its tables immediately.
//
// Errors:
//   - *EmptyDataError and *BatchError (wrapping *structure.TypeConflictError
//     or a cache failure) carry the type, the rows and the link.
//   - ErrDraining while Finalize is running.
func (e *Engine) Process(ctx context.Context, batch []value.Value, typ string, link parent.Link) error {
	if e.draining {
		return ErrDraining
	}
	p := nodepath.Parse(typ)
	key := p.String()
	bc := BatchContext{Type: typ, Data: batch, Link: link}

	if len(batch) == 0 && !e.analyzer.Map().Known(key) {
		return &EmptyDataError{BatchContext: bc}
	}

	if e.confident(key) {
		if err := e.flattenBatch(ctx, batch, p, link); err != nil {
			return err
		}
		e.stats.BatchesDirect++
		e.metrics.IncCounter(metrics.Batches, 1, metrics.Labels{"mode": "direct"})
		return nil
	}

	n := e.cfg.analyzeRows()
	if e.counters[key] == 0 {
		e.log.Log(logging.Debug, "analyzing "+typ, logging.Fields{"analyze_rows": n, "rows_analyzed": e.counters[key]})
	}
	if err := e.analyzer.Analyze(batch, p); err != nil {
		return &BatchError{BatchContext: bc, Err: err}
	}
	e.counters[key] += len(batch)
	e.metrics.IncCounter(metrics.RowsAnalyzed, float64(len(batch)), metrics.Labels{"type": key})
	if n >= 0 && e.counters[key] >= n && !e.announced[key] {
		e.announced[key] = true
		e.log.Log(logging.Info, "structure of "+typ+" is confident", logging.Fields{"analyze_rows": n, "rows_analyzed": e.counters[key]})
	}

	if err := e.queue.Store(cache.Entry{Batch: batch, Type: key, Link: link}); err != nil {
		return &BatchError{BatchContext: bc, Err: err}
	}
	e.stats.BatchesDeferred++
	e.metrics.IncCounter(metrics.Batches, 1, metrics.Labels{"mode": "deferred"})
	return nil
}

// confident reports whether batches of key skip analysis.
func (e *Engine) confident(key string) bool {
	if !e.analyzer.Map().Known(key) {
		return false
	}
	n := e.cfg.analyzeRows()
	if n < 0 {
		return false
	}
	if e.cfg.TrustInitialStructure && e.seeded[key] {
		return true
	}
	return e.counters[key] >= n
}

// Finalize flattens every deferred batch in arrival order and returns the
// output tables keyed by table name. It does not close the sink.
func (e *Engine) Finalize(ctx context.Context) (map[string]storage.Table, error) {
	start := time.Now()
	err := e.drain(ctx)
	metrics.RecordStep(e.metrics, "finalize", start, err)
	if err != nil {
		return nil, err
	}
	e.log.Log(logging.Debug, "finalized", logging.Fields{
		"tables":           len(e.tables),
		"rows_written":     e.stats.RowsWritten,
		"batches_drained":  e.stats.BatchesDrained,
		"batches_deferred": e.stats.BatchesDeferred,
	})
	return e.Tables(), nil
}

func (e *Engine) drain(ctx context.Context) error {
	e.draining = true
	defer func() { e.draining = false }()

	for {
		ent, ok, err := e.queue.Next()
		if err != nil {
			return fmt.Errorf("multitable: drain: %w", err)
		}
		if !ok {
			return nil
		}
		if err := e.flattenBatch(ctx, ent.Batch, nodepath.Parse(ent.Type), ent.Link); err != nil {
			return err
		}
		e.stats.BatchesDrained++
		e.metrics.IncCounter(metrics.Batches, 1, metrics.Labels{"mode": "drained"})
	}
}

// Tables returns the output tables created so far, keyed by table name.
func (e *Engine) Tables() map[string]storage.Table {
	out := make(map[string]storage.Table, len(e.tables))
	for k, t := range e.tables {
		out[k] = t
	}
	return out
}

// Structure returns a copy of the current structure map.
func (e *Engine) Structure() *structure.Map { return e.analyzer.Map().Clone() }

// HasAnalyzed reports whether any batch has been analyzed.
func (e *Engine) HasAnalyzed() bool { return e.analyzer.HasAnalyzed() }

// RowsAnalyzed returns the number of rows analyzed for typ through Process.
func (e *Engine) RowsAnalyzed(typ string) int { return e.counters[nodepath.Parse(typ).String()] }

// Stats returns counters for the run so far.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Tables = len(e.tables)
	return s
}

// Close releases the deferred queue and the scratch directory when the
// engine created it. The sink is left to its owner.
func (e *Engine) Close() error {
	err := e.queue.Close()
	if e.ownTemp {
		if rerr := e.temp.Remove(); err == nil {
			err = rerr
		}
	}
	return err
}

// table returns the output table for p, creating it on first use.
// Paths whose safe names collide share a table only when their headers
// match; otherwise the later path gets the MD5 hex of its path as name.
func (e *Engine) table(ctx context.Context, p nodepath.Path, h *header) (storage.Table, error) {
	key := p.String()
	if t, ok := e.byPath[key]; ok {
		return t, nil
	}
	name := e.cfg.Naming.Name(key)
	if name == "" {
		name = naming.MD5Hex(key)
	}
	if t, ok := e.tables[name]; ok {
		owner := e.owners[name]
		if slices.Equal(t.Header(), h.safe) {
			e.warnOnce("collision:"+key, "table name "+name+" is shared", logging.Fields{"type": key, "first_type": owner})
			e.byPath[key] = t
			return t, nil
		}
		alt := naming.MD5Hex(key)
		e.warnOnce("renamed:"+key, "table name "+name+" is taken by "+owner+"; using "+alt,
			logging.Fields{"type": key, "first_type": owner})
		name = alt
	}

	t, err := e.sink.CreateTable(ctx, storage.TableSpec{
		Name:       name,
		Columns:    h.safe,
		Attributes: map[string]string{storage.AttrFullDisplayName: key},
	})
	if err != nil {
		return nil, fmt.Errorf("multitable: create table %s: %w", name, err)
	}
	e.tables[name] = t
	e.owners[name] = key
	e.byPath[key] = t
	e.metrics.IncCounter(metrics.TablesCreated, 1, nil)
	e.log.Log(logging.Debug, "created table "+name, logging.Fields{"type": key, "columns": len(h.safe)})
	return t, nil
}

func (e *Engine) structureChanged(path string) {
	if _, ok := e.headers[path]; ok {
		e.warnOnce("changed:"+path, "structure of "+path+" changed after its header was built", logging.Fields{"type": path})
	}
}

func (e *Engine) warnOnce(key, msg string, fields logging.Fields) {
	if e.warned[key] {
		return
	}
	e.warned[key] = true
	e.log.Log(logging.Warning, msg, fields)
}
