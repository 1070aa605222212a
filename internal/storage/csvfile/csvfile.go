// Package csvfile writes every output table to "<dir>/<table>.csv" with a
// "<table>.csv.manifest" JSON file carrying the header and table attributes.
//
// DSN is the output directory. When empty, the run scratch directory is used.
//
// Options:
//   - gzip (bool): compress data files, written as "<table>.csv.gz".
//   - delimiter (string): field delimiter, default ",".
//   - manifest (bool): write manifest files, default true.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"jsonflat/internal/storage"
	"jsonflat/internal/temp"
)

func init() {
	storage.Register("csv", New)
}

// Manifest is the sidecar written next to each data file.
type Manifest struct {
	Name       string            `json:"name"`
	File       string            `json:"file"`
	Columns    []string          `json:"columns"`
	Attributes map[string]string `json:"attributes"`
}

// Sink writes CSV files into one directory.
type Sink struct {
	dir      string
	gzip     bool
	comma    rune
	manifest bool

	mu     sync.Mutex
	tables []*Table
}

// New builds a csv sink from cfg.
func New(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
	dir := cfg.DSN
	if dir == "" {
		tmp := cfg.Temp
		if tmp == nil {
			tmp = temp.New("json-parser-data")
		}
		d, err := tmp.Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv: create dir %s: %w", dir, err)
	}

	comma := ','
	if d := cfg.Options.String("delimiter", ""); d != "" {
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) || r == '"' || r == '\n' || r == '\r' {
			return nil, fmt.Errorf("csv: invalid delimiter %q", d)
		}
		comma = r
	}

	return &Sink{
		dir:      dir,
		gzip:     cfg.Options.Bool("gzip", false),
		comma:    comma,
		manifest: cfg.Options.Bool("manifest", true),
	}, nil
}

// Dir returns the output directory.
func (s *Sink) Dir() string { return s.dir }

// CreateTable creates the data file, writes the header row and the manifest.
func (s *Sink) CreateTable(ctx context.Context, spec storage.TableSpec) (storage.Table, error) {
	file := spec.Name + ".csv"
	if s.gzip {
		file += ".gz"
	}
	path := filepath.Join(s.dir, file)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create %s: %w", path, err)
	}

	t := &Table{BaseTable: storage.NewBaseTable(spec), path: path, f: f}
	var w io.Writer = f
	if s.gzip {
		t.gz = gzip.NewWriter(f)
		w = t.gz
	}
	t.w = csv.NewWriter(w)
	t.w.Comma = s.comma

	if err := t.w.Write(spec.Columns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header %s: %w", path, err)
	}

	if s.manifest {
		if err := writeManifest(path+".manifest", Manifest{
			Name:       spec.Name,
			File:       file,
			Columns:    t.Columns,
			Attributes: t.Attrs,
		}); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	s.mu.Lock()
	s.tables = append(s.tables, t)
	s.mu.Unlock()
	return t, nil
}

// Close flushes and closes every data file.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, t := range s.tables {
		errs = append(errs, t.close())
	}
	s.tables = nil
	return errors.Join(errs...)
}

func writeManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("csv: encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("csv: write manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads a manifest written by the sink.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("csv: decode manifest %s: %w", path, err)
	}
	return m, nil
}

// Table is one CSV data file.
type Table struct {
	storage.BaseTable

	path string
	f    *os.File
	gz   *gzip.Writer
	w    *csv.Writer
	rec  []string
}

// Path returns the data file path.
func (t *Table) Path() string { return t.path }

// AppendRow writes one record. nil cells are written as empty fields.
func (t *Table) AppendRow(ctx context.Context, row storage.Row) error {
	if t.w == nil {
		return fmt.Errorf("csv: table %s is closed", t.TableName)
	}
	if cap(t.rec) < len(t.Columns) {
		t.rec = make([]string, len(t.Columns))
	}
	rec := t.rec[:len(t.Columns)]
	for i, c := range t.Columns {
		rec[i], _ = storage.Text(row[c])
	}
	if err := t.w.Write(rec); err != nil {
		return fmt.Errorf("csv: write %s: %w", t.path, err)
	}
	return nil
}

func (t *Table) close() error {
	if t.w == nil {
		return nil
	}
	t.w.Flush()
	err := t.w.Error()
	if t.gz != nil {
		err = errors.Join(err, t.gz.Close())
	}
	err = errors.Join(err, t.f.Close())
	t.w = nil
	if err != nil {
		return fmt.Errorf("csv: close %s: %w", t.path, err)
	}
	return nil
}

var _ storage.Sink = (*Sink)(nil)
