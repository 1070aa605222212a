// Package storage defines the tabular sink that flattened rows are written to
// and the registry of sink backends.
//
// Backends register themselves from an init() function; import
// jsonflat/internal/storage/all to make every backend available.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"jsonflat/internal/config"
	"jsonflat/internal/temp"
)

// AttrFullDisplayName is the table attribute holding the unsanitized type path.
const AttrFullDisplayName = "fullDisplayName"

// Row is one output row keyed by safe column name.
//
// Cell values are nil, bool, string or value.Number. Every header column is
// present; missing data is nil.
type Row map[string]any

// TableSpec describes an output table at creation time.
type TableSpec struct {
	// Name is the sanitized table name.
	Name string
	// Columns is the fixed, ordered header.
	Columns []string
	// Attributes carries descriptive metadata (AttrFullDisplayName).
	Attributes map[string]string
}

// Table is an output table handle.
type Table interface {
	Name() string
	Header() []string
	Attributes() map[string]string

	// AppendRow writes one row. Backends may buffer; Sink.Close flushes.
	AppendRow(ctx context.Context, row Row) error
}

// Sink creates tables and owns their backend resources.
type Sink interface {
	// CreateTable creates (or opens, when the backend persists tables across
	// runs) the table described by spec.
	CreateTable(ctx context.Context, spec TableSpec) (Table, error)

	// Close flushes buffered rows and releases resources. Call once.
	Close(ctx context.Context) error
}

// Config selects and configures a sink backend.
//
// Edge cases:
//   - Kind must match a registered backend.
//   - DSN meaning is backend-specific (a directory for csv, a URI for databases).
//   - BatchSize <= 0 lets the backend pick its default.
type Config struct {
	Kind      string
	DSN       string
	BatchSize int
	Options   config.Options

	// Temp is the run scratch directory for backends that write local files.
	Temp *temp.Temp
}

// Factory builds a Sink from Config.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs the Sink registered for cfg.Kind.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
