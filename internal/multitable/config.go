package multitable

import (
	"jsonflat/internal/cache"
	"jsonflat/internal/ids"
	"jsonflat/internal/logging"
	"jsonflat/internal/metrics"
	"jsonflat/internal/naming"
	"jsonflat/internal/storage"
	"jsonflat/internal/structure"
	"jsonflat/internal/temp"
)

// DefaultAnalyzeRows is the confidence threshold used when Config.AnalyzeRows is nil.
const DefaultAnalyzeRows = 500

// AnalyzeAll disables the confidence threshold: every batch is analyzed and
// deferred until Finalize.
const AnalyzeAll = -1

// TempPrefix names the scratch directory the engine creates when it needs one.
const TempPrefix = "json-parser-data"

// Config configures an Engine. The zero value is usable.
type Config struct {
	// Structure seeds the structure map. It is cloned; the caller's map is
	// never modified. nil starts empty.
	Structure *structure.Map

	// AnalyzeRows is the number of rows per type analyzed before batches of
	// that type are flattened directly. nil means DefaultAnalyzeRows and
	// AnalyzeAll never stops analyzing. With 0 only the first batch of an
	// unseen type is analyzed.
	AnalyzeRows *int

	// TrustInitialStructure treats every type already present in Structure
	// as confident from the first batch.
	TrustInitialStructure bool

	// PreserveZeroValues keeps false, 0 and "0" field values instead of
	// writing null for them.
	PreserveZeroValues bool

	Logger  logging.Logger
	Metrics metrics.Backend

	// Sink receives the output tables. nil uses an in-memory sink.
	Sink storage.Sink

	// IDs generates child identifiers. nil uses ids.UUID.
	IDs ids.Generator

	Naming naming.Sanitizer

	// Cache configures the deferred queue. A zero Temp is filled with the
	// engine's lazily created scratch directory.
	Cache cache.Options

	// Temp is the scratch directory provider. nil creates one lazily under
	// the OS temp dir with TempPrefix.
	Temp *temp.Temp
}

// Threshold returns n as a Config.AnalyzeRows value.
func Threshold(n int) *int { return &n }

func (c Config) analyzeRows() int {
	if c.AnalyzeRows == nil {
		return DefaultAnalyzeRows
	}
	return *c.AnalyzeRows
}
