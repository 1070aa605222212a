// Package json streams JSON input documents into batches of records for the
// flattening engine.
package json

import (
	"context"
	"errors"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"

	"jsonflat/internal/value"
)

// DefaultBatchSize is the number of records per emitted batch.
const DefaultBatchSize = 500

// EnvelopeAuto selects the first array-valued field of a root object.
const EnvelopeAuto = "*"

// Options controls StreamBatches.
type Options struct {
	// BatchSize is the maximum number of records per batch (default DefaultBatchSize).
	BatchSize int

	// Envelope names the field of a top-level object that holds the records.
	// "" treats the whole object as one record; EnvelopeAuto picks the first
	// array-valued field.
	Envelope string

	// OnParseErr, when set, is called with the 1-based number of the record
	// that failed to decode, before StreamBatches returns the error.
	OnParseErr func(record int, err error)
}

// StreamBatches decodes r and calls emit with consecutive batches of records.
//
// Streaming behavior:
//   - Every top-level value is handled in order, so JSONL and concatenated
//     documents work.
//   - A top-level array contributes each of its items as a record, decoded
//     one at a time.
//   - A top-level object contributes its envelope items (see Options.Envelope)
//     or itself as a single record.
//   - A top-level scalar or null is a single record.
//
// Batches are never empty; empty input produces no calls to emit.
//
// Errors:
//   - Decode errors are wrapped with the record number.
//   - Errors from emit and ctx cancellation are returned unchanged.
func StreamBatches(ctx context.Context, r io.Reader, opts Options, emit func([]value.Value) error) error {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	s := &streamer{
		ctx:   ctx,
		dec:   value.NewDecoder(r),
		opts:  opts,
		size:  size,
		emit:  emit,
		batch: make([]value.Value, 0, size),
	}
	for {
		tok, err := s.dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.parseErr(fmt.Errorf("read top-level value: %w", err))
		}
		if err := s.topLevel(tok); err != nil {
			return err
		}
	}
	return s.flush()
}

type streamer struct {
	ctx   context.Context
	dec   *gojson.Decoder
	opts  Options
	size  int
	emit  func([]value.Value) error
	batch []value.Value
	count int
}

func (s *streamer) topLevel(tok gojson.Token) error {
	switch tok {
	case gojson.Delim('['):
		return s.items()
	case gojson.Delim('{'):
		if s.opts.Envelope == "" {
			break
		}
		return s.envelope()
	}
	v, err := value.DecodeFrom(s.dec, tok)
	if err != nil {
		return s.parseErr(err)
	}
	return s.add(v)
}

// items streams the elements of an array whose '[' was consumed.
func (s *streamer) items() error {
	for s.dec.More() {
		v, err := value.Decode(s.dec)
		if err != nil {
			return s.parseErr(err)
		}
		if err := s.add(v); err != nil {
			return err
		}
	}
	if _, err := s.dec.Token(); err != nil {
		return s.parseErr(fmt.Errorf("read array end: %w", err))
	}
	return nil
}

// envelope scans an object whose '{' was consumed for the envelope field and
// streams its items. Other fields are decoded and discarded.
func (s *streamer) envelope() error {
	found := false
	for s.dec.More() {
		kt, err := s.dec.Token()
		if err != nil {
			return s.parseErr(fmt.Errorf("read object key: %w", err))
		}
		key, _ := kt.(string)

		vt, err := s.dec.Token()
		if err != nil {
			return s.parseErr(fmt.Errorf("read field %q: %w", key, err))
		}
		match := !found && (key == s.opts.Envelope || s.opts.Envelope == EnvelopeAuto)
		if match && vt == gojson.Delim('[') {
			found = true
			if err := s.items(); err != nil {
				return err
			}
			continue
		}
		if match && s.opts.Envelope != EnvelopeAuto {
			return s.parseErr(fmt.Errorf("envelope field %q is not an array", key))
		}
		if _, err := value.DecodeFrom(s.dec, vt); err != nil {
			return s.parseErr(fmt.Errorf("skip field %q: %w", key, err))
		}
	}
	if _, err := s.dec.Token(); err != nil {
		return s.parseErr(fmt.Errorf("read object end: %w", err))
	}
	if !found {
		return s.parseErr(fmt.Errorf("envelope field %q not found", s.opts.Envelope))
	}
	return nil
}

func (s *streamer) add(v value.Value) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.count++
	s.batch = append(s.batch, v)
	if len(s.batch) >= s.size {
		return s.flush()
	}
	return nil
}

func (s *streamer) flush() error {
	if len(s.batch) == 0 {
		return nil
	}
	b := s.batch
	s.batch = make([]value.Value, 0, s.size)
	return s.emit(b)
}

func (s *streamer) parseErr(err error) error {
	n := s.count + 1
	if s.opts.OnParseErr != nil {
		s.opts.OnParseErr(n, err)
	}
	return fmt.Errorf("json: record %d: %w", n, err)
}
