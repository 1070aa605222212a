// Package cache is the deferred batch queue.
//
// Batches whose structure is still being learned are parked here and replayed
// in arrival order once analysis is complete. Entries live in memory; with
// SpillAfter set, entries beyond that count are framed, compressed and
// appended to a scratch file, then read back after the in-memory ones.
//
// Spill frame layout (big endian):
//
//	[payload length uint32][xxhash64(payload) uint64][payload]
//
// The payload is the codec-compressed JSON {"type":..,"link":..,"data":[..]}.
package cache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"jsonflat/internal/compress"
	"jsonflat/internal/parent"
	"jsonflat/internal/temp"
	"jsonflat/internal/value"
)

// ErrDraining is returned by Store while a drain is in progress.
var ErrDraining = errors.New("cache: store during drain")

// ErrChecksum is returned when a spilled frame fails verification.
var ErrChecksum = errors.New("cache: spill frame checksum mismatch")

const frameHeaderLen = 4 + 8

// Entry is one deferred batch.
type Entry struct {
	Batch []value.Value
	Type  string
	Link  parent.Link
}

// Options configures a Queue. The zero value keeps everything in memory.
type Options struct {
	// SpillAfter is the number of in-memory entries kept before spilling.
	// 0 disables spilling.
	SpillAfter int

	// Codec compresses spilled frames. nil means zstd.
	Codec compress.Codec

	// Temp provides the scratch directory for the spill file.
	// Required when SpillAfter > 0.
	Temp *temp.Temp
}

// Queue is a FIFO of deferred batches.
//
// Concurrency:
//   - Not safe for concurrent use.
type Queue struct {
	opts Options

	mem  []Entry
	head int

	spill      *os.File
	spillSeq   int
	spilled    int
	rd         *bufio.Reader
	draining   bool
	spillBytes int64
}

// New returns an empty queue.
func New(opts Options) *Queue {
	if opts.Codec == nil {
		opts.Codec = compress.Zstd{}
	}
	return &Queue{opts: opts}
}

// Len returns the number of entries not yet consumed.
func (q *Queue) Len() int { return len(q.mem) - q.head + q.spilled }

// SpilledBytes returns the bytes written to the current spill file.
func (q *Queue) SpilledBytes() int64 { return q.spillBytes }

// Store appends e.
//
// Errors:
//   - ErrDraining if called after Next started consuming and before the queue
//     was emptied.
//   - I/O or encoding errors from the spill file.
func (q *Queue) Store(e Entry) error {
	if q.draining {
		return ErrDraining
	}
	if q.opts.SpillAfter <= 0 || len(q.mem)-q.head < q.opts.SpillAfter {
		q.mem = append(q.mem, e)
		return nil
	}
	return q.writeSpill(e)
}

// Next removes and returns the oldest entry. ok is false when the queue is empty.
func (q *Queue) Next() (e Entry, ok bool, err error) {
	if q.head < len(q.mem) {
		q.draining = true
		e = q.mem[q.head]
		q.mem[q.head] = Entry{}
		q.head++
		return e, true, nil
	}
	if q.spilled > 0 {
		q.draining = true
		e, err = q.readSpill()
		if err != nil {
			return Entry{}, false, err
		}
		q.spilled--
		return e, true, nil
	}
	if err := q.reset(); err != nil {
		return Entry{}, false, err
	}
	return Entry{}, false, nil
}

// Close releases the spill file. Remaining entries are discarded.
func (q *Queue) Close() error {
	q.spilled = 0
	q.mem = nil
	q.head = 0
	return q.reset()
}

func (q *Queue) reset() error {
	q.draining = false
	q.mem = q.mem[:0]
	q.head = 0
	q.rd = nil
	q.spillBytes = 0
	if q.spill == nil {
		return nil
	}
	name := q.spill.Name()
	cerr := q.spill.Close()
	q.spill = nil
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: remove spill file: %w", err)
	}
	return cerr
}

func (q *Queue) writeSpill(e Entry) error {
	if q.spill == nil {
		if q.opts.Temp == nil {
			return errors.New("cache: spill requires a temp directory")
		}
		q.spillSeq++
		f, err := q.opts.Temp.CreateFile(fmt.Sprintf("deferred-%d.bin", q.spillSeq))
		if err != nil {
			return err
		}
		q.spill = f
	}

	raw, err := encodeEntry(e)
	if err != nil {
		return err
	}
	payload, err := q.opts.Codec.Compress(raw)
	if err != nil {
		return fmt.Errorf("cache: compress: %w", err)
	}

	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(hdr[4:12], xxhash.Sum64(payload))
	if _, err := q.spill.Write(hdr[:]); err != nil {
		return fmt.Errorf("cache: write spill: %w", err)
	}
	if _, err := q.spill.Write(payload); err != nil {
		return fmt.Errorf("cache: write spill: %w", err)
	}
	q.spilled++
	q.spillBytes += int64(frameHeaderLen + len(payload))
	return nil
}

func (q *Queue) readSpill() (Entry, error) {
	if q.rd == nil {
		if _, err := q.spill.Seek(0, io.SeekStart); err != nil {
			return Entry{}, fmt.Errorf("cache: rewind spill: %w", err)
		}
		q.rd = bufio.NewReader(q.spill)
	}

	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(q.rd, hdr[:]); err != nil {
		return Entry{}, fmt.Errorf("cache: read spill header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[0:4])
	sum := binary.BigEndian.Uint64(hdr[4:12])

	payload := make([]byte, n)
	if _, err := io.ReadFull(q.rd, payload); err != nil {
		return Entry{}, fmt.Errorf("cache: read spill payload: %w", err)
	}
	if xxhash.Sum64(payload) != sum {
		return Entry{}, ErrChecksum
	}
	raw, err := q.opts.Codec.Decompress(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("cache: decompress: %w", err)
	}
	return decodeEntry(raw)
}
