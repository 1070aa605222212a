package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

const (
	lz4Raw   byte = 0
	lz4Block byte = 1

	// maxLZ4Payload bounds the decoded size read from a payload header.
	maxLZ4Payload = 1 << 30
)

// LZ4 is the LZ4 block format. Payloads are prefixed with a marker byte and
// the uncompressed length so incompressible input can be stored raw.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	hdr := make([]byte, 1+binary.MaxVarintLen64)
	n := binary.PutUvarint(hdr[1:], uint64(len(data)))
	hdr = hdr[:1+n]

	dst := make([]byte, len(hdr)+lz4.CompressBlockBound(len(data)))
	lc := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	w, err := lc.CompressBlock(data, dst[len(hdr):])
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	if w == 0 {
		hdr[0] = lz4Raw
		return append(hdr, data...), nil
	}
	hdr[0] = lz4Block
	copy(dst, hdr)
	return dst[:len(hdr)+w], nil
}

func (LZ4) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	size, n := binary.Uvarint(data[1:])
	if n <= 0 || size > maxLZ4Payload {
		return nil, errors.New("compress: lz4: bad payload header")
	}
	body := data[1+n:]
	switch data[0] {
	case lz4Raw:
		return append([]byte(nil), body...), nil
	case lz4Block:
		out := make([]byte, size)
		w, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4: %w", err)
		}
		return out[:w], nil
	default:
		return nil, fmt.Errorf("compress: lz4: unknown marker %d", data[0])
	}
}
