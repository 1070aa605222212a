package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// S2 is the Snappy-compatible S2 block format.
type S2 struct{}

func (S2) Name() string { return "s2" }

func (S2) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Encode(nil, data), nil
}

func (S2) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("compress: s2: %w", err)
	}
	return out, nil
}
