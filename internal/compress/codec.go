// Package compress provides the block codecs used when the deferred batch
// cache spills to disk.
//
// Every codec compresses a whole payload at once and is safe for concurrent
// use. Encoders and decoders are pooled.
package compress

import (
	"fmt"
	"sort"
)

// Codec compresses and decompresses whole payloads.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var builtinCodecs = map[string]Codec{
	"none": NoOp{},
	"zstd": Zstd{},
	"s2":   S2{},
	"lz4":  LZ4{},
}

// ByName returns a built-in codec: none, zstd, s2 or lz4. "" means zstd.
func ByName(name string) (Codec, error) {
	if name == "" {
		name = "zstd"
	}
	if c, ok := builtinCodecs[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("compress: unsupported codec %q (have %v)", name, Names())
}

// Names lists the built-in codec names.
func Names() []string {
	out := make([]string, 0, len(builtinCodecs))
	for n := range builtinCodecs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NoOp stores payloads unchanged.
type NoOp struct{}

func (NoOp) Name() string { return "none" }

func (NoOp) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (NoOp) Decompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
