package value

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
)

// NewDecoder returns a goccy decoder configured the way Decode expects
// (numbers kept as literals).
func NewDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// Parse decodes exactly one JSON value from b.
//
// Errors:
//   - Returns an error for invalid JSON, empty input, or trailing data.
func Parse(b []byte) (Value, error) {
	dec := NewDecoder(bytes.NewReader(b))
	v, err := Decode(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			return Value{}, fmt.Errorf("value: trailing data after JSON value")
		}
		return Value{}, fmt.Errorf("value: trailing data: %w", err)
	}
	return v, nil
}

// MustParse is Parse for literals in tests and fixtures. It panics on error.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("value: MustParse(%q): %v", s, err))
	}
	return v
}

// ParseBatch decodes a JSON array into its elements.
func ParseBatch(b []byte) ([]Value, error) {
	v, err := Parse(b)
	if err != nil {
		return nil, err
	}
	if !v.IsArray() {
		return nil, fmt.Errorf("value: batch must be a JSON array, got %s", v.Kind())
	}
	return v.Items(), nil
}

// Decode reads the next complete value from dec.
// dec must have UseNumber enabled (see NewDecoder).
func Decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return DecodeFrom(dec, tok)
}

// DecodeFrom materializes a value whose first token has already been read.
// Streaming readers use it after peeking at the root token.
func DecodeFrom(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Num(string(t)), nil
	case float64:
		return Num(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return Value{}, fmt.Errorf("value: unexpected delimiter %q", t)
		}
	default:
		return Value{}, fmt.Errorf("value: unexpected token %T", tok)
	}
}

func decodeObject(dec *json.Decoder) (Value, error) {
	obj := NewObject()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return Value{}, fmt.Errorf("value: read object key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return Value{}, fmt.Errorf("value: object key is %T, want string", kt)
		}
		v, err := Decode(dec)
		if err != nil {
			return Value{}, fmt.Errorf("value: field %q: %w", key, err)
		}
		obj.Set(key, v)
	}
	if _, err := dec.Token(); err != nil { // '}'
		return Value{}, fmt.Errorf("value: read object end: %w", err)
	}
	return FromObject(obj), nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	var items []Value
	for dec.More() {
		v, err := Decode(dec)
		if err != nil {
			return Value{}, fmt.Errorf("value: array item %d: %w", len(items), err)
		}
		items = append(items, v)
	}
	if _, err := dec.Token(); err != nil { // ']'
		return Value{}, fmt.Errorf("value: read array end: %w", err)
	}
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}, nil
}
