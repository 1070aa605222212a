// Package nodepath names locations inside a JSON document.
//
// A Path is an ordered list of segments. Each segment is either an object field
// name or the array marker "[]". The canonical string form joins segments with
// "." and doubles as the type name of the output table fed from that location:
//
//	root            top-level rows of type "root"
//	root.items      elements of the "items" array field of root rows
//	root.items.[]   elements of arrays nested directly inside "items"
//
// Paths are values. Every operation returns a new Path and never mutates the
// receiver, so a Path can be shared freely between the analyzer, the header
// cache, and the flattener.
package nodepath

import "strings"

// ArrayMarker is the segment used for "elements of the array at this position".
const ArrayMarker = "[]"

// Separator joins segments in the canonical form.
const Separator = "."

// Path is an immutable sequence of segments.
type Path struct {
	segs []string
}

// New builds a path from the given segments.
func New(segments ...string) Path {
	if len(segments) == 0 {
		return Path{}
	}
	cp := make([]string, len(segments))
	copy(cp, segments)
	return Path{segs: cp}
}

// Parse splits a canonical path string on ".".
//
// Edge cases:
//   - "" parses to the empty path.
//   - Field names containing "." cannot be told apart from nesting; Parse
//     splits them. Callers that need such names keep the Path value instead of
//     round-tripping through strings.
func Parse(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path{segs: strings.Split(s, Separator)}
}

// Field returns a new path with name appended.
func (p Path) Field(name string) Path {
	return p.push(name)
}

// Array returns a new path with the array marker appended.
func (p Path) Array() Path {
	return p.push(ArrayMarker)
}

func (p Path) push(seg string) Path {
	out := make([]string, len(p.segs)+1)
	copy(out, p.segs)
	out[len(p.segs)] = seg
	return Path{segs: out}
}

// PopFirst splits the path into its first segment and the remainder.
// On the empty path it returns "" and the empty path.
func (p Path) PopFirst() (string, Path) {
	if len(p.segs) == 0 {
		return "", Path{}
	}
	return p.segs[0], Path{segs: p.segs[1:len(p.segs):len(p.segs)]}
}

// PopLast splits the path into everything but the last segment and the last segment.
// On the empty path it returns the empty path and "".
func (p Path) PopLast() (Path, string) {
	n := len(p.segs)
	if n == 0 {
		return Path{}, ""
	}
	return Path{segs: p.segs[: n-1 : n-1]}, p.segs[n-1]
}

// Last returns the final segment, or "" for the empty path.
func (p Path) Last() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[len(p.segs)-1]
}

// IsArray reports whether the last segment is the array marker.
func (p Path) IsArray() bool {
	return p.Last() == ArrayMarker
}

// IsEmpty reports whether the path has no segments.
func (p Path) IsEmpty() bool { return len(p.segs) == 0 }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// Segments returns a copy of the segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segs))
	copy(out, p.segs)
	return out
}

// String returns the canonical dot-joined form.
func (p Path) String() string {
	return strings.Join(p.segs, Separator)
}

// Equal reports whether both paths have the same segments.
func (p Path) Equal(o Path) bool {
	if len(p.segs) != len(o.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != o.segs[i] {
			return false
		}
	}
	return true
}
