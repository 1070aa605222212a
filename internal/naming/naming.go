// Package naming turns arbitrary JSON keys and node paths into identifiers
// that every supported sink accepts as table and column names.
//
// Rules:
//   - Names of at most MaxLength bytes keep [A-Za-z0-9-]; every other byte
//     becomes "_" and leading/trailing "_" are trimmed.
//   - Longer names are shortened first: the initial of every word when the
//     name has more than one word, otherwise the MD5 hex of the name, then
//     "_" and as much of the original tail as fits, cut at a space or "_".
//   - Header deduplication replaces a repeated safe name with the MD5 hex of
//     the original column name.
package naming

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest name produced by Name.
const MaxLength = 64

var (
	unsafeChars  = regexp.MustCompile(`[^A-Za-z0-9-]`)
	wordInitials = regexp.MustCompile(`\b(\w)`)
	letterWord   = regexp.MustCompile(`[A-Za-z'-]+`)
)

// Sanitizer produces safe names.
// The zero value applies the plain rules.
type Sanitizer struct {
	// FoldAccents transliterates accented Latin letters ("č" -> "c") before
	// the unsafe-character pass instead of replacing them with "_".
	FoldAccents bool
}

// Name returns the safe form of s.
func (z Sanitizer) Name(s string) string {
	if len(s) > MaxLength {
		s = shorten(s)
	}
	if z.FoldAccents {
		s = foldAccents(s)
	}
	s = unsafeChars.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Header returns the safe form of every column, replacing names that repeat
// an earlier safe name with the MD5 hex of their original column name.
// The result has the same length and order as cols.
func (z Sanitizer) Header(cols []string) []string {
	out := make([]string, len(cols))
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		n := z.Name(c)
		if _, dup := seen[n]; dup {
			n = MD5Hex(c)
		}
		seen[n] = struct{}{}
		out[i] = n
	}
	return out
}

// Name applies the default Sanitizer.
func Name(s string) string { return Sanitizer{}.Name(s) }

// Header applies the default Sanitizer.
func Header(cols []string) []string { return Sanitizer{}.Header(cols) }

// MD5Hex returns the lowercase hex MD5 of s.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func shorten(name string) string {
	var short string
	if len(letterWord.FindAllStringIndex(name, 2)) > 1 {
		var sb strings.Builder
		for _, m := range wordInitials.FindAllStringSubmatch(name, -1) {
			sb.WriteString(m[1])
		}
		short = sb.String()
	}
	if short == "" {
		short = MD5Hex(name)
	}
	if len(short) > MaxLength-1 {
		short = short[:MaxLength-1]
	}
	short += "_"

	remaining := MaxLength - len(short)
	from := len(name) - remaining
	idx := indexFrom(name, " ", from)
	if idx <= 0 {
		idx = indexFrom(name, "_", from)
	}
	if idx < 0 {
		return short
	}
	return short + name[idx:]
}

// indexFrom is strings.Index starting at byte offset from; -1 when absent.
func indexFrom(s, sub string, from int) int {
	if from < 0 {
		from = 0
	}
	if from > len(s) {
		return -1
	}
	i := strings.Index(s[from:], sub)
	if i < 0 {
		return -1
	}
	return from + i
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
