// Package logging is the diagnostics collaborator used by the engine.
//
// Messages carry a level and a bag of context fields. The default adapter
// renders them onto any Printf-style logger (a *log.Logger works) as one
// key=value line:
//
//	level=debug msg="analyzing root" analyze_rows=500 rows_analyzed=0
package logging

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Level is a diagnostic severity.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

// ParseLevel accepts debug, info, warning/warn and error.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, true
	case "", "info":
		return Info, true
	case "warning", "warn":
		return Warning, true
	case "error":
		return Error, true
	default:
		return Info, false
	}
}

// Fields is the structured context attached to a message.
type Fields map[string]any

// Logger receives diagnostics.
type Logger interface {
	Log(level Level, msg string, fields Fields)
}

// Printfer is satisfied by *log.Logger.
type Printfer interface {
	Printf(format string, v ...any)
}

// printfLogger renders key=value lines onto a Printfer.
type printfLogger struct {
	out Printfer
	min Level
}

// New returns a Logger writing lines at or above min to out.
func New(out Printfer, min Level) Logger {
	if out == nil {
		return Nop()
	}
	return &printfLogger{out: out, min: min}
}

func (p *printfLogger) Log(level Level, msg string, fields Fields) {
	if level < p.min {
		return
	}
	p.out.Printf("%s", Format(level, msg, fields))
}

// Format renders one line. Field keys are sorted.
func Format(level Level, msg string, fields Fields) string {
	var sb strings.Builder
	sb.WriteString("level=")
	sb.WriteString(level.String())
	sb.WriteString(" msg=")
	sb.WriteString(strconv.Quote(msg))

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(formatValue(fields[k]))
	}
	return sb.String()
}

func formatValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	case error:
		s = x.Error()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

type nop struct{}

func (nop) Log(Level, string, Fields) {}

// Nop discards everything.
func Nop() Logger { return nop{} }

// Recorder keeps every entry in memory. Tests use it to assert on diagnostics.
type Recorder struct {
	Entries []Entry
}

// Entry is one recorded message.
type Entry struct {
	Level  Level
	Msg    string
	Fields Fields
}

func (r *Recorder) Log(level Level, msg string, fields Fields) {
	r.Entries = append(r.Entries, Entry{Level: level, Msg: msg, Fields: fields})
}

// Filter returns the entries at exactly level.
func (r *Recorder) Filter(level Level) []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
