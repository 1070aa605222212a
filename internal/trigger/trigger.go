// Package trigger re-runs a pipeline on a cron schedule or when files appear
// in a watched directory.
//
// Both triggers block until their context is cancelled and never run two
// passes at the same time. A failed run is logged and does not stop the
// trigger.
package trigger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"jsonflat/internal/logging"
)

// DefaultDebounce is the quiet period a watch waits for after the last event.
const DefaultDebounce = time.Second

// RunFunc is one pipeline pass.
type RunFunc func(ctx context.Context) error

// Options configures Schedule and Watch.
type Options struct {
	Logger logging.Logger

	// Debounce is the Watch quiet period. <= 0 means DefaultDebounce.
	Debounce time.Duration

	// Match filters watched file names (base names). nil accepts every file
	// that is not hidden.
	Match func(name string) bool
}

func (o Options) logger() logging.Logger {
	if o.Logger == nil {
		return logging.Nop()
	}
	return o.Logger
}

// ParseSchedule validates a standard cron expression (five fields or a
// descriptor such as "@hourly").
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("trigger: schedule %q: %w", expr, err)
	}
	return s, nil
}

// Schedule runs fn on every tick of expr until ctx is done. A tick that
// fires while the previous run is still going is skipped.
func Schedule(ctx context.Context, expr string, fn RunFunc, opts Options) error {
	log := opts.logger()
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(expr, func() { runOnce(ctx, fn, log, "schedule", logging.Fields{"schedule": expr}) }); err != nil {
		return fmt.Errorf("trigger: schedule %q: %w", expr, err)
	}
	log.Log(logging.Info, "schedule started", logging.Fields{"schedule": expr})
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Watch runs fn after files in dir are created or written, once the
// directory has been quiet for the debounce period. Events that arrive
// during a run schedule one more run afterwards.
func Watch(ctx context.Context, dir string, fn RunFunc, opts Options) error {
	log := opts.logger()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("trigger: create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("trigger: watch %s: %w", dir, err)
	}

	match := opts.Match
	if match == nil {
		match = notHidden
	}
	d := newDebouncer(opts.Debounce)
	defer d.stop()
	log.Log(logging.Info, "watch started", logging.Fields{"dir": dir})

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !match(filepath.Base(ev.Name)) {
				continue
			}
			d.touch(ev.Name)
		case names := <-d.fired:
			runOnce(ctx, fn, log, "watch", logging.Fields{"dir": dir, "files": strings.Join(names, ",")})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Log(logging.Warning, "watcher error", logging.Fields{"dir": dir, "err": err})
		}
	}
}

func runOnce(ctx context.Context, fn RunFunc, log logging.Logger, source string, fields logging.Fields) {
	if ctx.Err() != nil {
		return
	}
	fields["trigger"] = source
	start := time.Now()
	if err := fn(ctx); err != nil {
		fields["err"] = err
		log.Log(logging.Error, "triggered run failed", fields)
		return
	}
	fields["duration"] = time.Since(start).Truncate(time.Millisecond)
	log.Log(logging.Info, "triggered run finished", fields)
}

func notHidden(name string) bool {
	return !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, "~")
}

// debouncer collects touched names and delivers them on fired once no touch
// happened for the quiet period.
type debouncer struct {
	quiet time.Duration
	fired chan []string

	mu    sync.Mutex
	names []string
	seen  map[string]bool
	timer *time.Timer
}

func newDebouncer(quiet time.Duration) *debouncer {
	if quiet <= 0 {
		quiet = DefaultDebounce
	}
	return &debouncer{quiet: quiet, fired: make(chan []string, 1), seen: map[string]bool{}}
}

func (d *debouncer) touch(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seen[name] {
		d.seen[name] = true
		d.names = append(d.names, name)
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	names := d.names
	d.names = nil
	d.seen = map[string]bool{}
	d.timer = nil
	d.mu.Unlock()
	if len(names) == 0 {
		return
	}
	select {
	case d.fired <- names:
	default:
		// A batch is already pending; retry after another quiet period.
		d.mu.Lock()
		for _, n := range names {
			if !d.seen[n] {
				d.seen[n] = true
				d.names = append(d.names, n)
			}
		}
		if d.timer == nil {
			d.timer = time.AfterFunc(d.quiet, d.fire)
		}
		d.mu.Unlock()
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
