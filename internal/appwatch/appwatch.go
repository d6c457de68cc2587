// Package appwatch detects which supported editing application is running
// so that beat markers can be pushed to it.
package appwatch

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
)

// DefaultInterval is the process list polling interval.
const DefaultInterval = time.Second

// App is a supported external application.
type App int32

const (
	None App = iota
	Premiere
	AfterEffects
	Resolve
)

func (a App) String() string {
	switch a {
	case None:
		return "none"
	case Premiere:
		return "premiere"
	case AfterEffects:
		return "aftereffects"
	case Resolve:
		return "resolve"
	default:
		return "unknown"
	}
}

// DisplayName is the product name shown to users.
func (a App) DisplayName() string {
	switch a {
	case Premiere:
		return "Adobe Premiere Pro"
	case AfterEffects:
		return "Adobe After Effects"
	case Resolve:
		return "DaVinci Resolve"
	default:
		return ""
	}
}

// ProcessLister returns the names of the running processes.
type ProcessLister interface {
	ProcessNames(ctx context.Context) ([]string, error)
}

// ProcessListerFunc adapts a function to ProcessLister.
type ProcessListerFunc func(ctx context.Context) ([]string, error)

// ProcessNames calls f.
func (f ProcessListerFunc) ProcessNames(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// SystemLister lists processes through gopsutil. Processes that exit while
// being listed are skipped.
type SystemLister struct{}

// ProcessNames implements ProcessLister.
func (SystemLister) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Detect returns the highest priority application among names. Premiere
// wins over After Effects, which wins over Resolve.
func Detect(names []string) App {
	found := None
	for _, n := range names {
		app := match(strings.ToLower(n))
		if app != None && (found == None || app < found) {
			found = app
			if found == Premiere {
				break
			}
		}
	}
	return found
}

func match(name string) App {
	switch {
	case name == "adobe premiere pro.exe" || strings.HasPrefix(name, "adobe premiere pro"):
		return Premiere
	case name == "afterfx.exe" || strings.Contains(name, "after effects"):
		return AfterEffects
	case name == "resolve.exe" || name == "resolve":
		return Resolve
	default:
		return None
	}
}

// Watcher polls the process list and keeps the current application.
type Watcher struct {
	lister   ProcessLister
	interval time.Duration
	onChange func(prev, next App)
	log      logger.Logger

	current atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	failing bool // owned by the poll loop
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLister replaces the gopsutil process lister.
func WithLister(l ProcessLister) Option {
	return func(w *Watcher) { w.lister = l }
}

// WithInterval sets the polling interval. Values <= 0 keep the default.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// OnChange registers a callback run on the polling goroutine whenever the
// detected application changes.
func OnChange(fn func(prev, next App)) Option {
	return func(w *Watcher) { w.onChange = fn }
}

// WithLogger sets the watcher logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// GetLogger returns the appwatch package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("appwatch")
}

// New returns a stopped Watcher.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		lister:   SystemLister{},
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = GetLogger()
	}
	return w
}

// Current returns the last detected application.
func (w *Watcher) Current() App {
	return App(w.current.Load())
}

// Start polls once and then keeps polling in the background until ctx is
// done or Stop is called. Starting a running watcher does nothing.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.log.Info("starting application watcher", logger.Duration("interval", w.interval))

	w.wg.Go(func() {
		w.Poll(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Poll(ctx)
			}
		}
	})
}

// Stop ends polling and waits for the loop to exit. It must not be called
// from an OnChange callback.
func (w *Watcher) Stop() {
	// mu stays held until the loop has exited, so a concurrent Start cannot
	// add to wg while Wait runs
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return
	}

	w.cancel()
	w.wg.Wait()
	w.cancel = nil
	w.log.Info("application watcher stopped")
}

// Poll lists the processes once and updates the current application. A
// listing failure keeps the previous value. Poll is not safe for
// concurrent use with a running watcher.
func (w *Watcher) Poll(ctx context.Context) App {
	names, err := w.lister.ProcessNames(ctx)
	if err != nil {
		if ctx.Err() == nil && !w.failing {
			w.failing = true
			enhanced := errors.New(err).
				Component("appwatch").
				Category(errors.CategoryProcessWatch).
				Context("operation", "list_processes").
				Build()
			w.log.Warn("failed to list processes", logger.Error(enhanced))
		}
		return w.Current()
	}
	w.failing = false

	next := Detect(names)
	prev := App(w.current.Swap(int32(next)))
	if prev != next {
		w.log.Info("connected application changed",
			logger.String("previous", prev.String()),
			logger.String("current", next.String()))
		if w.onChange != nil {
			w.onChange(prev, next)
		}
	}
	return next
}
