// Package wait decides when Wine has finished writing a file.
//
// Wine gives no signal when a prefix is fully initialized, so the wait is a
// heuristic: the file is considered ready once its size is unchanged across
// two consecutive polls. fsnotify write events on the file restart the
// observation, but polling alone decides readiness.
package wait

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/blackwell-systems/pswine/internal/logging"
)

// ErrTimeout is returned when the file never became usable before the
// timeout.
var ErrTimeout = errors.New("timed out waiting for file")

// Defaults used when Options leaves a field zero.
const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 5 * time.Minute
)

// Options configures ForStableFile.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clockwork.Clock

	// OnPoll, when set, is called with each observed size (-1 when the file
	// is missing). Used for progress output.
	OnPoll func(size int64)
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// ForStableFile blocks until path has the same size on two consecutive
// polls. When the timeout elapses first, it still succeeds if the file
// exists and is non-empty; otherwise it returns ErrTimeout.
func ForStableFile(ctx context.Context, path string, opts Options) error {
	opts = opts.withDefaults()
	logger := logging.Get("wait")

	deadline := opts.Clock.NewTimer(opts.Timeout)
	defer deadline.Stop()

	ticker := opts.Clock.NewTicker(opts.Interval)
	defer ticker.Stop()

	events, closeWatch := watchFile(path)
	defer closeWatch()

	var last int64 = -1
	observe := func() bool {
		size := fileSize(path)
		if opts.OnPoll != nil {
			opts.OnPoll(size)
		}
		stable := size >= 0 && size == last
		last = size
		return stable
	}

	observe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.Chan():
			if observe() {
				logger.Debug().Str("path", path).Int64("size", last).Msg("File is stable")
				return nil
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Name == path && ev.Has(fsnotify.Write) {
				last = -1
			}

		case <-deadline.Chan():
			if size := fileSize(path); size > 0 {
				logger.Warn().
					Str("path", path).
					Int64("size", size).
					Dur("timeout", opts.Timeout).
					Msg("File still changing at timeout, assuming it is usable")
				return nil
			}
			return fmt.Errorf("%w: %s after %s", ErrTimeout, path, opts.Timeout)
		}
	}
}

// ForWinePrefix waits for the prefix's system.reg, the last file wineboot
// writes.
func ForWinePrefix(ctx context.Context, prefix string, opts Options) error {
	return ForStableFile(ctx, filepath.Join(prefix, "system.reg"), opts)
}

// ForUserRegistry waits for the prefix's user.reg, which winetricks keeps
// rewriting while it installs components.
func ForUserRegistry(ctx context.Context, prefix string, opts Options) error {
	return ForStableFile(ctx, filepath.Join(prefix, "user.reg"), opts)
}

// fileSize returns the size of path, or -1 if it does not exist.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

// watchFile watches the parent directory of path. If the directory does not
// exist yet the returned channel is nil and only polling applies.
func watchFile(path string) (<-chan fsnotify.Event, func()) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, func() {}
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, func() {}
	}

	// Drain errors so the watcher never blocks on them.
	go func() {
		for range w.Errors {
		}
	}()

	return w.Events, func() { w.Close() }
}
