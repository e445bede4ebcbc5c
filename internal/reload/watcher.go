// Package reload re-reads the configuration file while the service runs,
// on file change or SIGHUP.
package reload

import (
	"context"
	"os"
	"time"
)

// DefaultPollInterval is how often the watcher stats the file.
const DefaultPollInterval = 2 * time.Second

// Watcher polls a file and signals when its modification time or size
// changes. A missing file is not a change.
type Watcher struct {
	path     string
	interval time.Duration
	changes  chan struct{}
}

// NewWatcher watches path every interval, or DefaultPollInterval when
// interval is not positive.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		path:     path,
		interval: interval,
		changes:  make(chan struct{}, 1),
	}
}

// Changes delivers one value per detected change. Changes that arrive
// before the previous one is consumed are coalesced.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last, _ := w.stat()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, ok := w.stat()
			if !ok || current == last {
				continue
			}
			last = current
			select {
			case w.changes <- struct{}{}:
			default:
			}
		}
	}
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

func (w *Watcher) stat() (fileStamp, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, true
}
