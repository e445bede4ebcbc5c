package reload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/nodetalk/internal/config"
)

// ApplyFunc receives each configuration that loaded and validated.
type ApplyFunc func(cfg *config.Config)

// Options configures a Reloader.
type Options struct {
	// Path is the configuration file. Required.
	Path string

	// Apply is called with every good configuration. Required.
	Apply ApplyFunc

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Reloader loads the configuration again on file change or SIGHUP. A
// configuration that fails to load is logged and the current one stays.
type Reloader struct {
	opts    Options
	watcher *Watcher
	logger  *slog.Logger
}

// New validates opts and returns a Reloader.
func New(opts Options) (*Reloader, error) {
	if opts.Path == "" {
		return nil, errors.New("reload: config path is required")
	}
	if opts.Apply == nil {
		return nil, errors.New("reload: apply function is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		opts:    opts,
		watcher: NewWatcher(opts.Path, opts.PollInterval),
		logger:  logger,
	}, nil
}

// Run watches for changes until ctx is done.
func (r *Reloader) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.watcher.Run(ctx)
	}()
	defer func() { <-done }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			r.logger.Info("SIGHUP received, reloading configuration", "path", r.opts.Path)
		case <-r.watcher.Changes():
			r.logger.Info("configuration file changed, reloading", "path", r.opts.Path)
		}
		if err := r.Reload(); err != nil {
			r.logger.Error("configuration reload failed", "error", err)
		}
	}
}

// Reload loads the file once and applies it when valid. Unlike startup,
// a missing or empty file is an error and the running settings stay.
// Editors that save by rename or truncate pass through both states.
func (r *Reloader) Reload() error {
	raw, err := os.ReadFile(r.opts.Path)
	if err != nil {
		return fmt.Errorf("reload: reading %s: %w", r.opts.Path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("reload: %s is empty", r.opts.Path)
	}
	cfg, err := config.Parse(raw, r.opts.Path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	r.opts.Apply(cfg)
	r.logger.Info("configuration reloaded")
	return nil
}
