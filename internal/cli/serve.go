package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/flemzord/nodetalk/internal/command"
	"github.com/flemzord/nodetalk/internal/config"
	"github.com/flemzord/nodetalk/internal/metrics"
	"github.com/flemzord/nodetalk/internal/node"
	"github.com/flemzord/nodetalk/internal/ptt"
	"github.com/flemzord/nodetalk/internal/reload"
	"github.com/flemzord/nodetalk/internal/server"
	"github.com/flemzord/nodetalk/internal/telegram"
)

func serveCmd(e *env) *cobra.Command {
	var (
		bind          string
		invokeTimeout string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chat commands over HTTP and Telegram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if bind != "" {
				e.cfg.Server.Bind = bind
			}
			svc, cleanup, err := e.buildServices(ctx, parseInvokeTimeout(invokeTimeout))
			if err != nil {
				return err
			}
			defer cleanup()

			return svc.run(ctx)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides server.bind)")
	cmd.Flags().StringVar(&invokeTimeout, "invoke-timeout", "", "Node invoke timeout in ms for chat commands (gateway default 15000)")
	return cmd
}

// services are the long-running parts of serve.
type services struct {
	server   *server.Server
	bridge   *telegram.Bridge
	reloader *reload.Reloader
}

// run serves until ctx is done. The first failure stops the others.
func (s *services) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runners := []func(context.Context) error{s.server.Run}
	if s.bridge != nil {
		runners = append(runners, s.bridge.Run)
	}
	if s.reloader != nil {
		runners = append(runners, s.reloader.Run)
	}

	errCh := make(chan error, len(runners))
	for _, run := range runners {
		go func() {
			err := run(ctx)
			cancel()
			errCh <- err
		}()
	}

	var errs []error
	for range runners {
		errs = append(errs, <-errCh)
	}
	return errors.Join(errs...)
}

// buildServices wires the gateway client, dispatcher, command pipeline,
// HTTP server, optional Telegram bridge and config reloader. cleanup
// releases what was opened.
func (e *env) buildServices(ctx context.Context, invokeTimeoutMs *int) (*services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tracer, shutdown, err := e.setupTracing(ctx)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { _ = shutdown(context.WithoutCancel(ctx)) })

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client := e.gatewayClient(nil, "backend")
	cfg := ptt.Config{
		Caller:  client,
		Logger:  e.logger,
		Metrics: m,
		Tracer:  tracer,
	}

	store, err := e.openHistory(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if store != nil {
		closers = append(closers, func() { _ = store.Close() })
		cfg.Recorder = store
	}

	d, err := ptt.NewDispatcher(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	lister := node.GatewayLister{Caller: client}
	limiter := command.NewRateLimiter(e.cfg.Talk.RateLimitPerMinute, time.Minute)
	handler := command.NewPTTHandler(command.PTTConfig{
		Dispatcher:      d,
		Resolver:        &node.Resolver{Lister: lister},
		Policy:          e.cfg.Talk.Policy(),
		Disabled:        !e.cfg.Commands.TextEnabled(),
		InvokeTimeoutMs: invokeTimeoutMs,
		Limiter:         limiter,
		Metrics:         m,
		Logger:          e.logger,
	})

	srvCfg := server.Config{
		Bind:            e.cfg.Server.Bind,
		BearerToken:     e.cfg.Server.Auth.BearerToken,
		ReadTimeout:     e.cfg.Server.ReadTimeout,
		WriteTimeout:    e.cfg.Server.WriteTimeout,
		ShutdownTimeout: e.cfg.Server.ShutdownTimeout,
		Commands:        command.NewPipeline(handler),
		Gatherer:        reg,
		Probe: func(ctx context.Context) error {
			_, err := lister.ListNodes(ctx)
			return err
		},
		Version: e.info.Version,
		Logger:  e.logger,
	}
	if store != nil {
		srvCfg.History = store
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("serve: %w", err)
	}
	svc := &services{server: srv}

	if tg := e.cfg.Telegram; tg.Enabled() {
		svc.bridge, err = telegram.NewBridge(telegram.BridgeConfig{
			Client:      telegram.NewClient(tg.BotToken, tg.APIURL),
			Commands:    srvCfg.Commands,
			Allow:       telegram.NewAllowList(tg.AllowFrom),
			PollTimeout: tg.PollTimeout,
			Logger:      e.logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("serve: %w", err)
		}
	}

	// Only talk and commands settings apply live; the rest needs a restart.
	if e.cfgFile != "" {
		svc.reloader, err = reload.New(reload.Options{
			Path: e.cfgFile,
			Apply: func(cfg *config.Config) {
				handler.Reconfigure(cfg.Talk.Policy(), !cfg.Commands.TextEnabled())
				limiter.SetLimit(cfg.Talk.RateLimitPerMinute)
			},
			Logger: e.logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("serve: %w", err)
		}
	}
	return svc, cleanup, nil
}
