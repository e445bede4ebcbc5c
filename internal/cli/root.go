// Package cli implements the nodetalk command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/nodetalk/internal/config"
	"github.com/flemzord/nodetalk/internal/gateway"
	"github.com/flemzord/nodetalk/internal/history"
	"github.com/flemzord/nodetalk/internal/logging"
	"github.com/flemzord/nodetalk/internal/telemetry"
)

// BuildInfo is stamped at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// env is the state shared by every subcommand once flags are parsed.
type env struct {
	info       BuildInfo
	configPath string
	levelFlag  string

	// cfgFile is the resolved configuration file, empty when none was found.
	cfgFile  string
	cfg      *config.Config
	logger   *slog.Logger
	logOut   io.Writer
	logLevel slog.Level
}

// NewRootCommand builds the full command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	e := &env{info: info}

	root := &cobra.Command{
		Use:           "nodetalk",
		Short:         "Drive push-to-talk on paired nodes through the gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&e.levelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(e),
		nodesCmd(e),
		serveCmd(e),
		historyCmd(e),
	)
	return root
}

// load reads configuration and builds the logger. Long-running commands
// log at info by default, one-shot commands at warn.
func (e *env) load(cmd *cobra.Command) error {
	e.cfgFile = config.ResolvePath(e.configPath)
	cfg, err := config.Load(e.cfgFile)
	if err != nil {
		return err
	}
	e.cfg = cfg

	level := slog.LevelWarn
	if cmd.Name() == "serve" {
		level = slog.LevelInfo
	}
	for _, s := range []string{cfg.LogLevel, e.levelFlag} {
		if s == "" {
			continue
		}
		if level, err = logging.ParseLevel(s); err != nil {
			return err
		}
	}

	e.logOut = cmd.ErrOrStderr()
	e.logLevel = level
	e.logger = e.newLogger()
	return nil
}

// newLogger returns a logger that masks configured secrets plus extra.
func (e *env) newLogger(extra ...string) *slog.Logger {
	secrets := append([]string{e.cfg.Gateway.Token, e.cfg.Server.Auth.BearerToken, e.cfg.Telegram.BotToken}, extra...)
	return logging.New(e.logOut, e.logLevel, secrets...)
}

// gatewayClient builds a client from config, overridden by flags.
func (e *env) gatewayClient(gf *gatewayFlags, mode string) *gateway.Client {
	opts := gateway.Options{
		URL:     e.cfg.Gateway.URL,
		Token:   e.cfg.Gateway.Token,
		Timeout: e.cfg.Gateway.CallTimeout,
		Version: e.info.Version,
		Mode:    mode,
		Logger:  e.logger,
	}
	if gf != nil {
		if gf.url != "" {
			opts.URL = gf.url
		}
		if gf.token != "" {
			opts.Token = gf.token
			e.logger = e.newLogger(gf.token)
			opts.Logger = e.logger
		}
		if gf.timeoutMs > 0 {
			opts.Timeout = time.Duration(gf.timeoutMs) * time.Millisecond
		}
	}
	return gateway.NewClient(opts)
}

// openHistory opens the configured store, or returns nil when history
// is disabled.
func (e *env) openHistory(ctx context.Context) (*history.Store, error) {
	if e.cfg.History.Path == "" {
		return nil, nil
	}
	return history.Open(ctx, e.cfg.History.Path)
}

// setupTracing installs the tracer provider from config.
func (e *env) setupTracing(ctx context.Context) (trace.Tracer, telemetry.ShutdownFunc, error) {
	tp, shutdown, err := telemetry.Setup(ctx, e.cfg.Telemetry, e.info.Version)
	if err != nil {
		return nil, nil, err
	}
	return telemetry.Tracer(tp), shutdown, nil
}

func versionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nodetalk %s (commit: %s, built: %s)\n", e.info.Version, e.info.Commit, e.info.Date)
		},
	}
}
