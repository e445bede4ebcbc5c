package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"

	"github.com/flemzord/nodetalk/internal/logging"
)

// Validate checks a Config after defaults have been applied and reports
// every problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.LogLevel != "" {
		if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("config: log_level: %w", err))
		}
	}

	errs = append(errs, validateGateway(cfg.Gateway)...)
	errs = append(errs, validateServer(cfg.Server)...)
	errs = append(errs, validateTelegram(cfg.Telegram)...)

	if cfg.Talk.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("config: talk.rate_limit_per_minute must not be negative"))
	}
	for i, p := range cfg.Talk.Platforms {
		if p == "" {
			errs = append(errs, fmt.Errorf("config: talk.platforms[%d] is empty", i))
		}
	}

	return errors.Join(errs...)
}

func validateGateway(g GatewayConfig) []error {
	var errs []error

	u, err := url.Parse(g.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("config: gateway.url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("config: gateway.url %q: scheme must be ws or wss", g.URL))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("config: gateway.url %q: missing host", g.URL))
	}

	if g.CallTimeout < 0 {
		errs = append(errs, errors.New("config: gateway.call_timeout must not be negative"))
	}
	return errs
}

func validateServer(s ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: server.bind %q: %w", s.Bind, err))
	}
	for name, d := range map[string]int64{
		"read_timeout":     int64(s.ReadTimeout),
		"write_timeout":    int64(s.WriteTimeout),
		"shutdown_timeout": int64(s.ShutdownTimeout),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("config: server.%s must not be negative", name))
		}
	}
	return errs
}

// botTokenPattern matches the Bot API token format: <digits>:<alphanum+dash>.
var botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

func validateTelegram(t TelegramConfig) []error {
	if !t.Enabled() {
		return nil
	}
	var errs []error

	if !botTokenPattern.MatchString(t.BotToken) {
		errs = append(errs, errors.New("config: telegram.bot_token format invalid (expected <bot_id>:<hash>)"))
	}
	if u, err := url.Parse(t.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("config: telegram.api_url must be a valid http/https URL, got %q", t.APIURL))
	}
	if t.PollTimeout < 1 || t.PollTimeout > 50 {
		errs = append(errs, fmt.Errorf("config: telegram.poll_timeout must be 1-50, got %d", t.PollTimeout))
	}
	if len(t.AllowFrom) == 0 {
		errs = append(errs, errors.New("config: telegram.allow_from is empty; no one could run commands"))
	}
	return errs
}
