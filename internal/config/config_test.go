package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.URL != DefaultGatewayURL {
		t.Errorf("gateway.url = %q, want %q", cfg.Gateway.URL, DefaultGatewayURL)
	}
	if cfg.Gateway.CallTimeout != DefaultCallTimeout {
		t.Errorf("gateway.call_timeout = %v, want %v", cfg.Gateway.CallTimeout, DefaultCallTimeout)
	}
	if !slices.Equal(cfg.Talk.Platforms, []string{"ios", "android", "macos"}) {
		t.Errorf("talk.platforms = %v", cfg.Talk.Platforms)
	}
	if !cfg.Commands.TextEnabled() {
		t.Error("commands.text should default to enabled")
	}
	if cfg.History.Path != "" {
		t.Errorf("history.path = %q, want empty", cfg.History.Path)
	}
	if cfg.Telemetry.ServiceName != DefaultServiceName {
		t.Errorf("telemetry.service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Bind != DefaultBind {
		t.Errorf("server.bind = %q, want %q", cfg.Server.Bind, DefaultBind)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv("NODETALK_TEST_TOKEN", "tok-123")

	path := filepath.Join(t.TempDir(), "nodetalk.yaml")
	raw := `version: "1"
log_level: debug
gateway:
  url: wss://gw.example:443
  token: ${NODETALK_TEST_TOKEN}
  call_timeout: 5s
talk:
  default_node: ${NODETALK_TEST_NODE:-kitchen}
  platforms: [macos]
commands:
  text: false
server:
  bind: 0.0.0.0:9000
  auth:
    bearer_token: hunter2
history:
  path: /tmp/history.db
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Token != "tok-123" {
		t.Errorf("gateway.token = %q, want %q", cfg.Gateway.Token, "tok-123")
	}
	if cfg.Gateway.CallTimeout != 5*time.Second {
		t.Errorf("gateway.call_timeout = %v, want 5s", cfg.Gateway.CallTimeout)
	}
	if got := cfg.Talk.Policy(); got.Node != "kitchen" || !slices.Equal(got.Platforms, []string{"macos"}) {
		t.Errorf("policy = %+v", got)
	}
	if cfg.Commands.TextEnabled() {
		t.Error("commands.text should be disabled")
	}
	if cfg.Server.Auth.BearerToken != "hunter2" {
		t.Errorf("bearer_token = %q", cfg.Server.Auth.BearerToken)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read_timeout = %v, want default", cfg.Server.ReadTimeout)
	}
}

func TestParse_UnresolvedVariable(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("gateway:\n  token: ${NODETALK_SURELY_UNSET_VAR}\n"), "test")
	if err == nil || !strings.Contains(err.Error(), "NODETALK_SURELY_UNSET_VAR") {
		t.Fatalf("error = %v, want unresolved variable", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()

	if _, err := Parse([]byte("gateway: [unclosed"), "test"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "defaults valid", mutate: func(*Config) {}},
		{
			name:    "bad version",
			mutate:  func(c *Config) { c.Version = "2" },
			wantErr: []string{`unsupported version "2"`},
		},
		{
			name:    "http gateway",
			mutate:  func(c *Config) { c.Gateway.URL = "http://127.0.0.1:18789" },
			wantErr: []string{"scheme must be ws or wss"},
		},
		{
			name:    "bad level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: []string{"log_level"},
		},
		{
			name: "telegram",
			mutate: func(c *Config) {
				c.Telegram.BotToken = "not-a-token"
				c.Telegram.PollTimeout = 90
			},
			wantErr: []string{"telegram.bot_token", "telegram.poll_timeout", "telegram.allow_from"},
		},
		{
			name: "telegram valid",
			mutate: func(c *Config) {
				c.Telegram.BotToken = "123456:ABC-def_1"
				c.Telegram.AllowFrom = []string{"*"}
			},
		},
		{
			name: "several problems joined",
			mutate: func(c *Config) {
				c.Server.Bind = "nohostport"
				c.Gateway.CallTimeout = -time.Second
				c.Talk.Platforms = []string{"ios", ""}
				c.Talk.RateLimitPerMinute = -1
			},
			wantErr: []string{"server.bind", "call_timeout", "talk.platforms[1]", "rate_limit_per_minute"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if got := ResolvePath("/explicit.yaml"); got != "/explicit.yaml" {
		t.Errorf("ResolvePath(explicit) = %q", got)
	}

	want := filepath.Join(xdg, "nodetalk", FileName)
	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePath(""); got != want {
		t.Errorf("ResolvePath() = %q, want %q", got, want)
	}
	if paths := SearchPaths(); paths[0] != want {
		t.Errorf("SearchPaths()[0] = %q, want %q", paths[0], want)
	}
}

func TestLoad_UnreadablePath(t *testing.T) {
	t.Parallel()

	// A directory cannot be read as a file.
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, should not be ErrNotExist", err)
	}
}
