package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/nodetalk/internal/command"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// fakeBotAPI serves getMe, a single batch of updates, then empty polls,
// and records sendMessage requests.
type fakeBotAPI struct {
	t       *testing.T
	updates []Update
	polls   atomic.Int32
	sent    chan SendMessageRequest
}

func newFakeBotAPI(t *testing.T, updates ...Update) (*fakeBotAPI, *httptest.Server) {
	t.Helper()
	f := &fakeBotAPI{t: t, updates: updates, sent: make(chan SendMessageRequest, 10)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/bot123:abc/") {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(f.t, w, APIResponse[bool]{ErrorCode: 404, Description: "Not Found"})
		return
	}
	switch strings.TrimPrefix(r.URL.Path, "/bot123:abc/") {
	case "getMe":
		writeJSON(f.t, w, APIResponse[User]{OK: true, Result: User{ID: 1, IsBot: true, Username: "ptt_bot"}})
	case "getUpdates":
		if f.polls.Add(1) == 1 {
			writeJSON(f.t, w, APIResponse[[]Update]{OK: true, Result: f.updates})
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(20 * time.Millisecond):
		}
		writeJSON(f.t, w, APIResponse[[]Update]{OK: true, Result: []Update{}})
	case "sendMessage":
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode sendMessage: %v", err)
		}
		f.sent <- req
		writeJSON(f.t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 99, Chat: Chat{ID: req.ChatID}}})
	default:
		writeJSON(f.t, w, APIResponse[bool]{ErrorCode: 400, Description: "Bad Request: unknown method"})
	}
}

// pttRunner claims /ptt from authorized senders and records contexts.
type pttRunner struct {
	mu   sync.Mutex
	seen []command.CommandContext
}

func (p *pttRunner) Run(_ context.Context, cc command.CommandContext) command.Result {
	p.mu.Lock()
	p.seen = append(p.seen, cc)
	p.mu.Unlock()
	if !strings.HasPrefix(cc.TriggerNormalized, "/ptt") {
		return command.Continue
	}
	if !cc.Authorized {
		return command.Result{}
	}
	return command.Result{Reply: &command.Reply{Text: "PTT once → ios-1\nstatus: offline"}}
}

func (p *pttRunner) contexts() []command.CommandContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]command.CommandContext(nil), p.seen...)
}

func textUpdate(id int, from *User, chatID int64, text string) Update {
	return Update{UpdateID: id, Message: &Message{
		MessageID: id * 10,
		From:      from,
		Chat:      Chat{ID: chatID, Type: "private"},
		Text:      text,
	}}
}

func TestBridge_RunRepliesToAuthorizedCommand(t *testing.T) {
	t.Parallel()

	alice := &User{ID: 100, FirstName: "Alice", Username: "alice"}
	api, srv := newFakeBotAPI(t, textUpdate(1, alice, 200, "/ptt once"))

	runner := &pttRunner{}
	b, err := NewBridge(BridgeConfig{
		Client:   NewClient("123:abc", srv.URL),
		Commands: runner,
		Allow:    NewAllowList([]string{"@Alice"}),
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewBridge: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case req := <-api.sent:
		if req.ChatID != 200 || req.ReplyToMessageID != 10 {
			t.Errorf("sendMessage = %+v", req)
		}
		if !strings.Contains(req.Text, "status: offline") {
			t.Errorf("text = %q", req.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	seen := runner.contexts()
	if len(seen) != 1 {
		t.Fatalf("commands run = %d, want 1", len(seen))
	}
	cc := seen[0]
	if cc.Surface != Surface || cc.From != "100" || cc.SessionKey != "telegram:200" || !cc.Authorized {
		t.Errorf("context = %+v", cc)
	}
}

func TestBridge_HandleUpdate(t *testing.T) {
	t.Parallel()

	stranger := &User{ID: 555, FirstName: "Eve"}
	bot := &User{ID: 2, IsBot: true, Username: "other_bot"}

	tests := []struct {
		name      string
		update    Update
		wantRuns  int
		wantReply bool
	}{
		{name: "unauthorized stays silent", update: textUpdate(1, stranger, 300, "/ptt once"), wantRuns: 1},
		{name: "plain chat passes through", update: textUpdate(2, &User{ID: 100}, 200, "hello"), wantRuns: 1},
		{name: "bots ignored", update: textUpdate(3, bot, 200, "/ptt once")},
		{name: "empty text ignored", update: textUpdate(4, &User{ID: 100}, 200, "  ")},
		{name: "no message", update: Update{UpdateID: 5}},
		{
			name:      "edited message handled",
			update:    Update{UpdateID: 6, EditedMessage: &Message{MessageID: 60, From: &User{ID: 100}, Chat: Chat{ID: 200}, Text: "/ptt stop"}},
			wantRuns:  1,
			wantReply: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api, srv := newFakeBotAPI(t)
			runner := &pttRunner{}
			b, err := NewBridge(BridgeConfig{
				Client:   NewClient("123:abc", srv.URL),
				Commands: runner,
				Allow:    NewAllowList([]string{"100"}),
				Logger:   discardLogger(),
			})
			if err != nil {
				t.Fatalf("NewBridge: %v", err)
			}

			b.HandleUpdate(t.Context(), tt.update)

			if n := len(runner.contexts()); n != tt.wantRuns {
				t.Errorf("commands run = %d, want %d", n, tt.wantRuns)
			}
			select {
			case req := <-api.sent:
				if !tt.wantReply {
					t.Errorf("unexpected reply %+v", req)
				}
			default:
				if tt.wantReply {
					t.Error("expected a reply")
				}
			}
		})
	}
}

func TestNewBridge_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewBridge(BridgeConfig{Commands: &pttRunner{}}); err == nil {
		t.Error("expected error without client")
	}
	if _, err := NewBridge(BridgeConfig{Client: NewClient("123:abc", "")}); err == nil {
		t.Error("expected error without command runner")
	}
}

func TestAllowList(t *testing.T) {
	t.Parallel()

	msg := &Message{From: &User{ID: 100, Username: "Alice"}, Chat: Chat{ID: -42}}

	tests := []struct {
		name    string
		entries []string
		want    bool
	}{
		{name: "empty denies", want: false},
		{name: "wildcard", entries: []string{"*"}, want: true},
		{name: "user id", entries: []string{" 100 "}, want: true},
		{name: "username with at", entries: []string{"@alice"}, want: true},
		{name: "group chat id", entries: []string{"-42"}, want: true},
		{name: "other user", entries: []string{"101", "bob"}, want: false},
	}
	for _, tt := range tests {
		if got := NewAllowList(tt.entries).Allowed(msg); got != tt.want {
			t.Errorf("%s: Allowed = %v, want %v", tt.name, got, tt.want)
		}
	}

	var nilList *AllowList
	if nilList.Allowed(msg) {
		t.Error("nil allow list should deny")
	}
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBotAPI(t)
	c := NewClient("wrong", srv.URL)
	_, err := c.GetMe(t.Context())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != 404 {
		t.Errorf("code = %d, want 404", apiErr.Code)
	}
}

func TestClient_RetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, APIResponse[bool]{ErrorCode: 429, Description: "Too Many Requests", Parameters: &ResponseParameters{RetryAfter: 1}})
			return
		}
		writeJSON(t, w, APIResponse[Message]{OK: true, Result: Message{MessageID: 7}})
	}))
	defer srv.Close()

	msg, err := NewClient("123:abc", srv.URL).SendMessage(t.Context(), SendMessageRequest{ChatID: 1, Text: "hi"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.MessageID != 7 || calls.Load() != 2 {
		t.Errorf("message = %+v, calls = %d", msg, calls.Load())
	}
}

func TestClient_ErrorAnswerIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, APIResponse[bool]{ErrorCode: 400, Description: "Bad Request: chat not found"})
	}))
	defer srv.Close()

	_, err := NewClient("123:abc", srv.URL).GetUpdates(t.Context(), GetUpdatesRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != 400 || apiErr.Description != "Bad Request: chat not found" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
