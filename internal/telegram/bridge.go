package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/nodetalk/internal/command"
)

// Surface identifies Telegram in command contexts, metrics and history.
const Surface = "telegram"

const (
	defaultPollTimeout          = 30
	maxConsecutivePollingErrors = 5
	defaultErrorPause           = 30 * time.Second
)

// CommandRunner handles one chat command. *command.Pipeline implements it.
type CommandRunner interface {
	Run(ctx context.Context, cc command.CommandContext) command.Result
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Client   *Client
	Commands CommandRunner
	Allow    *AllowList

	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int

	// ErrorPause is how long polling pauses after repeated failures.
	ErrorPause time.Duration

	Logger *slog.Logger
}

// Bridge feeds Telegram messages into the command pipeline and sends the
// replies back to the originating chat.
type Bridge struct {
	cfg    BridgeConfig
	logger *slog.Logger
}

// NewBridge validates cfg and returns a Bridge.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.Client == nil {
		return nil, errors.New("telegram: no client configured")
	}
	if cfg.Commands == nil {
		return nil, errors.New("telegram: no command runner configured")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = defaultErrorPause
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{cfg: cfg, logger: logger.With("surface", Surface)}, nil
}

// Run long-polls until ctx is done. Polling errors are logged and retried;
// Run only returns once ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if me, err := b.cfg.Client.GetMe(ctx); err == nil {
		b.logger.Info("telegram bridge started", "bot", me.Username)
	} else if ctx.Err() == nil {
		b.logger.Warn("telegram getMe failed", "error", err)
	}

	var offset, consecutiveErrors int
	for ctx.Err() == nil {
		updates, err := b.cfg.Client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        b.cfg.PollTimeout,
			AllowedUpdates: []string{"message", "edited_message"},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			consecutiveErrors++
			b.logger.Error("telegram getUpdates failed", "error", err, "consecutive_errors", consecutiveErrors)
			if consecutiveErrors >= maxConsecutivePollingErrors {
				b.logger.Warn("telegram polling paused after consecutive errors", "pause", b.cfg.ErrorPause)
				select {
				case <-ctx.Done():
				case <-time.After(b.cfg.ErrorPause):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0
		for _, u := range updates {
			offset = u.UpdateID + 1
			b.HandleUpdate(ctx, u)
		}
	}
	return nil
}

// HandleUpdate runs one update through the commands and sends any reply.
func (b *Bridge) HandleUpdate(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}

	in := command.Inbound{
		Body:       msg.Text,
		Surface:    Surface,
		Provider:   Surface,
		SessionKey: fmt.Sprintf("%s:%d", Surface, msg.Chat.ID),
		Authorized: b.cfg.Allow.Allowed(msg),
	}
	if msg.From != nil {
		in.From = strconv.FormatInt(msg.From.ID, 10)
	}

	res := b.cfg.Commands.Run(ctx, command.BuildContext(in))
	if res.Reply == nil || res.Reply.Text == "" {
		return
	}

	_, err := b.cfg.Client.SendMessage(ctx, SendMessageRequest{
		ChatID:           msg.Chat.ID,
		Text:             res.Reply.Text,
		ReplyToMessageID: msg.MessageID,
		MessageThreadID:  msg.MessageThreadID,
	})
	if err != nil {
		b.logger.Error("telegram sendMessage failed", "chat_id", msg.Chat.ID, "error", err)
	}
}
