package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/flemzord/nodetalk/internal/metrics"
	"github.com/flemzord/nodetalk/internal/node"
	"github.com/flemzord/nodetalk/internal/ptt"
)

// PTTTrigger is the chat command handled by PTTHandler.
const PTTTrigger = "/ptt"

// Command results used as the "result" metric label.
const (
	resultHandled      = "handled"
	resultFailed       = "failed"
	resultUsage        = "usage"
	resultUnauthorized = "unauthorized"
	resultRateLimited  = "rate_limited"
)

// Dispatcher performs one push-to-talk invocation. *ptt.Dispatcher
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, action ptt.Action, nodeID string, opts ptt.InvokeOptions) (ptt.InvocationResult, error)
}

// NodeResolver maps identifiers to node ids. *node.Resolver implements it.
type NodeResolver interface {
	Resolve(ctx context.Context, query string) (string, error)
	Default(ctx context.Context, policy node.Policy) (string, error)
}

// PTTConfig configures a PTTHandler.
type PTTConfig struct {
	Dispatcher Dispatcher
	Resolver   NodeResolver

	// Policy picks the node when the message names none.
	Policy node.Policy

	// Disabled passes /ptt through untouched (commands.text: false).
	Disabled bool

	// InvokeTimeoutMs is forwarded as timeoutMs. Nil uses the gateway default.
	InvokeTimeoutMs *int

	// Limiter throttles invocations per sender. Nil means unlimited.
	Limiter *RateLimiter

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type pttSettings struct {
	policy   node.Policy
	disabled bool
}

// PTTHandler runs "/ptt <action> [node]" from chat.
type PTTHandler struct {
	cfg      PTTConfig
	settings atomic.Pointer[pttSettings]
	logger   *slog.Logger
}

var _ Handler = (*PTTHandler)(nil)

// NewPTTHandler returns a handler for cfg.
func NewPTTHandler(cfg PTTConfig) *PTTHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &PTTHandler{cfg: cfg, logger: logger}
	h.Reconfigure(cfg.Policy, cfg.Disabled)
	return h
}

// Reconfigure swaps the node policy and the enabled flag. Commands already
// running finish with the previous values.
func (h *PTTHandler) Reconfigure(policy node.Policy, disabled bool) {
	h.settings.Store(&pttSettings{policy: policy, disabled: disabled})
}

// PTTUsage is the reply to a bare or malformed /ptt.
func PTTUsage() string {
	return fmt.Sprintf("Usage: %s <%s> [node]", PTTTrigger, strings.Join(ptt.ActionNames(), "|"))
}

// Handle implements Handler. Failures become reply text; the message is
// always claimed once it is recognized as /ptt.
func (h *PTTHandler) Handle(ctx context.Context, cc CommandContext) Result {
	settings := h.settings.Load()
	args, ok := matchTrigger(cc.TriggerNormalized, cc.CommandBody)
	if !ok || settings.disabled {
		return Continue
	}

	if !cc.Authorized {
		h.logger.Debug("ignoring /ptt from unauthorized sender", "surface", cc.Surface, "from", cc.From)
		h.cfg.Metrics.RecordCommand(cc.Surface, resultUnauthorized)
		return Result{ShouldContinue: false}
	}

	if len(args) == 0 {
		h.cfg.Metrics.RecordCommand(cc.Surface, resultUsage)
		return reply(PTTUsage())
	}

	action, ok := ptt.ParseAction(args[0])
	if !ok {
		h.cfg.Metrics.RecordCommand(cc.Surface, resultUsage)
		return reply(fmt.Sprintf("Unknown PTT action %q. %s", args[0], PTTUsage()))
	}

	if err := h.cfg.Limiter.Allow(senderKey(cc)); err != nil {
		h.logger.Info("ptt rate limited", "action", action.Name(), "surface", cc.Surface, "from", cc.From)
		h.cfg.Metrics.RecordCommand(cc.Surface, resultRateLimited)
		return reply(fmt.Sprintf("PTT %s failed: too many requests, try again shortly", action.Name()))
	}

	nodeID, err := h.resolveNode(ctx, strings.Join(args[1:], " "), settings.policy)
	if err != nil {
		h.logger.Warn("ptt node resolution failed", "action", action.Name(), "surface", cc.Surface, "error", err)
		h.cfg.Metrics.RecordCommand(cc.Surface, resultFailed)
		return reply(fmt.Sprintf("PTT %s failed: %s", action.Name(), ptt.Describe(err)))
	}

	result, err := h.cfg.Dispatcher.Dispatch(ctx, action, nodeID, ptt.InvokeOptions{
		TimeoutMs: h.cfg.InvokeTimeoutMs,
		Surface:   cc.Surface,
	})
	if err != nil {
		h.cfg.Metrics.RecordCommand(cc.Surface, resultFailed)
		return reply(fmt.Sprintf("PTT %s failed: %s", action.Name(), ptt.Describe(err)))
	}

	h.cfg.Metrics.RecordCommand(cc.Surface, resultHandled)
	return reply(ptt.RenderText(action, result))
}

func (h *PTTHandler) resolveNode(ctx context.Context, query string, policy node.Policy) (string, error) {
	if strings.TrimSpace(query) != "" {
		return h.cfg.Resolver.Resolve(ctx, query)
	}
	return h.cfg.Resolver.Default(ctx, policy)
}

// senderKey scopes rate limiting to the conversation, or to the sender
// when the surface has no session.
func senderKey(cc CommandContext) string {
	if cc.SessionKey != "" {
		return cc.SessionKey
	}
	return cc.Surface + ":" + cc.From
}

// matchTrigger reports whether normalized starts with the /ptt command
// (optionally addressed as /ptt@bot) and returns the arguments taken
// from the original body so node names keep their case.
func matchTrigger(normalized, body string) ([]string, bool) {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return nil, false
	}
	head := fields[0]
	if head != PTTTrigger && !strings.HasPrefix(head, PTTTrigger+"@") {
		return nil, false
	}
	args := strings.Fields(body)
	if len(args) != len(fields) {
		args = fields
	}
	return args[1:], true
}

func reply(text string) Result {
	return Result{ShouldContinue: false, Reply: &Reply{Text: text}}
}
