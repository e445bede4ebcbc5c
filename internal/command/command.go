// Package command handles slash commands arriving from chat surfaces.
// Handlers run in a Pipeline; the first handler that claims a message
// stops further processing of it.
package command

import (
	"context"
	"strings"
)

// Inbound is a chat message as delivered by an upstream channel, after
// the channel has decided whether the sender may run commands.
type Inbound struct {
	Body        string `json:"body"`
	CommandBody string `json:"commandBody,omitempty"`
	Surface     string `json:"surface,omitempty"`
	Provider    string `json:"provider,omitempty"`
	From        string `json:"from,omitempty"`
	SessionKey  string `json:"sessionKey,omitempty"`
	Authorized  bool   `json:"authorized"`
}

// CommandContext is the normalized view handlers work on.
type CommandContext struct {
	Body        string
	CommandBody string
	Surface     string
	Provider    string
	From        string
	SessionKey  string
	Authorized  bool

	// TriggerNormalized is CommandBody trimmed and lower-cased.
	TriggerNormalized string
}

// BuildContext normalizes an inbound message. CommandBody falls back to
// Body and Surface falls back to Provider.
func BuildContext(in Inbound) CommandContext {
	body := in.CommandBody
	if strings.TrimSpace(body) == "" {
		body = in.Body
	}
	body = strings.TrimSpace(body)

	surface := in.Surface
	if surface == "" {
		surface = in.Provider
	}

	return CommandContext{
		Body:              in.Body,
		CommandBody:       body,
		Surface:           surface,
		Provider:          in.Provider,
		From:              in.From,
		SessionKey:        in.SessionKey,
		Authorized:        in.Authorized,
		TriggerNormalized: strings.ToLower(body),
	}
}

// Reply is the text sent back to the chat.
type Reply struct {
	Text string `json:"text"`
}

// Result tells the caller whether other reply handlers may still process
// the message, and what to answer if anything.
type Result struct {
	ShouldContinue bool   `json:"shouldContinue"`
	Reply          *Reply `json:"reply,omitempty"`
}

// Continue is the result of a handler that does not claim the message.
var Continue = Result{ShouldContinue: true}

// Handler processes one command context.
type Handler interface {
	Handle(ctx context.Context, cc CommandContext) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cc CommandContext) Result

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cc CommandContext) Result { return f(ctx, cc) }

// Pipeline runs handlers in order.
type Pipeline struct {
	handlers []Handler
}

// NewPipeline returns a pipeline over handlers. Nil handlers are skipped.
func NewPipeline(handlers ...Handler) *Pipeline {
	p := &Pipeline{}
	for _, h := range handlers {
		if h != nil {
			p.handlers = append(p.handlers, h)
		}
	}
	return p
}

// Run stops at the first handler returning ShouldContinue=false and
// returns its result. When no handler claims the message the result is
// Continue.
func (p *Pipeline) Run(ctx context.Context, cc CommandContext) Result {
	for _, h := range p.handlers {
		if res := h.Handle(ctx, cc); !res.ShouldContinue {
			return res
		}
	}
	return Continue
}
