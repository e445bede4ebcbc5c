package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultURL      = "ws://127.0.0.1:18789"
	defaultTimeout  = 30 * time.Second
	maxFrameBytes   = 8 << 20
	clientID        = "nodetalk"
	clientModeCLI   = "cli"
	closeReasonDone = "done"
)

// Options configures a Client.
type Options struct {
	// URL is the gateway WebSocket endpoint (ws:// or wss://).
	URL string

	// Token is the shared gateway token sent in the connect handshake.
	Token string

	// Timeout bounds a whole call (dial, handshake, request, response).
	// Zero means 30s; a negative value disables the client-side budget.
	Timeout time.Duration

	// Version is reported to the gateway in the handshake.
	Version string

	// Mode is reported to the gateway in the handshake ("cli" by default).
	Mode string

	Logger *slog.Logger
}

// Client performs gateway RPC calls. Each Call opens its own connection,
// so a Client holds no per-call state and is safe for concurrent use.
type Client struct {
	opts   Options
	logger *slog.Logger
}

// NewClient creates a Client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Mode == "" {
		opts.Mode = clientModeCLI
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opts: opts, logger: logger}
}

// URL returns the gateway endpoint this client dials.
func (c *Client) URL() string { return c.opts.URL }

// Call sends one request to the gateway and waits for its response payload.
//
// Transport failures and a refused handshake are reported as
// ErrGatewayUnavailable, an exhausted budget as ErrGatewayTimeout, and
// error frames answering method as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	conn, _, err := websocket.Dial(ctx, c.opts.URL, nil)
	if err != nil {
		return nil, transportError(ctx, "dial "+c.opts.URL, err)
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(maxFrameBytes)

	if _, err := request(ctx, conn, MethodConnect, c.connectParams()); err != nil {
		// A refused handshake never reached a node, so it must not read
		// as a rejection of the request itself.
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: connect refused: %s", ErrGatewayUnavailable, rpcErr.Error())
		}
		return nil, fmt.Errorf("gateway: connect: %w", err)
	}

	payload, err := request(ctx, conn, method, params)
	if err != nil {
		c.logger.Debug("gateway call failed", "method", method, "error", err, "elapsed", time.Since(start))
		return nil, err
	}

	_ = conn.Close(websocket.StatusNormalClosure, closeReasonDone)
	c.logger.Debug("gateway call done", "method", method, "elapsed", time.Since(start))
	return payload, nil
}

func (c *Client) connectParams() ConnectParams {
	p := ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client: ClientInfo{
			ID:       clientID,
			Version:  c.opts.Version,
			Platform: runtime.GOOS,
			Mode:     c.opts.Mode,
		},
	}
	if c.opts.Token != "" {
		p.Auth = &AuthParams{Token: c.opts.Token}
	}
	return p
}

// request writes a request frame and reads until the matching response.
// Event frames and responses for other ids are skipped.
func request(ctx context.Context, conn *websocket.Conn, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s params: %w", method, err)
	}

	id := newRequestID()
	data, err := json.Marshal(Frame{Type: FrameRequest, ID: id, Method: method, Params: raw})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode %s frame: %w", method, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return nil, transportError(ctx, "write "+method, err)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil, transportError(ctx, "read "+method, err)
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, method, err)
		}
		if frame.Type != FrameResponse || frame.ID != id {
			continue
		}

		if !frame.OK {
			rpcErr := &RPCError{Method: method}
			if frame.Error != nil {
				rpcErr.Code = frame.Error.Code
				rpcErr.Message = frame.Error.Message
				rpcErr.Details = frame.Error.Details
			}
			return nil, rpcErr
		}
		return frame.Payload, nil
	}
}

// transportError classifies a socket failure: an exhausted context
// deadline is a timeout, anything else means the gateway is unreachable.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrGatewayTimeout, op, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("gateway: %s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%w: %s: %w", ErrGatewayUnavailable, op, err)
}
