package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flemzord/nodetalk/internal/gateway"
)

// Node is a paired device as reported by the gateway. It is a read-only
// snapshot; nothing in this module mutates node state.
type Node struct {
	NodeID      string `json:"nodeId"`
	DisplayName string `json:"displayName,omitempty"`
	Platform    string `json:"platform,omitempty"`
	Connected   bool   `json:"connected"`
	RemoteIP    string `json:"remoteIp,omitempty"`
}

// Label returns the display name when set, otherwise the node id.
func (n Node) Label() string {
	if name := strings.TrimSpace(n.DisplayName); name != "" {
		return name
	}
	return n.NodeID
}

// Lister returns the current node snapshot.
type Lister interface {
	ListNodes(ctx context.Context) ([]Node, error)
}

// Caller is the subset of the gateway client used to list nodes.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// GatewayLister lists nodes through the gateway's node.list method.
type GatewayLister struct {
	Caller Caller
}

type listResponse struct {
	Nodes []Node `json:"nodes"`
}

// ListNodes implements Lister.
func (l GatewayLister) ListNodes(ctx context.Context) ([]Node, error) {
	raw, err := l.Caller.Call(ctx, gateway.MethodNodeList, map[string]any{})
	if err != nil {
		return nil, err
	}
	var resp listResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("node: decode %s response: %w", gateway.MethodNodeList, err)
		}
	}
	return resp.Nodes, nil
}
