package node

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// DefaultPlatforms is the platform preference used when picking a node
// implicitly.
var DefaultPlatforms = []string{"ios", "android", "macos"}

// Policy selects a node when the caller names none.
type Policy struct {
	// Node, when set, is resolved like an explicit identifier.
	Node string

	// Platforms orders the platforms considered for implicit selection.
	// Empty means DefaultPlatforms.
	Platforms []string
}

// Resolver maps identifiers to node ids using a Lister snapshot.
type Resolver struct {
	Lister Lister
}

// Resolve returns the id of the node matching query by id, display name,
// or remote address, in that order.
func (r *Resolver) Resolve(ctx context.Context, query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", fmt.Errorf("%w: empty node identifier", ErrNodeNotFound)
	}
	nodes, err := r.Lister.ListNodes(ctx)
	if err != nil {
		return "", err
	}
	n, err := Match(nodes, q)
	if err != nil {
		return "", err
	}
	return n.NodeID, nil
}

// Default returns the node selected by policy.
func (r *Resolver) Default(ctx context.Context, policy Policy) (string, error) {
	if strings.TrimSpace(policy.Node) != "" {
		return r.Resolve(ctx, policy.Node)
	}
	nodes, err := r.Lister.ListNodes(ctx)
	if err != nil {
		return "", err
	}
	n, err := SelectDefault(nodes, policy.Platforms)
	if err != nil {
		return "", err
	}
	return n.NodeID, nil
}

// Match resolves query against nodes. Each tier (id, name, address) is
// tried in turn; the first tier with any match decides, and more than one
// distinct node in that tier is an error rather than a silent pick.
func Match(nodes []Node, query string) (Node, error) {
	q := strings.TrimSpace(query)
	qSlug := slug(q)

	tiers := []func(Node) bool{
		func(n Node) bool { return n.NodeID == q },
		func(n Node) bool {
			name := strings.TrimSpace(n.DisplayName)
			return name != "" && (strings.EqualFold(name, q) || (qSlug != "" && slug(name) == qSlug))
		},
		func(n Node) bool { return n.RemoteIP != "" && n.RemoteIP == q },
	}

	for _, match := range tiers {
		found := distinct(nodes, match)
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			return Node{}, ambiguous(q, found)
		}
	}
	return Node{}, fmt.Errorf("%w: %q", ErrNodeNotFound, q)
}

// SelectDefault picks a connected node by platform preference. When no
// preferred platform has a connected node, a single connected node of any
// platform is accepted.
func SelectDefault(nodes []Node, platforms []string) (Node, error) {
	if len(platforms) == 0 {
		platforms = DefaultPlatforms
	}
	connected := distinct(nodes, func(n Node) bool { return n.Connected })
	if len(connected) == 0 {
		return Node{}, fmt.Errorf("%w: no connected node", ErrNodeNotFound)
	}

	for _, platform := range platforms {
		found := distinct(connected, func(n Node) bool {
			return strings.EqualFold(strings.TrimSpace(n.Platform), platform)
		})
		switch len(found) {
		case 0:
			continue
		case 1:
			return found[0], nil
		default:
			return Node{}, ambiguous(platform, found)
		}
	}

	if len(connected) == 1 {
		return connected[0], nil
	}
	return Node{}, ambiguous("connected", connected)
}

// distinct returns matching nodes, de-duplicated by node id.
func distinct(nodes []Node, match func(Node) bool) []Node {
	var out []Node
	for _, n := range nodes {
		if !match(n) {
			continue
		}
		if slices.ContainsFunc(out, func(o Node) bool { return o.NodeID == n.NodeID }) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func ambiguous(query string, found []Node) error {
	labels := make([]string, len(found))
	for i, n := range found {
		if n.Label() == n.NodeID {
			labels[i] = n.NodeID
		} else {
			labels[i] = fmt.Sprintf("%s (%s)", n.Label(), n.NodeID)
		}
	}
	return fmt.Errorf("%w: %q matches %s", ErrAmbiguousNode, query, strings.Join(labels, ", "))
}

// slug lowercases s and collapses every run of non-alphanumerics to "-".
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
