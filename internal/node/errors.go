// Package node resolves user-supplied node identifiers against the nodes
// known to the gateway.
package node

import "errors"

// Sentinel errors for the node package.
var (
	ErrNodeNotFound  = errors.New("node: no matching node")
	ErrAmbiguousNode = errors.New("node: identifier matches more than one node")
)
