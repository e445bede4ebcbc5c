package ptt

import (
	"errors"
	"fmt"

	"github.com/flemzord/nodetalk/internal/gateway"
	"github.com/flemzord/nodetalk/internal/metrics"
	"github.com/flemzord/nodetalk/internal/node"
)

// Sentinel errors for the ptt package.
var (
	// ErrRPCRejected matches gateway error frames answering node.invoke.
	ErrRPCRejected = gateway.ErrRejected

	// ErrNoCaller indicates a Dispatcher was configured without a gateway caller.
	ErrNoCaller = errors.New("ptt: no gateway caller configured")
)

// Outcome classifies a dispatch for metrics and history.
func Outcome(result InvocationResult, err error) string {
	switch {
	case err == nil && result.OK:
		return metrics.OutcomeOK
	case err == nil:
		return metrics.OutcomeRejected
	case errors.Is(err, node.ErrNodeNotFound), errors.Is(err, node.ErrAmbiguousNode):
		return metrics.OutcomeNotFound
	case errors.Is(err, gateway.ErrGatewayTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, ErrRPCRejected):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

// Describe renders err as a user-facing message. Resolution errors are
// shown verbatim; gateway failures get a short lead-in so timeouts read
// differently from an unreachable node.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, node.ErrNodeNotFound), errors.Is(err, node.ErrAmbiguousNode):
		return err.Error()
	case errors.Is(err, gateway.ErrGatewayTimeout):
		return fmt.Sprintf("node did not respond in time: %v", err)
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		return fmt.Sprintf("could not reach node: %v", err)
	case errors.Is(err, ErrRPCRejected):
		return fmt.Sprintf("node rejected the request: %v", err)
	default:
		return err.Error()
	}
}
