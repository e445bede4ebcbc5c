package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/nodetalk/internal/node"
	"github.com/flemzord/nodetalk/internal/ptt"
)

const surfaceCLI = "cli"

func talkCmd(e *env, gf *gatewayFlags) *cobra.Command {
	talk := &cobra.Command{
		Use:   "talk",
		Short: "Talk/voice controls on a paired node",
	}
	pttCmd := &cobra.Command{
		Use:   "ptt",
		Short: "Push-to-talk controls",
	}
	for _, action := range ptt.Actions() {
		pttCmd.AddCommand(pttActionCmd(e, gf, action))
	}
	talk.AddCommand(pttCmd)
	return talk
}

func pttActionCmd(e *env, gf *gatewayFlags, action ptt.Action) *cobra.Command {
	var (
		nodeQuery     string
		invokeTimeout string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   action.Name(),
		Short: action.Description(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fail := func(err error) error {
				return fmt.Errorf("nodes talk ptt %s failed: %s", action.Name(), ptt.Describe(err))
			}
			ctx := cmd.Context()

			tracer, shutdown, err := e.setupTracing(ctx)
			if err != nil {
				return fail(err)
			}
			defer func() { _ = shutdown(ctx) }()

			store, err := e.openHistory(ctx)
			if err != nil {
				return fail(err)
			}
			cfg := ptt.Config{
				Caller: e.gatewayClient(gf, "cli"),
				Logger: e.logger,
				Tracer: tracer,
			}
			if store != nil {
				defer func() { _ = store.Close() }()
				cfg.Recorder = store
			}

			d, err := ptt.NewDispatcher(cfg)
			if err != nil {
				return fail(err)
			}

			resolver := &node.Resolver{Lister: node.GatewayLister{Caller: cfg.Caller}}
			nodeID, err := resolver.Resolve(ctx, nodeQuery)
			if err != nil {
				return fail(err)
			}

			result, err := d.Dispatch(ctx, action, nodeID, ptt.InvokeOptions{
				TimeoutMs: parseInvokeTimeout(invokeTimeout),
				Surface:   surfaceCLI,
			})
			if err != nil {
				return fail(err)
			}

			text := ptt.RenderText(action, result)
			if asJSON {
				if text, err = ptt.RenderJSON(result); err != nil {
					return fail(err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)

			if !result.OK {
				return fmt.Errorf("nodes talk ptt %s failed: node rejected the request", action.Name())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeQuery, "node", "", "Node id, name, or IP")
	cmd.Flags().StringVar(&invokeTimeout, "invoke-timeout", "", "Node invoke timeout in ms (gateway default 15000)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the node payload as JSON")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

// parseInvokeTimeout returns nil for an unset, malformed or negative
// value so the gateway default applies.
func parseInvokeTimeout(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
