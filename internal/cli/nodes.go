package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/nodetalk/internal/node"
)

// gatewayFlags are the per-invocation gateway overrides shared by the
// nodes subcommands.
type gatewayFlags struct {
	url   string
	token string

	// timeoutMs overrides gateway.call_timeout when positive.
	timeoutMs int
}

func nodesCmd(e *env) *cobra.Command {
	gf := &gatewayFlags{}
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Inspect and control paired nodes",
	}
	cmd.PersistentFlags().StringVar(&gf.url, "url", "", "Gateway WebSocket URL (overrides config)")
	cmd.PersistentFlags().StringVar(&gf.token, "token", "", "Gateway token (overrides config)")
	cmd.PersistentFlags().IntVar(&gf.timeoutMs, "timeout", 0, "Gateway call timeout in ms (overrides gateway.call_timeout, default 30000)")

	cmd.AddCommand(nodesListCmd(e, gf), talkCmd(e, gf))
	return cmd
}

func nodesListCmd(e *env, gf *gatewayFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes known to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lister := node.GatewayLister{Caller: e.gatewayClient(gf, "cli")}
			nodes, err := lister.ListNodes(cmd.Context())
			if err != nil {
				return fmt.Errorf("nodes list failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if nodes == nil {
					nodes = []node.Node{}
				}
				return enc.Encode(nodes)
			}

			if len(nodes) == 0 {
				fmt.Fprintln(out, "No nodes.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPLATFORM\tCONNECTED\tIP")
			for _, n := range nodes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					n.NodeID, dash(n.DisplayName), dash(n.Platform), strconv.FormatBool(n.Connected), dash(n.RemoteIP))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
