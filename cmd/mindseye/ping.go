package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPingCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			start := time.Now()
			if err := c.api.Ping(ctx); err != nil {
				return err
			}
			elapsed := time.Since(start)
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"api":       c.api.Origin(),
					"ok":        true,
					"latencyMs": elapsed.Milliseconds(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", colorGreen("✓"), c.api.Origin(), elapsed.Round(time.Millisecond))
			return nil
		},
	}
}
