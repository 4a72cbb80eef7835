package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mindseye/internal/app"
	"mindseye/pkg/session"
)

func newMineCmd(c *cli) *cobra.Command {
	var videos, check bool
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List your saved dreams or videos",
		Long: `List what you have saved. Requires 'mindseye login'.

With --check every media URL is fetched once and broken ones are reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			a := app.New(ctx, c.api, c.sessions)
			defer a.Close()
			if err := a.OpenDashboard(ctx); err != nil {
				if errors.Is(err, session.ErrNotAuthenticated) {
					return errors.New("not logged in: run 'mindseye login'")
				}
				return err
			}

			view := a.Dashboard.Images
			if videos {
				view = a.Dashboard.Videos
			}
			if check {
				view.CheckMedia(ctx, c.api)
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), view.State())
			}
			state := a.Dashboard.State()
			if state.User != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", colorBold(displayName(*state.User)))
			}
			return printView(cmd.OutOrStdout(), view.State())
		},
	}
	cmd.Flags().BoolVar(&videos, "videos", false, "list videos instead of dream images")
	cmd.Flags().BoolVar(&check, "check", false, "verify that each media URL loads")
	return cmd
}

func newRecentCmd(c *cli) *cobra.Command {
	var limit int
	var check bool
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently generated public videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			if limit <= 0 {
				limit = c.cfg.RecentLimit
			}
			a := app.New(ctx, c.api, c.sessions)
			defer a.Close()
			if err := a.LoadRecentVideos(ctx, limit); err != nil {
				return err
			}
			if check {
				a.Recent.CheckMedia(ctx, c.api)
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), a.Recent.State())
			}
			return printView(cmd.OutOrStdout(), a.Recent.State())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of videos (default from config)")
	cmd.Flags().BoolVar(&check, "check", false, "verify that each media URL loads")
	return cmd
}
