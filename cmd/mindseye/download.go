package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mindseye/internal/app"
	"mindseye/internal/gallery"
	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
)

func newDownloadCmd(c *cli) *cobra.Command {
	var videos bool
	var output string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save an artifact's media to a file",
		Long: `Download the media of a saved dream or video, or of a recent public video.

The file is named like the web client names it (dream-<id>.png,
ai-video-<id>.mp4) unless -o is given. Use -o - to write to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			a := app.New(ctx, c.api, c.sessions)
			defer a.Close()
			art, err := findArtifact(ctx, c, a, args[0], videos)
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := c.api.Download(ctx, art, cmd.OutOrStdout())
				return err
			}
			if output == "" {
				output = dreamapi.DownloadName(art)
			}
			n, err := downloadTo(ctx, c.api, art, output)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": art.ID, "file": output, "bytes": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s (%d bytes)\n", colorGreen("✓"), colorBold(output), n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&videos, "videos", false, "look the id up among videos")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout")
	return cmd
}

// findArtifact looks id up in the user's saved list, then among recent videos.
func findArtifact(ctx context.Context, c *cli, a *app.App, id string, videos bool) (domain.Artifact, error) {
	if c.sessions.IsAuthenticated() {
		if err := a.OpenDashboard(ctx); err != nil {
			return domain.Artifact{}, err
		}
		view := a.Dashboard.Images
		if videos {
			view = a.Dashboard.Videos
		}
		if art, ok := view.Find(id); ok {
			return art, nil
		}
	}
	if videos {
		if err := a.LoadRecentVideos(ctx, c.cfg.RecentLimit); err != nil {
			return domain.Artifact{}, err
		}
		if art, ok := a.Recent.Find(id); ok {
			return art, nil
		}
	}
	return domain.Artifact{}, fmt.Errorf("%w: %s", gallery.ErrNotFound, id)
}

func downloadTo(ctx context.Context, api *dreamapi.Client, art domain.Artifact, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := api.Download(ctx, art, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

