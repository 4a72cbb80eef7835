package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mindseye/internal/app"
	"mindseye/pkg/domain"
)

func newGenerateCmd(c *cli, kind domain.MediaKind) *cobra.Command {
	label := kind.Label()
	short := "Visualize a dream as an image"
	if kind == domain.KindVideo {
		short = "Generate a video from a description"
	}
	cmd := &cobra.Command{
		Use:   label + " <description...>",
		Short: short,
		Long: fmt.Sprintf(`Generate from a description of at most %d characters.

When logged in the result is saved to your account; otherwise it is shown
once and you are offered to log in to keep future results.`, domain.MaxPromptLength),
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			a := app.New(ctx, c.api, c.sessions)
			defer a.Close()

			text := strings.Join(args, " ")
			var art domain.Artifact
			var err error
			if kind == domain.KindVideo {
				art, err = a.GenerateVideo(ctx, text)
			} else {
				art, err = a.GenerateDream(ctx, text)
			}
			if err != nil {
				return err
			}
			offerSave := a.View().SavePrompt != nil

			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"artifact":  art,
					"saved":     art.Saved(),
					"offerSave": offerSave,
				})
			}
			out := cmd.OutOrStdout()
			title := "Dream visualized"
			if kind == domain.KindVideo {
				title = "Video generated"
			}
			fmt.Fprintf(out, "%s %s\n\n", colorGreen("✓"), title)
			fmt.Fprintf(out, "  ID:     %s\n", art.ID)
			fmt.Fprintf(out, "  Prompt: %s\n", art.Prompt)
			fmt.Fprintf(out, "  Media:  %s\n", colorBold(art.MediaURL))
			if art.Saved() {
				fmt.Fprintf(out, "  Saved:  yes\n")
			}
			if offerSave {
				fmt.Fprintf(out, "\n%s Log in to save your %ss: mindseye login\n", colorYellow("!"), label)
			}
			return nil
		},
	}
	return cmd
}
