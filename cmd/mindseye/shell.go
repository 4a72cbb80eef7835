package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mindseye/internal/app"
	"mindseye/internal/forms"
	"mindseye/internal/gallery"
	"mindseye/pkg/session"
)

const shellHelp = `Commands:
  dream <text>       visualize a dream
  video <text>       generate a video
  save               log in to save (after a generation while logged out)
  later              dismiss the save offer
  login | register   authenticate
  logout             end the session
  gallery | videos   show generated dreams or videos
  clear              clear the generated videos
  recent [n]         load recent public videos
  mine [videos]      show your saved dreams or videos
  show <id>          preview an artifact
  close              close the preview
  state              print the full client state as JSON
  help               this text
  quit               leave the shell`

func newShellCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with tabs, galleries and save prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(cmd.Context(), c.api, c.sessions)
			defer a.Close()
			if c.stdin == nil {
				c.stdin = bufio.NewReader(cmd.InOrStdin())
			}
			sh := &shell{cli: c, app: a, cmd: cmd, out: cmd.OutOrStdout()}
			return sh.run()
		},
	}
}

type shell struct {
	cli *cli
	app *app.App
	cmd *cobra.Command
	out io.Writer
}

func (s *shell) run() error {
	fmt.Fprintln(s.out, "Mind's Eye. Type 'help' for commands.")
	for {
		fmt.Fprint(s.out, s.promptText())
		line, err := s.cli.stdin.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				return nil
			}
			return err
		}
		name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		if name == "" {
			continue
		}
		if name == "quit" || name == "exit" {
			return nil
		}
		if err := s.exec(name, strings.TrimSpace(arg)); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			printError(s.out, forms.ErrorMessage(err, "command failed"))
		}
	}
}

func (s *shell) promptText() string {
	v := s.app.View()
	who := "guest"
	if v.User != nil {
		who = displayName(*v.User)
	} else if v.Authenticated {
		who = "logged in"
	}
	return fmt.Sprintf("[%s %s]> ", v.Tab, who)
}

func (s *shell) exec(name, arg string) error {
	ctx, cancel := s.cli.context(s.cmd)
	defer cancel()

	switch name {
	case "help":
		fmt.Fprintln(s.out, shellHelp)
	case "dream", "video":
		return s.generate(ctx, name, arg)
	case "save":
		if s.app.View().SavePrompt == nil {
			return errors.New("nothing to save")
		}
		s.app.AcceptSavePrompt()
		return s.authenticate(ctx, forms.ModeLogin)
	case "later":
		s.app.DeclineSavePrompt()
	case "login":
		return s.authenticate(ctx, forms.ModeLogin)
	case "register":
		return s.authenticate(ctx, forms.ModeRegister)
	case "logout":
		if err := s.app.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s Logged out\n", colorGreen("✓"))
	case "gallery":
		s.app.SetTab(app.TabDreams)
		return printView(s.out, s.app.Gallery.State())
	case "videos":
		s.app.SetTab(app.TabVideos)
		if err := printView(s.out, s.app.Videos.State()); err != nil {
			return err
		}
		if !s.cli.sessions.IsAuthenticated() {
			return nil
		}
		if err := s.app.LoadUserVideos(ctx); err != nil && !errors.Is(err, gallery.ErrSuperseded) {
			return err
		}
		fmt.Fprintf(s.out, "\n%s\n", colorBold("Your videos"))
		return printView(s.out, s.app.UserVideos.State())
	case "clear":
		s.app.ClearLatestVideo()
	case "recent":
		limit := s.cli.cfg.RecentLimit
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid count %q", arg)
			}
			limit = n
		}
		if err := s.app.LoadRecentVideos(ctx, limit); err != nil {
			return err
		}
		return printView(s.out, s.app.Recent.State())
	case "mine":
		if err := s.app.OpenDashboard(ctx); err != nil {
			if errors.Is(err, session.ErrNotAuthenticated) {
				return errors.New("log in first: type 'login'")
			}
			return err
		}
		st := s.app.Dashboard.State()
		if st.Error != "" {
			return errors.New(st.Error)
		}
		if arg == "videos" {
			return printView(s.out, st.Videos)
		}
		return printView(s.out, st.Images)
	case "show":
		return s.show(arg)
	case "close":
		for _, v := range s.views() {
			v.ClosePreview()
		}
		s.app.CloseDashboard()
	case "state":
		return printJSON(s.out, s.app.View())
	default:
		return fmt.Errorf("unknown command %q, type 'help'", name)
	}
	return nil
}

func (s *shell) generate(ctx context.Context, name, text string) error {
	var err error
	if name == "video" {
		_, err = s.app.GenerateVideo(ctx, text)
	} else {
		_, err = s.app.GenerateDream(ctx, text)
	}
	if err != nil {
		return err
	}
	v := s.app.View()
	if name == "video" {
		_ = printView(s.out, v.Videos)
	} else {
		_ = printView(s.out, v.Gallery)
	}
	if v.SavePrompt != nil {
		fmt.Fprintf(s.out, "\n%s Save your %ss? Type 'save' to log in or 'later'.\n",
			colorYellow("!"), v.SavePrompt.Kind.Label())
	}
	return nil
}

func (s *shell) authenticate(ctx context.Context, mode forms.AuthMode) error {
	s.app.OpenAuth()
	s.app.Auth.SetMode(mode)
	email, err := s.cli.promptLine(s.cmd, "Email: ")
	if err != nil {
		s.app.CloseAuth()
		return err
	}
	password, err := s.cli.promptPassword(s.cmd, "Password: ")
	if err != nil {
		s.app.CloseAuth()
		return err
	}
	s.app.Auth.SetEmail(email)
	s.app.Auth.SetPassword(password)
	if err := s.app.SubmitAuth(ctx); err != nil {
		s.app.CloseAuth()
		return err
	}
	if mode == forms.ModeRegister {
		fmt.Fprintf(s.out, "%s %s\n", colorGreen("✓"), s.app.Auth.State().Notice)
		s.app.CloseAuth()
		return nil
	}
	user, _ := s.cli.sessions.User()
	fmt.Fprintf(s.out, "%s Logged in as %s\n", colorGreen("✓"), colorBold(displayName(user)))
	return nil
}

func (s *shell) show(id string) error {
	if id == "" {
		return errors.New("usage: show <id>")
	}
	for _, v := range s.views() {
		if err := v.Select(id); err == nil {
			art, _ := v.Selected()
			fmt.Fprintf(s.out, "%s\n  %s\n  %s\n  %s\n",
				colorBold(art.ID), art.Prompt, art.MediaURL, art.CreatedAt.Local().Format(time.DateTime))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", gallery.ErrNotFound, id)
}

func (s *shell) views() []*gallery.View {
	return []*gallery.View{s.app.Gallery, s.app.Videos, s.app.Recent, s.app.Dashboard.Images, s.app.Dashboard.Videos}
}
