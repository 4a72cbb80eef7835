package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"mindseye/internal/config"
	"mindseye/internal/util"
	"mindseye/pkg/domain"
	"mindseye/pkg/dreamapi"
	"mindseye/pkg/session"
)

// cli is the state shared by all subcommands of one invocation.
type cli struct {
	v        *viper.Viper
	cfgFile  string
	jsonOut  bool
	cfg      *config.Config
	api      *dreamapi.Client
	sessions *session.Store
	stdin    *bufio.Reader
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:   "mindseye",
		Short: "Visualize dreams as images and videos",
		Long: `mindseye sends dream descriptions to the Mind's Eye backend and shows
the generated images and videos.

Generation works without an account. Log in to keep what you generate.

Examples:
  mindseye dream a mystical forest under two moons
  mindseye video waves folding into stars
  mindseye login --email you@example.com
  mindseye mine --videos
  mindseye shell`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "config file (default "+config.Dir()+"/config.yaml)")
	pf.String("api-url", "", "backend origin, e.g. http://localhost:8000")
	pf.String("session-file", "", "file holding the login session")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&c.jsonOut, "json", false, "print JSON instead of text")
	_ = c.v.BindPFlag("api_url", pf.Lookup("api-url"))
	_ = c.v.BindPFlag("session_file", pf.Lookup("session-file"))
	_ = c.v.BindPFlag("log_level", pf.Lookup("log-level"))

	root.AddCommand(
		newLoginCmd(c),
		newRegisterCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newGenerateCmd(c, domain.KindImage),
		newGenerateCmd(c, domain.KindVideo),
		newMineCmd(c),
		newRecentCmd(c),
		newDownloadCmd(c),
		newPingCmd(c),
		newShellCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	c.cfg = cfg
	util.InitLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel)

	c.api = dreamapi.New(
		dreamapi.WithOrigin(cfg.APIURL),
		dreamapi.WithStaticPrefixes(cfg.StaticPrefixes...),
		dreamapi.WithUserAgent("mindseye-cli/"+version),
	)
	storage, err := session.NewFileStorage(cfg.SessionFile)
	if err != nil {
		return err
	}
	c.sessions, err = session.Open(cmd.Context(), storage)
	if err != nil {
		return err
	}
	return nil
}

// context scopes a command's requests to its lifetime and the configured timeout.
func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg != nil && c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (c *cli) promptLine(cmd *cobra.Command, label string) (string, error) {
	if c.stdin == nil {
		c.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := c.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSpace(strings.TrimSuffix(label, ": ")), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptPassword reads without echo from a terminal, or a plain line otherwise.
func (c *cli) promptPassword(cmd *cobra.Command, label string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), label)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	return c.promptLine(cmd, label)
}
