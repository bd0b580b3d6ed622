package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/posts/internal/auth"
	"github.com/idilsaglam/posts/internal/config"
	"github.com/idilsaglam/posts/internal/platform/logger"
	"github.com/idilsaglam/posts/internal/posts/httpclient"
	"github.com/idilsaglam/posts/internal/ui"
)

// exitError carries a process exit code (1 error, 2 usage).
// A nil err means the message was already shown.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, a ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, a...)}
}

// usageArgs turns argument validation failures into usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &exitError{code: 2, err: fmt.Errorf("%w\nusage: %s", err, cmd.UseLine())}
		}
		return nil
	}
}

// Run executes the posts command line and returns an exit code (0 ok, 1 error, 2 usage).
func Run(ctx context.Context, args []string) int {
	root := newRoot()
	root.SetArgs(args)
	root.SetOut(ui.Stdout)
	root.SetErr(ui.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	switch {
	case errors.As(err, &ee):
		if ee.err != nil {
			ui.Fail(ee.err.Error())
		}
		return ee.code
	case strings.HasPrefix(err.Error(), "unknown command"):
		ui.Fail(err.Error())
		return 2
	}
	ui.Fail(err.Error())
	return 1
}

// app holds what every subcommand shares: flags and the loaded config.
type app struct {
	cfgPath  string
	apiURL   string
	theme    string
	logLevel string

	cfg config.Config
}

func newRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "posts",
		Short: "Read and manage posts, with instant feedback",
		Long: `posts keeps a list of posts on a small HTTP API.

Changes show up immediately and are undone if the server refuses them.
Run "posts serve" to start the API, then "posts ls" to browse.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return &exitError{code: 2}
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &exitError{code: 2, err: fmt.Errorf("%w\nusage: %s", err, cmd.UseLine())}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default ~/.posts/config.yaml)")
	pf.StringVar(&a.apiURL, "api", "", "posts API base URL")
	pf.StringVar(&a.theme, "theme", "", "color theme: classic, neon or mono")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		a.lsCmd(),
		a.addCmd(),
		a.markCmd("read", true),
		a.markCmd("unread", false),
		a.rmCmd(),
		a.serveCmd(),
		a.authCmd(),
	)
	return root
}

// setup loads the config and applies root flags on top of it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("api") {
		cfg.APIURL = a.apiURL
	}
	if flags.Changed("theme") {
		cfg.Theme = a.theme
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return usageErrorf("%v", err)
	}
	ui.SetTheme(cfg.Theme)
	a.cfg = cfg
	return nil
}

// fileLogger logs to the configured file so nothing is drawn over the terminal.
func (a *app) fileLogger() (*slog.Logger, io.Closer, error) {
	if a.cfg.LogFile == "" {
		return slog.New(slog.DiscardHandler), io.NopCloser(nil), nil
	}
	return logger.OpenFile(a.cfg.LogFile, a.cfg.LogLevel)
}

// client builds an API client, authenticated when a token is stored.
func (a *app) client(log *slog.Logger) (*httpclient.Client, error) {
	opts := []httpclient.Option{
		httpclient.WithTimeout(a.cfg.Timeout),
		httpclient.WithLogger(log),
	}
	ti, err := auth.GetToken()
	if err != nil {
		return nil, err
	}
	if ti != nil {
		opts = append(opts, httpclient.WithToken(ti.Token))
	}
	return httpclient.New(a.cfg.APIURL, opts...), nil
}
