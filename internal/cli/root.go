// Package cli is the erpctl command tree: a terminal admin console that
// keeps a session against the auth server and answers access questions
// from it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"erpadmin/internal/platform/config"
)

type rootFlags struct {
	configPath string
	serverURL  string
	dataDir    string
	ephemeral  bool
	verbose    bool
	json       bool
}

// newRootCommand builds the erpctl command tree. The session storage is
// opened before the subcommand runs; the returned func closes it and must
// be called once Execute returns, whatever the outcome.
func newRootCommand() (*cobra.Command, func() error) {
	flags := &rootFlags{}
	var current *app

	root := &cobra.Command{
		Use:   "erpctl",
		Short: "Admin console for the ERP auth server",
		Long: `erpctl signs in to the ERP auth server, keeps the session on disk and
answers which permissions, roles and systems the signed-in user has.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
				return nil
			}
			cfg, err := config.LoadClient(flags.configPath, flags.overrides(cmd))
			if err != nil {
				return err
			}
			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			a, err := openApp(cfg, logger)
			if err != nil {
				return err
			}
			current = a
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/erpctl/config.yaml)")
	pf.StringVar(&flags.serverURL, "server", "", "auth server base URL")
	pf.StringVar(&flags.dataDir, "data-dir", "", "directory holding the persisted session")
	pf.BoolVar(&flags.ephemeral, "ephemeral", false, "keep the session in memory only")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging on stderr")
	pf.BoolVar(&flags.json, "json", false, "print results as JSON")

	appFn := func() *app { return current }
	root.AddCommand(
		newLoginCommand(appFn, flags),
		newLogoutCommand(appFn, flags),
		newWhoamiCommand(appFn, flags),
		newRefreshCommand(appFn, flags),
		newSystemsCommand(appFn, flags),
		newCanCommand(appFn, flags),
		newRolesCommand(appFn, flags),
		newPermissionsCommand(appFn, flags),
	)
	closeApp := func() error {
		if current == nil {
			return nil
		}
		err := current.Close()
		current = nil
		return err
	}
	return root, closeApp
}

// overrides returns the flags the user actually set, keyed like the
// config file.
func (f *rootFlags) overrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	set := func(name, key string, value any) {
		if cmd.Flags().Changed(name) {
			out[key] = value
		}
	}
	set("server", "server_url", f.serverURL)
	set("data-dir", "data_dir", f.dataDir)
	set("ephemeral", "ephemeral", f.ephemeral)
	set("verbose", "verbose", f.verbose)
	return out
}

// Execute runs erpctl with ctx and returns the process exit code.
func Execute(ctx context.Context) int {
	return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root, closeApp := newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if closeErr := closeApp(); closeErr != nil && err == nil {
		err = fmt.Errorf("close session storage: %w", closeErr)
	}
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.msg != "" {
			fmt.Fprintln(stderr, exit.msg)
		}
		return exit.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}
