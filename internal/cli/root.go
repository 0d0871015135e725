package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charlesng35/formgate/internal/app"
	"github.com/charlesng35/formgate/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	config *app.Config
}

// NewRootCommand creates the formgatectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "formgatectl",
		Short: "Operate a formgate deployment",
		Long: `Administrative tools for formgate.

Reads the same configuration as the server, so paths for the record store,
the allowlist file, and the export target resolve identically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to configuration directory or file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewAllowlistCommand(opts))

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func (o *RootOptions) load() error {
	cfg, err := loadConfig(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if _, err := app.ApplyRuntimeDefaults(cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	if err := app.ConfigureLogging(level, logger.WithConsoleEncoding()); err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	o.config = cfg
	return nil
}

// Config returns the configuration loaded by the persistent pre-run hook.
func (o *RootOptions) Config() *app.Config {
	return o.config
}

func loadConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig("")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return app.LoadConfig("", path)
	}
	return app.LoadConfig(path)
}

func (o *RootOptions) openStores(ctx context.Context) (*app.Stores, error) {
	if o.config == nil {
		return nil, NewExitError(ExitCommandError, "configuration not loaded")
	}
	stores, err := app.OpenStores(ctx, o.config, logger.WithModule("cli"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open stores", err)
	}
	return stores, nil
}
