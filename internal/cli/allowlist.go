package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/charlesng35/formgate/internal/allowlist"
	"github.com/charlesng35/formgate/internal/locks"
)

// NewAllowlistCommand groups the allowlist maintenance commands.
func NewAllowlistCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Inspect or provision allowlist tokens",
	}

	cmd.AddCommand(newAllowlistListCommand(rootOpts))
	cmd.AddCommand(newAllowlistAddCommand(rootOpts))

	return cmd
}

func newAllowlistListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the remaining allowlist tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := allowlist.NewFileStore(opts.Config().Storage.AllowlistPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid allowlist path", err)
			}
			tokens, err := store.Load(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read allowlist", err)
			}

			out := cmd.OutOrStdout()
			if len(tokens) == 0 {
				fmt.Fprintln(out, "Allowlist is empty")
				return nil
			}
			for _, token := range tokens {
				fmt.Fprintln(out, token)
			}
			return nil
		},
	}
}

func newAllowlistAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <email>...",
		Short: "Authorize one or more emails for a single submission each",
		Long: `Append normalized tokens to the allowlist file.

Emails that already have an outstanding token are skipped. The file is
rewritten under the same lock the server uses, so it is safe to run
against a live deployment.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			stores, err := opts.openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			release, err := stores.Locker.Acquire(ctx, locks.AllowlistKey)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to lock allowlist", err)
			}
			defer release()

			tokens, err := stores.Allowlist.Load(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read allowlist", err)
			}

			out := cmd.OutOrStdout()
			added := 0
			for _, arg := range args {
				token := allowlist.Normalize(arg)
				if token == "" || !strings.Contains(token, "@") {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid email %q", arg))
				}
				var ok bool
				if tokens, ok = allowlist.Add(tokens, token); ok {
					added++
				} else {
					fmt.Fprintf(out, "skipped %s: already authorized\n", token)
				}
			}

			if added == 0 {
				return nil
			}
			if err := stores.Allowlist.Save(ctx, tokens); err != nil {
				return WrapExitError(ExitFailure, "failed to write allowlist", err)
			}
			fmt.Fprintf(out, "Added %d tokens to %s\n", added, stores.Allowlist.Path())
			return nil
		},
	}
}
