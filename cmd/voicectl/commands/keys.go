package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"geminivoice-go/internal/credential"

	"github.com/spf13/cobra"
)

// NewKeysCommand groups the credential pool subcommands.
func NewKeysCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect and edit pooled API keys",
	}
	cmd.AddCommand(
		newKeysListCommand(opts),
		newKeysAddCommand(opts),
		newKeysMutateCommand(opts, "enable", "Re-enable a disabled or rate-limited key", func(p *credential.Pool, l string) error { return p.Enable(l) }),
		newKeysMutateCommand(opts, "disable", "Take a key out of rotation", func(p *credential.Pool, l string) error { return p.Disable(l) }),
		newKeysMutateCommand(opts, "reset", "Clear a key's error counter", func(p *credential.Pool, l string) error { return p.ResetErrors(l) }),
		newKeysRotateCommand(opts),
		newKeysStoreCommand(opts),
	)
	return cmd
}

func newKeysListCommand(opts *Options) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pooled keys with masked secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := opts.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.close(ctx)

			st := pool.Stats()
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			if st.Total == 0 {
				printf(out, "no keys configured\n")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			printf(tw, "\tNAME\tKEY\tSTATUS\tSOURCE\tUSES\tERRORS\tLAST USED\n")
			for _, k := range st.Keys {
				marker := ""
				if k.Current {
					marker = "*"
				}
				last := "-"
				if k.LastUsedAt != nil {
					last = k.LastUsedAt.Local().Format(time.DateTime)
				}
				printf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d/%d\t%s\n",
					marker, k.Label, k.Masked, k.Status, k.Origin, k.UsageCount, k.ErrorCount, k.MaxErrors, last)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			printf(out, "\n%d total, %d active, %d rate limited, %d disabled, %d invalid; rotation %s\n",
				st.Total, st.Active, st.RateLimited, st.Disabled, st.Invalid, onOff(st.RotationEnabled))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newKeysAddCommand(opts *Options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <api-key>",
		Short: "Add a key to the persisted pool",
		Long: `Add a key to the persisted pool document.

Examples:
  voicectl keys add --name backup AIza...
  echo "$KEY" | voicectl keys add --name backup -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecretArg(cmd, args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			ctx := cmd.Context()
			pool, err := opts.openPool(ctx)
			if err != nil {
				return err
			}
			if err := pool.AddKey(strings.TrimSpace(name), secret); err != nil {
				_ = pool.close(ctx)
				return err
			}
			if err := pool.close(ctx); err != nil {
				return fmt.Errorf("save pool: %w", err)
			}
			printf(cmd.OutOrStdout(), "added %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Label for the key")
	return cmd
}

func newKeysMutateCommand(opts *Options, use, short string, fn func(*credential.Pool, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := opts.openPool(ctx)
			if err != nil {
				return err
			}
			if err := fn(pool.Pool, args[0]); err != nil {
				_ = pool.close(ctx)
				return err
			}
			rec, err := pool.Get(args[0])
			if cerr := pool.close(ctx); cerr != nil {
				return fmt.Errorf("save pool: %w", cerr)
			}
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s: %s\n", rec.Label, rec.Status)
			return nil
		},
	}
}

func newKeysRotateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Move the persisted rotation index to the next available key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := opts.openPool(ctx)
			if err != nil {
				return err
			}
			rec, err := pool.Rotate()
			if cerr := pool.close(ctx); err == nil && cerr != nil {
				err = fmt.Errorf("save pool: %w", cerr)
			}
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "current key: %s\n", rec.Label)
			return nil
		},
	}
}

func newKeysStoreCommand(opts *Options) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "store <account> <api-key>",
		Short: "Save a key in the OS keychain",
		Long: `Save a key in the OS keychain. Add the account to credentials.keyring.accounts
to have it loaded; keychain keys are trusted like environment keys and never
written to the pool document.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecretArg(cmd, args[1])
			if err != nil {
				return err
			}
			if service == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				service = cfg.Credentials.Keyring.Service
			}
			if service == "" {
				return fmt.Errorf("--service is required when credentials.keyring.service is not configured")
			}
			if err := credential.StoreInKeyring(service, args[0], secret); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "stored %s in keychain service %s\n", args[0], service)
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "Keychain service name")
	return cmd
}

// readSecretArg returns arg, or one line from stdin when arg is "-".
func readSecretArg(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return strings.TrimSpace(arg), nil
	}
	var line string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
		return "", fmt.Errorf("read key from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
