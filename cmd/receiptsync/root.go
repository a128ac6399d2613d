package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vocdoni/gofirma/receiptsync/internal/app"
	"github.com/vocdoni/gofirma/receiptsync/internal/config"
	"github.com/vocdoni/gofirma/receiptsync/internal/version"
)

type rootOptions struct {
	jsonOutput bool
	noColor    bool
	envFile    string
	wait       time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "receiptsync",
		Short: "Decode purchase receipts and sync them with the licensing backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			// glog reads its flags from the standard flag set.
			return flag.CommandLine.Parse(nil)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file with RECEIPTSYNC_* settings")
	cmd.PersistentFlags().DurationVar(&opts.wait, "wait", 2*time.Minute, "Give up waiting for the backend after this long")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	cmd.PersistentFlags().AddFlagSet(pflag.CommandLine)

	cmd.AddCommand(
		newDecodeCommand(opts),
		newValidateCommand(opts),
		newRegisterCommand(opts),
		newSetCommand(opts),
		newAdTokenCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			},
		},
	)
	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	return config.Load(o.envFile)
}

func (o *rootOptions) openApp(cfg config.Config) (*app.App, error) {
	a, err := app.NewApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return a, nil
}
