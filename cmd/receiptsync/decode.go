package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
	"github.com/vocdoni/gofirma/receiptsync/internal/receipt"
	"github.com/vocdoni/gofirma/receiptsync/internal/version"
)

type decodeOptions struct {
	verify        bool
	roots         string
	maxDepth      int
	minAppVersion string
}

func newDecodeCommand(root *rootOptions) *cobra.Command {
	opts := &decodeOptions{}
	cmd := &cobra.Command{
		Use:   "decode <file>",
		Short: "Decode a binary purchase receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			r, err := opts.parse(raw)
			if err != nil {
				return err
			}
			if root.jsonOutput {
				return printJSON(cmd.OutOrStdout(), r)
			}
			printReceipt(cmd.OutOrStdout(), r)
			if opts.minAppVersion != "" && version.IsOutdated(r.OriginalAppVersion, opts.minAppVersion) {
				warnColor.Fprintf(cmd.OutOrStdout(), "\n  ⚠ original app version %s is older than %s\n", r.OriginalAppVersion, opts.minAppVersion)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "Verify the PKCS#7 signature")
	cmd.Flags().StringVar(&opts.roots, "roots", "", "PEM file with trusted root certificates (implies --verify)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", der.DefaultMaxDepth, "Maximum nesting depth")
	cmd.Flags().StringVar(&opts.minAppVersion, "min-app-version", "", "Warn when the originally purchased app version is older")
	return cmd
}

func (o *decodeOptions) parse(raw []byte) (*receipt.Receipt, error) {
	popts := []receipt.ParserOption{
		receipt.WithDecoder(der.NewDecoder(der.WithMaxDepth(o.maxDepth))),
	}
	if o.roots != "" {
		pem, err := os.ReadFile(o.roots)
		if err != nil {
			return nil, fmt.Errorf("failed to read roots: %w", err)
		}
		pool, err := receipt.LoadRoots(pem)
		if err != nil {
			return nil, err
		}
		popts = append(popts, receipt.WithSignatureVerification(pool))
	} else if o.verify {
		popts = append(popts, receipt.WithSignatureVerification(nil))
	}
	return receipt.NewParser(popts...).Parse(raw)
}
