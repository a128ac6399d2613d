package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
)

var errNoResult = errors.New("validation did not produce a result")

func newValidateCommand(root *rootOptions) *cobra.Command {
	var prices []string
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate the local receipt against the backend and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parsePrices(prices)
			if err != nil {
				return err
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.ReceiptPath = args[0]
			}
			a, err := root.openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), root.wait)
			defer cancel()
			res := a.Service.ValidateSync(ctx, parsed)
			if root.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res)
			}
			if res == nil {
				return errNoResult
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&prices, "price", nil, "Product price as product_id:price:currency (repeatable)")
	return cmd
}

// parsePrices reads product_id:price:currency triples.
func parsePrices(in []string) ([]model.Price, error) {
	out := make([]model.Price, 0, len(in))
	for _, s := range in {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid price %q, want product_id:price:currency", s)
		}
		out = append(out, model.Price{
			ProductID: parts[0],
			Price:     json.Number(parts[1]),
			Currency:  strings.ToUpper(parts[2]),
		})
	}
	return out, nil
}
