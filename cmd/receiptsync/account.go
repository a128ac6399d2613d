package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vocdoni/gofirma/receiptsync/internal/app"
	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/net"
)

type call func(ctx context.Context, s *app.Service, completion func(bool)) (*net.Operation, error)

// runCall opens the app, runs c and waits for the acknowledgement.
func runCall(cmd *cobra.Command, root *rootOptions, what string, c call) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	a, err := root.openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), root.wait)
	defer cancel()

	acked := make(chan bool, 1)
	if _, err := c(ctx, a.Service, func(ok bool) { acked <- ok }); err != nil {
		return err
	}
	ok := <-acked
	report(cmd.OutOrStdout(), what, ok)
	if !ok {
		return fmt.Errorf("%s was not acknowledged", what)
	}
	return nil
}

func report(w io.Writer, what string, ok bool) {
	if ok {
		successColor.Fprintf(w, "✓ %s\n", what)
		return
	}
	errorColor.Fprintf(w, "✗ %s\n", what)
}

func newRegisterCommand(root *rootOptions) *cobra.Command {
	var in app.Install
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register this install with the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, root, "register install", func(ctx context.Context, s *app.Service, done func(bool)) (*net.Operation, error) {
				return s.RegisterInstall(ctx, in, done)
			})
		},
	}
	cmd.Flags().StringVar(&in.Currency, "currency", "", "Store currency code")
	cmd.Flags().StringVar(&in.StoreCountry, "country", "", "Store country code")
	cmd.Flags().StringVar(&in.Locale, "locale", "", "Device locale")
	return cmd
}

func newSetCommand(root *rootOptions) *cobra.Command {
	var (
		ids    model.UserIDs
		params map[string]string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set user ids or user properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ids.ExternalUserID == "" && ids.InternalUserID == "" && len(params) == 0 {
				return fmt.Errorf("nothing to set, use --user-id, --internal-user-id or --param")
			}
			if ids.ExternalUserID != "" || ids.InternalUserID != "" {
				err := runCall(cmd, root, "set user id", func(ctx context.Context, s *app.Service, done func(bool)) (*net.Operation, error) {
					return s.SetUserID(ctx, ids, done)
				})
				if err != nil {
					return err
				}
			}
			if len(params) == 0 {
				return nil
			}
			props := make(map[string]any, len(params))
			for k, v := range params {
				props[k] = v
			}
			return runCall(cmd, root, "set properties", func(ctx context.Context, s *app.Service, done func(bool)) (*net.Operation, error) {
				return s.SetProperties(ctx, props, done)
			})
		},
	}
	cmd.Flags().StringVar(&ids.ExternalUserID, "user-id", "", "External user id")
	cmd.Flags().StringVar(&ids.InternalUserID, "internal-user-id", "", "Internal user id")
	cmd.Flags().StringToStringVar(&params, "param", nil, "User property as key=value (repeatable)")
	return cmd
}

func newAdTokenCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "adtoken <token>",
		Short: "Submit an ad attribution token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, root, "submit ad token", func(ctx context.Context, s *app.Service, done func(bool)) (*net.Operation, error) {
				return s.SubmitAdServicesToken(ctx, args[0], done)
			})
		},
	}
}
