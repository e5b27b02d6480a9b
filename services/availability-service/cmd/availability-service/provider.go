package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage the provider registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "register <provider-id>",
		Short: "Register a provider so a schedule can be created for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			svc, err := newService(store, newLogger())
			if err != nil {
				return err
			}
			created, err := svc.RegisterProvider(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "registered provider %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "provider %s already registered\n", args[0])
			}
			return nil
		},
	})
	return cmd
}
