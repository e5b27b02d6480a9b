package main

import (
	"fmt"
	"os"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/spf13/cobra"
)

var Version = "dev"

func NewRootCmd() *cobra.Command {
	var configDir, driver string

	root := &cobra.Command{
		Use:           "availability-service",
		Short:         "Provider working hours, time slots and bookings",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadFile("slotbook", configDir); err != nil {
				return err
			}
			if cmd.Flags().Changed("store") {
				config.Set("STORE_DRIVER", driver)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory holding an optional slotbook.yaml")
	root.PersistentFlags().StringVar(&driver, "store", "postgres", "store driver (postgres or sqlite), overrides STORE_DRIVER")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newProviderCmd())
	return root
}

func Execute() {
	ctx, stop := runtime.SignalContext()
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
