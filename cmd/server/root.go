package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the gateway CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payx-gateway",
		Short: "PayX gateway - 3-D Secure payment session orchestration",
		Long: `PayX gateway drives the 3-D Secure handshake for payment sessions
and the second screen (QR code) add-card flow.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewKeygenCmd())

	return cmd
}
