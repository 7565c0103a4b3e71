package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jsonrpcd",
		Short: "jsonrpcd - JSON-RPC 2.0 dispatcher",
		Long: `jsonrpcd serves a JSON-RPC 2.0 method registry.

Requests are dispatched to exact-name methods, pattern methods and a
fallback that routes "service.member" names to registered services.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to a TOML or YAML config file")
	cmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before the config")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMethodsCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
