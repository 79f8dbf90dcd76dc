package main

import (
	"fmt"

	"github.com/mkpazon/TmiK/internal/plugins"
	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List builtin plugins",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range plugins.BuiltinNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}
