package main

import (
	"fmt"
	"os"

	"github.com/mkpazon/TmiK/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tmik-gateway",
	Short: "Chat gateway with a pluggable message pipeline",
	Long: `tmik-gateway keeps a Twitch chat session open and runs every incoming and
outgoing line through an ordered chain of plugins before exposing it over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (default $TMIK_CONFIG or "+config.DefaultPath+")")
	rootCmd.AddCommand(serveCmd, pluginsCmd)
}

func configPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	if p := os.Getenv("TMIK_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}
