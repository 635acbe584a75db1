// Docindex indexes the CrewAI documentation into a vector collection and
// serves semantic search over it.
//
// Usage:
//
//	# Index the documentation into a fresh collection
//	docindex index
//
//	# Query the current collection
//	docindex search "how do I define a crew?"
//
//	# Serve HTTP and MCP, or MCP over stdio
//	docindex serve
//	docindex serve --stdio
//
// Configuration is read from ~/.config/crewai-expert/config.yaml, a .env
// file and the environment. See internal/config for the keys.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides the default YAML config location.
	configPath string
	// envFiles are dotenv files loaded before the environment is read.
	envFiles []string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docindex",
	Short: "Index and search the CrewAI documentation",
	Long: `docindex fetches the CrewAI documentation from GitHub, splits it into
token-bounded chunks, embeds them and publishes them into a fresh vector
collection. The newest complete collection is what search reads from.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/crewai-expert/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv file to load (default .env)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "docindex %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}
