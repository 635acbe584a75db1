package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielfsbarreto/crewai-expert/internal/search"
)

var (
	// search command flags
	searchK          int
	searchOutputJSON bool
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(currentCmd)

	searchCmd.Flags().IntVarP(&searchK, "k", "k", search.DefaultK, "Number of chunks to return")
	searchCmd.Flags().BoolVar(&searchOutputJSON, "json", false, "Output results as JSON")
}

var searchCmd = &cobra.Command{
	Use:   "search <prompt>",
	Short: "Search the current collection",
	Long: `Search embeds the prompt and returns the closest chunks from the current
collection.

Examples:
  docindex search "how do agents delegate tasks?"
  docindex search -k 10 --json "flows and state"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		svc, err := a.searchService()
		if err != nil {
			return err
		}
		resp, err := svc.Search(ctx, strings.Join(args, " "), searchK)
		if err != nil {
			return err
		}
		return printSearch(cmd.OutOrStdout(), resp, searchOutputJSON)
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the name of the current collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		name, err := a.collections().CurrentCollectionName(ctx, a.prefix())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	},
}

func printSearch(w io.Writer, resp *search.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Hits) == 0 {
		fmt.Fprintf(w, "No results in %s\n", resp.Collection)
		return nil
	}
	for i, hit := range resp.Hits {
		fmt.Fprintf(w, "%d. %s #%d (score %.4f)\n", i+1, hit.SourceIdentifier, hit.Order, hit.Score)
		fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(hit.Text))
	}
	return nil
}
