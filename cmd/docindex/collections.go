package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielfsbarreto/crewai-expert/internal/collections"
)

var colOutputJSON bool

func init() {
	rootCmd.AddCommand(collectionsCmd)
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsPruneCmd)

	collectionsCmd.PersistentFlags().BoolVar(&colOutputJSON, "json", false, "Output results as JSON")
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Inspect and clean up indexed collections",
	Long: `Inspect and clean up the collections under the configured prefix.

Examples:
  # List collections, newest first
  docindex collections list

  # Delete every collection except the current one
  docindex collections prune`,
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections under the prefix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		list, err := a.collections().List(ctx, a.prefix())
		if err != nil {
			return err
		}
		return printCollections(cmd.OutOrStdout(), list, colOutputJSON)
	},
}

var collectionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete every collection except the current one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		deleted, err := a.collections().Prune(ctx, a.prefix())
		out := cmd.OutOrStdout()
		if colOutputJSON {
			if jerr := json.NewEncoder(out).Encode(map[string]any{"deleted": deleted}); jerr != nil {
				return jerr
			}
		} else {
			for _, name := range deleted {
				fmt.Fprintf(out, "Deleted %s\n", name)
			}
		}
		return err
	},
}

func printCollections(w io.Writer, list []collections.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No collections found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCREATED\tPOINTS\tCURRENT")
	for _, s := range list {
		current := ""
		if s.Current {
			current = "*"
		}
		created := "-"
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, created, s.PointCount, current)
	}
	return tw.Flush()
}
