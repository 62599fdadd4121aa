// Package main provides the evaluation harness CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/evalstudio/eval-studio/internal/client"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eval-studio",
		Short: "Eval Studio - retrieval evaluation harness CLI",
		Long: `Eval Studio drives the retrieval evaluation harness API.

Build suites of questions against published documents, launch evaluation
runs comparing BM25 and hierarchical retrieval, and inspect the per-question
metrics and evidence each run produces.

Run 'eval-studio suites create' to start a suite.
Run 'eval-studio --help' for available commands.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("api", "", "API base URL (overrides saved settings)")

	rootCmd.AddCommand(
		suitesCmd(),
		questionsCmd(),
		runCmd(),
		runsCmd(),
		questionCmd(),
		documentsCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient builds an API client from the --api flag or saved settings.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	baseURL, _ := cmd.Flags().GetString("api")
	if baseURL == "" {
		path, err := client.SettingsPath()
		if err != nil {
			return nil, err
		}
		settings, err := client.LoadSettings(path)
		if err != nil {
			return nil, err
		}
		baseURL = settings.APIBaseURL
	}
	return client.New(client.Config{BaseURL: baseURL}), nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List the published document catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			search, _ := cmd.Flags().GetString("search")
			limit, _ := cmd.Flags().GetInt("limit")

			result, err := c.ListDocuments(context.Background(), client.DocumentsOptions{
				Search: search,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if result.Stale {
				cachedAt := "unknown"
				if result.CachedAt != nil {
					cachedAt = formatTime(*result.CachedAt)
				}
				fmt.Fprintf(os.Stderr, "warning: catalog is stale (cached %s): %s\n", cachedAt, result.Error)
			}

			w := newTable()
			fmt.Fprintln(w, "DOCUMENT ID\tLABEL\tAUTHORITY\tHIER ROWS\tFACT ROWS")
			for _, d := range result.Documents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
					d.DocumentID, d.Label, d.AuthorityLevel, d.HierarchicalRows, d.FactRows)
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("search", "", "filter by label substring")
	cmd.Flags().Int("limit", 0, "maximum documents to return")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <base-url>",
		Short: "Set and persist the API base URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := client.SettingsPath()
			if err != nil {
				return err
			}
			settings, err := client.LoadSettings(path)
			if err != nil {
				return err
			}
			settings.APIBaseURL = args[0]
			if err := client.SaveSettings(path, settings); err != nil {
				return err
			}
			fmt.Printf("API base URL set to %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := client.SettingsPath()
			if err != nil {
				return err
			}
			settings, err := client.LoadSettings(path)
			if err != nil {
				return err
			}
			fmt.Printf("settings file: %s\n", path)
			fmt.Printf("api_base_url:  %s\n", settings.APIBaseURL)
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("eval-studio %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
