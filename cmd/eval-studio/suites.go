package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalstudio/eval-studio/internal/client"
	"github.com/evalstudio/eval-studio/internal/suite"
)

func suitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suites",
		Short: "Manage evaluation suites",
	}
	cmd.AddCommand(suitesListCmd(), suitesCreateCmd(), suitesShowCmd(), suitesSpecCmd())
	return cmd
}

func suitesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List suites, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			suites, err := c.ListSuites(context.Background())
			if err != nil {
				return err
			}

			w := newTable()
			fmt.Fprintln(w, "ID\tNAME\tAUTHORITY\tDOCS\tCREATED")
			for _, s := range suites {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					s.ID, s.Name, s.Spec.DocumentAuthorityLevel,
					len(s.Spec.DocumentIDs), formatTime(s.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func suitesCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a suite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			description, _ := cmd.Flags().GetString("description")
			docIDs, _ := cmd.Flags().GetStringSlice("doc")
			authority, _ := cmd.Flags().GetString("authority")
			topK, _ := cmd.Flags().GetInt("top-k")

			created, err := c.CreateSuite(context.Background(), name, description, suite.Spec{
				DocumentIDs:            docIDs,
				DocumentAuthorityLevel: authority,
				TopK:                   topK,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created suite %s\n", created.ID)
			return nil
		},
	}

	cmd.Flags().String("name", "", "suite name (required)")
	cmd.Flags().String("description", "", "suite description")
	cmd.Flags().StringSlice("doc", nil, "document id to scope the suite to (repeatable)")
	cmd.Flags().String("authority", "", "document authority level scope")
	cmd.Flags().Int("top-k", 0, "retrieval depth per question")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func suitesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <suite-id>",
		Short: "Show a suite and its questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			detail, err := c.GetSuite(context.Background(), args[0])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printJSON(detail)
			}

			s := detail.Suite
			fmt.Printf("Suite:       %s\n", s.ID)
			fmt.Printf("Name:        %s\n", s.Name)
			if s.Description != "" {
				fmt.Printf("Description: %s\n", s.Description)
			}
			fmt.Printf("Authority:   %s\n", s.Spec.DocumentAuthorityLevel)
			fmt.Printf("Documents:   %d\n", len(s.Spec.DocumentIDs))
			fmt.Printf("Top K:       %d\n", s.Spec.TopK)
			fmt.Printf("Questions:   %d\n\n", len(detail.Questions))

			w := newTable()
			fmt.Fprintln(w, "QID\tBUCKET\tQUESTION")
			for _, q := range detail.Questions {
				fmt.Fprintf(w, "%s\t%s\t%s\n", q.QID, q.Bucket, truncate(q.Text, 80))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "print raw JSON")
	return cmd
}

func suitesSpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec <suite-id>",
		Short: "Merge a partial spec update onto a suite",
		Long: `Merge a partial spec update onto a suite's stored spec.

The update is a JSON object; absent keys keep their stored values. The
merged spec must still carry a document scope.

Example:
  eval-studio suites spec s-123 --json '{"top_k": 10, "document_ids": ["doc-A"]}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetString("json")
			if raw == "" {
				return fmt.Errorf("--json is required")
			}
			if !json.Valid([]byte(raw)) {
				return fmt.Errorf("--json is not valid JSON")
			}

			updated, err := c.UpdateSpec(context.Background(), args[0], json.RawMessage(raw))
			if err != nil {
				return err
			}
			fmt.Printf("Updated spec for suite %s\n", updated.ID)
			return printJSON(updated.Spec)
		},
	}
	cmd.Flags().String("json", "", "partial spec update as a JSON object")
	return cmd
}

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage suite questions",
	}
	cmd.AddCommand(questionsImportCmd(), questionsGenerateCmd())
	return cmd
}

func questionsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <suite-id>",
		Short: "Import a YAML question batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			report, err := c.ImportQuestions(context.Background(), args[0], string(data))
			if err != nil {
				return err
			}
			printImportReport(report)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "YAML file with a questions list")
	return cmd
}

func questionsGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <suite-id>",
		Short: "Auto-generate a question set from document evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			nTotal, _ := cmd.Flags().GetInt("n")
			nCanonical, _ := cmd.Flags().GetInt("canonical")
			nOut, _ := cmd.Flags().GetInt("out-of-manual")

			result, err := c.GenerateQuestions(context.Background(), args[0], client.GenerateRequest{
				NTotal:       nTotal,
				NCanonical:   nCanonical,
				NOutOfManual: nOut,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Generated from %d evidence paragraphs\n", result.EvidenceCount)
			printImportReport(result.Import)
			return nil
		},
	}
	cmd.Flags().Int("n", 0, "total questions to generate")
	cmd.Flags().Int("canonical", 0, "canonical (section summary) questions")
	cmd.Flags().Int("out-of-manual", 0, "out-of-manual trap questions")
	return cmd
}

func printImportReport(report *suite.ImportReport) {
	if report == nil {
		return
	}
	fmt.Printf("Imported: %d inserted, %d updated of %d\n",
		report.Inserted, report.Updated, report.Total)
	for _, e := range report.Errors {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", e.QID, e.Message)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
