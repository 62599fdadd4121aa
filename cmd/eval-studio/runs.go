package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evalstudio/eval-studio/internal/client"
	"github.com/evalstudio/eval-studio/internal/store"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <suite-id>",
		Short: "Launch an evaluation run",
		Long: `Launch an evaluation run for a suite.

The run is created pending and executed asynchronously. With --watch the
command polls until the run reaches a terminal state or the poll window
closes, then prints the summary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			overrideRaw, _ := cmd.Flags().GetString("override")
			watch, _ := cmd.Flags().GetBool("watch")

			var override json.RawMessage
			if overrideRaw != "" {
				if !json.Valid([]byte(overrideRaw)) {
					return fmt.Errorf("--override is not valid JSON")
				}
				override = json.RawMessage(overrideRaw)
			}

			run, err := c.CreateRun(context.Background(), args[0], override)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s created (%s)\n", run.ID, run.Status)

			if !watch {
				fmt.Printf("Poll with: eval-studio runs show %s\n", run.ID)
				return nil
			}

			poller := client.NewPoller(c, client.PollerConfig{})
			last, err := poller.Wait(context.Background(), run.ID)
			if err != nil {
				return err
			}
			if last == nil {
				fmt.Println("Run status unavailable; refresh with runs show")
				return nil
			}
			printRun(last)
			if !last.Status.Terminal() {
				fmt.Printf("Still %s; refresh with: eval-studio runs show %s\n", last.Status, last.ID)
			}
			return nil
		},
	}

	cmd.Flags().String("override", "", "per-run spec override as a JSON object")
	cmd.Flags().BoolP("watch", "w", false, "poll the run to a terminal state")
	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect evaluation runs",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			suiteID, _ := cmd.Flags().GetString("suite")
			limit, _ := cmd.Flags().GetInt("limit")

			runs, err := c.ListRuns(context.Background(), suiteID, limit)
			if err != nil {
				return err
			}

			w := newTable()
			fmt.Fprintln(w, "ID\tSUITE\tSTATUS\tQUESTIONS\tCREATED")
			for _, r := range runs {
				questions := "-"
				if r.Summary != nil {
					questions = fmt.Sprintf("%d", r.Summary.QuestionsTotal)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.SuiteID, r.Status, questions, formatTime(r.CreatedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("suite", "", "filter by suite id")
	cmd.Flags().Int("limit", 0, "maximum runs to return")
	return cmd
}

func runsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run, its summary, and per-question metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			detail, err := c.GetRun(context.Background(), args[0])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printJSON(detail)
			}

			printRun(detail.Run)
			if len(detail.Questions) == 0 {
				return nil
			}

			fmt.Println()
			w := newTable()
			fmt.Fprintln(w, "QID\tBUCKET\tBM25 RANK\tHIER RANK\tBM25 ANS\tHIER ANS")
			for _, m := range detail.Questions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.QID, m.Bucket,
					formatRank(m.BM25GoldRank), formatRank(m.HierGoldRank),
					formatBool(m.BM25WouldAnswer), formatBool(m.HierWouldAnswer))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "print raw JSON")
	return cmd
}

func questionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "question <run-id> <qid>",
		Short: "Show one question's metric and evidence rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			result, err := c.GetRunQuestion(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return printJSON(result)
			}

			m := result.Metric
			fmt.Printf("QID:       %s (%s)\n", m.QID, m.Bucket)
			fmt.Printf("Question:  %s\n", m.Question)
			fmt.Printf("In manual: %t\n", m.ExpectInManual)
			fmt.Printf("BM25:      rank=%s answer=%s\n", formatRank(m.BM25GoldRank), formatBool(m.BM25WouldAnswer))
			fmt.Printf("Hier:      rank=%s answer=%s\n\n", formatRank(m.HierGoldRank), formatBool(m.HierWouldAnswer))

			w := newTable()
			fmt.Fprintln(w, "METHOD\tRANK\tITEM\tSCORE\tMATCH\tWHY")
			for _, row := range result.Rows {
				score := "-"
				if row.Score != nil {
					score = fmt.Sprintf("%.4f", *row.Score)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%t\t%s\n",
					row.Method, row.Rank, row.ItemID, score, row.Match, row.MatchWhy)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "print raw JSON")
	return cmd
}

func printRun(r *store.Run) {
	fmt.Printf("Run:     %s\n", r.ID)
	fmt.Printf("Suite:   %s\n", r.SuiteID)
	fmt.Printf("Status:  %s\n", r.Status)
	fmt.Printf("Created: %s\n", formatTime(r.CreatedAt))
	if r.Error != "" {
		fmt.Printf("Error:   %s\n", r.Error)
	}
	if r.Summary == nil {
		return
	}

	s := r.Summary
	fmt.Printf("Questions: %d total, %d with gold, %d out-of-manual\n",
		s.QuestionsTotal, s.QuestionsWithGold, s.QuestionsOutOfManual)
	fmt.Printf("BM25: hit@1=%.2f hit@3=%.2f hit@5=%.2f hit@10=%.2f false-positives=%d\n",
		s.BM25.HitAt1, s.BM25.HitAt3, s.BM25.HitAt5, s.BM25.HitAt10, s.BM25.FalsePositiveAnswerCount)
	fmt.Printf("Hier: hit@1=%.2f hit@3=%.2f hit@5=%.2f hit@10=%.2f false-positives=%d\n",
		s.Hier.HitAt1, s.Hier.HitAt3, s.Hier.HitAt5, s.Hier.HitAt10, s.Hier.FalsePositiveAnswerCount)
}

func formatRank(rank *int) string {
	if rank == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *rank)
}

func formatBool(b *bool) string {
	if b == nil {
		return "-"
	}
	return fmt.Sprintf("%t", *b)
}
