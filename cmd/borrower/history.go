package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fyBorrow/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recorded borrow flow transitions",
		RunE:  runHistory,
	}
	cmd.Flags().String("journal", "./data/flow.jsonl", "flow journal JSONL path")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	entries, err := journal.ReadAll(cfg.Journal)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s  #%d  %-22s %s %s\n", e.Time.Format("2006-01-02T15:04:05Z"), e.Submission, e.Step, e.TxRef, e.Error)
	}
	return nil
}
