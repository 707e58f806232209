// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/internal/session"
)

var reportCmd = &cobra.Command{
	Use:   "report [session-id]",
	Short: "Render a stored session's knowledge base as a markdown report",
	Long: `Report loads a session's knowledge base snapshot, regenerates any stale
node summaries, compacts the citation numbering, and writes the markdown
report with a references section.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	outPath, _ := cmd.Flags().GetString("output")

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := engineConfig()

	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return err
	}
	defer store.Close()

	kb, err := store.LoadKnowledgeBase(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	gen, err := llm.NewOpenAIBackend(cfg.LLM)
	if err != nil {
		return err
	}
	reporter := mindmap.NewReporter(gen, cfg.Discourse, logger)

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := reporter.WriteReport(cmd.Context(), kb, out); err != nil {
		return err
	}

	// The compaction pass renumbered citations; keep the snapshot in step.
	return store.SaveKnowledgeBase(cmd.Context(), sessionID, kb)
}

func init() {
	reportCmd.Flags().String("output", "", "write the report to this file (default: stdout)")

	rootCmd.AddCommand(reportCmd)
}
