// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/roundtable/internal/discourse"
	"github.com/pdiddy/roundtable/internal/embed"
	"github.com/pdiddy/roundtable/internal/llm"
	"github.com/pdiddy/roundtable/internal/retrieval"
	"github.com/pdiddy/roundtable/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run [topic]",
	Short: "Hold a round-table discussion on a topic",
	Long: `Run warm-starts a discussion on the given topic (background retrieval,
expert roster generation, parallel interviews), then holds the configured
number of interactive turns. The conversation and the knowledge base are
persisted as a session; the final report is written on completion.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscussion,
}

func runDiscussion(cmd *cobra.Command, args []string) error {
	topic := args[0]
	turns, _ := cmd.Flags().GetInt("turns")
	reportPath, _ := cmd.Flags().GetString("report")

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := engineConfig()

	gen, err := llm.NewOpenAIBackend(cfg.LLM)
	if err != nil {
		return err
	}
	embedder, err := embed.NewEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	retriever, err := retrieval.NewCombined(cfg.Retrieval)
	if err != nil {
		return err
	}
	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	engine := discourse.NewEngine(topic, gen, embedder, retriever, cfg.Discourse, logger)

	rec, err := store.Create(ctx, topic)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "session %s\n", rec.ID)

	if err := engine.WarmStart(ctx); err != nil {
		return err
	}
	if err := persist(ctx, store, rec.ID, engine); err != nil {
		return err
	}

	for i := 0; i < turns; i++ {
		turn, err := engine.Step(ctx, nil)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		fmt.Printf("%s (%s): %s\n\n", turn.Role, turn.UtteranceType, turn.Utterance)

		if err := persist(ctx, store, rec.ID, engine); err != nil {
			return err
		}
	}

	return writeReport(ctx, engine, reportPath)
}

// persist saves the conversation and knowledge base snapshot.
func persist(ctx context.Context, store *session.Store, sessionID string, engine *discourse.Engine) error {
	if err := store.SaveTurns(ctx, sessionID, engine.History().Turns()); err != nil {
		return err
	}
	return store.SaveKnowledgeBase(ctx, sessionID, engine.KnowledgeBase())
}

// writeReport renders the report to path, or stdout when path is empty.
func writeReport(ctx context.Context, engine *discourse.Engine, path string) error {
	if path == "" {
		return engine.WriteReport(ctx, os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()
	if err := engine.WriteReport(ctx, f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "report written to %s\n", path)
	return nil
}

func init() {
	runCmd.Flags().Int("turns", 10, "number of interactive turns after warm start")
	runCmd.Flags().String("report", "", "write the final report to this file (default: stdout)")

	rootCmd.AddCommand(runCmd)
}
