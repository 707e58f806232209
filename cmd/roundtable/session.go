// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/roundtable/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage stored discussion sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore(engineConfig().Session)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No sessions stored.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTOPIC\tUPDATED")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, rec.Topic, rec.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print a session's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore(engineConfig().Session)
		if err != nil {
			return err
		}
		defer store.Close()

		turns, err := store.LoadTurns(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, turn := range turns {
			fmt.Printf("%s (%s): %s\n\n", turn.Role, turn.UtteranceType, turn.Utterance)
		}
		return nil
	},
}

var sessionSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search across every stored conversation",
	Long: `Search runs an FTS5 query over every stored turn, including the text of
cited snippets, and prints the best matches with their session and turn.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := session.NewStore(engineConfig().Session)
		if err != nil {
			return err
		}
		defer store.Close()

		hits, err := store.SearchTurns(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, h := range hits {
			fmt.Printf("%s turn %d (%s): %s\n", h.SessionID, h.Seq, h.Role, h.Snippet)
		}
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a session and everything stored with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore(engineConfig().Session)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	sessionSearchCmd.Flags().Int("limit", 10, "maximum matches to print")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionSearchCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)

	rootCmd.AddCommand(sessionCmd)
}
