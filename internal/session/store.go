// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session persists discussion sessions: the conversation
// history, the knowledge base snapshot, and a full-text index over
// everything said.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/roundtable/internal/mindmap"
	"github.com/pdiddy/roundtable/pkg/types"
)

const dbFile = "roundtable.db"

// Store manages the session SQLite database.
type Store struct {
	db *sql.DB
}

// Record describes one stored session.
type Record struct {
	ID        string
	Topic     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStore opens or creates the session database at
// dataDir/roundtable.db, creating the schema if it does not exist.
func NewStore(cfg types.SessionConfig) (*Store, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "sessions"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			utterance TEXT NOT NULL,
			document TEXT NOT NULL,
			UNIQUE(session_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id)`,
		`CREATE TABLE IF NOT EXISTS kb_snapshots (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			document TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='turns_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE turns_fts USING fts5(utterance, content=turns, content_rowid=rowid)`,
			`CREATE TRIGGER turns_ai AFTER INSERT ON turns BEGIN
				INSERT INTO turns_fts(rowid, utterance) VALUES (new.rowid, new.utterance);
			END`,
			`CREATE TRIGGER turns_ad AFTER DELETE ON turns BEGIN
				INSERT INTO turns_fts(turns_fts, rowid, utterance) VALUES('delete', old.rowid, old.utterance);
			END`,
			`CREATE TRIGGER turns_au AFTER UPDATE ON turns BEGIN
				INSERT INTO turns_fts(turns_fts, rowid, utterance) VALUES('delete', old.rowid, old.utterance);
				INSERT INTO turns_fts(rowid, utterance) VALUES (new.rowid, new.utterance);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// Create registers a new session for a topic and returns its record.
func (s *Store) Create(ctx context.Context, topic string) (Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
	rec.UpdatedAt = rec.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Topic,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("creating session: %w", err)
	}
	return rec, nil
}

// Get returns the session record for id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, topic, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Topic, &created, &updated)
	if err == sql.ErrNoRows {
		return Record{}, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}

// List returns all sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var created, updated string
		if err := rows.Scan(&rec.ID, &rec.Topic, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes a session and everything stored with it.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// SaveTurns replaces the stored conversation for a session.
func (s *Store) SaveTurns(ctx context.Context, sessionID string, turns []types.ConversationTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("deleting old turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO turns (session_id, seq, role, utterance, document) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for seq, turn := range turns {
		doc, err := yaml.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshaling turn %d: %w", seq, err)
		}
		// The indexed text covers the utterance and its snippets so
		// search finds turns by what their sources said, not only by
		// what the speaker repeated.
		if _, err := stmt.ExecContext(ctx,
			sessionID, seq, turn.Role, searchableText(turn), string(doc)); err != nil {
			return fmt.Errorf("inserting turn %d: %w", seq, err)
		}
	}

	if err := s.touch(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// searchableText joins the turn's utterance with its cited snippets.
func searchableText(turn types.ConversationTurn) string {
	parts := []string{turn.Utterance}
	for _, info := range turn.CitedInfo {
		parts = append(parts, info.SnippetText())
	}
	return strings.Join(parts, "\n")
}

// LoadTurns returns the stored conversation for a session in order.
func (s *Store) LoadTurns(ctx context.Context, sessionID string) ([]types.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []types.ConversationTurn
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning turn row: %w", err)
		}
		var turn types.ConversationTurn
		if err := yaml.Unmarshal([]byte(doc), &turn); err != nil {
			return nil, fmt.Errorf("parsing stored turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// SaveKnowledgeBase stores the session's knowledge base snapshot.
func (s *Store) SaveKnowledgeBase(ctx context.Context, sessionID string, kb *mindmap.KnowledgeBase) error {
	doc, err := mindmap.MarshalYAML(kb)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kb_snapshots (session_id, document) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET document=excluded.document`,
		sessionID, string(doc))
	if err != nil {
		return fmt.Errorf("saving knowledge base snapshot: %w", err)
	}

	if err := s.touch(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadKnowledgeBase reconstructs the session's knowledge base snapshot.
func (s *Store) LoadKnowledgeBase(ctx context.Context, sessionID string) (*mindmap.KnowledgeBase, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM kb_snapshots WHERE session_id = ?`, sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no knowledge base snapshot for session %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base snapshot: %w", err)
	}
	return mindmap.UnmarshalYAML([]byte(doc))
}

// SearchHit is one full-text match in a stored conversation.
type SearchHit struct {
	SessionID string
	Seq       int
	Role      string
	Snippet   string
}

// SearchTurns runs a full-text query over every stored turn, best
// matches first.
func (s *Store) SearchTurns(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.session_id, t.seq, t.role, snippet(turns_fts, 0, '[', ']', '…', 12)
		 FROM turns_fts f
		 JOIN turns t ON t.rowid = f.rowid
		 WHERE turns_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching turns: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.SessionID, &h.Seq, &h.Role, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// touch bumps the session's updated_at inside an open transaction.
func (s *Store) touch(ctx context.Context, tx *sql.Tx, sessionID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("updating session timestamp: %w", err)
	}
	return nil
}
