// Package state persists a queryable index of past debate sessions
// alongside the checkpoint files Orchestrator writes per round (spec.md
// §6.2). It is optional: nothing in the agent/judge debate loop depends on
// it, and a CLI invocation that never points --history-db at a file runs
// exactly as if the package did not exist.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/quorum-debate/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SessionIndex is a small SQLite-backed catalog of past DebateSession runs,
// generalized from the teacher's SQLiteStateManager
// (internal/adapters/state/sqlite.go) down to the handful of columns this
// domain's history/status tooling actually queries by: a session's id,
// phase, verdict source, and round counts, never the round/response bodies
// themselves (those live only in the checkpoint JSON, spec.md §6.2).
type SessionIndex struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or reopens) the session index database at path, applying
// the schema migration if the file is new.
func Open(path string) (*SessionIndex, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating history db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(migrationV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history db schema: %w", err)
	}

	return &SessionIndex{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SessionIndex) Close() error {
	return s.db.Close()
}

// Upsert records or updates a session's current summary. Called after every
// checkpoint write so the index never lags the checkpoint by more than one
// round (spec.md §6.2's per-round checkpoint cadence).
func (s *SessionIndex) Upsert(ctx context.Context, session *core.DebateSession, exitCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var verdictSource *string
	if session.FinalVerdict != nil {
		src := string(session.FinalVerdict.Source)
		verdictSource = &src
	}

	var completedAt *string
	if session.Metadata.CompletedAt != nil {
		ts := session.Metadata.CompletedAt.Format(time.RFC3339Nano)
		completedAt = &ts
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, topic, phase, verdict_source, exit_code, started_at, completed_at,
			agent_rounds, judge_rounds, total_tokens, total_cost_usd, checkpoint_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			verdict_source = excluded.verdict_source,
			exit_code = excluded.exit_code,
			completed_at = excluded.completed_at,
			agent_rounds = excluded.agent_rounds,
			judge_rounds = excluded.judge_rounds,
			total_tokens = excluded.total_tokens,
			total_cost_usd = excluded.total_cost_usd,
			checkpoint_path = excluded.checkpoint_path
	`,
		session.ID, session.Topic, string(session.Phase), verdictSource, exitCode,
		session.Metadata.StartedAt.Format(time.RFC3339Nano), completedAt,
		len(session.AgentRounds), len(session.JudgeRounds),
		session.Metadata.TotalTokens, session.Metadata.TotalCostUsd,
		session.Metadata.CheckpointPath,
	)
	if err != nil {
		return fmt.Errorf("upserting session index row: %w", err)
	}
	return nil
}

// SessionSummary is one row of the session index.
type SessionSummary struct {
	ID            string
	Topic         string
	Phase         string
	VerdictSource string
	ExitCode      int
	StartedAt     time.Time
	CompletedAt   *time.Time
	AgentRounds   int
	JudgeRounds   int
	TotalTokens   int
	TotalCostUsd  float64
}

// List returns session summaries ordered most-recently-started first.
func (s *SessionIndex) List(ctx context.Context, limit int) ([]SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, phase, COALESCE(verdict_source, ''), COALESCE(exit_code, -1),
		       started_at, completed_at, agent_rounds, judge_rounds, total_tokens, total_cost_usd
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying session index: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&sum.ID, &sum.Topic, &sum.Phase, &sum.VerdictSource, &sum.ExitCode,
			&startedAt, &completedAt, &sum.AgentRounds, &sum.JudgeRounds, &sum.TotalTokens, &sum.TotalCostUsd); err != nil {
			return nil, fmt.Errorf("scanning session index row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			sum.StartedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
				sum.CompletedAt = &t
			}
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
