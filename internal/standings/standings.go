// Package standings maintains a relational, cross-tournament leaderboard.
// It is downstream of a finalized match, not part of the per-match audit
// trail — the file sink and document sink in internal/telemetry remain
// authoritative for that. This exists because a repeated-run tournament
// system needs somewhere to ask "who's ahead across every run so far,"
// which spec.md's Agent entity gestures at ("aggregated stats") without
// specifying a store.
package standings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Config mirrors the teacher's MySQLConfig shape.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the standings aggregator. A nil *Store (returned by Open when
// cfg.DSN is empty) is valid and every method on it is a no-op, so
// callers need not check whether standings are actually configured.
type Store struct {
	db *sql.DB
}

// Open establishes the MySQL connection with the teacher's own
// retry-on-connect idiom. Returns (nil, nil) when dsn is empty: standings
// aggregation is optional and absence must not block a tournament run.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open standings store: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	var lastErr error
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			break
		}
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if lastErr != nil {
		return nil, fmt.Errorf("ping standings store after %d attempts: %w", maxRetries, lastErr)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure standings schema: %w", err)
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if s == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			model_id VARCHAR(191) PRIMARY KEY,
			display_name VARCHAR(191) NOT NULL,
			matches_played INT NOT NULL DEFAULT 0,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			draws INT NOT NULL DEFAULT 0,
			malformed_json INT NOT NULL DEFAULT 0,
			illegal_move INT NOT NULL DEFAULT 0,
			timeout_count INT NOT NULL DEFAULT 0,
			empty_response INT NOT NULL DEFAULT 0,
			injection_attempts INT NOT NULL DEFAULT 0,
			match_forfeits INT NOT NULL DEFAULT 0,
			last_played_at DATETIME NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tournament_runs (
			run_id VARCHAR(64) PRIMARY KEY,
			tournament_name VARCHAR(191) NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NULL,
			event_mix VARCHAR(1024) NOT NULL,
			champion_model_id VARCHAR(191) NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRun records the start of a tournament run. No-op on a nil Store.
func (s *Store) RegisterRun(ctx context.Context, runID, tournamentName, eventMix string, startedAt time.Time) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tournament_runs (run_id, tournament_name, started_at, event_mix)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE tournament_name = VALUES(tournament_name)`,
		runID, tournamentName, startedAt, eventMix,
	)
	return err
}

// FinishRun records the end of a tournament run and its champion, if one
// was determined.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, championModelID string) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tournament_runs SET finished_at = ?, champion_model_id = ? WHERE run_id = ?`,
		finishedAt, nullableString(championModelID), runID,
	)
	return err
}

// MatchResult is the per-agent outcome of one finalized match, as seen
// by the standings aggregator.
type MatchResult struct {
	ModelID     string
	DisplayName string
	Outcome     string // "win" | "loss" | "draw"
	Violations  map[string]int
	Forfeited   bool
	PlayedAt    time.Time
}

// RecordMatch atomically increments each agent's career totals. Called
// once per finalized match, from the same call site as
// telemetry.Logger.FinalizeMatch.
func (s *Store) RecordMatch(ctx context.Context, results []MatchResult) error {
	if s == nil {
		return nil
	}
	for _, r := range results {
		if err := s.recordOne(ctx, r); err != nil {
			return fmt.Errorf("record standings for %s: %w", r.ModelID, err)
		}
	}
	return nil
}

func (s *Store) recordOne(ctx context.Context, r MatchResult) error {
	win, loss, draw := 0, 0, 0
	switch r.Outcome {
	case "win":
		win = 1
	case "loss":
		loss = 1
	default:
		draw = 1
	}
	forfeits := 0
	if r.Forfeited {
		forfeits = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (
			model_id, display_name, matches_played, wins, losses, draws,
			malformed_json, illegal_move, timeout_count, empty_response,
			injection_attempts, match_forfeits, last_played_at, updated_at
		) VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			matches_played = matches_played + 1,
			wins = wins + VALUES(wins),
			losses = losses + VALUES(losses),
			draws = draws + VALUES(draws),
			malformed_json = malformed_json + VALUES(malformed_json),
			illegal_move = illegal_move + VALUES(illegal_move),
			timeout_count = timeout_count + VALUES(timeout_count),
			empty_response = empty_response + VALUES(empty_response),
			injection_attempts = injection_attempts + VALUES(injection_attempts),
			match_forfeits = match_forfeits + VALUES(match_forfeits),
			last_played_at = VALUES(last_played_at),
			updated_at = VALUES(updated_at)`,
		r.ModelID, r.DisplayName, win, loss, draw,
		r.Violations["malformed_json"], r.Violations["illegal_move"],
		r.Violations["timeout"], r.Violations["empty_response"],
		r.Violations["injection_attempt"], forfeits,
		r.PlayedAt, time.Now(),
	)
	return err
}

// Leaderboard is one row of the cross-tournament standings, ordered by
// win count descending.
type Leaderboard struct {
	ModelID       string
	DisplayName   string
	MatchesPlayed int
	Wins          int
	Losses        int
	Draws         int
}

// TopAgents returns up to limit agents ordered by wins descending. Returns
// an empty slice (not an error) on a nil Store.
func (s *Store) TopAgents(ctx context.Context, limit int) ([]Leaderboard, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, display_name, matches_played, wins, losses, draws
		FROM agents ORDER BY wins DESC, matches_played DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Leaderboard
	for rows.Next() {
		var l Leaderboard
		if err := rows.Scan(&l.ModelID, &l.DisplayName, &l.MatchesPlayed, &l.Wins, &l.Losses, &l.Draws); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool. Safe to call on nil.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
