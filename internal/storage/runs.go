package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zheng/tgraph/internal/graph"
)

// Run records one build that was persisted to the database
type Run struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Lines       int           `json:"lines"`
	Accepted    int           `json:"accepted"`
	NoMatch     int           `json:"no_match"`
	Unsupported int           `json:"unsupported"`
	Filtered    int           `json:"filtered"`
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun stores a run. An empty ID is filled in.
func (db *DB) RecordRun(ctx context.Context, run *Run) error {
	return recordRun(ctx, db.conn, run)
}

func recordRun(ctx context.Context, ex execer, run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at, duration_ms, lines, accepted, no_match, unsupported, filtered)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.StartedAt.UTC().Format(timeLayout), run.Duration.Milliseconds(),
		run.Lines, run.Accepted, run.NoMatch, run.Unsupported, run.Filtered,
	)
	return err
}

// Persist writes a finished build in one transaction: graph, counters and
// a run record. Existing data is merged, not cleared.
func (db *DB) Persist(ctx context.Context, result *graph.BuildResult, source string, startedAt time.Time) (*Run, error) {
	var run *Run
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		run, err = persist(ctx, tx, result, source, startedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Replace swaps the stored graph and counters for a new build, keeping
// earlier run records. Readers see either the old or the new graph; on
// failure the old one stays.
func (db *DB) Replace(ctx context.Context, result *graph.BuildResult, source string, startedAt time.Time) (*Run, error) {
	var run *Run
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := clearGraph(ctx, tx); err != nil {
			return fmt.Errorf("failed to clear database: %w", err)
		}
		var err error
		run, err = persist(ctx, tx, result, source, startedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func persist(ctx context.Context, ex execer, result *graph.BuildResult, source string, startedAt time.Time) (*Run, error) {
	if err := saveGraph(ctx, ex, result.Graph, startedAt); err != nil {
		return nil, fmt.Errorf("failed to save graph: %w", err)
	}
	if err := saveStats(ctx, ex, result.Stats.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to save statistics: %w", err)
	}

	run := &Run{
		Source:      source,
		StartedAt:   startedAt,
		Duration:    result.Duration,
		Lines:       result.Lines,
		Accepted:    result.Accepted,
		NoMatch:     result.NoMatch,
		Unsupported: result.Unsupported,
		Filtered:    result.Filtered,
	}
	if err := recordRun(ctx, ex, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// GetRuns returns the most recent runs, newest first
func (db *DB) GetRuns(limit int) ([]*Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, source, started_at, duration_ms, lines, accepted, no_match, unsupported, filtered
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetLatestRun returns the most recently started run
func (db *DB) GetLatestRun() (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT id, source, started_at, duration_ms, lines, accepted, no_match, unsupported, filtered
		 FROM runs ORDER BY started_at DESC LIMIT 1`,
	)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt string
	var durationMs int64
	err := row.Scan(&run.ID, &run.Source, &startedAt, &durationMs,
		&run.Lines, &run.Accepted, &run.NoMatch, &run.Unsupported, &run.Filtered)
	if err != nil {
		return nil, err
	}

	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}
