package store

import (
	"context"
	"fmt"
)

// Run is one recorded history row. Report carries the stored document
// bytes and is omitted from list output.
type Run struct {
	RunID        string `json:"run_id"`
	Contract     string `json:"contract"`
	StartedAt    string `json:"started_at"`
	ToolVersion  string `json:"tool_version"`
	Passed       int    `json:"passed"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Errors       int    `json:"errors"`
	ArtifactsDir string `json:"artifacts_dir"`
	Report       []byte `json:"-"`
}

// ListRuns returns recent runs, newest first. Ties on started_at break on
// run_id so the order is deterministic. Non-positive limits fall back
// to 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, contract, started_at, tool_version, passed, failed, skipped, errors, artifacts_dir
		FROM runs
		ORDER BY started_at DESC, run_id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		err := rows.Scan(
			&r.RunID, &r.Contract, &r.StartedAt, &r.ToolVersion,
			&r.Passed, &r.Failed, &r.Skipped, &r.Errors, &r.ArtifactsDir,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	// Return empty slice instead of nil
	if runs == nil {
		runs = []Run{}
	}

	return runs, nil
}

// GetRun retrieves a single recorded run by ID, including the stored
// report blob. Returns sql.ErrNoRows if not found.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, contract, started_at, tool_version, passed, failed, skipped, errors, artifacts_dir, report
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(
		&r.RunID, &r.Contract, &r.StartedAt, &r.ToolVersion,
		&r.Passed, &r.Failed, &r.Skipped, &r.Errors, &r.ArtifactsDir, &blob,
	)
	if err != nil {
		return Run{}, err
	}
	r.Report = []byte(blob)
	return r, nil
}
