package store

import (
	"context"
	"fmt"

	"github.com/contractdev/cdd/internal/report"
)

// RecordRun inserts one completed run into history.
// Uses ON CONFLICT(run_id) DO NOTHING for idempotency - re-recording the
// same run is silently ignored. The full report document is stored as a
// JSON blob so it can be reproduced verbatim later.
func (s *Store) RecordRun(ctx context.Context, rep *report.Report) error {
	blob, err := rep.JSON()
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, contract, started_at, tool_version, passed, failed, skipped, errors, artifacts_dir, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		rep.RunID,
		rep.Contract,
		rep.StartedAt,
		rep.ToolVersion,
		rep.Summary.Passed,
		rep.Summary.Failed,
		rep.Summary.Skipped,
		rep.Summary.Error,
		rep.ArtifactsDir,
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	return nil
}
