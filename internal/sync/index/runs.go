package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, direction, organisation, repositories, local_dir, status, error, started_at, finished_at,
	files_skipped, files_transferred, files_failed, packages_skipped, packages_created, packages_failed`

// UpsertRun inserts or replaces a run record
func (d *DB) UpsertRun(ctx context.Context, run Run) error {
	repos, err := json.Marshal(run.Repositories)
	if err != nil {
		return err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			direction=excluded.direction,
			organisation=excluded.organisation,
			repositories=excluded.repositories,
			local_dir=excluded.local_dir,
			status=excluded.status,
			error=excluded.error,
			started_at=excluded.started_at,
			finished_at=excluded.finished_at,
			files_skipped=excluded.files_skipped,
			files_transferred=excluded.files_transferred,
			files_failed=excluded.files_failed,
			packages_skipped=excluded.packages_skipped,
			packages_created=excluded.packages_created,
			packages_failed=excluded.packages_failed
	`, run.ID, run.Direction, run.Organisation, string(repos), run.LocalDir, run.Status, run.Error, run.StartedAt, run.FinishedAt,
		run.FilesSkipped, run.FilesTransferred, run.FilesFailed, run.PackagesSkipped, run.PackagesCreated, run.PackagesFailed)
	return err
}

func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (d *DB) ListRuns(ctx context.Context, limit int) (runs []Run, err error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun removes a run and its failures
func (d *DB) DeleteRun(ctx context.Context, id string) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_failures WHERE run_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (Run, error) {
	var run Run
	var repos, runErr sql.NullString
	var finished sql.NullInt64
	err := scanner.Scan(&run.ID, &run.Direction, &run.Organisation, &repos, &run.LocalDir, &run.Status, &runErr, &run.StartedAt, &finished,
		&run.FilesSkipped, &run.FilesTransferred, &run.FilesFailed, &run.PackagesSkipped, &run.PackagesCreated, &run.PackagesFailed)
	if err != nil {
		return Run{}, err
	}
	if repos.String != "" {
		_ = json.Unmarshal([]byte(repos.String), &run.Repositories)
	}
	run.Error = runErr.String
	run.FinishedAt = finished.Int64
	return run, nil
}
