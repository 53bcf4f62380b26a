package index

import (
	"context"
	"database/sql"
)

// ReplaceFailures stores the failed items of a run, in order
func (d *DB) ReplaceFailures(ctx context.Context, runID string, failures []Failure) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM run_failures WHERE run_id = ?`, runID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_failures (run_id, seq, kind, path, code, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for i, f := range failures {
		if _, err := stmt.ExecContext(ctx, runID, i, f.Kind, f.Path, f.Code, f.Message); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListFailures(ctx context.Context, runID string) (failures []Failure, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT run_id, kind, path, code, message
		FROM run_failures WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var f Failure
		var code, message sql.NullString
		if err := rows.Scan(&f.RunID, &f.Kind, &f.Path, &code, &message); err != nil {
			return nil, err
		}
		f.Code = code.String
		f.Message = message.String
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return failures, nil
}
