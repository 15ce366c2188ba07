package report

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/ir"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// insertRun adds the runs row and reports whether it was new.
func insertRun(ctx context.Context, tx *sql.Tx, row Run) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, ordinal, status, input_digest, output_digest, classes, error_code, error_message, transform_version)
		VALUES (?, (SELECT COALESCE(MAX(ordinal), 0) + 1 FROM runs), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		row.ID,
		row.Status,
		row.InputDigest,
		row.OutputDigest,
		row.Classes,
		row.ErrorCode,
		row.ErrorMessage,
		ir.TransformVersion,
	)
	if err != nil {
		return false, fmt.Errorf("insert run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert run: %w", err)
	}
	return n == 1, nil
}

// WriteRun records a successful run with everything it observed. Writing a
// run ID that is already recorded does nothing.
func (l *Ledger) WriteRun(ctx context.Context, res *engine.Result) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	fresh, err := insertRun(ctx, tx, Run{
		ID:           res.RunID,
		Status:       StatusOK,
		InputDigest:  res.InputDigest,
		OutputDigest: res.OutputDigest,
		Classes:      res.Classes,
	})
	if err != nil {
		return err
	}
	if !fresh {
		return tx.Commit()
	}

	for i, s := range res.Steps {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO steps (run_id, ordinal, name, changed) VALUES (?, ?, ?, ?)`,
			res.RunID, i, s.Name, s.Changed,
		); err != nil {
			return fmt.Errorf("insert step %s: %w", s.Name, err)
		}
	}
	for _, e := range res.Events {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO events (run_id, seq, step, kind, subject, detail) VALUES (?, ?, ?, ?, ?, ?)`,
			res.RunID, e.Seq, e.Step, e.Kind, e.Subject, e.Detail,
		); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}
	for _, f := range res.Fragments {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO fragments (run_id, original_name, suffixed_name, container, kind) VALUES (?, ?, ?, ?, ?)`,
			res.RunID, f.OriginalName, f.SuffixedName, f.ContainerSuperclass, string(f.Kind),
		); err != nil {
			return fmt.Errorf("insert fragment %s: %w", f.OriginalName, err)
		}
	}
	for i, c := range res.Clones {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO clones (run_id, ordinal, rule, class, method, descriptor, redirected) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, i, c.Rule, c.Class, c.Method, c.Descriptor, strings.Join(c.Redirected, ","),
		); err != nil {
			return fmt.Errorf("insert clone %s.%s: %w", c.Class, c.Method, err)
		}
	}
	return tx.Commit()
}

// WriteFailure records a run that aborted with cause.
func (l *Ledger) WriteFailure(ctx context.Context, runID, inputDigest string, cause error) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	code := string(engine.CodeOf(cause))
	if code == "" {
		code = "ERROR"
	}
	if _, err = insertRun(ctx, tx, Run{
		ID:           runID,
		Status:       StatusFailed,
		InputDigest:  inputDigest,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}
