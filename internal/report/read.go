package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/hostctx"
	"github.com/roach88/shadowtransform/internal/ir"
)

// ErrRunNotFound reports a run ID the ledger has no record of.
var ErrRunNotFound = errors.New("run not found")

// Run is one runs row.
type Run struct {
	ID               string `json:"id"`
	Ordinal          int64  `json:"ordinal"`
	Status           string `json:"status"`
	InputDigest      string `json:"input_digest"`
	OutputDigest     string `json:"output_digest,omitempty"`
	Classes          int    `json:"classes"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	TransformVersion string `json:"transform_version"`
}

// Detail is a run with everything recorded for it.
type Detail struct {
	Run       Run                  `json:"run"`
	Steps     []engine.StepSummary `json:"steps"`
	Events    []engine.Event       `json:"events"`
	Fragments []ir.FragmentRecord  `json:"fragments"`
	Clones    []hostctx.Clone      `json:"clones"`
}

const runColumns = `id, ordinal, status, input_digest, output_digest, classes, error_code, error_message, transform_version`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Ordinal, &r.Status, &r.InputDigest, &r.OutputDigest,
		&r.Classes, &r.ErrorCode, &r.ErrorMessage, &r.TransformVersion)
	return r, err
}

// Runs lists every recorded run, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY ordinal ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recently recorded run.
func (l *Ledger) Latest(ctx context.Context) (Run, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY ordinal DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("query latest run: %w", err)
	}
	return r, nil
}

// Detail returns the run with the given ID and its records.
func (l *Ledger) Detail(ctx context.Context, id string) (*Detail, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}
	d := &Detail{Run: r}
	if d.Steps, err = l.steps(ctx, id); err != nil {
		return nil, err
	}
	if d.Events, err = l.Events(ctx, id); err != nil {
		return nil, err
	}
	if d.Fragments, err = l.fragments(ctx, id); err != nil {
		return nil, err
	}
	if d.Clones, err = l.clones(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// Events returns the events of a run in seq order.
func (l *Ledger) Events(ctx context.Context, runID string) ([]engine.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, step, kind, subject, detail
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []engine.Event{}
	for rows.Next() {
		var e engine.Event
		if err := rows.Scan(&e.Seq, &e.Step, &e.Kind, &e.Subject, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// EventsFor returns every event about subject across all runs, ordered by
// run then seq.
func (l *Ledger) EventsFor(ctx context.Context, subject string) (map[string][]engine.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT e.run_id, e.seq, e.step, e.kind, e.subject, e.detail
		FROM events e
		JOIN runs r ON r.id = e.run_id
		WHERE e.subject = ?
		ORDER BY r.ordinal ASC, e.seq ASC
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("query events for %s: %w", subject, err)
	}
	defer rows.Close()

	out := map[string][]engine.Event{}
	for rows.Next() {
		var (
			runID string
			e     engine.Event
		)
		if err := rows.Scan(&runID, &e.Seq, &e.Step, &e.Kind, &e.Subject, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out[runID] = append(out[runID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (l *Ledger) steps(ctx context.Context, runID string) ([]engine.StepSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT name, changed FROM steps WHERE run_id = ? ORDER BY ordinal ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []engine.StepSummary{}
	for rows.Next() {
		var s engine.StepSummary
		if err := rows.Scan(&s.Name, &s.Changed); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (l *Ledger) fragments(ctx context.Context, runID string) ([]ir.FragmentRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT original_name, suffixed_name, container, kind
		FROM fragments
		WHERE run_id = ?
		ORDER BY original_name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	frags := []ir.FragmentRecord{}
	for rows.Next() {
		var (
			f    ir.FragmentRecord
			kind string
		)
		if err := rows.Scan(&f.OriginalName, &f.SuffixedName, &f.ContainerSuperclass, &kind); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		f.Kind = ir.FragmentKind(kind)
		frags = append(frags, f)
	}
	return frags, rows.Err()
}

func (l *Ledger) clones(ctx context.Context, runID string) ([]hostctx.Clone, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT rule, class, method, descriptor, redirected
		FROM clones
		WHERE run_id = ?
		ORDER BY ordinal ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query clones: %w", err)
	}
	defer rows.Close()

	clones := []hostctx.Clone{}
	for rows.Next() {
		var (
			c          hostctx.Clone
			redirected string
		)
		if err := rows.Scan(&c.Rule, &c.Class, &c.Method, &c.Descriptor, &redirected); err != nil {
			return nil, fmt.Errorf("scan clone: %w", err)
		}
		if redirected != "" {
			c.Redirected = strings.Split(redirected, ",")
		}
		clones = append(clones, c)
	}
	return clones, rows.Err()
}
