package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/report"
	"github.com/roach88/shadowtransform/internal/testutil"
)

// Harness is the scenario execution context.
type Harness struct {
	pool   *pool.Pool
	ledger *report.Ledger
	runID  string
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh pool and a fresh in-memory ledger.
//
// Execution flow:
//  1. Build the scenario classes into a pool backed by the host stubs
//  2. Run the pipeline with the scenario's rules
//  3. Record the run (or its failure) in the ledger
//  4. Evaluate the assertions
//
// Run returns an error only when the scenario itself cannot be set up; a
// pipeline failure is part of the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	p := pool.New(pool.MapClasspath(testutil.HostClasses()))
	for _, spec := range scenario.Classes {
		cf, err := BuildClass(spec)
		if err != nil {
			return nil, err
		}
		rec := &pool.Record{
			Class:   cf,
			Address: pool.Address{Kind: pool.DirAddress, Root: "out", Path: pool.ClassPath(spec.Name)},
			Origin:  "scenario",
		}
		if err := p.Add(rec); err != nil {
			return nil, err
		}
	}
	p.RefreshAll()

	ledger, err := report.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory ledger: %w", err)
	}
	defer ledger.Close()

	runIDs := testutil.NewFixedRunIDGenerator(scenario.RunID)
	h := &Harness{
		pool:   p,
		ledger: ledger,
		runID:  runIDs.Generate(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	pl := engine.New(
		engine.WithRules(scenario.Rules...),
		engine.WithRunIDGenerator(runIDs),
	)
	result := NewResult()
	res, runErr := pl.Run(ctx, p)
	if err := h.record(ctx, scenario, res, runErr, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ledger: ledger, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	h.logger.Info("scenario completed", "scenario", scenario.Name, "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

// record fills result from the run outcome and writes the run to the
// ledger.
func (h *Harness) record(ctx context.Context, scenario *Scenario, res *engine.Result, runErr error, result *Result) error {
	if runErr != nil {
		result.ErrorCode = string(engine.CodeOf(runErr))
		switch {
		case scenario.ExpectError == "":
			result.AddError(fmt.Sprintf("run failed: %v", runErr))
		case scenario.ExpectError != result.ErrorCode:
			result.AddError(fmt.Sprintf("expected error %s, got %s: %v", scenario.ExpectError, result.ErrorCode, runErr))
		}
		h.logger.Info("scenario run failed", "scenario", scenario.Name, "code", result.ErrorCode)
		if err := h.ledger.WriteFailure(ctx, h.runID, "", runErr); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		return nil
	}

	if scenario.ExpectError != "" {
		result.AddError(fmt.Sprintf("expected error %s, run succeeded", scenario.ExpectError))
	}
	result.Trace = res.Events
	for _, rec := range h.pool.Records() {
		text, err := classfile.Disassemble(rec.Class)
		if err != nil {
			return fmt.Errorf("disassemble %s: %w", rec.Name, err)
		}
		result.Classes = append(result.Classes, ClassListing{Name: rec.Name, Disasm: text, Refs: rec.Refs()})
	}
	if err := h.ledger.WriteRun(ctx, res); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}
