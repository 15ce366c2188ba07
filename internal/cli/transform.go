package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/ir"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/report"
)

// TransformOptions holds flags for the transform command.
type TransformOptions struct {
	*RootOptions
	ConfigFlags
	DryRun bool

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// TransformSummary is the outcome of a successful transform.
type TransformSummary struct {
	RunID        string               `json:"run_id"`
	Classes      int                  `json:"classes"`
	InputDigest  string               `json:"input_digest"`
	OutputDigest string               `json:"output_digest"`
	Steps        []engine.StepSummary `json:"steps"`
	Fragments    int                  `json:"fragments"`
	Clones       int                  `json:"clones"`
	Committed    bool                 `json:"committed"`
	Report       string               `json:"report,omitempty"`
}

// RenderText implements textRenderer.
func (s TransformSummary) RenderText(w io.Writer) {
	fmt.Fprintf(w, "Run %s: %d classes\n", s.RunID, s.Classes)
	for _, step := range s.Steps {
		fmt.Fprintf(w, "  %-18s changed %d\n", step.Name, step.Changed)
	}
	fmt.Fprintf(w, "Fragments swapped: %d\n", s.Fragments)
	fmt.Fprintf(w, "Host-context clones: %d\n", s.Clones)
	if s.Committed {
		fmt.Fprintln(w, "✓ Output written")
	} else {
		fmt.Fprintln(w, "Dry run: no output written")
	}
	if s.Report != "" {
		fmt.Fprintf(w, "Recorded in %s\n", s.Report)
	}
}

// NewTransformCommand creates the transform command.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransformOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transform [input[=output]...]",
		Short: "Run the transform over plugin classes",
		Long: `Load the plugin's class directories and archives, run the eight
transform steps in order and write the rewritten classes.

Inputs come from the arguments or from the configuration file. An input
written as path=output sends its classes to output; otherwise the input is
rewritten in place. Nothing is written unless every step succeeds.

Exit codes:
  0 - Transform succeeded
  1 - Transform failed (the error code names the cause)
  2 - Command error (bad configuration, missing inputs, etc.)

Examples:
  shadow-transform transform build/classes=build/shadow
  shadow-transform transform plugin.jar=out.jar --classpath android.jar --classpath runtime.jar
  shadow-transform transform --rule 'com.example.Sdk.init(android.content.Context)$1'
  shadow-transform transform --report runs.db --dry-run`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Inputs = args
			return runTransform(opts, cmd)
		},
	}

	opts.ConfigFlags.bind(cmd)
	cmd.Flags().StringVar(&opts.Report, "report", "", "record the run in this SQLite ledger")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "run every step but write no output")

	return cmd
}

func runTransform(opts *TransformOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := LoadConfig(opts.ConfigFlags, true)
	if err != nil {
		return failLoad(formatter, err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, release, err := loadPool(ctx, cfg)
	if err != nil {
		return failLoad(formatter, err)
	}
	defer release()
	formatter.VerboseLog("Loaded %d classes from %d input(s)", p.Len(), len(cfg.Inputs))

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	runID := runIDs.Generate()

	// The pool is rewritten in place, so the input digest of a failed run
	// must be taken first.
	var inputDigest string
	if cfg.Report != "" {
		snap, err := p.Snapshot()
		if err != nil {
			return formatter.Fail(ErrCodeGeneric, err, ExitFailure)
		}
		inputDigest = ir.SnapshotDigest(snap)
	}

	pl := engine.New(
		engine.WithRules(cfg.KeepHostContext...),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
	)
	res, runErr := pl.Run(ctx, p)
	if runErr == nil && !opts.DryRun {
		runErr = commit(ctx, p)
	}

	if cfg.Report != "" {
		if err := record(context.WithoutCancel(ctx), cfg.Report, runID, inputDigest, res, runErr); err != nil {
			slog.Error("failed to record run", "run", runID, "report", cfg.Report, "error", err)
			if runErr == nil {
				return formatter.Fail(ErrCodeIO, err, ExitCommandError)
			}
		}
	}
	if runErr != nil {
		return formatter.Fail(ErrCodeGeneric, runErr, ExitFailure)
	}

	return formatter.Success(TransformSummary{
		RunID:        res.RunID,
		Classes:      res.Classes,
		InputDigest:  res.InputDigest,
		OutputDigest: res.OutputDigest,
		Steps:        res.Steps,
		Fragments:    len(res.Fragments),
		Clones:       len(res.Clones),
		Committed:    !opts.DryRun,
		Report:       cfg.Report,
	})
}

func commit(ctx context.Context, p *pool.Pool) error {
	if err := p.Commit(ctx); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("output written", "classes", p.Len())
	return nil
}

// record writes the run outcome to the ledger at path. A run whose output
// could not be written is recorded as failed.
func record(ctx context.Context, path, runID, inputDigest string, res *engine.Result, runErr error) error {
	ledger, err := report.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()
	if runErr != nil {
		return ledger.WriteFailure(ctx, runID, inputDigest, runErr)
	}
	return ledger.WriteRun(ctx, res)
}
