package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Subject  string // list every event about this class, across runs
	Step     string // optional - filter to one step
	Kind     string // optional - filter to one event kind
}

// RunList is the output of report without a run.
type RunList struct {
	Runs []report.Run `json:"runs"`
}

// RenderText implements textRenderer.
func (l RunList) RenderText(w io.Writer) {
	if len(l.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range l.Runs {
		line := fmt.Sprintf("%4d  %s  %-6s  %d classes", r.Ordinal, r.ID, r.Status, r.Classes)
		if r.ErrorCode != "" {
			line += "  " + r.ErrorCode
		}
		fmt.Fprintln(w, line)
	}
}

// RunReport is the output of report for one run.
type RunReport struct {
	*report.Detail
}

// RenderText implements textRenderer.
func (d RunReport) RenderText(w io.Writer) {
	r := d.Run
	fmt.Fprintf(w, "Run %s (#%d): %s\n", r.ID, r.Ordinal, r.Status)
	fmt.Fprintf(w, "  input  %s\n", r.InputDigest)
	if r.OutputDigest != "" {
		fmt.Fprintf(w, "  output %s\n", r.OutputDigest)
	}
	if r.ErrorCode != "" {
		fmt.Fprintf(w, "  error  [%s] %s\n", r.ErrorCode, r.ErrorMessage)
	}
	if len(d.Fragments) > 0 {
		fmt.Fprintln(w, "\nFragments:")
		for _, f := range d.Fragments {
			fmt.Fprintf(w, "  %s -> %s (%s, container %s)\n", f.OriginalName, f.SuffixedName, f.Kind, f.ContainerSuperclass)
		}
	}
	if len(d.Clones) > 0 {
		fmt.Fprintln(w, "\nClones:")
		for _, c := range d.Clones {
			fmt.Fprintf(w, "  %s.%s%s  callers %v\n", c.Class, c.Method, c.Descriptor, c.Redirected)
		}
	}
	if len(d.Events) > 0 {
		fmt.Fprintln(w, "\nEvents:")
		renderEvents(w, d.Events)
	}
}

// SubjectReport is the output of report --subject.
type SubjectReport struct {
	Subject string                    `json:"subject"`
	Runs    map[string][]engine.Event `json:"runs"`
}

// RenderText implements textRenderer.
func (s SubjectReport) RenderText(w io.Writer) {
	if len(s.Runs) == 0 {
		fmt.Fprintf(w, "No events found for %s\n", s.Subject)
		return
	}
	ids := make([]string, 0, len(s.Runs))
	for id := range s.Runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "Run %s:\n", id)
		renderEvents(w, s.Runs[id])
	}
}

func renderEvents(w io.Writer, events []engine.Event) {
	for _, e := range events {
		line := fmt.Sprintf("  [%3d] %-18s %-10s", e.Seq, e.Step, e.Kind)
		if e.Subject != "" {
			line += " " + e.Subject
		}
		if e.Detail != "" {
			line += " -> " + e.Detail
		}
		fmt.Fprintln(w, line)
	}
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run-id|latest]",
		Short: "Show recorded transform runs",
		Long: `Show runs recorded by transform --report.

Without a run, lists every recorded run in order. With a run ID (or
"latest") shows its steps, fragments, clones and events. With --subject
shows every event about one class across all runs.

Examples:
  shadow-transform report --db runs.db
  shadow-transform report --db runs.db latest --step keep_host_context
  shadow-transform report --db runs.db --subject com.example.ListFragment`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			run := ""
			if len(args) == 1 {
				run = args[0]
			}
			return runReport(opts, run, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run ledger (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "show events about this class across runs")
	cmd.Flags().StringVar(&opts.Step, "step", "", "filter events to one step")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter events to one kind")

	return cmd
}

func runReport(opts *ReportOptions, run string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ledger, err := report.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ErrCodeIO, fmt.Errorf("failed to open ledger: %w", err), ExitCommandError)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	switch {
	case opts.Subject != "":
		byRun, err := ledger.EventsFor(ctx, opts.Subject)
		if err != nil {
			return formatter.Fail(ErrCodeIO, err, ExitCommandError)
		}
		for id, events := range byRun {
			byRun[id] = filterEvents(events, opts.Step, opts.Kind)
		}
		return formatter.Success(SubjectReport{Subject: opts.Subject, Runs: byRun})

	case run == "":
		runs, err := ledger.Runs(ctx)
		if err != nil {
			return formatter.Fail(ErrCodeIO, err, ExitCommandError)
		}
		return formatter.Success(RunList{Runs: runs})
	}

	if run == "latest" {
		latest, err := ledger.Latest(ctx)
		if err != nil {
			return failReport(formatter, err)
		}
		run = latest.ID
	}
	detail, err := ledger.Detail(ctx, run)
	if err != nil {
		return failReport(formatter, err)
	}
	detail.Events = filterEvents(detail.Events, opts.Step, opts.Kind)
	return formatter.Success(RunReport{Detail: detail})
}

func failReport(f *OutputFormatter, err error) error {
	if errors.Is(err, report.ErrRunNotFound) {
		return f.Fail(ErrCodeNotFound, err, ExitCommandError)
	}
	return f.Fail(ErrCodeIO, err, ExitCommandError)
}

// filterEvents keeps the events of step and kind; empty filters match all.
func filterEvents(events []engine.Event, step, kind string) []engine.Event {
	if step == "" && kind == "" {
		return events
	}
	out := make([]engine.Event, 0, len(events))
	for _, e := range events {
		if (step == "" || e.Step == step) && (kind == "" || e.Kind == kind) {
			out = append(out, e)
		}
	}
	return out
}
