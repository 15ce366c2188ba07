package harness

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/shadowtransform/internal/engine"
)

// TraceSnapshot is the golden view of a scenario run: the outcome, the
// event trace and the disassembly of every resulting class.
type TraceSnapshot struct {
	ScenarioName string
	ErrorCode    string
	Trace        []engine.Event
	Classes      []ClassListing
}

func formatEvent(e engine.Event) string {
	fields := []string{strconv.FormatInt(e.Seq, 10), e.Step, e.Kind}
	if e.Subject != "" {
		fields = append(fields, e.Subject)
	}
	if e.Detail != "" {
		fields = append(fields, e.Detail)
	}
	return strings.Join(fields, " ")
}

// Render returns the snapshot as stable text.
func (s *TraceSnapshot) Render() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", s.ScenarioName)
	if s.ErrorCode != "" {
		fmt.Fprintf(&b, "error: %s\n", s.ErrorCode)
	}
	b.WriteString("events:\n")
	for _, e := range s.Trace {
		fmt.Fprintf(&b, "  %s\n", formatEvent(e))
	}
	for _, c := range s.Classes {
		b.WriteString("\n")
		b.WriteString(c.Disasm)
	}
	return []byte(b.String())
}

// Snapshot returns the golden view of a result.
func Snapshot(name string, result *Result) *TraceSnapshot {
	return &TraceSnapshot{
		ScenarioName: name,
		ErrorCode:    result.ErrorCode,
		Trace:        result.Trace,
		Classes:      result.Classes,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result).Render())
}
