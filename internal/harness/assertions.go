package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/report"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Trace    []engine.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(event))
		}
	}
	return buf.String()
}

func (m EventMatch) matches(e engine.Event) bool {
	return (m.Step == "" || m.Step == e.Step) &&
		(m.Kind == "" || m.Kind == e.Kind) &&
		(m.Subject == "" || m.Subject == e.Subject) &&
		(m.Detail == "" || m.Detail == e.Detail)
}

func (m EventMatch) String() string {
	var parts []string
	for _, kv := range [][2]string{{"step", m.Step}, {"kind", m.Kind}, {"subject", m.Subject}, {"detail", m.Detail}} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// assertTraceContains checks if the trace contains an event matching every
// given field.
func assertTraceContains(trace []engine.Event, assertion Assertion) error {
	for _, event := range trace {
		if assertion.EventMatch.matches(event) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s", assertion.EventMatch),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if matching events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []engine.Event, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Events) && assertion.Events[next].matches(event) {
			next++
		}
	}
	if next < len(assertion.Events) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("events in order: %v", assertion.Events),
			Actual:   fmt.Sprintf("no %s after the first %d", assertion.Events[next], next),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks if exactly the specified number of events match.
func assertTraceCount(trace []engine.Event, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if assertion.EventMatch.matches(event) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events matching %s", assertion.Count, assertion.EventMatch),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

func classListing(result *Result, typ, name string) (ClassListing, error) {
	c, ok := result.Class(name)
	if !ok {
		names := make([]string, len(result.Classes))
		for i, c := range result.Classes {
			names[i] = c.Name
		}
		return ClassListing{}, &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("class %s", name),
			Actual:   fmt.Sprintf("classes: %v", names),
		}
	}
	return c, nil
}

// assertExtends checks the superclass in the class header line.
func assertExtends(result *Result, assertion Assertion) error {
	c, err := classListing(result, AssertExtends, assertion.Class)
	if err != nil {
		return err
	}
	header, _, _ := strings.Cut(c.Disasm, "\n")
	want := fmt.Sprintf("class %s extends %s", assertion.Class, assertion.Super)
	if header != want {
		return &AssertionError{Type: AssertExtends, Expected: want, Actual: header}
	}
	return nil
}

func assertDisasmContains(result *Result, assertion Assertion) error {
	c, err := classListing(result, AssertDisasmContains, assertion.Class)
	if err != nil {
		return err
	}
	if !strings.Contains(c.Disasm, assertion.Text) {
		return &AssertionError{
			Type:     AssertDisasmContains,
			Expected: fmt.Sprintf("%s to contain %q", assertion.Class, assertion.Text),
			Actual:   c.Disasm,
		}
	}
	return nil
}

// assertNoReference checks that the named class, or every class when none
// is named, does not refer to the target.
func assertNoReference(result *Result, assertion Assertion) error {
	classes := result.Classes
	if assertion.Class != "" {
		c, err := classListing(result, AssertNoReference, assertion.Class)
		if err != nil {
			return err
		}
		classes = []ClassListing{c}
	}
	var offenders []string
	for _, c := range classes {
		for _, ref := range c.Refs {
			if ref == assertion.Target {
				offenders = append(offenders, c.Name)
				break
			}
		}
	}
	if len(offenders) > 0 {
		return &AssertionError{
			Type:     AssertNoReference,
			Expected: fmt.Sprintf("no references to %s", assertion.Target),
			Actual:   fmt.Sprintf("referenced by %v", offenders),
		}
	}
	return nil
}

// assertFinalState checks that exactly one ledger row matches Where and
// that it carries the expected values.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, ledger *report.Ledger, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := ledger.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}
	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matches make the assertion ambiguous.
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL-compatible value.
func toSQLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from ledger tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	switch exp := expected.(type) {
	case string:
		s, ok := actual.(string)
		return ok && exp == s
	case int:
		n, ok := actual.(int64)
		return ok && int64(exp) == n
	case int64:
		n, ok := actual.(int64)
		return ok && exp == n
	case bool:
		if b, ok := actual.(bool); ok {
			return exp == b
		}
		// SQLite stores booleans as integers
		n, ok := actual.(int64)
		return ok && exp == (n != 0)
	}
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ledger *report.Ledger
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides ledger access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertExtends:
			err = assertExtends(result, assertion)
		case AssertDisasmContains:
			err = assertDisasmContains(result, assertion)
		case AssertNoReference:
			err = assertNoReference(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Ledger == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires ledger context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Ledger, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
