// Package hostctx applies host-context preservation rules.
//
// A rule names one application method and the 1-based argument positions
// that must receive the real host context instead of the plugin's shadow
// context:
//
//	com.example.Foo.bar(android.content.Context,int)$1
//
// For each rule the method is cloned as bar_KeepHostContext. The clone
// unwraps the flagged arguments with ShadowContext.getBaseContext() and
// calls the original. Callers outside the declaring class are redirected
// to the clone; calls inside the declaring class keep reaching the
// original and so keep the shadow context.
//
// Rules are handled in three stages. Parse checks syntax only and touches
// nothing. Resolve binds a parsed rule to a method of the current pool.
// Apply installs the clone and redirects callers. A pipeline parses and
// resolves every rule before applying any of them.
package hostctx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/shadowtransform/internal/ir"
)

var (
	// ErrMalformedRule reports rule text that does not follow the grammar.
	ErrMalformedRule = errors.New("malformed rule")

	// ErrClassNotFound reports a declaring class that is not an
	// application class.
	ErrClassNotFound = errors.New("class not found")

	// ErrTypeNotFound reports a parameter type that does not resolve.
	ErrTypeNotFound = errors.New("type not found")

	// ErrMethodNotFound reports that the declaring class has no method, or
	// more than one, with the given name and parameter types.
	ErrMethodNotFound = errors.New("method not found")

	// ErrPositionOutOfRange reports an argument position outside
	// 1..parameter count.
	ErrPositionOutOfRange = errors.New("argument position out of range")

	// ErrPositionNotContext reports a flagged argument whose parameter
	// type cannot hold the unwrapped host context, such as a primitive,
	// an array or an unrelated class.
	ErrPositionNotContext = errors.New("argument position does not take a context")
)

// RuleError ties a failure to the rule text that caused it.
type RuleError struct {
	Rule   string
	Detail string
	Err    error
}

func (e *RuleError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
	}
	return fmt.Sprintf("rule %q: %v: %s", e.Rule, e.Err, e.Detail)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

func ruleErr(rule string, err error, format string, args ...any) error {
	return &RuleError{Rule: rule, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// Parse checks the syntax of one rule. Rule text is NFC-normalized first,
// so composed and decomposed spellings of an identifier name the same
// method.
func Parse(text string) (ir.ContextRule, error) {
	text = norm.NFC.String(strings.TrimSpace(text))

	if n := strings.Count(text, "("); n != 1 {
		return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "expected exactly one '(' but found %d", n)
	}
	if n := strings.Count(text, ")"); n != 1 {
		return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "expected exactly one ')' but found %d", n)
	}
	open, closing := strings.IndexByte(text, '('), strings.IndexByte(text, ')')
	if closing < open {
		return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "')' precedes '('")
	}

	head := text[:open]
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 || dot == len(head)-1 {
		return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "expected <class>.<method> before '('")
	}
	rule := ir.ContextRule{
		Text:           text,
		DeclaringClass: head[:dot],
		MethodName:     head[dot+1:],
	}
	if strings.ContainsAny(rule.MethodName, "<> \t") {
		return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "invalid method name %q", rule.MethodName)
	}

	if params := strings.TrimSpace(text[open+1 : closing]); params != "" {
		for _, p := range strings.Split(params, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "empty parameter type")
			}
			rule.ParamTypes = append(rule.ParamTypes, p)
		}
	}

	tail := strings.Split(text[closing+1:], "$")
	if strings.TrimSpace(tail[0]) != "" {
		return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "unexpected %q after ')'", tail[0])
	}
	for _, tok := range tail[1:] {
		pos, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return ir.ContextRule{}, ruleErr(text, ErrMalformedRule, "argument position %q is not an integer", tok)
		}
		rule.Positions = append(rule.Positions, pos)
	}
	return rule, nil
}

// ParseAll parses rules in order and stops at the first error.
func ParseAll(texts []string) ([]ir.ContextRule, error) {
	out := make([]ir.ContextRule, 0, len(texts))
	for _, t := range texts {
		r, err := Parse(t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
