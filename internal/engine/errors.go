package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/fragment"
	"github.com/roach88/shadowtransform/internal/hostctx"
	"github.com/roach88/shadowtransform/internal/ir"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/redirect"
)

// TransformError represents a failure that aborted a pipeline run.
//
// Transform errors include:
//   - Rule errors: a host-context rule is malformed or names something
//     that does not exist
//   - Instrumentation errors: rewriting one class failed
//   - Name collisions: a rename or synthesized class would occupy a
//     name that is already taken
//
// A run that returns a TransformError has written nothing.
type TransformError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Step is the pipeline step that failed.
	Step string

	// Class is the qualified name of the offending class, if any.
	Class string

	// Rule is the offending host-context rule text, if any.
	Rule string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes transform errors.
type ErrorCode string

const (
	// ErrCodeMalformedRule indicates rule text that does not parse.
	ErrCodeMalformedRule ErrorCode = "MALFORMED_RULE"

	// ErrCodeClassNotFound indicates a required class does not resolve.
	ErrCodeClassNotFound ErrorCode = "CLASS_NOT_FOUND"

	// ErrCodeTypeNotFound indicates a rule parameter type does not resolve.
	ErrCodeTypeNotFound ErrorCode = "TYPE_NOT_FOUND"

	// ErrCodeMethodNotFound indicates a required method does not exist.
	ErrCodeMethodNotFound ErrorCode = "METHOD_NOT_FOUND"

	// ErrCodePositionOutOfRange indicates a rule argument position outside
	// the method's parameter count.
	ErrCodePositionOutOfRange ErrorCode = "POSITION_OUT_OF_RANGE"

	// ErrCodePositionNotContext indicates a flagged argument whose
	// parameter type cannot take a host context.
	ErrCodePositionNotContext ErrorCode = "POSITION_NOT_CONTEXT"

	// ErrCodeInstrumentFailed indicates a class could not be rewritten.
	ErrCodeInstrumentFailed ErrorCode = "INSTRUMENT_FAILED"

	// ErrCodeNameCollision indicates a name or address already occupied.
	ErrCodeNameCollision ErrorCode = "NAME_COLLISION"

	// ErrCodeInvalidClass indicates a class file that cannot be decoded or
	// encoded.
	ErrCodeInvalidClass ErrorCode = "INVALID_CLASS"
)

// Error implements the error interface.
func (e *TransformError) Error() string {
	switch {
	case e.Rule != "":
		return fmt.Sprintf("%s: %v (step=%s, rule=%q)", e.Code, e.Err, e.Step, e.Rule)
	case e.Class != "":
		return fmt.Sprintf("%s: %v (step=%s, class=%s)", e.Code, e.Err, e.Step, e.Class)
	}
	return fmt.Sprintf("%s: %v (step=%s)", e.Code, e.Err, e.Step)
}

// Unwrap returns the underlying cause.
func (e *TransformError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the TransformError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *TransformError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsRuleError returns true if the error was caused by a host-context rule.
// Uses errors.As to handle wrapped errors.
func IsRuleError(err error) bool {
	var te *TransformError
	return errors.As(err, &te) && te.Rule != ""
}

// IsInstrumentError returns true if rewriting a class failed.
func IsInstrumentError(err error) bool {
	return CodeOf(err) == ErrCodeInstrumentFailed
}

// IsNameCollision returns true if the run failed on an occupied name.
func IsNameCollision(err error) bool {
	return CodeOf(err) == ErrCodeNameCollision
}

// classify wraps err in a TransformError for step, deriving the code from
// the sentinel or detail error it carries.
func classify(step string, err error) error {
	var te *TransformError
	if errors.As(err, &te) {
		return err
	}
	out := &TransformError{Code: codeFor(err), Step: step, Err: err}

	var re *hostctx.RuleError
	if errors.As(err, &re) {
		out.Rule = re.Rule
	}
	var ie *redirect.InstrumentError
	if errors.As(err, &ie) {
		out.Class = ie.Class
	}
	return out
}

func codeFor(err error) ErrorCode {
	var ie *redirect.InstrumentError
	switch {
	case errors.Is(err, hostctx.ErrMalformedRule):
		return ErrCodeMalformedRule
	case errors.Is(err, hostctx.ErrTypeNotFound):
		return ErrCodeTypeNotFound
	case errors.Is(err, hostctx.ErrPositionOutOfRange):
		return ErrCodePositionOutOfRange
	case errors.Is(err, hostctx.ErrPositionNotContext):
		return ErrCodePositionNotContext
	case errors.Is(err, hostctx.ErrMethodNotFound), errors.Is(err, redirect.ErrMethodNotFound):
		return ErrCodeMethodNotFound
	case errors.As(err, &ie), errors.Is(err, redirect.ErrShapeMismatch):
		return ErrCodeInstrumentFailed
	case errors.Is(err, pool.ErrDuplicateClass), errors.Is(err, ir.ErrChainedMapping), errors.Is(err, ir.ErrDuplicateSource):
		return ErrCodeNameCollision
	case errors.Is(err, hostctx.ErrClassNotFound),
		errors.Is(err, fragment.ErrContainerMissing),
		errors.Is(err, pool.ErrUnknownClass),
		errors.Is(err, pool.ErrUnresolvedClass):
		return ErrCodeClassNotFound
	case errors.Is(err, classfile.ErrMalformed), errors.Is(err, classfile.ErrPoolOverflow):
		return ErrCodeInvalidClass
	}
	return ErrCodeInstrumentFailed
}
