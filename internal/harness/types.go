package harness

import "github.com/roach88/shadowtransform/internal/engine"

// ClassListing is the disassembly of one class after the run.
type ClassListing struct {
	Name   string `json:"name"`
	Disasm string `json:"disasm"`

	// Refs are the binary names the class refers to.
	Refs []string `json:"refs,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the run ended as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace holds the pipeline events in seq order.
	Trace []engine.Event `json:"trace"`

	// Classes lists every application class after a successful run, in
	// name order. It is empty when the run failed.
	Classes []ClassListing `json:"classes,omitempty"`

	// ErrorCode is the code of the error the run aborted with, if any.
	ErrorCode string `json:"error_code,omitempty"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []engine.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Class returns the listing of the named class.
func (r *Result) Class(name string) (ClassListing, bool) {
	for _, c := range r.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return ClassListing{}, false
}
