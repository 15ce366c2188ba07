package engine

// Event kinds recorded by a run.
const (
	EventStep       = "step"
	EventRenamed    = "renamed"
	EventMoved      = "moved"
	EventFragment   = "fragment"
	EventResuper    = "resuper"
	EventRedirected = "redirected"
	EventClone      = "clone"
)

// Event is one observable effect of a run, in clock order.
type Event struct {
	Seq  int64  `json:"seq"`
	Step string `json:"step"`
	Kind string `json:"kind"`

	// Subject is the class the event concerns.
	Subject string `json:"subject,omitempty"`

	// Detail is kind-specific: the new name for a move, the container base
	// for a fragment, the clone method for a clone.
	Detail string `json:"detail,omitempty"`
}

// StepSummary reports one completed step.
type StepSummary struct {
	Name    string `json:"name"`
	Changed int    `json:"changed"`
}
