package ir

// Version constants for the transform and its report schema.
const (
	// ReportVersion is the run ledger schema version.
	ReportVersion = "1"

	// TransformVersion is the shadow-transform release.
	TransformVersion = "0.1.0"
)
