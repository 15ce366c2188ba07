// Package ir holds the immutable values a transform run is configured with
// and the records it produces.
//
// All other internal packages import ir; ir imports nothing internal. Values
// are built once per run and passed explicitly to every component:
//   - Names: fixed host, virtualized, marker and container class names
//   - RenameMapping: validated ordered substitution table (no chaining)
//   - FragmentRecord: outcome of one fragment identity swap
//   - ContextRule: a parsed host-context preservation rule
//
// Class names in this package are binary names (a.b.C, nested classes with $).
package ir
