// Package engine runs the shadow transform pipeline.
//
// The pipeline rewrites one closed snapshot of application classes so that
// they run inside a host process against virtualized framework types
// instead of the host's own.
//
// ARCHITECTURE:
//
// Eight Ordered Steps:
// Every step mutates the pool in place and the next step observes the
// result. Later steps depend on the names earlier steps settle, so the
// order is part of the contract:
//  1. rename: host framework types to virtualized types; remote view SDK
//     types to their runtime implementation outside the SDK package
//  2. find_fragments: classes whose superclass chain reaches a fragment
//     marker
//  3. swap_fragments: move each fragment to a suffixed name and install a
//     container class under the original name and address
//  4. dialog: owner activity accessors to their plugin equivalents
//  5. webview: WebView subclasses and allocations to the virtualized type
//  6. pending_intent: PendingIntent factories to the virtualized factories
//  7. uri: Uri.parse to the runtime converter
//  8. keep_host_context: clone rule methods and redirect external callers
//
// Deferred Output:
// Run never writes. The caller commits the pool only after Run succeeds, so
// a failed run leaves every output untouched.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Events are stamped with a monotonic seq from Clock.Next(), never with
// wall-clock time.
//
// Deterministic Scheduling:
// Classes are visited in name order and rules in declaration order. Two
// runs over the same snapshot produce the same bytes and the same events.
package engine
