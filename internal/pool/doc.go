// Package pool is the name-keyed registry of every class in one transform
// run.
//
// A Pool holds the application classes (Records) loaded from the run's
// Sources, each with the StorageAddress its bytes are written back to, and a
// read-only Classpath of host and runtime classes that application code
// links against. Lookups resolve application classes first, then the
// classpath.
//
// # Lifecycle
//
//  1. Load reads every Source (concurrently, one goroutine per source) and
//     registers the classes in source order.
//  2. The pipeline mutates records in place and calls Rekey after bulk
//     renames so that names, addresses and reference sets agree again.
//  3. Commit encodes every record in memory and only then writes outputs.
//     A failure before that point leaves every output untouched.
package pool
