// Package testutil provides fixtures for transform tests: a class file
// builder, stubs of the host framework and shadow runtime classes, and
// a fixed run ID source.
package testutil
