// Package classfile reads, edits and writes JVM class files.
//
// The representation is deliberately shallow: the constant pool is decoded
// into typed entries, members and attributes are kept as raw attribute
// payloads, and only the Code attribute is decoded on demand. Edits are made
// in place (constant pool indexes inside bytecode are rewritten without
// moving instructions), so branch offsets, stack map frames and exception
// tables stay valid without recomputation.
//
// Class names are handled in internal form (a/b/C) throughout; Qualified and
// Internal convert to and from the binary form (a.b.C) used by callers.
package classfile
