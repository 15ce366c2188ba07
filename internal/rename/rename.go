// Package rename applies class-name substitution tables to every class in a
// pool.
package rename

import (
	"fmt"
	"log/slog"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/ir"
	"github.com/roach88/shadowtransform/internal/pool"
)

type options struct {
	skipPackages map[string]bool
}

// Option configures Apply.
type Option func(*options)

// SkipPackage leaves classes in the given binary package untouched.
func SkipPackage(pkg string) Option {
	return func(o *options) {
		if o.skipPackages == nil {
			o.skipPackages = map[string]bool{}
		}
		o.skipPackages[pkg] = true
	}
}

// Result summarizes one Apply.
type Result struct {
	// Changed lists the classes whose bytes were rewritten, by their name
	// before the rename.
	Changed []string

	// Moves lists the classes whose own name changed.
	Moves []pool.Move
}

// Mapper adapts a mapping of binary names to a class file mapper over
// internal names.
func Mapper(m ir.RenameMapping) classfile.ClassMapper {
	return func(internal string) (string, bool) {
		to, ok := m.Lookup(classfile.Qualified(internal))
		if !ok {
			return internal, false
		}
		return classfile.Internal(to), true
	}
}

// Apply rewrites every occurrence of every mapped name in every class of p:
// supertypes, member and call descriptors, casts, instanceof tests, generic
// signatures, and string literals spelling a class name. Classes whose own
// name is mapped move to their new name and address, and all reference sets
// are refreshed before Apply returns. Applying the same mapping again
// changes nothing.
func Apply(p *pool.Pool, m ir.RenameMapping, opts ...Option) (Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if m.Len() == 0 {
		return Result{}, nil
	}

	mapper := Mapper(m)
	var res Result
	for _, rec := range p.Records() {
		if o.skipPackages[rec.Package()] {
			continue
		}
		changed, err := rec.Class.Remap(mapper)
		if err != nil {
			return res, fmt.Errorf("rename %s: %w", rec.Name, err)
		}
		if changed {
			res.Changed = append(res.Changed, rec.Name)
		}
	}

	moves, err := p.Rekey()
	if err != nil {
		return res, fmt.Errorf("rename: %w", err)
	}
	res.Moves = moves
	slog.Debug("rename applied", "pairs", m.Len(), "changed", len(res.Changed), "moved", len(moves))
	return res, nil
}

// ApplyPair renames a single class everywhere in p.
func ApplyPair(p *pool.Pool, from, to string, opts ...Option) (Result, error) {
	m, err := ir.NewRenameMapping(ir.RenamePair{From: from, To: to})
	if err != nil {
		return Result{}, err
	}
	return Apply(p, m, opts...)
}
