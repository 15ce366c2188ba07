// Package resolve answers reference-graph questions over a class pool:
// which classes are safe to rewrite, and how classes relate through their
// declared supertypes.
//
// Resolution failures are never errors here. A class whose supertype chain
// cannot be followed simply does not match, and a class with a dangling
// reference is simply not recompilable.
package resolve

import (
	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/pool"
)

// Resolver evaluates predicates against the current state of a pool. It
// holds no state of its own, so it observes every mutation made between
// calls.
type Resolver struct {
	pool *pool.Pool
}

// New returns a resolver over p.
func New(p *pool.Pool) *Resolver {
	return &Resolver{pool: p}
}

// IsRecompilable reports whether every class rec refers to resolves.
func (r *Resolver) IsRecompilable(rec *pool.Record) bool {
	for _, name := range rec.Refs() {
		if !r.pool.Has(name) {
			return false
		}
	}
	return true
}

// Recompilable returns the recompilable application classes that refer to
// at least one of guards, in name order. With no guards every recompilable
// class is returned.
func (r *Resolver) Recompilable(guards ...string) []*pool.Record {
	var out []*pool.Record
	for _, rec := range r.pool.Records() {
		if len(guards) > 0 && !referencesAny(rec, guards) {
			continue
		}
		if r.IsRecompilable(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func referencesAny(rec *pool.Record, names []string) bool {
	for _, n := range names {
		if rec.References(n) {
			return true
		}
	}
	return false
}

// SuperclassChainContains reports whether marker is name itself or one of
// its declared superclasses. A link that cannot be resolved, or a cycle,
// ends the walk with false.
func (r *Resolver) SuperclassChainContains(name, marker string) bool {
	seen := map[string]bool{}
	for cur := name; cur != ""; {
		if cur == marker {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		cf, err := r.pool.Lookup(cur)
		if err != nil {
			return false
		}
		cur = classfile.Qualified(cf.SuperName())
	}
	return false
}

// Inherits reports whether a call to name+desc on owner binds to the method
// of that signature in declaring: owner is declaring, or reaches it through
// superclasses and interfaces without any class in between declaring the
// same method.
func (r *Resolver) Inherits(owner, declaring, name, desc string) bool {
	return r.inherits(owner, declaring, name, desc, map[string]bool{})
}

func (r *Resolver) inherits(cur, declaring, name, desc string, seen map[string]bool) bool {
	if cur == declaring {
		return true
	}
	if cur == "" || seen[cur] {
		return false
	}
	seen[cur] = true
	cf, err := r.pool.Lookup(cur)
	if err != nil {
		return false
	}
	if cf.FindMethod(name, desc) != nil {
		return false
	}
	if r.inherits(classfile.Qualified(cf.SuperName()), declaring, name, desc, seen) {
		return true
	}
	for _, i := range cf.InterfaceNames() {
		if r.inherits(classfile.Qualified(i), declaring, name, desc, seen) {
			return true
		}
	}
	return false
}
