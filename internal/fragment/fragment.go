// Package fragment swaps the identity of plugin fragments.
//
// The host instantiates fragments by class name. A plugin fragment extends a
// virtualized fragment base the host cannot load as a framework fragment, so
// each detected fragment is moved to a suffixed name and an empty container
// class, extending a base the host understands, takes over the original name
// and address.
//
// The swap is two-phase. Phase one moves every detected fragment (bytes,
// name and address together) and rewrites all references to it. Phase two
// synthesizes the containers at the freed names. Both phases complete in
// memory; nothing is written until the pool is committed.
package fragment

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/ir"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/rename"
	"github.com/roach88/shadowtransform/internal/resolve"
)

var (
	// ErrContainerMissing reports a container base that does not resolve.
	ErrContainerMissing = errors.New("fragment container base not found")

	// ErrNoInheritableConstructor reports a container base with no
	// constructor a subclass can call.
	ErrNoInheritableConstructor = errors.New("no inheritable constructor in container base")
)

// Detect returns the application classes whose superclass chain reaches a
// fragment marker, in name order. A class reaching the dialog-fragment
// marker is a dialog fragment even though it also reaches the fragment
// marker.
func Detect(p *pool.Pool, r *resolve.Resolver, names ir.Names) []ir.FragmentRecord {
	var out []ir.FragmentRecord
	for _, rec := range p.Records() {
		var kind ir.FragmentKind
		var container string
		switch {
		case r.SuperclassChainContains(rec.Name, names.DialogFragmentMarker):
			kind, container = ir.KindDialogFragment, names.ContainerDialogFragment
		case r.SuperclassChainContains(rec.Name, names.FragmentMarker):
			kind, container = ir.KindFragment, names.ContainerFragment
		default:
			continue
		}
		out = append(out, ir.FragmentRecord{
			OriginalName:        rec.Name,
			SuffixedName:        rec.Name + names.FragmentSuffix,
			ContainerSuperclass: container,
			Kind:                kind,
		})
	}
	return out
}

type placement struct {
	frag      ir.FragmentRecord
	address   pool.Address
	container *classfile.ClassFile
}

// Swap performs the identity swap for every record. Preconditions are
// checked, and the containers built, before the pool is touched: every
// fragment exists, no suffixed name is occupied, and every container base
// resolves and has a constructor to inherit.
func Swap(p *pool.Pool, frags []ir.FragmentRecord) error {
	if len(frags) == 0 {
		return nil
	}

	placements := make([]placement, 0, len(frags))
	pairs := make([]ir.RenamePair, 0, len(frags))
	for _, f := range frags {
		rec, err := p.Get(f.OriginalName)
		if err != nil {
			return fmt.Errorf("fragment %s: %w", f.OriginalName, err)
		}
		if p.Has(f.SuffixedName) {
			return fmt.Errorf("fragment %s: %w: %s", f.OriginalName, pool.ErrDuplicateClass, f.SuffixedName)
		}
		base, err := p.Lookup(f.ContainerSuperclass)
		if err != nil {
			return fmt.Errorf("fragment %s: %w: %s", f.OriginalName, ErrContainerMissing, f.ContainerSuperclass)
		}
		cf, err := Container(f, base, rec.Class.Major, rec.Class.Minor)
		if err != nil {
			return err
		}
		placements = append(placements, placement{frag: f, address: rec.Address, container: cf})
		pairs = append(pairs, ir.RenamePair{From: f.OriginalName, To: f.SuffixedName})
	}

	m, err := ir.NewRenameMapping(pairs...)
	if err != nil {
		return fmt.Errorf("fragment rename table: %w", err)
	}
	if _, err := rename.Apply(p, m); err != nil {
		return err
	}

	for _, pl := range placements {
		if err := p.Add(&pool.Record{Name: pl.frag.OriginalName, Class: pl.container, Address: pl.address}); err != nil {
			return fmt.Errorf("fragment %s: %w", pl.frag.OriginalName, err)
		}
		slog.Debug("fragment swapped",
			"class", pl.frag.OriginalName,
			"moved_to", pl.frag.SuffixedName,
			"container", pl.frag.ContainerSuperclass)
	}
	return nil
}

// Container synthesizes the empty container class for f: a public class
// under the original name extending base, inheriting every constructor of
// base a subclass can call. Each inherited constructor keeps its access and
// passes its arguments straight to base.
func Container(f ir.FragmentRecord, base *classfile.ClassFile, major, minor uint16) (*classfile.ClassFile, error) {
	cf := classfile.NewClass(classfile.Internal(f.OriginalName), base.Name(), major, minor)
	samePackage := packageOf(classfile.Qualified(base.Name())) == packageOf(f.OriginalName)
	for _, m := range base.MethodsNamed("<init>") {
		if !inheritable(m.Access, samePackage) {
			continue
		}
		access := m.Access & (classfile.AccPublic | classfile.AccProtected)
		if err := cf.AddSuperConstructor(access, base.MemberDescriptor(m)); err != nil {
			return nil, fmt.Errorf("container %s: %w", f.OriginalName, err)
		}
	}
	if len(cf.Methods) == 0 {
		return nil, fmt.Errorf("container %s: %w: %s", f.OriginalName, ErrNoInheritableConstructor, f.ContainerSuperclass)
	}
	return cf, nil
}

// inheritable reports whether a subclass may call a constructor with the
// given access. Package-private constructors are only visible from the same
// package.
func inheritable(access uint16, samePackage bool) bool {
	switch {
	case access&classfile.AccPrivate != 0:
		return false
	case access&(classfile.AccPublic|classfile.AccProtected) != 0:
		return true
	}
	return samePackage
}

func packageOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}
