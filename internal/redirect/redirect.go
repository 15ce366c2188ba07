// Package redirect rewrites call sites and allocation sites inside method
// bodies. It never adds or removes members: a redirected class keeps its
// method table and every instruction other than the rewritten operands.
package redirect

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/resolve"
)

// ErrShapeMismatch reports a redirect between methods that cannot be
// substituted for each other at a call site.
var ErrShapeMismatch = errors.New("redirect source and target differ in shape")

// InstrumentError carries the class whose instrumentation failed.
type InstrumentError struct {
	Class string
	Err   error
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument %s: %v", e.Class, e.Err)
}

func (e *InstrumentError) Unwrap() error {
	return e.Err
}

type newRedirect struct {
	from, to string // internal names
}

// Converter holds a set of call and allocation redirects applied together
// to each instrumented class.
type Converter struct {
	calls []Pair
	news  []newRedirect
}

// NewConverter returns an empty converter.
func NewConverter() *Converter {
	return &Converter{}
}

// RedirectCall makes invocations of from call to instead. The two methods
// must agree on descriptor, static-ness, and whether their owner is an
// interface.
func (c *Converter) RedirectCall(from, to MethodRef) error {
	switch {
	case from.Descriptor != to.Descriptor:
		return fmt.Errorf("%w: %s vs %s: descriptor", ErrShapeMismatch, from, to)
	case from.Static() != to.Static():
		return fmt.Errorf("%w: %s vs %s: static", ErrShapeMismatch, from, to)
	case from.Interface != to.Interface:
		return fmt.Errorf("%w: %s vs %s: interface", ErrShapeMismatch, from, to)
	}
	c.calls = append(c.calls, Pair{From: from, To: to})
	return nil
}

// ReplaceNew makes allocations of class from, together with the
// constructor call paired with each, allocate class to instead.
func (c *Converter) ReplaceNew(from, to string) {
	c.news = append(c.news, newRedirect{from: classfile.Internal(from), to: classfile.Internal(to)})
}

// Empty reports whether the converter has nothing to do.
func (c *Converter) Empty() bool {
	return len(c.calls) == 0 && len(c.news) == 0
}

// Instrument applies the converter to every method body of cf and reports
// whether anything changed. Calls are matched by name and descriptor on the
// redirected method's declaring class or on a subtype that inherits it
// without overriding.
func (c *Converter) Instrument(cf *classfile.ClassFile, r *resolve.Resolver) (bool, error) {
	changed := false
	for _, m := range cf.Methods {
		code, err := cf.CodeOf(m)
		if err != nil {
			return changed, fmt.Errorf("%s%s: %w", cf.MemberName(m), cf.MemberDescriptor(m), err)
		}
		if code == nil {
			continue
		}
		ok, err := c.instrumentCode(cf, code.Bytecode, r)
		if err != nil {
			return changed, fmt.Errorf("%s%s: %w", cf.MemberName(m), cf.MemberDescriptor(m), err)
		}
		changed = changed || ok
	}
	return changed, nil
}

func (c *Converter) instrumentCode(cf *classfile.ClassFile, code []byte, r *resolve.Resolver) (bool, error) {
	changed := false
	// One entry per NEW not yet paired with its constructor call: the
	// redirect it was rewritten by, or nil.
	var pending []*newRedirect

	err := classfile.Walk(code, func(in classfile.Instruction) error {
		switch {
		case in.Op == classfile.OpNew:
			name, err := cf.Pool.ClassName(in.Operand16(code))
			if err != nil {
				return err
			}
			var hit *newRedirect
			for i := range c.news {
				if c.news[i].from == name {
					hit = &c.news[i]
					in.SetOperand16(code, cf.Pool.AddClass(hit.to))
					changed = true
					break
				}
			}
			pending = append(pending, hit)

		case in.Op.IsInvoke() && in.Op != classfile.OpInvokedynamic:
			owner, name, desc, err := cf.Pool.MemberRef(in.Operand16(code))
			if err != nil {
				return err
			}
			if in.Op == classfile.OpInvokespecial && name == "<init>" {
				if len(pending) == 0 {
					return nil // super(...) or this(...)
				}
				hit := pending[len(pending)-1]
				pending = pending[:len(pending)-1]
				if hit != nil && owner == hit.from {
					in.SetOperand16(code, cf.Pool.AddMethodref(hit.to, name, desc, false))
					changed = true
				}
				return nil
			}
			for _, call := range c.calls {
				if !c.matches(call.From, in.Op, classfile.Qualified(owner), name, desc, r) {
					continue
				}
				to := call.To
				in.SetOperand16(code, cf.Pool.AddMethodref(classfile.Internal(to.Owner), to.Name, to.Descriptor, to.Interface))
				if to.Private() && !to.Static() && in.Op == classfile.OpInvokevirtual {
					code[in.Offset] = byte(classfile.OpInvokespecial)
				}
				changed = true
				break
			}
		}
		return nil
	})
	return changed, err
}

func (c *Converter) matches(from MethodRef, op classfile.Opcode, owner, name, desc string, r *resolve.Resolver) bool {
	if name != from.Name || desc != from.Descriptor {
		return false
	}
	if (op == classfile.OpInvokestatic) != from.Static() {
		return false
	}
	if !from.Static() && (op == classfile.OpInvokeinterface) != from.Interface {
		return false
	}
	return r.Inherits(owner, from.Owner, name, desc)
}

// Sweep instruments every recompilable application class that references
// at least one of guards, skipping the classes named in exclude. Classes
// that fail to resolve are left alone. The first instrumentation failure
// stops the sweep and is returned as an *InstrumentError.
func Sweep(p *pool.Pool, r *resolve.Resolver, c *Converter, guards []string, exclude ...string) ([]string, error) {
	if c.Empty() {
		return nil, nil
	}
	skip := make(map[string]bool, len(exclude))
	for _, n := range exclude {
		skip[n] = true
	}

	var changed []string
	for _, rec := range r.Recompilable(guards...) {
		if skip[rec.Name] {
			continue
		}
		ok, err := c.Instrument(rec.Class, r)
		if err != nil {
			return changed, &InstrumentError{Class: rec.Name, Err: err}
		}
		if ok {
			p.Refresh(rec)
			changed = append(changed, rec.Name)
		}
	}
	slog.Debug("redirect sweep", "guards", guards, "changed", len(changed))
	return changed, nil
}

// ReplaceSuperclass points every recompilable application class that
// directly extends from at to instead, retargeting its superclass
// constructor calls to match.
func ReplaceSuperclass(p *pool.Pool, r *resolve.Resolver, from, to string) ([]string, error) {
	var changed []string
	for _, rec := range r.Recompilable(from) {
		if rec.Class.SuperName() != classfile.Internal(from) {
			continue
		}
		if err := rec.Class.ReplaceSuperclass(classfile.Internal(to)); err != nil {
			return changed, &InstrumentError{Class: rec.Name, Err: err}
		}
		p.Refresh(rec)
		changed = append(changed, rec.Name)
	}
	return changed, nil
}
