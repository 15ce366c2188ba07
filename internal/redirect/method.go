package redirect

import (
	"errors"
	"fmt"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/pool"
)

// ErrMethodNotFound reports a class without the requested method.
var ErrMethodNotFound = errors.New("method not found")

// MethodRef identifies a method declared on a class.
type MethodRef struct {
	// Owner is the binary name of the declaring class.
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
	Access     uint16 `json:"access"`

	// Interface is set when Owner is an interface.
	Interface bool `json:"interface,omitempty"`
}

// Static reports whether the method is static.
func (m MethodRef) Static() bool {
	return m.Access&classfile.AccStatic != 0
}

// Private reports whether the method is private.
func (m MethodRef) Private() bool {
	return m.Access&classfile.AccPrivate != 0
}

// WithDescriptor returns m carrying desc. Redirects between methods whose
// descriptors differ only because of virtualized types unify them this way
// before matching.
func (m MethodRef) WithDescriptor(desc string) MethodRef {
	m.Descriptor = desc
	return m
}

func (m MethodRef) String() string {
	return m.Owner + "." + m.Name + m.Descriptor
}

// Ref builds the MethodRef for member m of cf.
func Ref(cf *classfile.ClassFile, m *classfile.Member) MethodRef {
	return MethodRef{
		Owner:      classfile.Qualified(cf.Name()),
		Name:       cf.MemberName(m),
		Descriptor: cf.MemberDescriptor(m),
		Access:     m.Access,
		Interface:  cf.IsInterface(),
	}
}

// Methods returns every method named name declared on owner, in
// declaration order. owner may be an application or classpath class.
func Methods(p *pool.Pool, owner, name string) ([]MethodRef, error) {
	cf, err := p.Lookup(owner)
	if err != nil {
		return nil, err
	}
	var out []MethodRef
	for _, m := range cf.MethodsNamed(name) {
		out = append(out, Ref(cf, m))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrMethodNotFound, owner, name)
	}
	return out, nil
}

// Method returns the first method named name declared on owner.
func Method(p *pool.Pool, owner, name string) (MethodRef, error) {
	ms, err := Methods(p, owner, name)
	if err != nil {
		return MethodRef{}, err
	}
	return ms[0], nil
}

// Pair is a source method and the method its calls are redirected to.
type Pair struct {
	From MethodRef
	To   MethodRef
}

// MatchOverloads pairs each method in from with the method in to that has
// the same name and descriptor. Methods without a counterpart are dropped.
func MatchOverloads(from, to []MethodRef) []Pair {
	var out []Pair
	for _, f := range from {
		for _, t := range to {
			if f.Name == t.Name && f.Descriptor == t.Descriptor {
				out = append(out, Pair{From: f, To: t})
				break
			}
		}
	}
	return out
}

// MatchByDescriptor pairs each method in from with the method in to that
// has the same descriptor, regardless of name.
func MatchByDescriptor(from, to []MethodRef) []Pair {
	var out []Pair
	for _, f := range from {
		for _, t := range to {
			if f.Descriptor == t.Descriptor {
				out = append(out, Pair{From: f, To: t})
				break
			}
		}
	}
	return out
}
