package hostctx

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/ir"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/redirect"
	"github.com/roach88/shadowtransform/internal/resolve"
)

// Target is a rule bound to the method it names.
type Target struct {
	Rule   ir.ContextRule
	Record *pool.Record
	Method *classfile.Member

	// Params are the parameter field descriptors of Method.
	Params []string
}

// Resolve binds rule to a method of the current pool. The declaring class
// must be an application class; parameter types may also come from the
// classpath. Every flagged parameter must accept the context returned by
// names.BaseContextAccessor.
func Resolve(p *pool.Pool, names ir.Names, rule ir.ContextRule) (Target, error) {
	rec, err := p.Get(rule.DeclaringClass)
	if err != nil {
		return Target{}, ruleErr(rule.Text, ErrClassNotFound, "%s", rule.DeclaringClass)
	}

	params := make([]string, 0, len(rule.ParamTypes))
	for _, name := range rule.ParamTypes {
		st, err := classfile.ParseSourceType(name)
		if err != nil {
			return Target{}, ruleErr(rule.Text, ErrTypeNotFound, "%s", name)
		}
		if !st.Primitive && !p.Has(st.Element) {
			return Target{}, ruleErr(rule.Text, ErrTypeNotFound, "%s", name)
		}
		params = append(params, st.Descriptor())
	}

	cf := rec.Class
	var found []*classfile.Member
	for _, m := range cf.MethodsNamed(rule.MethodName) {
		got, _, err := classfile.MethodType(cf.MemberDescriptor(m))
		if err == nil && slices.Equal(got, params) {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return Target{}, ruleErr(rule.Text, ErrMethodNotFound, "%s.%s(%s)", rule.DeclaringClass, rule.MethodName, strings.Join(rule.ParamTypes, ","))
	case 1:
	default:
		return Target{}, ruleErr(rule.Text, ErrMethodNotFound, "%d methods match %s.%s", len(found), rule.DeclaringClass, rule.MethodName)
	}

	for _, pos := range rule.Positions {
		if pos < 1 || pos > len(params) {
			return Target{}, ruleErr(rule.Text, ErrPositionOutOfRange, "%d not in 1..%d", pos, len(params))
		}
		if !acceptsContext(p, names, params[pos-1]) {
			return Target{}, ruleErr(rule.Text, ErrPositionNotContext, "%d is %s", pos, rule.ParamTypes[pos-1])
		}
	}
	return Target{Rule: rule, Record: rec, Method: found[0], Params: params}, nil
}

// acceptsContext reports whether a parameter of type desc can be passed
// the value of the base context accessor: desc names that class or one of
// its superclasses.
func acceptsContext(p *pool.Pool, names ir.Names, desc string) bool {
	_, ret, err := classfile.MethodType(names.BaseContextDescriptor)
	if err != nil {
		return false
	}
	base, ok := objectName(ret)
	if !ok {
		return false
	}
	param, ok := objectName(desc)
	if !ok {
		return false
	}
	return resolve.New(p).SuperclassChainContains(base, param)
}

// objectName returns the qualified class name of an object field
// descriptor.
func objectName(desc string) (string, bool) {
	if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
		return "", false
	}
	return classfile.Qualified(desc[1 : len(desc)-1]), true
}

// ResolveAll resolves rules in order and stops at the first error.
func ResolveAll(p *pool.Pool, names ir.Names, rules []ir.ContextRule) ([]Target, error) {
	out := make([]Target, 0, len(rules))
	for _, r := range rules {
		t, err := Resolve(p, names, r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Clone describes one installed clone.
type Clone struct {
	Rule       string   `json:"rule"`
	Class      string   `json:"class"`
	Method     string   `json:"method"`
	Descriptor string   `json:"descriptor"`
	Redirected []string `json:"redirected,omitempty"`
}

// Apply installs the clone for t on its declaring class and redirects
// every external caller to it.
func Apply(p *pool.Pool, r *resolve.Resolver, names ir.Names, t Target) (Clone, error) {
	cf := t.Record.Class
	name := cf.MemberName(t.Method)
	desc := cf.MemberDescriptor(t.Method)
	cloneName := name + names.KeepHostContextSuffix

	if cf.FindMethod(cloneName, desc) != nil {
		return Clone{}, ruleErr(t.Rule.Text, pool.ErrDuplicateClass, "%s.%s%s already exists", t.Record.Name, cloneName, desc)
	}

	code, err := cloneBody(cf, t, names)
	if err != nil {
		return Clone{}, &RuleError{Rule: t.Rule.Text, Err: err}
	}
	var extra []*classfile.Attribute
	for _, attr := range []string{classfile.AttrExceptions, classfile.AttrSignature} {
		if a := cf.FindAttribute(t.Method.Attributes, attr); a != nil {
			extra = append(extra, &classfile.Attribute{Name: a.Name, Info: append([]byte(nil), a.Info...)})
		}
	}
	access := t.Method.Access &^ (classfile.AccAbstract | classfile.AccNative)
	clone := cf.AddMethod(access, cloneName, desc, code, extra...)
	p.Refresh(t.Record)

	conv := redirect.NewConverter()
	if err := conv.RedirectCall(redirect.Ref(cf, t.Method), redirect.Ref(cf, clone)); err != nil {
		return Clone{}, &RuleError{Rule: t.Rule.Text, Err: err}
	}
	changed, err := redirect.Sweep(p, r, conv, []string{t.Record.Name}, t.Record.Name)
	if err != nil {
		return Clone{}, err
	}

	slog.Debug("host context clone installed", "rule", t.Rule.Text, "class", t.Record.Name, "method", cloneName, "callers", len(changed))
	return Clone{
		Rule:       t.Rule.Text,
		Class:      t.Record.Name,
		Method:     cloneName,
		Descriptor: desc,
		Redirected: changed,
	}, nil
}

// cloneBody assembles: call the original with every argument in order,
// unwrapping flagged positions, and return its result.
func cloneBody(cf *classfile.ClassFile, t Target, names ir.Names) (*classfile.Code, error) {
	a := classfile.NewAssembler(cf.Pool)
	static := t.Method.Access&classfile.AccStatic != 0
	slot := 0
	if !static {
		a.Load("L"+cf.Name()+";", 0)
		slot = 1
	}
	shadowContext := classfile.Internal(names.ShadowContext)
	for i, param := range t.Params {
		a.Load(param, slot)
		slot += classfile.Slots(param)
		if t.Rule.Flags(i + 1) {
			a.TypeOp(classfile.OpCheckcast, shadowContext)
			if err := a.Invoke(classfile.OpInvokevirtual, shadowContext, names.BaseContextAccessor, names.BaseContextDescriptor); err != nil {
				return nil, err
			}
		}
	}

	op := classfile.OpInvokevirtual
	switch {
	case static:
		op = classfile.OpInvokestatic
	case t.Method.Access&classfile.AccPrivate != 0:
		op = classfile.OpInvokespecial
	case cf.IsInterface():
		op = classfile.OpInvokeinterface
	}
	desc := cf.MemberDescriptor(t.Method)
	if err := a.Invoke(op, cf.Name(), cf.MemberName(t.Method), desc); err != nil {
		return nil, err
	}
	_, ret, err := classfile.MethodType(desc)
	if err != nil {
		return nil, err
	}
	a.Return(ret)
	return a.Code(slot), nil
}
