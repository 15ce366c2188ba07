package classfile

import (
	"errors"
	"fmt"
)

// ReplaceSuperclass points super_class at internal and retargets the
// superclass constructor call in every constructor to match. Constructors
// that delegate to this(...) are left alone.
func (cf *ClassFile) ReplaceSuperclass(internal string) error {
	old := cf.SuperName()
	cf.SetSuperName(internal)
	if old == "" || old == internal {
		return nil
	}
	for _, m := range cf.MethodsNamed("<init>") {
		code, err := cf.CodeOf(m)
		if err != nil {
			return fmt.Errorf("%s.<init>%s: %w", cf.Name(), cf.MemberDescriptor(m), err)
		}
		if code == nil {
			continue
		}
		if err := cf.retargetSuperInit(code.Bytecode, old, internal); err != nil {
			return fmt.Errorf("%s.<init>%s: %w", cf.Name(), cf.MemberDescriptor(m), err)
		}
	}
	return nil
}

// errStop ends a Walk early without reporting a failure.
var errStop = errors.New("stop")

// retargetSuperInit rewrites the first invokespecial <init> that is not
// paired with a preceding new, when it targets old.
func (cf *ClassFile) retargetSuperInit(code []byte, old, internal string) error {
	pending := 0
	err := Walk(code, func(in Instruction) error {
		switch in.Op {
		case OpNew:
			pending++
		case OpInvokespecial:
			owner, name, desc, err := cf.Pool.MemberRef(in.Operand16(code))
			if err != nil {
				return err
			}
			if name != "<init>" {
				return nil
			}
			if pending > 0 {
				pending--
				return nil
			}
			if owner == old {
				in.SetOperand16(code, cf.Pool.AddMethodref(internal, name, desc, false))
			}
			return errStop
		}
		return nil
	})
	if err == errStop {
		return nil
	}
	return err
}
