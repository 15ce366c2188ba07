package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/testutil"
)

var accessFlags = map[string]uint16{
	"public":    classfile.AccPublic,
	"private":   classfile.AccPrivate,
	"protected": classfile.AccProtected,
	"static":    classfile.AccStatic,
	"final":     classfile.AccFinal,
}

// BuildClass assembles the class a ClassSpec describes.
func BuildClass(spec ClassSpec) (*classfile.ClassFile, error) {
	var b *testutil.ClassBuilder
	if spec.Interface {
		b = testutil.Interface(spec.Name)
	} else {
		b = testutil.Class(spec.Name, spec.Super)
	}
	b.Implements(spec.Implements...)
	for _, f := range spec.Fields {
		b.Field(f.Name, f.Descriptor)
	}
	if spec.DefaultConstructor {
		b.DefaultConstructor()
	}
	for _, m := range spec.Methods {
		var access uint16
		for _, word := range m.Access {
			access |= accessFlags[word]
		}
		if strings.TrimSpace(m.Code) == "" {
			b.Native(access, m.Name, m.Descriptor)
			continue
		}
		var asmErr error
		b.Method(access, m.Name, m.Descriptor, func(body *testutil.Body) {
			asmErr = assemble(body, m.Code)
		})
		if asmErr != nil {
			return nil, fmt.Errorf("class %s: %s%s: %w", spec.Name, m.Name, m.Descriptor, asmErr)
		}
	}
	return b.Result()
}

// assemble writes code, one instruction per line, into body.
func assemble(body *testutil.Body, code string) error {
	for n, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		op, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		if err := instruction(body, op, rest); err != nil {
			return fmt.Errorf("line %d: %q: %w", n+1, line, err)
		}
	}
	return nil
}

func instruction(body *testutil.Body, op, rest string) error {
	switch op {
	case "this":
		body.This()
	case "dup":
		body.Dup()
	case "pop":
		body.Pop()
	case "null":
		body.Null()
	case "new":
		body.New(rest)
	case "checkcast":
		body.Checkcast(rest)
	case "instanceof":
		body.InstanceOf(rest)
	case "return":
		if rest == "" {
			rest = "V"
		}
		body.Return(rest)
	case "ldc":
		s, err := strconv.Unquote(rest)
		if err != nil {
			return fmt.Errorf("ldc operand must be a quoted string")
		}
		body.Ldc(s)
	case "load":
		desc, slotText, ok := strings.Cut(rest, " ")
		if !ok {
			return fmt.Errorf("load needs a descriptor and a slot")
		}
		slot, err := strconv.Atoi(strings.TrimSpace(slotText))
		if err != nil || slot < 0 {
			return fmt.Errorf("bad slot %q", slotText)
		}
		body.Load(desc, slot)
	case "invokevirtual", "invokespecial", "invokestatic", "invokeinterface":
		member, desc, ok := strings.Cut(rest, " ")
		dot := strings.LastIndexByte(member, '.')
		if !ok || dot <= 0 || dot == len(member)-1 {
			return fmt.Errorf("%s needs owner.name and a descriptor", op)
		}
		owner, name := member[:dot], member[dot+1:]
		desc = strings.TrimSpace(desc)
		switch op {
		case "invokevirtual":
			body.InvokeVirtual(owner, name, desc)
		case "invokespecial":
			body.InvokeSpecial(owner, name, desc)
		case "invokestatic":
			body.InvokeStatic(owner, name, desc)
		default:
			body.InvokeInterface(owner, name, desc)
		}
	default:
		return fmt.Errorf("unknown instruction")
	}
	return nil
}
