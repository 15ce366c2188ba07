package classfile

import (
	"fmt"
	"strconv"
	"strings"
)

var accessWords = []struct {
	flag uint16
	word string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccNative, "native"},
	{AccAbstract, "abstract"},
}

func accessString(flags uint16) string {
	var words []string
	for _, w := range accessWords {
		if flags&w.flag != 0 {
			words = append(words, w.word)
		}
	}
	if len(words) == 0 {
		return "package"
	}
	return strings.Join(words, " ")
}

// Disassemble renders cf as a stable, symbolic listing: the class header,
// fields, and each method followed by its instructions with constant pool
// operands resolved.
func Disassemble(cf *ClassFile) (string, error) {
	var b strings.Builder
	kind := "class"
	if cf.IsInterface() {
		kind = "interface"
	}
	fmt.Fprintf(&b, "%s %s", kind, Qualified(cf.Name()))
	if s := cf.SuperName(); s != "" {
		fmt.Fprintf(&b, " extends %s", Qualified(s))
	}
	b.WriteByte('\n')
	for _, i := range cf.InterfaceNames() {
		fmt.Fprintf(&b, "  implements %s\n", Qualified(i))
	}
	for _, f := range cf.Fields {
		fmt.Fprintf(&b, "  field %s %s %s\n", accessString(f.Access), cf.MemberName(f), cf.MemberDescriptor(f))
	}
	for _, m := range cf.Methods {
		fmt.Fprintf(&b, "  method %s %s %s\n", accessString(m.Access), cf.MemberName(m), cf.MemberDescriptor(m))
		code, err := cf.CodeOf(m)
		if err != nil {
			return "", err
		}
		if code == nil {
			continue
		}
		err = Walk(code.Bytecode, func(in Instruction) error {
			b.WriteString("    ")
			b.WriteString(cf.instructionText(code.Bytecode, in))
			b.WriteByte('\n')
			return nil
		})
		if err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func (cf *ClassFile) instructionText(code []byte, in Instruction) string {
	op := in.Op
	switch {
	case op.IsInvoke(), op >= OpGetstatic && op <= OpPutfield:
		owner, name, desc, err := cf.Pool.MemberRef(in.Operand16(code))
		if err != nil {
			return fmt.Sprintf("%s #%d", op, in.Operand16(code))
		}
		return fmt.Sprintf("%s %s.%s %s", op, Qualified(owner), name, desc)
	case op.referencesClass():
		name, err := cf.Pool.ClassName(in.Operand16(code))
		if err != nil {
			return fmt.Sprintf("%s #%d", op, in.Operand16(code))
		}
		return fmt.Sprintf("%s %s", op, Qualified(name))
	case op == OpLdc, op == OpLdcW:
		idx := uint16(code[in.Offset+1])
		if op == OpLdcW {
			idx = in.Operand16(code)
		}
		return fmt.Sprintf("ldc %s", cf.constantText(idx))
	case op >= OpIload && op <= OpAload, op >= 0x36 && op <= 0x3a:
		return fmt.Sprintf("%s %d", op, code[in.Offset+1])
	}
	return op.String()
}

func (cf *ClassFile) constantText(idx uint16) string {
	c := cf.Pool.Get(idx)
	if c == nil {
		return fmt.Sprintf("#%d", idx)
	}
	switch c.Tag {
	case TagString:
		s, _ := cf.Pool.Utf8(c.A)
		return strconv.Quote(s)
	case TagClass:
		s, _ := cf.Pool.Utf8(c.A)
		return Qualified(s) + ".class"
	}
	return fmt.Sprintf("#%d", idx)
}
