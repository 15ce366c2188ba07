package classfile

import (
	"encoding/binary"
	"fmt"
)

// Assembler emits straight-line bytecode against a constant pool and tracks
// the operand stack depth so MaxStack can be filled in.
type Assembler struct {
	pool  *ConstPool
	code  []byte
	depth int
	max   int
}

// NewAssembler returns an assembler that allocates constants in pool.
func NewAssembler(pool *ConstPool) *Assembler {
	return &Assembler{pool: pool}
}

func (a *Assembler) adjust(delta int) {
	a.depth += delta
	if a.depth > a.max {
		a.max = a.depth
	}
	if a.depth < 0 {
		a.depth = 0
	}
}

func (a *Assembler) emit(op Opcode, operands ...byte) {
	a.code = append(a.code, byte(op))
	a.code = append(a.code, operands...)
}

func (a *Assembler) emit16(op Opcode, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	a.emit(op, b[:]...)
}

// Op emits a single-byte instruction with the given net stack effect.
func (a *Assembler) Op(op Opcode, stackDelta int) *Assembler {
	a.emit(op)
	a.adjust(stackDelta)
	return a
}

// Load pushes local slot using the load instruction matching the field
// descriptor.
func (a *Assembler) Load(fieldDesc string, slot int) *Assembler {
	var base, short Opcode
	switch fieldDesc {
	case "Z", "B", "C", "S", "I":
		base, short = OpIload, OpIload0
	case "J":
		base, short = OpLload, OpLload0
	case "F":
		base, short = OpFload, OpFload0
	case "D":
		base, short = OpDload, OpDload0
	default:
		base, short = OpAload, OpAload0
	}
	switch {
	case slot <= 3:
		a.emit(short + Opcode(slot))
	case slot <= 0xff:
		a.emit(base, byte(slot))
	default:
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(slot))
		a.emit(OpWide, byte(base), b[0], b[1])
	}
	a.adjust(Slots(fieldDesc))
	return a
}

// Return emits the return instruction matching the return descriptor.
func (a *Assembler) Return(retDesc string) *Assembler {
	switch retDesc {
	case "V":
		a.emit(OpReturn)
	case "Z", "B", "C", "S", "I":
		a.emit(OpIreturn)
	case "J":
		a.emit(OpLreturn)
	case "F":
		a.emit(OpFreturn)
	case "D":
		a.emit(OpDreturn)
	default:
		a.emit(OpAreturn)
	}
	a.depth = 0
	return a
}

// TypeOp emits new, checkcast, instanceof or anewarray against a class.
func (a *Assembler) TypeOp(op Opcode, internal string) *Assembler {
	a.emit16(op, a.pool.AddClass(internal))
	if op == OpNew {
		a.adjust(1)
	}
	return a
}

// Ldc pushes a string literal.
func (a *Assembler) Ldc(s string) *Assembler {
	idx := a.pool.AddString(s)
	if idx <= 0xff {
		a.emit(OpLdc, byte(idx))
	} else {
		a.emit16(OpLdcW, idx)
	}
	a.adjust(1)
	return a
}

// Invoke emits a method invocation and accounts for its stack effect.
func (a *Assembler) Invoke(op Opcode, owner, name, desc string) error {
	params, ret, err := MethodType(desc)
	if err != nil {
		return err
	}
	argSlots := 0
	for _, p := range params {
		argSlots += Slots(p)
	}
	switch op {
	case OpInvokevirtual, OpInvokespecial:
		a.emit16(op, a.pool.AddMethodref(owner, name, desc, false))
		argSlots++
	case OpInvokestatic:
		a.emit16(op, a.pool.AddMethodref(owner, name, desc, false))
	case OpInvokeinterface:
		idx := a.pool.AddMethodref(owner, name, desc, true)
		argSlots++
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], idx)
		a.emit(op, b[0], b[1], byte(argSlots), 0)
	default:
		return fmt.Errorf("%s is not an invocation", op)
	}
	a.adjust(-argSlots)
	if ret != "V" {
		a.adjust(Slots(ret))
	}
	return nil
}

// Code returns the assembled Code with MaxStack set from the tracked depth.
func (a *Assembler) Code(maxLocals int) *Code {
	return &Code{
		MaxStack:  uint16(a.max),
		MaxLocals: uint16(maxLocals),
		Bytecode:  a.code,
	}
}

// NewClass returns an empty public class with the given internal name and
// superclass, at the given class file version.
func NewClass(internal, super string, major, minor uint16) *ClassFile {
	cf := &ClassFile{
		Minor:  minor,
		Major:  major,
		Pool:   NewConstPool(),
		Access: AccPublic | AccSuper,
	}
	cf.This = cf.Pool.AddClass(internal)
	if super != "" {
		cf.Super = cf.Pool.AddClass(super)
	}
	return cf
}

// AddMethod installs a method with the given body and extra attributes.
// A nil code produces an abstract or native method.
func (cf *ClassFile) AddMethod(access uint16, name, desc string, code *Code, extra ...*Attribute) *Member {
	m := &Member{
		Access:     access,
		Name:       cf.Pool.AddUtf8(name),
		Descriptor: cf.Pool.AddUtf8(desc),
	}
	if code != nil {
		m.Attributes = append(m.Attributes, &Attribute{Name: cf.Pool.AddUtf8(AttrCode), Info: code.Encode()})
	}
	m.Attributes = append(m.Attributes, extra...)
	cf.Methods = append(cf.Methods, m)
	return m
}

// AddDefaultConstructor installs a public no-argument constructor that
// delegates to the superclass constructor.
func (cf *ClassFile) AddDefaultConstructor() error {
	return cf.AddSuperConstructor(AccPublic, "()V")
}

// AddSuperConstructor installs a constructor with descriptor desc that
// passes every argument to the superclass constructor of the same
// descriptor.
func (cf *ClassFile) AddSuperConstructor(access uint16, desc string) error {
	params, ret, err := MethodType(desc)
	if err != nil {
		return err
	}
	if ret != "V" {
		return fmt.Errorf("%w: constructor descriptor %s", ErrMalformed, desc)
	}
	a := NewAssembler(cf.Pool)
	a.Load("L"+cf.Name()+";", 0)
	slot := 1
	for _, p := range params {
		a.Load(p, slot)
		slot += Slots(p)
	}
	if err := a.Invoke(OpInvokespecial, cf.SuperName(), "<init>", desc); err != nil {
		return err
	}
	a.Return("V")
	cf.AddMethod(access, "<init>", desc, a.Code(slot))
	return nil
}
