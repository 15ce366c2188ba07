package classfile

import (
	"encoding/binary"
	"fmt"
)

// Attribute names the transform understands.
const (
	AttrCode                   = "Code"
	AttrExceptions             = "Exceptions"
	AttrSignature              = "Signature"
	AttrLocalVariableTable     = "LocalVariableTable"
	AttrLocalVariableTypeTable = "LocalVariableTypeTable"
)

// Code is a decoded Code attribute. Bytecode, the exception table and the
// nested attributes alias the attribute they were decoded from.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Bytecode   []byte
	Handlers   []byte
	Attributes []*Attribute
}

// DecodeCode decodes the payload of a Code attribute.
func DecodeCode(info []byte) (*Code, error) {
	r := &reader{data: info}
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Bytecode = r.bytes(int(r.u4()))
	c.Handlers = r.bytes(int(r.u2()) * 8)
	c.Attributes = r.attributes()
	if r.err != nil {
		return nil, fmt.Errorf("code attribute: %w", r.err)
	}
	return c, nil
}

// Encode returns the payload of a Code attribute.
func (c *Code) Encode() []byte {
	w := &writer{}
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Bytecode)))
	w.Write(c.Bytecode)
	w.u2(uint16(len(c.Handlers) / 8))
	w.Write(c.Handlers)
	w.attributes(c.Attributes)
	return w.Bytes()
}

// CodeOf decodes the Code attribute of m. It returns nil without error for
// abstract and native methods.
func (cf *ClassFile) CodeOf(m *Member) (*Code, error) {
	a := cf.FindAttribute(m.Attributes, AttrCode)
	if a == nil {
		return nil, nil
	}
	return DecodeCode(a.Info)
}

// Instruction is one decoded instruction position.
type Instruction struct {
	Offset int
	Op     Opcode
	Len    int
}

// Operand16 returns the unsigned two-byte operand following the opcode.
func (in Instruction) Operand16(code []byte) uint16 {
	return binary.BigEndian.Uint16(code[in.Offset+1:])
}

// SetOperand16 overwrites the two-byte operand following the opcode.
func (in Instruction) SetOperand16(code []byte, v uint16) {
	binary.BigEndian.PutUint16(code[in.Offset+1:], v)
}

// Walk calls fn for every instruction in code, in order.
func Walk(code []byte, fn func(Instruction) error) error {
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		n, err := instructionLength(code, pc)
		if err != nil {
			return err
		}
		if err := fn(Instruction{Offset: pc, Op: op, Len: n}); err != nil {
			return err
		}
		pc += n
	}
	return nil
}

func instructionLength(code []byte, pc int) (int, error) {
	op := Opcode(code[pc])
	n := fixedLength(op)
	switch {
	case n < 0:
		return 0, fmt.Errorf("%w: undefined opcode %#02x at %d", ErrMalformed, byte(op), pc)
	case n > 0:
		if pc+n > len(code) {
			return 0, fmt.Errorf("%w: %s truncated at %d", ErrMalformed, op, pc)
		}
		return n, nil
	}

	if op == OpWide {
		if pc+1 >= len(code) {
			return 0, fmt.Errorf("%w: wide truncated at %d", ErrMalformed, pc)
		}
		if Opcode(code[pc+1]) == OpIinc {
			n = 6
		} else {
			n = 4
		}
		if pc+n > len(code) {
			return 0, fmt.Errorf("%w: wide truncated at %d", ErrMalformed, pc)
		}
		return n, nil
	}

	// Switch operands start on the next four-byte boundary after the opcode.
	base := pc + 1 + (4-(pc+1)%4)%4
	u4 := func(at int) (int32, error) {
		if at+4 > len(code) {
			return 0, fmt.Errorf("%w: %s truncated at %d", ErrMalformed, op, pc)
		}
		return int32(binary.BigEndian.Uint32(code[at:])), nil
	}
	if op == OpTableswitch {
		low, err := u4(base + 4)
		if err != nil {
			return 0, err
		}
		high, err := u4(base + 8)
		if err != nil {
			return 0, err
		}
		if high < low {
			return 0, fmt.Errorf("%w: tableswitch bounds at %d", ErrMalformed, pc)
		}
		n = base + 12 + int(high-low+1)*4 - pc
	} else {
		pairs, err := u4(base + 4)
		if err != nil {
			return 0, err
		}
		if pairs < 0 {
			return 0, fmt.Errorf("%w: lookupswitch pairs at %d", ErrMalformed, pc)
		}
		n = base + 8 + int(pairs)*8 - pc
	}
	if pc+n > len(code) {
		return 0, fmt.Errorf("%w: %s truncated at %d", ErrMalformed, op, pc)
	}
	return n, nil
}
