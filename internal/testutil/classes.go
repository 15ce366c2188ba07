package testutil

import (
	"fmt"

	"github.com/roach88/shadowtransform/internal/classfile"
)

// ClassBuilder builds small class files for tests. All class names it
// accepts are binary names (a.b.C).
//
// Builder errors are deferred to Build, which panics: fixtures are static and
// a broken fixture is a bug in the test.
type ClassBuilder struct {
	cf  *classfile.ClassFile
	err error
}

// Class starts a public class. An empty super means java.lang.Object.
func Class(name, super string) *ClassBuilder {
	if super == "" && name != "java.lang.Object" {
		super = "java.lang.Object"
	}
	return &ClassBuilder{cf: classfile.NewClass(classfile.Internal(name), classfile.Internal(super), 52, 0)}
}

// Interface starts a public interface.
func Interface(name string) *ClassBuilder {
	b := Class(name, "")
	b.cf.Access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	return b
}

// Implements adds interfaces.
func (b *ClassBuilder) Implements(names ...string) *ClassBuilder {
	for _, n := range names {
		b.cf.Interfaces = append(b.cf.Interfaces, b.cf.Pool.AddClass(classfile.Internal(n)))
	}
	return b
}

// Field adds a private field.
func (b *ClassBuilder) Field(name, desc string) *ClassBuilder {
	b.cf.Fields = append(b.cf.Fields, &classfile.Member{
		Access:     classfile.AccPrivate,
		Name:       b.cf.Pool.AddUtf8(name),
		Descriptor: b.cf.Pool.AddUtf8(desc),
	})
	return b
}

// DefaultConstructor adds a public no-arg constructor calling super().
func (b *ClassBuilder) DefaultConstructor() *ClassBuilder {
	if err := b.cf.AddDefaultConstructor(); err != nil && b.err == nil {
		b.err = err
	}
	return b
}

// Native adds a method without a body; host stubs are declared this way.
func (b *ClassBuilder) Native(access uint16, name, desc string) *ClassBuilder {
	b.cf.AddMethod(access|classfile.AccNative, name, desc, nil)
	return b
}

// Method adds a method whose body is written by fn.
func (b *ClassBuilder) Method(access uint16, name, desc string, fn func(*Body)) *ClassBuilder {
	params, _, err := classfile.MethodType(desc)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	body := &Body{a: classfile.NewAssembler(b.cf.Pool)}
	if access&classfile.AccStatic == 0 {
		body.locals = 1
	}
	for _, p := range params {
		body.locals += classfile.Slots(p)
	}
	fn(body)
	if body.err != nil && b.err == nil {
		b.err = fmt.Errorf("%s%s: %w", name, desc, body.err)
	}
	b.cf.AddMethod(access, name, desc, body.a.Code(body.locals))
	return b
}

// Result returns the class file, or the first error a builder call hit.
func (b *ClassBuilder) Result() (*classfile.ClassFile, error) {
	if b.err != nil {
		return nil, fmt.Errorf("class %s: %w", classfile.Qualified(b.cf.Name()), b.err)
	}
	return b.cf, nil
}

// Build returns the class file.
func (b *ClassBuilder) Build() *classfile.ClassFile {
	cf, err := b.Result()
	if err != nil {
		panic("fixture " + err.Error())
	}
	return cf
}

// Bytes returns the encoded class file.
func (b *ClassBuilder) Bytes() []byte {
	data, err := b.Build().Bytes()
	if err != nil {
		panic(fmt.Sprintf("fixture %s: %v", b.cf.Name(), err))
	}
	return data
}

// Body writes a method body. Owners and class operands are binary names.
type Body struct {
	a      *classfile.Assembler
	locals int
	err    error
}

func (x *Body) invoke(op classfile.Opcode, owner, name, desc string) *Body {
	if err := x.a.Invoke(op, classfile.Internal(owner), name, desc); err != nil && x.err == nil {
		x.err = err
	}
	return x
}

// Load pushes a local variable.
func (x *Body) Load(desc string, slot int) *Body {
	x.a.Load(desc, slot)
	if n := slot + classfile.Slots(desc); n > x.locals {
		x.locals = n
	}
	return x
}

// This pushes the receiver.
func (x *Body) This() *Body {
	return x.Load("Ljava/lang/Object;", 0)
}

// New allocates an instance of class.
func (x *Body) New(class string) *Body {
	x.a.TypeOp(classfile.OpNew, classfile.Internal(class))
	return x
}

// Checkcast casts the top of stack.
func (x *Body) Checkcast(class string) *Body {
	x.a.TypeOp(classfile.OpCheckcast, classfile.Internal(class))
	return x
}

// InstanceOf tests the top of stack.
func (x *Body) InstanceOf(class string) *Body {
	x.a.TypeOp(classfile.OpInstanceof, classfile.Internal(class))
	return x
}

// Ldc pushes a string literal.
func (x *Body) Ldc(s string) *Body {
	x.a.Ldc(s)
	return x
}

// Dup duplicates the top of stack.
func (x *Body) Dup() *Body {
	x.a.Op(classfile.OpDup, 1)
	return x
}

// Pop discards the top of stack.
func (x *Body) Pop() *Body {
	x.a.Op(classfile.OpPop, -1)
	return x
}

// Null pushes null.
func (x *Body) Null() *Body {
	x.a.Op(classfile.OpAconstNull, 1)
	return x
}

// InvokeVirtual calls an instance method.
func (x *Body) InvokeVirtual(owner, name, desc string) *Body {
	return x.invoke(classfile.OpInvokevirtual, owner, name, desc)
}

// InvokeSpecial calls a constructor, private or super method.
func (x *Body) InvokeSpecial(owner, name, desc string) *Body {
	return x.invoke(classfile.OpInvokespecial, owner, name, desc)
}

// InvokeStatic calls a static method.
func (x *Body) InvokeStatic(owner, name, desc string) *Body {
	return x.invoke(classfile.OpInvokestatic, owner, name, desc)
}

// InvokeInterface calls an interface method.
func (x *Body) InvokeInterface(owner, name, desc string) *Body {
	return x.invoke(classfile.OpInvokeinterface, owner, name, desc)
}

// Return returns a value of the given descriptor ("V" for void).
func (x *Body) Return(desc string) *Body {
	x.a.Return(desc)
	return x
}
