package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the class file signature.
const Magic = 0xCAFEBABE

// Access flags used by the transform.
const (
	AccPublic    uint16 = 0x0001
	AccPrivate   uint16 = 0x0002
	AccProtected uint16 = 0x0004
	AccStatic    uint16 = 0x0008
	AccFinal     uint16 = 0x0010
	AccSuper     uint16 = 0x0020
	AccBridge    uint16 = 0x0040
	AccVarargs   uint16 = 0x0080
	AccNative    uint16 = 0x0100
	AccInterface uint16 = 0x0200
	AccAbstract  uint16 = 0x0400
	AccSynthetic uint16 = 0x1000
)

var (
	// ErrMalformed reports a class file that does not follow the format.
	ErrMalformed = errors.New("malformed class file")

	// ErrPoolOverflow reports a constant pool grown beyond 65535 entries.
	ErrPoolOverflow = errors.New("constant pool overflow")
)

// Attribute is a raw attribute. Info aliases the bytes it was parsed from,
// so in-place edits of fixed-width fields are visible to the owner.
type Attribute struct {
	Name uint16
	Info []byte
}

// Member is a field_info or method_info structure.
type Member struct {
	Access     uint16
	Name       uint16
	Descriptor uint16
	Attributes []*Attribute
}

// ClassFile is a parsed, mutable class file.
type ClassFile struct {
	Minor, Major uint16
	Pool         *ConstPool
	Access       uint16
	This         uint16
	Super        uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []*Attribute
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated at offset %d", ErrMalformed, r.off)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.off : r.off+n : r.off+n]
	r.off += n
	return v
}

func (r *reader) attributes() []*Attribute {
	n := int(r.u2())
	attrs := make([]*Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u2()
		length := int(r.u4())
		attrs = append(attrs, &Attribute{Name: name, Info: r.bytes(length)})
	}
	return attrs
}

func (r *reader) members() []*Member {
	n := int(r.u2())
	ms := make([]*Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := &Member{Access: r.u2(), Name: r.u2(), Descriptor: r.u2()}
		m.Attributes = r.attributes()
		ms = append(ms, m)
	}
	return ms
}

// Parse decodes a class file. The returned value keeps references into data
// for attribute payloads; callers must not reuse data afterwards.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	if magic := r.u4(); r.err == nil && magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrMalformed, magic)
	}
	cf := &ClassFile{Minor: r.u2(), Major: r.u2()}

	count := int(r.u2())
	pool := &ConstPool{entries: make([]Constant, count)}
	for i := 1; i < count && r.err == nil; i++ {
		c := Constant{Tag: Tag(r.u1())}
		switch c.Tag {
		case TagUtf8:
			c.Utf8 = string(r.bytes(int(r.u2())))
		case TagInteger, TagFloat:
			c.Raw = r.bytes(4)
		case TagLong, TagDouble:
			c.Raw = r.bytes(8)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.A, c.B = r.u2(), r.u2()
		case TagMethodHandle:
			c.Kind = r.u1()
			c.A = r.u2()
		default:
			if r.err == nil {
				return nil, fmt.Errorf("%w: unknown constant tag %d at #%d", ErrMalformed, c.Tag, i)
			}
		}
		pool.entries[i] = c
		if c.Tag == TagLong || c.Tag == TagDouble {
			i++
		}
	}
	cf.Pool = pool

	cf.Access, cf.This, cf.Super = r.u2(), r.u2(), r.u2()
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.u2())
	}
	cf.Fields = r.members()
	cf.Methods = r.members()
	cf.Attributes = r.attributes()
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-r.off)
	}
	if _, err := pool.ClassName(cf.This); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	return cf, nil
}

type writer struct {
	bytes.Buffer
}

func (w *writer) u1(v uint8) { w.WriteByte(v) }

func (w *writer) u2(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func (w *writer) u4(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func (w *writer) attributes(attrs []*Attribute) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		w.u2(a.Name)
		w.u4(uint32(len(a.Info)))
		w.Write(a.Info)
	}
}

func (w *writer) members(ms []*Member) {
	w.u2(uint16(len(ms)))
	for _, m := range ms {
		w.u2(m.Access)
		w.u2(m.Name)
		w.u2(m.Descriptor)
		w.attributes(m.Attributes)
	}
}

// Bytes encodes the class file.
func (cf *ClassFile) Bytes() ([]byte, error) {
	if cf.Pool.overflow {
		return nil, ErrPoolOverflow
	}
	w := &writer{}
	w.u4(Magic)
	w.u2(cf.Minor)
	w.u2(cf.Major)
	w.u2(uint16(cf.Pool.Count()))
	for i := 1; i < len(cf.Pool.entries); i++ {
		c := cf.Pool.entries[i]
		if c.Tag == 0 {
			continue
		}
		w.u1(uint8(c.Tag))
		switch c.Tag {
		case TagUtf8:
			if len(c.Utf8) > 0xffff {
				return nil, fmt.Errorf("%w: utf8 constant #%d too long", ErrMalformed, i)
			}
			w.u2(uint16(len(c.Utf8)))
			w.WriteString(c.Utf8)
		case TagInteger, TagFloat, TagLong, TagDouble:
			w.Write(c.Raw)
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u2(c.A)
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			w.u2(c.A)
			w.u2(c.B)
		case TagMethodHandle:
			w.u1(c.Kind)
			w.u2(c.A)
		}
	}
	w.u2(cf.Access)
	w.u2(cf.This)
	w.u2(cf.Super)
	w.u2(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		w.u2(i)
	}
	w.members(cf.Fields)
	w.members(cf.Methods)
	w.attributes(cf.Attributes)
	return w.Bytes(), nil
}

// Name returns the internal name of the class.
func (cf *ClassFile) Name() string {
	name, _ := cf.Pool.ClassName(cf.This)
	return name
}

// SuperName returns the internal name of the declared superclass, or "" for
// java/lang/Object and module-info.
func (cf *ClassFile) SuperName() string {
	if cf.Super == 0 {
		return ""
	}
	name, _ := cf.Pool.ClassName(cf.Super)
	return name
}

// InterfaceNames returns the internal names of the declared interfaces.
func (cf *ClassFile) InterfaceNames() []string {
	names := make([]string, 0, len(cf.Interfaces))
	for _, i := range cf.Interfaces {
		if n, err := cf.Pool.ClassName(i); err == nil {
			names = append(names, n)
		}
	}
	return names
}

// IsInterface reports whether the class is an interface.
func (cf *ClassFile) IsInterface() bool {
	return cf.Access&AccInterface != 0
}

// MemberName returns the simple name of a field or method.
func (cf *ClassFile) MemberName(m *Member) string {
	s, _ := cf.Pool.Utf8(m.Name)
	return s
}

// MemberDescriptor returns the descriptor of a field or method.
func (cf *ClassFile) MemberDescriptor(m *Member) string {
	s, _ := cf.Pool.Utf8(m.Descriptor)
	return s
}

// AttributeName returns the name of an attribute.
func (cf *ClassFile) AttributeName(a *Attribute) string {
	s, _ := cf.Pool.Utf8(a.Name)
	return s
}

// FindAttribute returns the first attribute in attrs with the given name.
func (cf *ClassFile) FindAttribute(attrs []*Attribute, name string) *Attribute {
	for _, a := range attrs {
		if cf.AttributeName(a) == name {
			return a
		}
	}
	return nil
}

// FindMethod returns the method declared with exactly name and desc.
func (cf *ClassFile) FindMethod(name, desc string) *Member {
	for _, m := range cf.Methods {
		if cf.MemberName(m) == name && cf.MemberDescriptor(m) == desc {
			return m
		}
	}
	return nil
}

// MethodsNamed returns the methods declared with the given name, in
// declaration order.
func (cf *ClassFile) MethodsNamed(name string) []*Member {
	var ms []*Member
	for _, m := range cf.Methods {
		if cf.MemberName(m) == name {
			ms = append(ms, m)
		}
	}
	return ms
}

// SetSuperName points super_class at the internal name.
func (cf *ClassFile) SetSuperName(internal string) {
	cf.Super = cf.Pool.AddClass(internal)
}
