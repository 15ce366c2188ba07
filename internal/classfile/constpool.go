package classfile

import (
	"fmt"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// Constant is one constant pool entry. The meaningful fields depend on Tag:
//
//	Utf8                               Utf8 (raw modified UTF-8 bytes)
//	Integer, Float, Long, Double       Raw (big-endian payload)
//	Class, String, MethodType,
//	Module, Package                    A = Utf8 index
//	Fieldref, Methodref,
//	InterfaceMethodref                 A = Class index, B = NameAndType index
//	NameAndType                        A = name index, B = descriptor index
//	MethodHandle                       Kind = reference kind, A = reference index
//	Dynamic, InvokeDynamic             A = bootstrap method index, B = NameAndType index
//
// The slot following a Long or Double is occupied by a zero Constant.
type Constant struct {
	Tag  Tag
	Utf8 string
	Raw  []byte
	Kind uint8
	A, B uint16
}

// ConstPool is a class file's constant pool. Index 0 is never valid.
type ConstPool struct {
	entries  []Constant
	overflow bool
}

// NewConstPool returns an empty pool.
func NewConstPool() *ConstPool {
	return &ConstPool{entries: make([]Constant, 1)}
}

// Count is the constant_pool_count written to the class file.
func (p *ConstPool) Count() int {
	return len(p.entries)
}

// Get returns the entry at i, or nil if i is not a valid index.
func (p *ConstPool) Get(i uint16) *Constant {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return nil
	}
	return &p.entries[i]
}

func (p *ConstPool) expect(i uint16, tags ...Tag) (*Constant, error) {
	c := p.Get(i)
	if c == nil {
		return nil, fmt.Errorf("%w: constant #%d out of range", ErrMalformed, i)
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: constant #%d has tag %d, want %v", ErrMalformed, i, c.Tag, tags)
}

// Utf8 returns the string held by the Utf8 entry at i.
func (p *ConstPool) Utf8(i uint16) (string, error) {
	c, err := p.expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Utf8, nil
}

// ClassName returns the internal name named by the Class entry at i.
func (p *ConstPool) ClassName(i uint16) (string, error) {
	c, err := p.expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.A)
}

// NameAndType returns the name and descriptor of the NameAndType entry at i.
func (p *ConstPool) NameAndType(i uint16) (name, desc string, err error) {
	c, err := p.expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8(c.A); err != nil {
		return "", "", err
	}
	if desc, err = p.Utf8(c.B); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (p *ConstPool) MemberRef(i uint16) (owner, name, desc string, err error) {
	c, err := p.expect(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return "", "", "", err
	}
	if owner, err = p.ClassName(c.A); err != nil {
		return "", "", "", err
	}
	name, desc, err = p.NameAndType(c.B)
	return owner, name, desc, err
}

// StringValue returns the literal of the String entry at i.
func (p *ConstPool) StringValue(i uint16) (string, error) {
	c, err := p.expect(i, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.A)
}

// SetUtf8 overwrites the Utf8 entry at i in place.
func (p *ConstPool) SetUtf8(i uint16, s string) {
	if c := p.Get(i); c != nil && c.Tag == TagUtf8 {
		c.Utf8 = s
	}
}

func (p *ConstPool) add(c Constant) uint16 {
	if len(p.entries) >= 0xffff {
		p.overflow = true
		return 0
	}
	p.entries = append(p.entries, c)
	idx := uint16(len(p.entries) - 1)
	if c.Tag == TagLong || c.Tag == TagDouble {
		p.entries = append(p.entries, Constant{})
	}
	return idx
}

func (p *ConstPool) find(match func(*Constant) bool) (uint16, bool) {
	for i := 1; i < len(p.entries); i++ {
		if c := &p.entries[i]; c.Tag != 0 && match(c) {
			return uint16(i), true
		}
	}
	return 0, false
}

// AddUtf8 returns the index of a Utf8 entry holding s, appending one if needed.
func (p *ConstPool) AddUtf8(s string) uint16 {
	if i, ok := p.find(func(c *Constant) bool { return c.Tag == TagUtf8 && c.Utf8 == s }); ok {
		return i
	}
	return p.add(Constant{Tag: TagUtf8, Utf8: s})
}

// AddClass returns the index of a Class entry for the internal name.
func (p *ConstPool) AddClass(internal string) uint16 {
	u := p.AddUtf8(internal)
	if i, ok := p.find(func(c *Constant) bool { return c.Tag == TagClass && c.A == u }); ok {
		return i
	}
	return p.add(Constant{Tag: TagClass, A: u})
}

// AddString returns the index of a String entry for s.
func (p *ConstPool) AddString(s string) uint16 {
	u := p.AddUtf8(s)
	if i, ok := p.find(func(c *Constant) bool { return c.Tag == TagString && c.A == u }); ok {
		return i
	}
	return p.add(Constant{Tag: TagString, A: u})
}

// AddNameAndType returns the index of a NameAndType entry.
func (p *ConstPool) AddNameAndType(name, desc string) uint16 {
	n, d := p.AddUtf8(name), p.AddUtf8(desc)
	if i, ok := p.find(func(c *Constant) bool { return c.Tag == TagNameAndType && c.A == n && c.B == d }); ok {
		return i
	}
	return p.add(Constant{Tag: TagNameAndType, A: n, B: d})
}

// AddMethodref returns the index of a Methodref (or InterfaceMethodref when
// iface is set) entry.
func (p *ConstPool) AddMethodref(owner, name, desc string, iface bool) uint16 {
	tag := TagMethodref
	if iface {
		tag = TagInterfaceMethodref
	}
	cls, nt := p.AddClass(owner), p.AddNameAndType(name, desc)
	if i, ok := p.find(func(c *Constant) bool { return c.Tag == tag && c.A == cls && c.B == nt }); ok {
		return i
	}
	return p.add(Constant{Tag: tag, A: cls, B: nt})
}
