package classfile

import (
	"encoding/binary"
	"sort"
	"strings"
)

type role uint8

const (
	roleClass role = iota + 1
	roleSignature
	roleLiteral
	roleOther
)

// utf8Use is one place a Utf8 entry is referenced from.
type utf8Use struct {
	role role
	set  func(uint16)
}

// collectUses indexes every reference to a Utf8 entry that may carry a
// class name, plus the plain-name references that must never be rewritten.
func (cf *ClassFile) collectUses() (map[uint16][]utf8Use, error) {
	uses := map[uint16][]utf8Use{}
	add := func(idx uint16, r role, set func(uint16)) {
		uses[idx] = append(uses[idx], utf8Use{role: r, set: set})
	}
	attr16 := func(info []byte, off int) func(uint16) {
		return func(v uint16) { binary.BigEndian.PutUint16(info[off:], v) }
	}

	// Setters index the pool on every call: AddUtf8 may grow the entries slice.
	entries := cf.Pool.entries
	for i := range entries {
		i := i
		setA := func(v uint16) { cf.Pool.entries[i].A = v }
		setB := func(v uint16) { cf.Pool.entries[i].B = v }
		c := entries[i]
		switch c.Tag {
		case TagClass:
			add(c.A, roleClass, setA)
		case TagString:
			add(c.A, roleLiteral, setA)
		case TagMethodType:
			add(c.A, roleSignature, setA)
		case TagNameAndType:
			add(c.A, roleOther, nil)
			add(c.B, roleSignature, setB)
		case TagModule, TagPackage:
			add(c.A, roleOther, nil)
		}
	}

	var attrs func(list []*Attribute) error
	attrs = func(list []*Attribute) error {
		for _, a := range list {
			add(a.Name, roleOther, nil)
			switch cf.AttributeName(a) {
			case AttrSignature:
				if len(a.Info) == 2 {
					add(binary.BigEndian.Uint16(a.Info), roleSignature, attr16(a.Info, 0))
				}
			case AttrLocalVariableTable, AttrLocalVariableTypeTable:
				if len(a.Info) < 2 {
					continue
				}
				n := int(binary.BigEndian.Uint16(a.Info))
				for e := 0; e < n && 2+e*10+10 <= len(a.Info); e++ {
					off := 2 + e*10
					add(binary.BigEndian.Uint16(a.Info[off+4:]), roleOther, nil)
					add(binary.BigEndian.Uint16(a.Info[off+6:]), roleSignature, attr16(a.Info, off+6))
				}
			case AttrCode:
				code, err := DecodeCode(a.Info)
				if err != nil {
					return err
				}
				if err := attrs(code.Attributes); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, group := range [][]*Member{cf.Fields, cf.Methods} {
		for _, m := range group {
			m := m
			add(m.Name, roleOther, nil)
			add(m.Descriptor, roleSignature, func(v uint16) { m.Descriptor = v })
			if err := attrs(m.Attributes); err != nil {
				return nil, err
			}
		}
	}
	if err := attrs(cf.Attributes); err != nil {
		return nil, err
	}
	return uses, nil
}

func remapClassName(name string, m ClassMapper) (string, bool) {
	if strings.HasPrefix(name, "[") {
		return RemapSignature(name, m)
	}
	return m(name)
}

// remapLiteral rewrites a string constant that spells a mapped class name
// exactly, in either binary or internal form.
func remapLiteral(s string, m ClassMapper) (string, bool) {
	if s == "" || strings.ContainsAny(s, " ;[()<>") {
		return s, false
	}
	if strings.Contains(s, ".") && !strings.Contains(s, "/") {
		if mapped, ok := m(Internal(s)); ok {
			return Qualified(mapped), true
		}
		return s, false
	}
	if strings.Contains(s, "/") {
		return m(s)
	}
	return s, false
}

// Remap rewrites every class reference in cf through m: class constants
// (including this_class and super_class), member descriptors, NameAndType
// and MethodType descriptors, Signature attributes, local variable tables,
// and string constants that spell a class name. It reports whether anything
// changed. Remapping with a mapper that has already been applied is a no-op.
func (cf *ClassFile) Remap(m ClassMapper) (bool, error) {
	uses, err := cf.collectUses()
	if err != nil {
		return false, err
	}

	indexes := make([]int, 0, len(uses))
	for idx := range uses {
		indexes = append(indexes, int(idx))
	}
	sort.Ints(indexes)

	changed := false
	for _, i := range indexes {
		idx := uint16(i)
		old, err := cf.Pool.Utf8(idx)
		if err != nil {
			continue
		}
		list := uses[idx]
		next := make([]string, len(list))
		inPlace := true
		dirty := false
		for k, u := range list {
			v, ok := old, false
			switch u.role {
			case roleClass:
				v, ok = remapClassName(old, m)
			case roleSignature:
				v, ok = RemapSignature(old, m)
			case roleLiteral:
				v, ok = remapLiteral(old, m)
			}
			if !ok {
				v = old
			}
			next[k] = v
			if v != old {
				dirty = true
			}
			if u.role == roleOther || next[k] != next[0] {
				inPlace = false
			}
		}
		if !dirty {
			continue
		}
		changed = true
		if inPlace {
			cf.Pool.SetUtf8(idx, next[0])
			continue
		}
		for k, u := range list {
			if next[k] != old && u.set != nil {
				u.set(cf.Pool.AddUtf8(next[k]))
			}
		}
	}
	return changed, nil
}

// ReferencedClasses returns the internal names of every class the constant
// pool and member descriptors refer to, sorted and deduplicated. The class
// itself is included.
func (cf *ClassFile) ReferencedClasses() []string {
	seen := map[string]bool{}
	note := func(sig string) {
		for _, n := range ClassNamesIn(sig) {
			seen[n] = true
		}
	}
	for i := range cf.Pool.entries {
		c := &cf.Pool.entries[i]
		switch c.Tag {
		case TagClass:
			name, err := cf.Pool.Utf8(c.A)
			if err != nil {
				continue
			}
			if strings.HasPrefix(name, "[") {
				note(name)
			} else {
				seen[name] = true
			}
		case TagNameAndType:
			if d, err := cf.Pool.Utf8(c.B); err == nil {
				note(d)
			}
		case TagMethodType:
			if d, err := cf.Pool.Utf8(c.A); err == nil {
				note(d)
			}
		}
	}
	for _, group := range [][]*Member{cf.Fields, cf.Methods} {
		for _, m := range group {
			note(cf.MemberDescriptor(m))
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StringConstants returns the values of all String entries, in pool order.
func (cf *ClassFile) StringConstants() []string {
	var out []string
	for i := range cf.Pool.entries {
		c := &cf.Pool.entries[i]
		if c.Tag != TagString {
			continue
		}
		if s, err := cf.Pool.Utf8(c.A); err == nil {
			out = append(out, s)
		}
	}
	return out
}
