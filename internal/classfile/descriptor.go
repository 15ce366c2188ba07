package classfile

import (
	"fmt"
	"sort"
	"strings"
)

// ClassMapper maps an internal class name to its replacement. It reports
// false when the name is left alone.
type ClassMapper func(internal string) (string, bool)

// Internal converts a binary name (a.b.C) to an internal name (a/b/C).
func Internal(qualified string) string {
	return strings.ReplaceAll(qualified, ".", "/")
}

// Qualified converts an internal name (a/b/C) to a binary name (a.b.C).
func Qualified(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// MethodType splits a method descriptor into parameter and return field
// descriptors.
func MethodType(desc string) (params []string, ret string, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", fmt.Errorf("%w: method descriptor %q", ErrMalformed, desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldTypeEnd(desc, i)
		if err != nil {
			return nil, "", err
		}
		params = append(params, desc[i:n])
		i = n
	}
	if i >= len(desc) {
		return nil, "", fmt.Errorf("%w: method descriptor %q", ErrMalformed, desc)
	}
	ret = desc[i+1:]
	if ret != "V" {
		if n, err := fieldTypeEnd(ret, 0); err != nil || n != len(ret) {
			return nil, "", fmt.Errorf("%w: method descriptor %q", ErrMalformed, desc)
		}
	}
	return params, ret, nil
}

func fieldTypeEnd(desc string, i int) (int, error) {
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return 0, fmt.Errorf("%w: descriptor %q", ErrMalformed, desc)
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			return 0, fmt.Errorf("%w: descriptor %q", ErrMalformed, desc)
		}
		return i + end + 1, nil
	}
	return 0, fmt.Errorf("%w: descriptor %q", ErrMalformed, desc)
}

// Slots returns the number of local variable slots a value of the field
// descriptor occupies.
func Slots(fieldDesc string) int {
	if fieldDesc == "J" || fieldDesc == "D" {
		return 2
	}
	return 1
}

var primitiveDescriptors = map[string]string{
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
}

// SourceType describes a type written as in Java source: int, a.b.C, a.b.C[].
type SourceType struct {
	Element   string
	Dims      int
	Primitive bool
}

// ParseSourceType splits a source-style type name into its element type and
// array dimensions.
func ParseSourceType(name string) (SourceType, error) {
	name = strings.TrimSpace(name)
	var t SourceType
	for strings.HasSuffix(name, "[]") {
		t.Dims++
		name = strings.TrimSpace(strings.TrimSuffix(name, "[]"))
	}
	if name == "" || strings.ContainsAny(name, "[]/;() ") {
		return SourceType{}, fmt.Errorf("invalid type name %q", name)
	}
	t.Element = name
	_, t.Primitive = primitiveDescriptors[name]
	return t, nil
}

// Descriptor returns the field descriptor for t.
func (t SourceType) Descriptor() string {
	prefix := strings.Repeat("[", t.Dims)
	if t.Primitive {
		return prefix + primitiveDescriptors[t.Element]
	}
	return prefix + "L" + Internal(t.Element) + ";"
}

// RemapSignature rewrites the class names inside a field descriptor, method
// descriptor, or generic Signature attribute value. Malformed input is
// returned unchanged.
func RemapSignature(sig string, m ClassMapper) (string, bool) {
	s := &sigRemapper{in: sig, m: m}
	if !s.run() {
		return sig, false
	}
	out := s.out.String()
	return out, out != sig
}

// ClassNamesIn returns the internal class names referenced by a descriptor or
// signature, sorted and deduplicated.
func ClassNamesIn(sig string) []string {
	seen := map[string]bool{}
	RemapSignature(sig, func(name string) (string, bool) {
		seen[name] = true
		return "", false
	})
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type sigRemapper struct {
	in  string
	i   int
	out strings.Builder
	m   ClassMapper
}

func (s *sigRemapper) peek() byte {
	if s.i < len(s.in) {
		return s.in[s.i]
	}
	return 0
}

func (s *sigRemapper) copyByte() {
	s.out.WriteByte(s.in[s.i])
	s.i++
}

func (s *sigRemapper) run() bool {
	if s.peek() == '<' && !s.typeParams() {
		return false
	}
	for s.i < len(s.in) {
		switch s.peek() {
		case '(', ')', '^', 'V':
			s.copyByte()
		default:
			if !s.typ() {
				return false
			}
		}
	}
	return true
}

// typeParams handles <T:Ljava/lang/Object;U::Ljava/lang/Runnable;>.
func (s *sigRemapper) typeParams() bool {
	s.copyByte()
	for s.peek() != '>' {
		colon := strings.IndexByte(s.in[s.i:], ':')
		if colon <= 0 {
			return false
		}
		s.out.WriteString(s.in[s.i : s.i+colon])
		s.i += colon
		for s.peek() == ':' {
			s.copyByte()
			if c := s.peek(); c == 'L' || c == 'T' || c == '[' {
				if !s.typ() {
					return false
				}
			}
		}
		if s.i >= len(s.in) {
			return false
		}
	}
	s.copyByte()
	return true
}

func (s *sigRemapper) typ() bool {
	switch c := s.peek(); c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		s.copyByte()
		return true
	case '[':
		s.copyByte()
		return s.typ()
	case 'T':
		end := strings.IndexByte(s.in[s.i:], ';')
		if end < 0 {
			return false
		}
		s.out.WriteString(s.in[s.i : s.i+end+1])
		s.i += end + 1
		return true
	case 'L':
		return s.classType()
	}
	return false
}

func (s *sigRemapper) classType() bool {
	s.copyByte()
	end := strings.IndexAny(s.in[s.i:], ";<.")
	if end <= 0 {
		return false
	}
	name := s.in[s.i : s.i+end]
	if mapped, ok := s.m(name); ok {
		name = mapped
	}
	s.out.WriteString(name)
	s.i += end
	for {
		switch s.peek() {
		case ';':
			s.copyByte()
			return true
		case '<':
			if !s.typeArgs() {
				return false
			}
		case '.':
			s.copyByte()
			end := strings.IndexAny(s.in[s.i:], ";<.")
			if end <= 0 {
				return false
			}
			s.out.WriteString(s.in[s.i : s.i+end])
			s.i += end
		default:
			return false
		}
	}
}

func (s *sigRemapper) typeArgs() bool {
	s.copyByte()
	for s.peek() != '>' {
		switch s.peek() {
		case '*':
			s.copyByte()
		case '+', '-':
			s.copyByte()
			if !s.typ() {
				return false
			}
		case 0:
			return false
		default:
			if !s.typ() {
				return false
			}
		}
	}
	s.copyByte()
	return true
}
