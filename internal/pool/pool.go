package pool

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/roach88/shadowtransform/internal/classfile"
)

var (
	// ErrUnknownClass reports a name nothing in the run defines or mentions.
	ErrUnknownClass = errors.New("unknown class")

	// ErrUnresolvedClass reports a name that some application class refers
	// to but that neither the pool nor the classpath defines.
	ErrUnresolvedClass = errors.New("unresolved class")

	// ErrDuplicateClass reports an attempt to occupy a name or address twice.
	ErrDuplicateClass = errors.New("class name already occupied")
)

// Record is one application class: its parsed bytes, its binary name and
// the address it is written to. Name and Address change together, through
// Pool.Rekey, and never independently.
type Record struct {
	Name    string
	Class   *classfile.ClassFile
	Address Address

	// Origin is the input the class was read from; empty for classes the
	// pipeline synthesized.
	Origin string

	refs []string
}

// Package returns the binary package name, or "" for the default package.
func (r *Record) Package() string {
	i := strings.LastIndexByte(r.Name, '.')
	if i < 0 {
		return ""
	}
	return r.Name[:i]
}

// Refs returns the binary names the class statically refers to, sorted.
func (r *Record) Refs() []string {
	return append([]string(nil), r.refs...)
}

// References reports whether name is in the class's reference set.
func (r *Record) References(name string) bool {
	i := sort.SearchStrings(r.refs, name)
	return i < len(r.refs) && r.refs[i] == name
}

// Synthesized reports whether the pipeline created the class.
func (r *Record) Synthesized() bool {
	return r.Origin == ""
}

// Move is a rename observed by Rekey.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Pool is the registry of application classes for one run.
type Pool struct {
	records   map[string]*Record
	classpath Classpath
	resources []Resource
}

// New returns an empty pool resolving non-application classes through cp.
func New(cp Classpath) *Pool {
	if cp == nil {
		cp = MapClasspath{}
	}
	return &Pool{records: map[string]*Record{}, classpath: cp}
}

// Len returns the number of application classes.
func (p *Pool) Len() int {
	return len(p.records)
}

// Add registers a record. The record's name must match its class file and
// must not already be occupied.
func (p *Pool) Add(r *Record) error {
	if r.Class == nil {
		return fmt.Errorf("add %s: no class file", r.Name)
	}
	actual := classfile.Qualified(r.Class.Name())
	if r.Name == "" {
		r.Name = actual
	}
	if r.Name != actual {
		return fmt.Errorf("add %s: class file declares %s", r.Name, actual)
	}
	if _, ok := p.records[r.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, r.Name)
	}
	p.records[r.Name] = r
	p.refresh(r)
	return nil
}

// Get returns the application class with the given binary name.
func (p *Pool) Get(name string) (*Record, error) {
	if r, ok := p.records[name]; ok {
		return r, nil
	}
	return nil, p.notFound(name)
}

// Lookup resolves a binary name to a class file, preferring application
// classes over the classpath.
func (p *Pool) Lookup(name string) (*classfile.ClassFile, error) {
	if r, ok := p.records[name]; ok {
		return r.Class, nil
	}
	if cf, ok := p.classpath.Find(name); ok {
		return cf, nil
	}
	return nil, p.notFound(name)
}

// Has reports whether name resolves.
func (p *Pool) Has(name string) bool {
	if _, ok := p.records[name]; ok {
		return true
	}
	_, ok := p.classpath.Find(name)
	return ok
}

// IsApp reports whether name is an application class.
func (p *Pool) IsApp(name string) bool {
	_, ok := p.records[name]
	return ok
}

func (p *Pool) notFound(name string) error {
	for _, r := range p.records {
		if r.References(name) {
			return fmt.Errorf("%w: %s", ErrUnresolvedClass, name)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownClass, name)
}

// Records returns every application class in name order.
func (p *Pool) Records() []*Record {
	out := make([]*Record, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Rekey re-derives every record's name from its class file after a bulk
// rewrite, relocating the address of each renamed record to match and
// refreshing all reference sets. On a name collision nothing is changed.
func (p *Pool) Rekey() ([]Move, error) {
	next := make(map[string]*Record, len(p.records))
	for _, r := range p.Records() {
		name := classfile.Qualified(r.Class.Name())
		if other, ok := next[name]; ok {
			return nil, fmt.Errorf("%w: %s (from %s and %s)", ErrDuplicateClass, name, other.Name, r.Name)
		}
		next[name] = r
	}

	var moves []Move
	for name, r := range next {
		if r.Name == name {
			continue
		}
		moves = append(moves, Move{From: r.Name, To: name})
		r.Address = r.Address.Relocate(name)
		r.Name = name
	}
	p.records = next
	p.RefreshAll()

	sort.Slice(moves, func(i, j int) bool { return moves[i].From < moves[j].From })
	return moves, nil
}

// RefreshAll recomputes every record's reference set.
func (p *Pool) RefreshAll() {
	for _, r := range p.records {
		p.refresh(r)
	}
}

// Refresh recomputes one record's reference set after an in-place edit.
func (p *Pool) Refresh(r *Record) {
	p.refresh(r)
}

// refresh collects the class names r's constant pool and descriptors name,
// plus string literals that spell a resolvable binary class name.
func (p *Pool) refresh(r *Record) {
	seen := map[string]bool{}
	for _, n := range r.Class.ReferencedClasses() {
		seen[classfile.Qualified(n)] = true
	}
	for _, s := range r.Class.StringConstants() {
		if isBinaryName(s) && p.Has(s) {
			seen[s] = true
		}
	}
	refs := make([]string, 0, len(seen))
	for n := range seen {
		refs = append(refs, n)
	}
	sort.Strings(refs)
	r.refs = refs
}

// isBinaryName reports whether s looks like a packaged binary class name.
func isBinaryName(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for i, c := range part {
			ok := unicode.IsLetter(c) || c == '_' || c == '$' || (i > 0 && unicode.IsDigit(c))
			if !ok {
				return false
			}
		}
	}
	return true
}

// Snapshot encodes every record, keyed by binary name.
func (p *Pool) Snapshot() (map[string][]byte, error) {
	out := make(map[string][]byte, len(p.records))
	for name, r := range p.records {
		data, err := r.Class.Bytes()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Resources returns the non-class archive entries carried to the outputs.
func (p *Pool) Resources() []Resource {
	return append([]Resource(nil), p.resources...)
}
