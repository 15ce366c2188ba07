package ir

import (
	"errors"
	"fmt"
)

var (
	// ErrChainedMapping reports a mapping target that is also a source.
	ErrChainedMapping = errors.New("rename target is also a rename source")

	// ErrDuplicateSource reports the same source mapped twice.
	ErrDuplicateSource = errors.New("duplicate rename source")

	// ErrEmptyName reports a pair with a blank side.
	ErrEmptyName = errors.New("empty class name in rename pair")
)

// RenamePair maps one binary class name to another.
type RenamePair struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// RenameMapping is an ordered, validated set of rename pairs. The zero value
// is an empty mapping. A RenameMapping is never modified after construction.
type RenameMapping struct {
	pairs []RenamePair
	index map[string]string
}

// NewRenameMapping validates pairs and returns the mapping. No source may
// repeat and no target may appear as a source, so a single pass over the
// table yields the final names.
func NewRenameMapping(pairs ...RenamePair) (RenameMapping, error) {
	index := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if p.From == "" || p.To == "" {
			return RenameMapping{}, fmt.Errorf("%w: %q -> %q", ErrEmptyName, p.From, p.To)
		}
		if _, dup := index[p.From]; dup {
			return RenameMapping{}, fmt.Errorf("%w: %s", ErrDuplicateSource, p.From)
		}
		index[p.From] = p.To
	}
	for _, p := range pairs {
		if _, chained := index[p.To]; chained {
			return RenameMapping{}, fmt.Errorf("%w: %s -> %s", ErrChainedMapping, p.From, p.To)
		}
	}
	return RenameMapping{pairs: append([]RenamePair(nil), pairs...), index: index}, nil
}

// MustRenameMapping is like NewRenameMapping but panics on error.
// Use only for built-in tables and tests.
func MustRenameMapping(pairs ...RenamePair) RenameMapping {
	m, err := NewRenameMapping(pairs...)
	if err != nil {
		panic(err)
	}
	return m
}

// Pairs returns a copy of the pairs in declaration order.
func (m RenameMapping) Pairs() []RenamePair {
	return append([]RenamePair(nil), m.pairs...)
}

// Len returns the number of pairs.
func (m RenameMapping) Len() int {
	return len(m.pairs)
}

// Lookup returns the replacement for a binary class name.
func (m RenameMapping) Lookup(name string) (string, bool) {
	to, ok := m.index[name]
	return to, ok
}

const runtimePackage = "com.tencent.shadow.runtime."

// DefaultRenameMapping is the host framework to virtualized type table
// applied to every application class.
func DefaultRenameMapping() RenameMapping {
	return MustRenameMapping(
		RenamePair{"android.app.Application", runtimePackage + "ShadowApplication"},
		RenamePair{"android.app.Activity", runtimePackage + "ShadowActivity"},
		RenamePair{"android.app.Service", runtimePackage + "ShadowService"},
		RenamePair{"android.app.Fragment", runtimePackage + "ShadowFragment"},
		RenamePair{"android.app.DialogFragment", runtimePackage + "ShadowDialogFragment"},
		RenamePair{"android.app.FragmentManager", runtimePackage + "PluginFragmentManager"},
		RenamePair{"android.app.FragmentTransaction", runtimePackage + "PluginFragmentTransaction"},
		RenamePair{"android.app.Application$ActivityLifecycleCallbacks", runtimePackage + "ShadowActivityLifecycleCallbacks"},
		RenamePair{"android.app.Dialog", runtimePackage + "ShadowDialog"},
		RenamePair{"android.app.Instrumentation", runtimePackage + "ShadowInstrumentation"},
	)
}

// RemoteViewRenameMapping retargets the cross-plugin remote view SDK onto
// its runtime implementation. It is applied to every class outside the SDK
// package itself.
func RemoteViewRenameMapping() RenameMapping {
	const sdk = "com.tencent.shadow.remoteview.localsdk."
	const impl = runtimePackage + "remoteview.Shadow"
	return MustRenameMapping(
		RenamePair{sdk + "RemoteViewCreator", impl + "RemoteViewCreator"},
		RenamePair{sdk + "RemoteViewCreatorFactory", impl + "RemoteViewCreatorFactory"},
		RenamePair{sdk + "RemoteViewCreateCallback", impl + "RemoteViewCreateCallback"},
		RenamePair{sdk + "RemoteViewCreateException", impl + "RemoteViewCreateException"},
	)
}
