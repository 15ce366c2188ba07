package ir

// FragmentKind distinguishes the two fragment families.
type FragmentKind string

const (
	KindFragment       FragmentKind = "fragment"
	KindDialogFragment FragmentKind = "dialog_fragment"
)

// FragmentRecord describes one fragment identity swap.
type FragmentRecord struct {
	// OriginalName is the name the host loader resolves; after the swap it
	// names the synthesized container.
	OriginalName string `json:"original_name"`

	// SuffixedName is where the fragment's own code lives after the swap.
	SuffixedName string `json:"suffixed_name"`

	// ContainerSuperclass is the container base of the synthesized class.
	ContainerSuperclass string `json:"container_superclass"`

	Kind FragmentKind `json:"kind"`
}

// ContextRule is a parsed host-context preservation rule:
//
//	com.example.Foo.bar(int,android.content.Context)$2
//
// Positions are 1-based argument indexes, in the order written.
type ContextRule struct {
	Text           string   `json:"text"`
	DeclaringClass string   `json:"declaring_class"`
	MethodName     string   `json:"method_name"`
	ParamTypes     []string `json:"param_types"`
	Positions      []int    `json:"positions"`
}

// Flags reports whether argument i (1-based) is unwrapped.
func (r ContextRule) Flags(i int) bool {
	for _, p := range r.Positions {
		if p == i {
			return true
		}
	}
	return false
}
