package fragment_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/fragment"
	"github.com/roach88/shadowtransform/internal/ir"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/resolve"
	"github.com/roach88/shadowtransform/internal/testutil"
)

func newPool(t *testing.T, builders ...*testutil.ClassBuilder) *pool.Pool {
	t.Helper()
	p := pool.New(pool.MapClasspath(testutil.HostClasses()))
	for _, b := range builders {
		cf := b.Build()
		name := classfile.Qualified(cf.Name())
		require.NoError(t, p.Add(&pool.Record{
			Class:   cf,
			Address: pool.Address{Kind: pool.DirAddress, Root: "out", Path: pool.ClassPath(name)},
			Origin:  "in",
		}))
	}
	return p
}

func fixture(t *testing.T) *pool.Pool {
	return newPool(t,
		testutil.Class("com.example.ListFrag", testutil.ShadowFragment).DefaultConstructor(),
		testutil.Class("com.example.AlertFrag", testutil.ShadowDialogFragment).DefaultConstructor(),
		testutil.Class("com.example.DeepFrag", "com.example.ListFrag"),
		testutil.Class("com.example.Orphan", "com.thirdparty.Missing"),
		testutil.Class("com.example.Plain", ""),
		testutil.Class("com.example.Host", "").Method(classfile.AccPublic|classfile.AccStatic, "open", "()Ljava/lang/Object;", func(b *testutil.Body) {
			b.New("com.example.ListFrag").Dup().InvokeSpecial("com.example.ListFrag", "<init>", "()V").Pop()
			b.Ldc("com.example.AlertFrag").Pop()
			b.Null().Return("Ljava/lang/Object;")
		}),
	)
}

func TestDetect(t *testing.T) {
	p := fixture(t)
	got := fragment.Detect(p, resolve.New(p), ir.DefaultNames())

	want := []ir.FragmentRecord{
		{OriginalName: "com.example.AlertFrag", SuffixedName: "com.example.AlertFrag_", ContainerSuperclass: testutil.ContainerDialogFragment, Kind: ir.KindDialogFragment},
		{OriginalName: "com.example.DeepFrag", SuffixedName: "com.example.DeepFrag_", ContainerSuperclass: testutil.ContainerFragment, Kind: ir.KindFragment},
		{OriginalName: "com.example.ListFrag", SuffixedName: "com.example.ListFrag_", ContainerSuperclass: testutil.ContainerFragment, Kind: ir.KindFragment},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Detect mismatch (-want +got):\n%s", diff)
	}
}

func TestSwapConsistency(t *testing.T) {
	p := fixture(t)
	before := p.Len()
	frags := fragment.Detect(p, resolve.New(p), ir.DefaultNames())
	require.NoError(t, fragment.Swap(p, frags))

	assert.Equal(t, before+len(frags), p.Len())

	for _, f := range frags {
		container, err := p.Get(f.OriginalName)
		require.NoError(t, err)
		assert.True(t, container.Synthesized())
		assert.Equal(t, classfile.Internal(f.ContainerSuperclass), container.Class.SuperName())
		assert.Equal(t, pool.ClassPath(f.OriginalName), container.Address.Path, "container takes the original address")
		assert.NotNil(t, container.Class.FindMethod("<init>", "()V"))
		assert.Empty(t, container.Class.Fields)

		moved, err := p.Get(f.SuffixedName)
		require.NoError(t, err)
		assert.False(t, moved.Synthesized())
		assert.Equal(t, pool.ClassPath(f.SuffixedName), moved.Address.Path)
	}

	deep, err := p.Get("com.example.DeepFrag_")
	require.NoError(t, err)
	assert.Equal(t, "com/example/ListFrag_", deep.Class.SuperName())

	host, err := p.Get("com.example.Host")
	require.NoError(t, err)
	for _, f := range frags {
		assert.False(t, host.References(f.OriginalName), "host still names %s", f.OriginalName)
	}
	assert.True(t, host.References("com.example.ListFrag_"))
	assert.True(t, host.References("com.example.AlertFrag_"))
}

func TestContainerDisassembly(t *testing.T) {
	base := testutil.HostClasses()[testutil.ContainerFragment]
	cf, err := fragment.Container(ir.FragmentRecord{
		OriginalName:        "com.example.F",
		ContainerSuperclass: testutil.ContainerFragment,
	}, base, 52, 0)
	require.NoError(t, err)

	text, err := classfile.Disassemble(cf)
	require.NoError(t, err)
	assert.Equal(t, `class com.example.F extends com.tencent.shadow.runtime.ContainerFragment
  method public <init> ()V
    aload_0
    invokespecial com.tencent.shadow.runtime.ContainerFragment.<init> ()V
    return
`, text)
}

func TestContainerInheritsCallableConstructors(t *testing.T) {
	base := testutil.Class("com.host.Base", "").
		Native(classfile.AccPublic, "<init>", "()V").
		Native(classfile.AccProtected, "<init>", "(JLjava/lang/String;)V").
		Native(classfile.AccPrivate, "<init>", "(I)V").
		Native(0, "<init>", "(Z)V").
		Build()

	other, err := fragment.Container(ir.FragmentRecord{OriginalName: "com.example.F", ContainerSuperclass: "com.host.Base"}, base, 52, 0)
	require.NoError(t, err)
	text, err := classfile.Disassemble(other)
	require.NoError(t, err)
	assert.Equal(t, `class com.example.F extends com.host.Base
  method public <init> ()V
    aload_0
    invokespecial com.host.Base.<init> ()V
    return
  method protected <init> (JLjava/lang/String;)V
    aload_0
    lload_1
    aload_3
    invokespecial com.host.Base.<init> (JLjava/lang/String;)V
    return
`, text)

	m := other.FindMethod("<init>", "(JLjava/lang/String;)V")
	require.NotNil(t, m)
	code, err := other.CodeOf(m)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), code.MaxLocals)

	same, err := fragment.Container(ir.FragmentRecord{OriginalName: "com.host.F", ContainerSuperclass: "com.host.Base"}, base, 52, 0)
	require.NoError(t, err)
	assert.NotNil(t, same.FindMethod("<init>", "(Z)V"), "package-private constructors are inherited within the package")
	assert.Nil(t, same.FindMethod("<init>", "(I)V"), "private constructors are never inherited")
}

func TestSwapRejectsBaseWithoutInheritableConstructor(t *testing.T) {
	host := testutil.HostClasses()
	host["com.host.Sealed"] = testutil.Class("com.host.Sealed", "").
		Native(classfile.AccPrivate, "<init>", "()V").
		Build()
	p := pool.New(pool.MapClasspath(host))
	require.NoError(t, p.Add(&pool.Record{Class: testutil.Class("com.example.F", testutil.ShadowFragment).Build()}))
	snap, err := p.Snapshot()
	require.NoError(t, err)

	err = fragment.Swap(p, []ir.FragmentRecord{{
		OriginalName: "com.example.F", SuffixedName: "com.example.F_",
		ContainerSuperclass: "com.host.Sealed", Kind: ir.KindFragment,
	}})
	assert.ErrorIs(t, err, fragment.ErrNoInheritableConstructor)

	after, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, after, "a rejected swap leaves the pool untouched")
}

func TestSwapRejectsOccupiedSuffix(t *testing.T) {
	p := newPool(t,
		testutil.Class("com.example.F", testutil.ShadowFragment),
		testutil.Class("com.example.F_", ""),
	)
	snap, err := p.Snapshot()
	require.NoError(t, err)

	err = fragment.Swap(p, []ir.FragmentRecord{{
		OriginalName: "com.example.F", SuffixedName: "com.example.F_",
		ContainerSuperclass: testutil.ContainerFragment, Kind: ir.KindFragment,
	}})
	assert.ErrorIs(t, err, pool.ErrDuplicateClass)

	after, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, after, "a rejected swap leaves the pool untouched")
}

func TestSwapRejectsMissingContainer(t *testing.T) {
	p := pool.New(nil)
	require.NoError(t, p.Add(&pool.Record{Class: testutil.Class("com.example.F", "").Build()}))

	err := fragment.Swap(p, []ir.FragmentRecord{{
		OriginalName: "com.example.F", SuffixedName: "com.example.F_",
		ContainerSuperclass: testutil.ContainerFragment, Kind: ir.KindFragment,
	}})
	assert.ErrorIs(t, err, fragment.ErrContainerMissing)
	assert.True(t, p.IsApp("com.example.F"))
	assert.False(t, p.IsApp("com.example.F_"))
}

func TestSwapNothing(t *testing.T) {
	p := newPool(t, testutil.Class("com.example.Plain", ""))
	require.NoError(t, fragment.Swap(p, nil))
	assert.Equal(t, 1, p.Len())
}
