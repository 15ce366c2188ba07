package hostctx_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/hostctx"
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

const barDesc = "(ILandroid/content/Context;)V"

// foo declares bar(int,Context) and calls it from inside the class.
func foo() *testutil.ClassBuilder {
	return testutil.Class("com.example.Foo", "").
		Method(classfile.AccPublic, "bar", barDesc, func(b *testutil.Body) {
			b.Return("V")
		}).
		Method(classfile.AccPublic, "self", "(I)V", func(b *testutil.Body) {
			b.This().Load("I", 1).Null().InvokeVirtual("com.example.Foo", "bar", barDesc).Return("V")
		})
}

func caller(name string) *testutil.ClassBuilder {
	return testutil.Class(name, "").Method(classfile.AccPublic|classfile.AccStatic, "call", "(Lcom/example/Foo;I)V", func(b *testutil.Body) {
		b.Load("Lcom/example/Foo;", 0).Load("I", 1).Null().InvokeVirtual("com.example.Foo", "bar", barDesc).Return("V")
	})
}

// mixed declares m(String,Context[],Activity), none of which can hold the
// unwrapped Context, and n(Object), which can.
func mixed() *testutil.ClassBuilder {
	return testutil.Class("com.example.Mixed", "").
		Method(classfile.AccPublic, "m", "(Ljava/lang/String;[Landroid/content/Context;Landroid/app/Activity;)V", func(b *testutil.Body) {
			b.Return("V")
		}).
		Method(classfile.AccPublic, "n", "(Ljava/lang/Object;)V", func(b *testutil.Body) {
			b.Return("V")
		})
}

func TestParse(t *testing.T) {
	got, err := hostctx.Parse(" com.example.Foo.bar(int, java.lang.String)$1$2 ")
	require.NoError(t, err)
	want := ir.ContextRule{
		Text:           "com.example.Foo.bar(int, java.lang.String)$1$2",
		DeclaringClass: "com.example.Foo",
		MethodName:     "bar",
		ParamTypes:     []string{"int", "java.lang.String"},
		Positions:      []int{1, 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}

	empty, err := hostctx.Parse("a.B.run()")
	require.NoError(t, err)
	assert.Empty(t, empty.ParamTypes)
	assert.Empty(t, empty.Positions)
}

func TestParseNormalizesText(t *testing.T) {
	decomposed, err := hostctx.Parse("com.example.Cafe\u0301.go()")
	require.NoError(t, err)
	composed, err := hostctx.Parse("com.example.Caf\u00e9.go()")
	require.NoError(t, err)
	assert.Equal(t, composed.DeclaringClass, decomposed.DeclaringClass)
	assert.Equal(t, composed.Text, decomposed.Text)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, text := range []string{
		"Foo.bar(int)(extra)$1",
		"com.example.Foo.bar(int$1",
		"com.example.Foo.bar)int($1",
		"bar(int)$1",
		"com.example.Foo.(int)$1",
		"com.example.Foo.bar(int,)$1",
		"com.example.Foo.bar(int)x$1",
		"com.example.Foo.bar(int)$one",
		"com.example.Foo.bar(int)$",
		"com.example.Foo.<init>(int)$1",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := hostctx.Parse(text)
			require.ErrorIs(t, err, hostctx.ErrMalformedRule)
			var re *hostctx.RuleError
			require.ErrorAs(t, err, &re)
			assert.NotEmpty(t, re.Rule)
		})
	}
}

func TestParseAllStopsAtFirstError(t *testing.T) {
	_, err := hostctx.ParseAll([]string{"a.B.c()", "bad", "a.B.d()"})
	var re *hostctx.RuleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "bad", re.Rule)
}

func TestResolveErrors(t *testing.T) {
	p := newPool(t, foo(),
		testutil.Class("com.example.Twice", "").
			Method(classfile.AccPublic, "m", "(I)V", func(b *testutil.Body) { b.Return("V") }).
			Method(classfile.AccPublic, "m", "(I)I", func(b *testutil.Body) { b.Load("I", 1).Return("I") }),
		mixed(),
	)

	cases := []struct {
		rule string
		want error
	}{
		{"com.example.Nope.bar(int,android.content.Context)$2", hostctx.ErrClassNotFound},
		{"android.app.Dialog.show()", hostctx.ErrClassNotFound},
		{"com.example.Foo.bar(int,com.example.Missing)$2", hostctx.ErrTypeNotFound},
		{"com.example.Foo.bar(int)$1", hostctx.ErrMethodNotFound},
		{"com.example.Foo.baz(int,android.content.Context)$2", hostctx.ErrMethodNotFound},
		{"com.example.Twice.m(int)$1", hostctx.ErrMethodNotFound},
		{"com.example.Foo.bar(int,android.content.Context)$3", hostctx.ErrPositionOutOfRange},
		{"com.example.Foo.bar(int,android.content.Context)$0", hostctx.ErrPositionOutOfRange},
		{"com.example.Foo.bar(int,android.content.Context)$1", hostctx.ErrPositionNotContext},
		{"com.example.Foo.bar(int,android.content.Context)$2$1", hostctx.ErrPositionNotContext},
		{"com.example.Mixed.m(java.lang.String,android.content.Context[],android.app.Activity)$1", hostctx.ErrPositionNotContext},
		{"com.example.Mixed.m(java.lang.String,android.content.Context[],android.app.Activity)$2", hostctx.ErrPositionNotContext},
		{"com.example.Mixed.m(java.lang.String,android.content.Context[],android.app.Activity)$3", hostctx.ErrPositionNotContext},
	}
	for _, tc := range cases {
		t.Run(tc.rule, func(t *testing.T) {
			rule, err := hostctx.Parse(tc.rule)
			require.NoError(t, err)
			_, err = hostctx.Resolve(p, ir.DefaultNames(), rule)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResolveAcceptsContextAndItsSupertypes(t *testing.T) {
	p := newPool(t, foo(), mixed())
	for _, text := range []string{
		"com.example.Foo.bar(int,android.content.Context)$2",
		"com.example.Mixed.n(java.lang.Object)$1",
		"com.example.Mixed.m(java.lang.String,android.content.Context[],android.app.Activity)",
	} {
		rule, err := hostctx.Parse(text)
		require.NoError(t, err)
		_, err = hostctx.Resolve(p, ir.DefaultNames(), rule)
		assert.NoError(t, err, text)
	}
}

func TestApplyClonesAndRedirectsExternalCallers(t *testing.T) {
	p := newPool(t, foo(), caller("com.example.Caller"))
	r := resolve.New(p)

	rule, err := hostctx.Parse("com.example.Foo.bar(int,android.content.Context)$2")
	require.NoError(t, err)
	target, err := hostctx.Resolve(p, ir.DefaultNames(), rule)
	require.NoError(t, err)

	fooRec, err := p.Get("com.example.Foo")
	require.NoError(t, err)
	methods := len(fooRec.Class.Methods)

	clone, err := hostctx.Apply(p, r, ir.DefaultNames(), target)
	require.NoError(t, err)
	assert.Equal(t, hostctx.Clone{
		Rule:       rule.Text,
		Class:      "com.example.Foo",
		Method:     "bar_KeepHostContext",
		Descriptor: barDesc,
		Redirected: []string{"com.example.Caller"},
	}, clone)

	assert.Len(t, fooRec.Class.Methods, methods+1)
	assert.NotNil(t, fooRec.Class.FindMethod("bar", barDesc), "the original is kept")

	fooText, err := classfile.Disassemble(fooRec.Class)
	require.NoError(t, err)
	assert.Contains(t, fooText, `  method public bar_KeepHostContext (ILandroid/content/Context;)V
    aload_0
    iload_1
    aload_2
    checkcast com.tencent.shadow.runtime.ShadowContext
    invokevirtual com.tencent.shadow.runtime.ShadowContext.getBaseContext ()Landroid/content/Context;
    invokevirtual com.example.Foo.bar (ILandroid/content/Context;)V
    return
`)
	assert.Contains(t, fooText, `  method public self (I)V
    aload_0
    iload_1
    aconst_null
    invokevirtual com.example.Foo.bar (ILandroid/content/Context;)V
`, "calls inside the declaring class keep the original")

	callerRec, err := p.Get("com.example.Caller")
	require.NoError(t, err)
	callerText, err := classfile.Disassemble(callerRec.Class)
	require.NoError(t, err)
	assert.Contains(t, callerText, "invokevirtual com.example.Foo.bar_KeepHostContext (ILandroid/content/Context;)V")
	assert.NotContains(t, callerText, "com.example.Foo.bar (")
}

func TestApplyStaticReturningClone(t *testing.T) {
	const desc = "(Landroid/content/Context;J)Ljava/lang/String;"
	p := newPool(t, testutil.Class("com.example.Util", "").
		Method(classfile.AccPublic|classfile.AccStatic, "label", desc, func(b *testutil.Body) {
			b.Null().Return("Ljava/lang/String;")
		}))

	rule, err := hostctx.Parse("com.example.Util.label(android.content.Context,long)$1")
	require.NoError(t, err)
	target, err := hostctx.Resolve(p, ir.DefaultNames(), rule)
	require.NoError(t, err)
	_, err = hostctx.Apply(p, resolve.New(p), ir.DefaultNames(), target)
	require.NoError(t, err)

	rec, err := p.Get("com.example.Util")
	require.NoError(t, err)
	text, err := classfile.Disassemble(rec.Class)
	require.NoError(t, err)
	assert.Contains(t, text, `  method public static label_KeepHostContext (Landroid/content/Context;J)Ljava/lang/String;
    aload_0
    checkcast com.tencent.shadow.runtime.ShadowContext
    invokevirtual com.tencent.shadow.runtime.ShadowContext.getBaseContext ()Landroid/content/Context;
    lload_1
    invokestatic com.example.Util.label (Landroid/content/Context;J)Ljava/lang/String;
    areturn
`)
	assert.True(t, rec.References(testutil.ShadowContext))

	m := rec.Class.FindMethod("label_KeepHostContext", desc)
	require.NotNil(t, m)
	code, err := rec.Class.CodeOf(m)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), code.MaxLocals)
}

func TestApplyRejectsExistingClone(t *testing.T) {
	p := newPool(t, foo().Method(classfile.AccPublic, "bar_KeepHostContext", barDesc, func(b *testutil.Body) { b.Return("V") }))
	rule, err := hostctx.Parse("com.example.Foo.bar(int,android.content.Context)$2")
	require.NoError(t, err)
	target, err := hostctx.Resolve(p, ir.DefaultNames(), rule)
	require.NoError(t, err)

	_, err = hostctx.Apply(p, resolve.New(p), ir.DefaultNames(), target)
	assert.ErrorIs(t, err, pool.ErrDuplicateClass)
}
