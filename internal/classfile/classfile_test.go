package classfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	activity       = "android/app/Activity"
	shadowActivity = "com/tencent/shadow/runtime/ShadowActivity"
)

func toShadow(name string) (string, bool) {
	if name == activity {
		return shadowActivity, true
	}
	return name, false
}

// activityUser builds a class that mentions Activity in every position the
// remapper must reach.
func activityUser(t *testing.T) *ClassFile {
	t.Helper()
	cf := NewClass("com/example/P", activity, 52, 0)
	require.NoError(t, cf.AddDefaultConstructor())
	cf.Fields = append(cf.Fields, &Member{
		Access:     AccPrivate,
		Name:       cf.Pool.AddUtf8("host"),
		Descriptor: cf.Pool.AddUtf8("L" + activity + ";"),
	})

	a := NewAssembler(cf.Pool)
	a.Ldc("android.app.Activity").Op(OpPop, -1)
	a.Load("Ljava/lang/Object;", 1).TypeOp(OpCheckcast, activity).Return("L" + activity + ";")
	cf.AddMethod(AccPublic, "cast", "(Ljava/lang/Object;)L"+activity+";", a.Code(2))
	return cf
}

func TestRoundTrip(t *testing.T) {
	cf := activityUser(t)
	b1, err := cf.Bytes()
	require.NoError(t, err)

	parsed, err := Parse(b1)
	require.NoError(t, err)
	assert.Equal(t, "com/example/P", parsed.Name())
	assert.Equal(t, activity, parsed.SuperName())
	assert.Len(t, parsed.Methods, 2)

	b2, err := parsed.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "parse then encode must reproduce the input")
}

func TestParseRejectsMalformed(t *testing.T) {
	cf := activityUser(t)
	good, err := cf.Bytes()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte{0xCA, 0xFE, 0xBA, 0xBF}, good[4:]...)},
		{"truncated", good[:len(good)-3]},
		{"trailing bytes", append(append([]byte{}, good...), 0x00)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestRemapRewritesEveryReference(t *testing.T) {
	cf := activityUser(t)

	changed, err := cf.Remap(toShadow)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, shadowActivity, cf.SuperName())
	assert.NotContains(t, cf.ReferencedClasses(), activity)
	assert.Contains(t, cf.ReferencedClasses(), shadowActivity)
	assert.Equal(t, []string{"com.tencent.shadow.runtime.ShadowActivity"}, cf.StringConstants())
	assert.Equal(t, "L"+shadowActivity+";", cf.MemberDescriptor(cf.Fields[0]))

	text, err := Disassemble(cf)
	require.NoError(t, err)
	assert.Contains(t, text, "checkcast com.tencent.shadow.runtime.ShadowActivity")
	assert.Contains(t, text, "invokespecial com.tencent.shadow.runtime.ShadowActivity.<init> ()V")
	assert.NotContains(t, text, "android.app.Activity")
}

func TestRemapIsIdempotent(t *testing.T) {
	cf := activityUser(t)
	_, err := cf.Remap(toShadow)
	require.NoError(t, err)
	once, err := cf.Bytes()
	require.NoError(t, err)

	changed, err := cf.Remap(toShadow)
	require.NoError(t, err)
	assert.False(t, changed)
	twice, err := cf.Bytes()
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestRemapKeepsSharedMemberNames(t *testing.T) {
	// The Utf8 "Foo" names both the class and a field.
	cf := NewClass("Foo", "java/lang/Object", 52, 0)
	cf.Fields = append(cf.Fields, &Member{Name: cf.Pool.AddUtf8("Foo"), Descriptor: cf.Pool.AddUtf8("I")})

	changed, err := cf.Remap(func(n string) (string, bool) {
		if n == "Foo" {
			return "Bar", true
		}
		return n, false
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Bar", cf.Name())
	assert.Equal(t, "Foo", cf.MemberName(cf.Fields[0]))

	data, err := cf.Bytes()
	require.NoError(t, err)
	_, err = Parse(data)
	require.NoError(t, err)
}

func TestRemapLiteralForms(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"android.app.Activity", "com.tencent.shadow.runtime.ShadowActivity", true},
		{"android/app/Activity", shadowActivity, true},
		{"android.app.ActivityThread", "android.app.ActivityThread", false},
		{"open android.app.Activity", "open android.app.Activity", false},
		{"Activity", "Activity", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := remapLiteral(tt.in, toShadow)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRemapSignature(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Landroid/app/Activity;", "Lcom/tencent/shadow/runtime/ShadowActivity;"},
		{"[[Landroid/app/Activity;", "[[Lcom/tencent/shadow/runtime/ShadowActivity;"},
		{"(ILandroid/app/Activity;J)V", "(ILcom/tencent/shadow/runtime/ShadowActivity;J)V"},
		{"Ljava/util/List<Landroid/app/Activity;>;", "Ljava/util/List<Lcom/tencent/shadow/runtime/ShadowActivity;>;"},
		{"Ljava/util/Map<*+Landroid/app/Activity;>;", "Ljava/util/Map<*+Lcom/tencent/shadow/runtime/ShadowActivity;>;"},
		{"<T:Landroid/app/Activity;>(TT;)TT;", "<T:Lcom/tencent/shadow/runtime/ShadowActivity;>(TT;)TT;"},
		{"<T::Ljava/lang/Runnable;>Ljava/lang/Object;", "<T::Ljava/lang/Runnable;>Ljava/lang/Object;"},
		{"Lcom/x/Outer<Landroid/app/Activity;>.Inner;", "Lcom/x/Outer<Lcom/tencent/shadow/runtime/ShadowActivity;>.Inner;"},
		{"Landroid/app/Activity", "Landroid/app/Activity"},
		{"Q", "Q"},
	}
	for _, tt := range tests {
		got, _ := RemapSignature(tt.in, toShadow)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestClassNamesIn(t *testing.T) {
	got := ClassNamesIn("(ILjava/lang/String;[Landroid/app/Activity;)Ljava/lang/String;")
	assert.Equal(t, []string{activity, "java/lang/String"}, got)
}

func TestMethodType(t *testing.T) {
	params, ret, err := MethodType("(IJ[Ljava/lang/String;)V")
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "J", "[Ljava/lang/String;"}, params)
	assert.Equal(t, "V", ret)

	params, ret, err = MethodType("()[I")
	require.NoError(t, err)
	assert.Empty(t, params)
	assert.Equal(t, "[I", ret)

	for _, bad := range []string{"I)V", "(I", "(Ljava/lang/String)V", "(X)V", "()II"} {
		_, _, err := MethodType(bad)
		assert.ErrorIs(t, err, ErrMalformed, bad)
	}
}

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"int", "I"},
		{"boolean[]", "[Z"},
		{"java.lang.String", "Ljava/lang/String;"},
		{"android.content.Context[][]", "[[Landroid/content/Context;"},
		{"a.b.Outer$Inner", "La/b/Outer$Inner;"},
	}
	for _, tt := range tests {
		st, err := ParseSourceType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, st.Descriptor(), tt.in)
	}

	for _, bad := range []string{"", "[]", "a/b/C", "java.lang.String;"} {
		_, err := ParseSourceType(bad)
		assert.Error(t, err, bad)
	}
}

func TestWalkVariableLength(t *testing.T) {
	code := []byte{
		0x00,       // nop
		0xaa, 0, 0, // tableswitch + padding
		0, 0, 0, 20, // default
		0, 0, 0, 0, // low
		0, 0, 0, 1, // high
		0, 0, 0, 10,
		0, 0, 0, 12,
		0xc4, 0x84, 0, 1, 0, 5, // wide iinc
		0xb1, // return
	}
	var offsets []int
	var ops []Opcode
	err := Walk(code, func(in Instruction) error {
		offsets = append(offsets, in.Offset)
		ops = append(ops, in.Op)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 24, 30}, offsets)
	assert.Equal(t, []Opcode{OpNop, OpTableswitch, OpWide, OpReturn}, ops)
}

func TestWalkRejectsBadCode(t *testing.T) {
	for name, code := range map[string][]byte{
		"undefined opcode": {0xcb},
		"truncated invoke": {0xb6, 0x00},
		"truncated switch": {0xab, 0, 0, 0},
	} {
		err := Walk(code, func(Instruction) error { return nil })
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestAssemblerTracksStack(t *testing.T) {
	pool := NewConstPool()
	a := NewAssembler(pool)
	a.Load("Ljava/lang/Object;", 0).Load("J", 1).Load("D", 3)
	require.NoError(t, a.Invoke(OpInvokeinterface, "com/x/Sink", "put", "(JD)Ljava/lang/String;"))
	a.Return("Ljava/lang/String;")
	code := a.Code(5)

	assert.Equal(t, uint16(5), code.MaxStack)
	assert.Equal(t, uint16(5), code.MaxLocals)
	// aload_0, lload_1, dload_3, invokeinterface (5 bytes), areturn
	assert.Len(t, code.Bytecode, 9)
	assert.Equal(t, byte(5), code.Bytecode[6], "invokeinterface count covers receiver and wide args")

	assert.Error(t, a.Invoke(OpNew, "com/x/Sink", "put", "()V"))
}

func TestReplaceSuperclassRetargetsSuperConstructor(t *testing.T) {
	const webView = "android/webkit/WebView"
	cf := NewClass("com/example/Web", webView, 52, 0)
	a := NewAssembler(cf.Pool)
	a.TypeOp(OpNew, webView).Op(OpDup, 1).Load("Landroid/content/Context;", 1)
	require.NoError(t, a.Invoke(OpInvokespecial, webView, "<init>", "(Landroid/content/Context;)V"))
	a.Op(OpPop, -1)
	a.Load("Lcom/example/Web;", 0).Load("Landroid/content/Context;", 1)
	require.NoError(t, a.Invoke(OpInvokespecial, webView, "<init>", "(Landroid/content/Context;)V"))
	a.Return("V")
	cf.AddMethod(AccPublic, "<init>", "(Landroid/content/Context;)V", a.Code(2))

	require.NoError(t, cf.ReplaceSuperclass("com/tencent/shadow/runtime/ShadowWebView"))

	text, err := Disassemble(cf)
	require.NoError(t, err)
	assert.Equal(t, `class com.example.Web extends com.tencent.shadow.runtime.ShadowWebView
  method public <init> (Landroid/content/Context;)V
    new android.webkit.WebView
    dup
    aload_1
    invokespecial android.webkit.WebView.<init> (Landroid/content/Context;)V
    pop
    aload_0
    aload_1
    invokespecial com.tencent.shadow.runtime.ShadowWebView.<init> (Landroid/content/Context;)V
    return
`, text)
}

func TestDisassembleDefaultConstructor(t *testing.T) {
	cf := NewClass("com/example/Foo", "java/lang/Object", 52, 0)
	require.NoError(t, cf.AddDefaultConstructor())
	cf.AddMethod(AccPublic|AccAbstract, "run", "()V", nil)

	text, err := Disassemble(cf)
	require.NoError(t, err)
	assert.Equal(t, `class com.example.Foo extends java.lang.Object
  method public <init> ()V
    aload_0
    invokespecial java.lang.Object.<init> ()V
    return
  method public abstract run ()V
`, text)
}

func TestConstPoolDeduplicates(t *testing.T) {
	p := NewConstPool()
	a := p.AddMethodref("com/x/A", "m", "()V", false)
	b := p.AddMethodref("com/x/A", "m", "()V", false)
	c := p.AddMethodref("com/x/A", "m", "()V", true)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	owner, name, desc, err := p.MemberRef(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"com/x/A", "m", "()V"}, []string{owner, name, desc})
	assert.Equal(t, TagInterfaceMethodref, p.Get(c).Tag)
	assert.Nil(t, p.Get(0))
}

func TestAddSuperConstructorPassesEveryArgument(t *testing.T) {
	cf := NewClass("com/example/Foo", "com/example/Base", 52, 0)
	require.NoError(t, cf.AddSuperConstructor(AccProtected, "(D[ILjava/lang/Object;)V"))

	text, err := Disassemble(cf)
	require.NoError(t, err)
	assert.Equal(t, `class com.example.Foo extends com.example.Base
  method protected <init> (D[ILjava/lang/Object;)V
    aload_0
    dload_1
    aload_3
    aload 4
    invokespecial com.example.Base.<init> (D[ILjava/lang/Object;)V
    return
`, text)

	code, err := cf.CodeOf(cf.FindMethod("<init>", "(D[ILjava/lang/Object;)V"))
	require.NoError(t, err)
	assert.Equal(t, uint16(5), code.MaxLocals)
	assert.Equal(t, uint16(5), code.MaxStack)

	assert.ErrorIs(t, cf.AddSuperConstructor(AccPublic, "()I"), ErrMalformed)
}
