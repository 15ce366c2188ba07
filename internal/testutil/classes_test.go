package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowtransform/internal/classfile"
)

func TestClassBuilderRoundTrips(t *testing.T) {
	data := Class("com.example.Main", Activity).
		Implements("java.lang.Runnable").
		Field("count", "I").
		DefaultConstructor().
		Method(classfile.AccPublic, "run", "()V", func(b *Body) {
			b.Ldc("hello").Pop()
			b.Load(DescContext, 0).InvokeVirtual(Context, "toString", "()Ljava/lang/String;").Pop()
			b.Return("V")
		}).
		Bytes()

	cf, err := classfile.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "com/example/Main", cf.Name())
	assert.Equal(t, "android/app/Activity", cf.SuperName())
	assert.Equal(t, []string{"java/lang/Runnable"}, cf.InterfaceNames())
	assert.NotNil(t, cf.FindMethod("run", "()V"))

	code, err := cf.CodeOf(cf.FindMethod("run", "()V"))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), code.MaxLocals)
	assert.Equal(t, uint16(1), code.MaxStack)
}

func TestClassBuilderPanicsOnBadDescriptor(t *testing.T) {
	assert.Panics(t, func() {
		Class("com.example.Bad", "").Method(classfile.AccPublic, "m", "(X)V", func(*Body) {}).Build()
	})
}

func TestClassBuilderResultReportsFirstError(t *testing.T) {
	_, err := Class("com.example.Bad", "").
		Method(classfile.AccPublic, "m", "(X)V", func(*Body) {}).
		Method(classfile.AccPublic, "n", "(Y)V", func(*Body) {}).
		Result()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "com.example.Bad")
	assert.NotContains(t, err.Error(), "(Y)V")
}

func TestHostClasses(t *testing.T) {
	host := HostClasses()

	dialog := host[ShadowDialog]
	require.NotNil(t, dialog)
	assert.Equal(t, "android/app/Dialog", dialog.SuperName())
	assert.NotNil(t, dialog.FindMethod("getOwnerPluginActivity", "()"+DescShadowActivity))

	assert.NotNil(t, host[ShadowContext].FindMethod("getBaseContext", "()"+DescContext))
	assert.Equal(t, "", host[Object].SuperName())
	assert.Len(t, host[PendingIntent].MethodsNamed("getActivity"), 1)

	// Fresh values on every call.
	assert.NotSame(t, host[Uri], HostClasses()[Uri])
}
