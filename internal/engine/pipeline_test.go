package engine_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/testutil"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func newPool(t *testing.T, builders ...*testutil.ClassBuilder) *pool.Pool {
	t.Helper()
	p := pool.New(pool.MapClasspath(testutil.HostClasses()))
	for _, b := range builders {
		cf := b.Build()
		name := classfile.Qualified(cf.Name())
		require.NoError(t, p.Add(&pool.Record{
			Class:   cf,
			Address: pool.Address{Kind: pool.ArchiveAddress, Root: "plugin.jar", Path: pool.ClassPath(name)},
			Origin:  "plugin.jar",
		}))
	}
	return p
}

const (
	ctxDesc     = testutil.DescContext
	webCtorDesc = "(" + testutil.DescContext + ")V"
)

// pluginApp is a small plugin touching every step of the pipeline.
func pluginApp() []*testutil.ClassBuilder {
	return []*testutil.ClassBuilder{
		testutil.Class("com.example.MainActivity", testutil.Activity).
			DefaultConstructor().
			Method(classfile.AccPublic, "wire", "(Landroid/app/Dialog;Landroid/content/Intent;I)V", func(b *testutil.Body) {
				b.Load("Landroid/app/Dialog;", 1).InvokeVirtual(testutil.Dialog, "getOwnerActivity", "()"+testutil.DescActivity).Pop()
				b.Load("Landroid/app/Dialog;", 1).This().Checkcast(testutil.Activity).
					InvokeVirtual(testutil.Dialog, "setOwnerActivity", "("+testutil.DescActivity+")V")
				b.New(testutil.WebView).Dup().This().InvokeSpecial(testutil.WebView, "<init>", webCtorDesc).Pop()
				b.This().Load("I", 3).Load("Landroid/content/Intent;", 2).Load("I", 3).
					InvokeStatic(testutil.PendingIntent, "getActivity", testutil.DescPendingIntentCall).Pop()
				b.This().Load("I", 3).Load("Landroid/content/Intent;", 2).Load("I", 3).
					InvokeStatic(testutil.PendingIntent, "getBroadcast", testutil.DescPendingIntentCall).Pop()
				b.Ldc("content://x").InvokeStatic(testutil.Uri, "parse", testutil.DescUriParse).Pop()
				b.Ldc("android.app.Activity").Pop()
				b.Return("V")
			}),
		testutil.Class("com.example.ListFragment", testutil.Fragment).DefaultConstructor(),
		testutil.Class("com.example.ConfirmFragment", testutil.DialogFragment).DefaultConstructor(),
		testutil.Class("com.example.Browser", testutil.WebView).
			Method(classfile.AccPublic, "<init>", webCtorDesc, func(b *testutil.Body) {
				b.This().Load(ctxDesc, 1).InvokeSpecial(testutil.WebView, "<init>", webCtorDesc).Return("V")
			}),
		testutil.Class("com.example.Sdk", "").
			Method(classfile.AccPublic|classfile.AccStatic, "init", "("+ctxDesc+")V", func(b *testutil.Body) {
				b.Return("V")
			}).
			Method(classfile.AccPublic|classfile.AccStatic, "reinit", "("+ctxDesc+")V", func(b *testutil.Body) {
				b.Load(ctxDesc, 0).InvokeStatic("com.example.Sdk", "init", "("+ctxDesc+")V").Return("V")
			}),
		testutil.Class("com.example.App", "").
			Method(classfile.AccPublic|classfile.AccStatic, "start", "("+ctxDesc+")Ljava/lang/Object;", func(b *testutil.Body) {
				b.Load(ctxDesc, 0).InvokeStatic("com.example.Sdk", "init", "("+ctxDesc+")V")
				b.New("com.example.ListFragment").Dup().InvokeSpecial("com.example.ListFragment", "<init>", "()V")
				b.Return("Ljava/lang/Object;")
			}),
	}
}

func disasm(t *testing.T, p *pool.Pool, name string) string {
	t.Helper()
	rec, err := p.Get(name)
	require.NoError(t, err)
	text, err := classfile.Disassemble(rec.Class)
	require.NoError(t, err)
	return text
}

func newPipeline(rules ...string) *engine.Pipeline {
	return engine.New(
		engine.WithRules(rules...),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1")),
	)
}

func TestRunEndToEnd(t *testing.T) {
	p := newPool(t, pluginApp()...)
	before := p.Len()

	res, err := newPipeline("com.example.Sdk.init(android.content.Context)$1").Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.NotEqual(t, res.InputDigest, res.OutputDigest)
	assert.Equal(t, before+2, res.Classes)
	assert.Equal(t, before+2, p.Len())
	var names []string
	for _, s := range res.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, engine.Steps, names)

	// Step 1: no application class names the host Activity any more.
	main := disasm(t, p, "com.example.MainActivity")
	assert.Contains(t, main, "class com.example.MainActivity extends com.tencent.shadow.runtime.ShadowActivity")
	for _, rec := range p.Records() {
		assert.False(t, rec.References(testutil.Activity), "%s references the host Activity", rec.Name)
		assert.False(t, rec.References(testutil.Dialog), "%s references the host Dialog", rec.Name)
	}

	// Steps 2 and 3.
	require.Len(t, res.Fragments, 2)
	list := disasm(t, p, "com.example.ListFragment")
	assert.True(t, strings.HasPrefix(list, "class com.example.ListFragment extends com.tencent.shadow.runtime.ContainerFragment\n"))
	confirm := disasm(t, p, "com.example.ConfirmFragment")
	assert.True(t, strings.HasPrefix(confirm, "class com.example.ConfirmFragment extends com.tencent.shadow.runtime.ContainerDialogFragment\n"))
	moved, err := p.Get("com.example.ListFragment_")
	require.NoError(t, err)
	assert.Equal(t, "com/tencent/shadow/runtime/ShadowFragment", moved.Class.SuperName())
	assert.Equal(t, "com/example/ListFragment_.class", moved.Address.Path)
	assert.Contains(t, disasm(t, p, "com.example.App"), "new com.example.ListFragment_")

	// Step 4.
	assert.Contains(t, main, "invokevirtual com.tencent.shadow.runtime.ShadowDialog.getOwnerPluginActivity ()"+testutil.DescShadowActivity)
	assert.Contains(t, main, "invokevirtual com.tencent.shadow.runtime.ShadowDialog.setOwnerPluginActivity ("+testutil.DescShadowActivity+")V")

	// Step 5.
	assert.Contains(t, main, "new com.tencent.shadow.runtime.ShadowWebView")
	assert.Contains(t, main, "invokespecial com.tencent.shadow.runtime.ShadowWebView.<init> "+webCtorDesc)
	browser := disasm(t, p, "com.example.Browser")
	assert.Contains(t, browser, "class com.example.Browser extends com.tencent.shadow.runtime.ShadowWebView")
	assert.Contains(t, browser, "invokespecial com.tencent.shadow.runtime.ShadowWebView.<init> "+webCtorDesc)

	// Step 6: only factories with a virtualized counterpart move.
	assert.Contains(t, main, "invokestatic com.tencent.shadow.runtime.ShadowPendingIntent.getActivity "+testutil.DescPendingIntentCall)
	assert.Contains(t, main, "invokestatic android.app.PendingIntent.getBroadcast "+testutil.DescPendingIntentCall)

	// Step 7.
	assert.Contains(t, main, "invokestatic com.tencent.shadow.runtime.UriConverter.parse "+testutil.DescUriParse)
	assert.Contains(t, main, `ldc "com.tencent.shadow.runtime.ShadowActivity"`)

	// Step 8.
	require.Len(t, res.Clones, 1)
	assert.Equal(t, []string{"com.example.App"}, res.Clones[0].Redirected)
	assert.Contains(t, disasm(t, p, "com.example.App"), "invokestatic com.example.Sdk.init_KeepHostContext ("+ctxDesc+")V")
	sdk := disasm(t, p, "com.example.Sdk")
	assert.Contains(t, sdk, "  method public static init_KeepHostContext ("+ctxDesc+")V")
	assert.Contains(t, sdk, `  method public static reinit (Landroid/content/Context;)V
    aload_0
    invokestatic com.example.Sdk.init (Landroid/content/Context;)V
`)
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() *engine.Result {
		p := newPool(t, pluginApp()...)
		res, err := newPipeline("com.example.Sdk.init(android.content.Context)$1").Run(context.Background(), p)
		require.NoError(t, err)
		return res
	}
	first, second := run(), run()
	assert.Equal(t, first.InputDigest, second.InputDigest)
	assert.Equal(t, first.OutputDigest, second.OutputDigest)
	assert.Equal(t, first.Events, second.Events)

	for i := 1; i < len(first.Events); i++ {
		assert.Greater(t, first.Events[i].Seq, first.Events[i-1].Seq)
	}
}

func TestRunRejectsMalformedRuleBeforeAnyMutation(t *testing.T) {
	p := newPool(t, pluginApp()...)
	before, err := p.Snapshot()
	require.NoError(t, err)

	_, err = newPipeline("Foo.bar(int)(extra)$1").Run(context.Background(), p)
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeMalformedRule, engine.CodeOf(err))
	assert.True(t, engine.IsRuleError(err))

	after, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunRuleResolutionErrors(t *testing.T) {
	cases := []struct {
		rule string
		want engine.ErrorCode
	}{
		{"com.example.Nope.init(android.content.Context)$1", engine.ErrCodeClassNotFound},
		{"com.example.Sdk.init(com.example.Missing)$1", engine.ErrCodeTypeNotFound},
		{"com.example.Sdk.init(int)$1", engine.ErrCodeMethodNotFound},
		{"com.example.Sdk.init(android.content.Context)$2", engine.ErrCodePositionOutOfRange},
		{"com.example.MainActivity.wire(" + testutil.ShadowDialog + ",android.content.Intent,int)$3", engine.ErrCodePositionNotContext},
		{"com.example.Sdk.init(android.content.Context)$x", engine.ErrCodeMalformedRule},
	}
	for _, tc := range cases {
		t.Run(string(tc.want), func(t *testing.T) {
			p := newPool(t, pluginApp()...)
			_, err := newPipeline(tc.rule).Run(context.Background(), p)
			require.Error(t, err)
			assert.Equal(t, tc.want, engine.CodeOf(err))

			var te *engine.TransformError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.rule, te.Rule)
			assert.Equal(t, engine.StepKeepHostContext, te.Step)
		})
	}
}

func TestRunAbortsOnInstrumentFailure(t *testing.T) {
	broken := testutil.Class("com.example.Broken", "").
		Method(classfile.AccPublic|classfile.AccStatic, "open", "()V", func(b *testutil.Body) {
			b.Ldc("x").InvokeStatic(testutil.Uri, "parse", testutil.DescUriParse).Pop().Return("V")
		})
	p := newPool(t, append(pluginApp(), broken)...)
	rec, err := p.Get("com.example.Broken")
	require.NoError(t, err)
	m := rec.Class.FindMethod("open", "()V")
	require.NotNil(t, m)
	// An invokestatic with its operand cut off.
	m.Attributes[0].Info = (&classfile.Code{MaxStack: 1, Bytecode: []byte{byte(classfile.OpInvokestatic)}}).Encode()

	_, err = newPipeline().Run(context.Background(), p)
	require.Error(t, err)
	assert.True(t, engine.IsInstrumentError(err))

	var te *engine.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "com.example.Broken", te.Class)
	assert.Equal(t, engine.StepUri, te.Step)
}

func TestRunReportsFragmentNameCollision(t *testing.T) {
	p := newPool(t,
		testutil.Class("com.example.F", testutil.Fragment),
		testutil.Class("com.example.F_", ""),
	)
	_, err := newPipeline().Run(context.Background(), p)
	require.Error(t, err)
	assert.True(t, engine.IsNameCollision(err))
}

func TestRunSkipsStepsWithNothingToDo(t *testing.T) {
	// No host types on the classpath at all: only steps with work need them.
	p := pool.New(nil)
	require.NoError(t, p.Add(&pool.Record{Class: testutil.Class("com.example.Plain", "").Build()}))

	res, err := newPipeline().Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, res.InputDigest, res.OutputDigest)
	for _, s := range res.Steps {
		assert.Zero(t, s.Changed, s.Name)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPipeline().Run(ctx, newPool(t, pluginApp()...))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckRules(t *testing.T) {
	p := newPool(t, pluginApp()...)
	before, err := p.Snapshot()
	require.NoError(t, err)

	require.NoError(t, engine.CheckRules(nil, []string{"a.B.c()$1"}), "syntax only without a pool")
	require.NoError(t, engine.CheckRules(p, []string{"com.example.Sdk.init(android.content.Context)$1"}))

	err = engine.CheckRules(nil, []string{"a.B.c("})
	assert.Equal(t, engine.ErrCodeMalformedRule, engine.CodeOf(err))

	err = engine.CheckRules(p, []string{"com.example.Sdk.init(android.content.Context)$2"})
	assert.Equal(t, engine.ErrCodePositionOutOfRange, engine.CodeOf(err))
	assert.True(t, engine.IsRuleError(err))

	err = engine.CheckRules(p, []string{"com.example.MainActivity.wire(android.app.Dialog,android.content.Intent,int)$2"})
	assert.Equal(t, engine.ErrCodePositionNotContext, engine.CodeOf(err))

	after, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after, "checking never changes the pool")
}

func TestLoadClassifiesErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/Bad.class", []byte{0xca, 0xfe, 0xba}, 0o644))

	_, err := engine.Load(context.Background(), []pool.Source{{Kind: pool.DirAddress, Input: dir, Output: dir}}, pool.MapClasspath(nil))
	require.Error(t, err)
	assert.Equal(t, engine.ErrCodeInvalidClass, engine.CodeOf(err))

	var te *engine.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "load", te.Step)
}
