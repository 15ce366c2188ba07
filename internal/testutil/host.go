package testutil

import "github.com/roach88/shadowtransform/internal/classfile"

// Binary names of the host and runtime stubs.
const (
	Object         = "java.lang.Object"
	String         = "java.lang.String"
	Context        = "android.content.Context"
	Intent         = "android.content.Intent"
	Activity       = "android.app.Activity"
	Dialog         = "android.app.Dialog"
	Fragment       = "android.app.Fragment"
	DialogFragment = "android.app.DialogFragment"
	WebView        = "android.webkit.WebView"
	PendingIntent  = "android.app.PendingIntent"
	Uri            = "android.net.Uri"

	ShadowContext           = "com.tencent.shadow.runtime.ShadowContext"
	ShadowActivity          = "com.tencent.shadow.runtime.ShadowActivity"
	ShadowApplication       = "com.tencent.shadow.runtime.ShadowApplication"
	ShadowService           = "com.tencent.shadow.runtime.ShadowService"
	ShadowDialog            = "com.tencent.shadow.runtime.ShadowDialog"
	ShadowFragment          = "com.tencent.shadow.runtime.ShadowFragment"
	ShadowDialogFragment    = "com.tencent.shadow.runtime.ShadowDialogFragment"
	ContainerFragment       = "com.tencent.shadow.runtime.ContainerFragment"
	ContainerDialogFragment = "com.tencent.shadow.runtime.ContainerDialogFragment"
	ShadowWebView           = "com.tencent.shadow.runtime.ShadowWebView"
	ShadowPendingIntent     = "com.tencent.shadow.runtime.ShadowPendingIntent"
	UriConverter            = "com.tencent.shadow.runtime.UriConverter"
)

// Descriptors used by the stubs and by tests calling them.
const (
	DescContext           = "Landroid/content/Context;"
	DescActivity          = "Landroid/app/Activity;"
	DescShadowActivity    = "Lcom/tencent/shadow/runtime/ShadowActivity;"
	DescPendingIntentCall = "(Landroid/content/Context;ILandroid/content/Intent;I)Landroid/app/PendingIntent;"
	DescUriParse          = "(Ljava/lang/String;)Landroid/net/Uri;"
)

const (
	pub       = classfile.AccPublic
	pubStatic = classfile.AccPublic | classfile.AccStatic
)

// HostClasses returns stubs of the host framework and shadow runtime
// classes the transform links against, keyed by binary name. Every call
// returns fresh values.
func HostClasses() map[string]*classfile.ClassFile {
	builders := []*ClassBuilder{
		Class(Object, "").Native(pub, "<init>", "()V"),
		Class(String, ""),
		Class(Intent, ""),
		Class(Context, "").Native(pub, "<init>", "()V"),
		Class(Activity, Context),
		Class(Dialog, "").
			Native(pub, "getOwnerActivity", "()"+DescActivity).
			Native(pub, "setOwnerActivity", "("+DescActivity+")V").
			Native(pub, "show", "()V"),
		Class(Fragment, ""),
		Class(DialogFragment, Fragment),
		Class(WebView, "").
			Native(pub, "<init>", "("+DescContext+")V").
			Native(pub, "loadUrl", "(Ljava/lang/String;)V"),
		Class(PendingIntent, "").
			Native(pubStatic, "getActivity", DescPendingIntentCall).
			Native(pubStatic, "getService", DescPendingIntentCall).
			Native(pubStatic, "getBroadcast", DescPendingIntentCall),
		Class(Uri, "").
			Native(pubStatic, "parse", DescUriParse),

		Class(ShadowContext, Context).
			Native(pub, "getBaseContext", "()"+DescContext),
		Class(ShadowActivity, ShadowContext),
		Class(ShadowApplication, ShadowContext),
		Class(ShadowService, ShadowContext),
		Class(ShadowDialog, Dialog).
			Native(pub, "getOwnerPluginActivity", "()"+DescShadowActivity).
			Native(pub, "setOwnerPluginActivity", "("+DescShadowActivity+")V"),
		Class(ShadowFragment, ""),
		Class(ShadowDialogFragment, ShadowFragment),
		Class(ContainerFragment, Fragment).Native(pub, "<init>", "()V"),
		Class(ContainerDialogFragment, DialogFragment).Native(pub, "<init>", "()V"),
		Class(ShadowWebView, WebView).
			Native(pub, "<init>", "("+DescContext+")V"),
		Class(ShadowPendingIntent, "").
			Native(pubStatic, "getActivity", DescPendingIntentCall).
			Native(pubStatic, "getService", DescPendingIntentCall),
		Class(UriConverter, "").
			Native(pubStatic, "parse", DescUriParse),
	}

	out := make(map[string]*classfile.ClassFile, len(builders))
	for _, b := range builders {
		cf := b.Build()
		out[classfile.Qualified(cf.Name())] = cf
	}
	return out
}
