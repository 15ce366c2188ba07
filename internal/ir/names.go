package ir

// Names is the fixed set of class and member names the pipeline keys on.
type Names struct {
	// Fragment detection markers (virtualized fragment base types).
	FragmentMarker       string
	DialogFragmentMarker string

	// Container bases installed under a fragment's freed original name.
	ContainerFragment       string
	ContainerDialogFragment string

	// FragmentSuffix is appended to a detected fragment's name.
	FragmentSuffix string

	Dialog                    string
	ShadowDialog              string
	DialogOwnerGetters        [2]string // host name, virtualized name
	DialogOwnerSetters        [2]string
	WebView                   string
	ShadowWebView             string
	PendingIntent             string
	ShadowPendingIntent       string
	PendingIntentFactories    []string
	Uri                       string
	UriConverter              string
	UriFactory                string
	ShadowContext             string
	BaseContextAccessor       string
	BaseContextDescriptor     string
	KeepHostContextSuffix     string
	RemoteViewLocalSDKPackage string
}

// DefaultNames returns the names used by the shadow runtime.
func DefaultNames() Names {
	return Names{
		FragmentMarker:            "com.tencent.shadow.runtime.ShadowFragment",
		DialogFragmentMarker:      "com.tencent.shadow.runtime.ShadowDialogFragment",
		ContainerFragment:         "com.tencent.shadow.runtime.ContainerFragment",
		ContainerDialogFragment:   "com.tencent.shadow.runtime.ContainerDialogFragment",
		FragmentSuffix:            "_",
		Dialog:                    "android.app.Dialog",
		ShadowDialog:              "com.tencent.shadow.runtime.ShadowDialog",
		DialogOwnerGetters:        [2]string{"getOwnerActivity", "getOwnerPluginActivity"},
		DialogOwnerSetters:        [2]string{"setOwnerActivity", "setOwnerPluginActivity"},
		WebView:                   "android.webkit.WebView",
		ShadowWebView:             "com.tencent.shadow.runtime.ShadowWebView",
		PendingIntent:             "android.app.PendingIntent",
		ShadowPendingIntent:       "com.tencent.shadow.runtime.ShadowPendingIntent",
		PendingIntentFactories:    []string{"getActivity", "getService"},
		Uri:                       "android.net.Uri",
		UriConverter:              "com.tencent.shadow.runtime.UriConverter",
		UriFactory:                "parse",
		ShadowContext:             "com.tencent.shadow.runtime.ShadowContext",
		BaseContextAccessor:       "getBaseContext",
		BaseContextDescriptor:     "()Landroid/content/Context;",
		KeepHostContextSuffix:     "_KeepHostContext",
		RemoteViewLocalSDKPackage: "com.tencent.shadow.remoteview.localsdk",
	}
}
