package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/shadowtransform/internal/fragment"
	"github.com/roach88/shadowtransform/internal/hostctx"
	"github.com/roach88/shadowtransform/internal/ir"
	"github.com/roach88/shadowtransform/internal/pool"
	"github.com/roach88/shadowtransform/internal/redirect"
	"github.com/roach88/shadowtransform/internal/rename"
	"github.com/roach88/shadowtransform/internal/resolve"
)

// Step names, in execution order.
const (
	StepRename          = "rename"
	StepFindFragments   = "find_fragments"
	StepSwapFragments   = "swap_fragments"
	StepDialog          = "dialog"
	StepWebView         = "webview"
	StepPendingIntent   = "pending_intent"
	StepUri             = "uri"
	StepKeepHostContext = "keep_host_context"
)

// Steps lists the step names in execution order.
var Steps = []string{
	StepRename,
	StepFindFragments,
	StepSwapFragments,
	StepDialog,
	StepWebView,
	StepPendingIntent,
	StepUri,
	StepKeepHostContext,
}

// Pipeline runs the eight transform steps over a pool.
//
// INVARIANTS:
//   - Steps run strictly in order; each observes the pool as the previous
//     step left it
//   - Configuration is fixed at construction and never mutated by a run
//   - A run never writes output; the caller commits the pool only after
//     Run returns nil
type Pipeline struct {
	names   ir.Names
	mapping ir.RenameMapping
	remote  ir.RenameMapping
	rules   []string
	runIDs  RunIDGenerator
	clock   *Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNames replaces the built-in marker and runtime names.
func WithNames(n ir.Names) Option {
	return func(p *Pipeline) { p.names = n }
}

// WithRenameMapping replaces the built-in host-to-virtualized rename table.
func WithRenameMapping(m ir.RenameMapping) Option {
	return func(p *Pipeline) { p.mapping = m }
}

// WithRemoteViewMapping replaces the built-in remote view rename table.
func WithRemoteViewMapping(m ir.RenameMapping) Option {
	return func(p *Pipeline) { p.remote = m }
}

// WithRules sets the host-context rules, applied in order.
func WithRules(rules ...string) Option {
	return func(p *Pipeline) { p.rules = append([]string(nil), rules...) }
}

// WithRunIDGenerator sets the run id source.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(p *Pipeline) { p.runIDs = g }
}

// WithClock sets the event clock.
func WithClock(c *Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a pipeline with the built-in tables and names.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		names:   ir.DefaultNames(),
		mapping: ir.DefaultRenameMapping(),
		remote:  ir.RemoteViewRenameMapping(),
		runIDs:  UUIDv7Generator{},
		clock:   NewClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result describes a successful run.
type Result struct {
	RunID        string              `json:"run_id"`
	InputDigest  string              `json:"input_digest"`
	OutputDigest string              `json:"output_digest"`
	Classes      int                 `json:"classes"`
	Steps        []StepSummary       `json:"steps"`
	Fragments    []ir.FragmentRecord `json:"fragments,omitempty"`
	Clones       []hostctx.Clone     `json:"clones,omitempty"`
	Events       []Event             `json:"events"`
}

// run is the state of one Run call.
type run struct {
	*Pipeline
	pool     *pool.Pool
	resolver *resolve.Resolver
	result   *Result
	rules    []ir.ContextRule
	frags    []ir.FragmentRecord
}

func (r *run) emit(step, kind, subject, detail string) {
	r.result.Events = append(r.result.Events, Event{
		Seq:     r.clock.Next(),
		Step:    step,
		Kind:    kind,
		Subject: subject,
		Detail:  detail,
	})
}

// Run transforms p in place. Rule syntax is checked before any step runs,
// so a malformed rule leaves p untouched. On any error the pool is left in
// an unspecified state and must not be committed.
func (pl *Pipeline) Run(ctx context.Context, p *pool.Pool) (*Result, error) {
	r := &run{
		Pipeline: pl,
		pool:     p,
		resolver: resolve.New(p),
		result:   &Result{RunID: pl.runIDs.Generate()},
	}

	rules, err := hostctx.ParseAll(pl.rules)
	if err != nil {
		return nil, classify(StepKeepHostContext, err)
	}
	r.rules = rules

	snap, err := p.Snapshot()
	if err != nil {
		return nil, classify("load", err)
	}
	r.result.InputDigest = ir.SnapshotDigest(snap)
	slog.Info("transform starting", "run", r.result.RunID, "classes", p.Len(), "rules", len(rules))

	steps := []struct {
		name string
		fn   func() (int, error)
	}{
		{StepRename, r.rename},
		{StepFindFragments, r.findFragments},
		{StepSwapFragments, r.swapFragments},
		{StepDialog, r.dialog},
		{StepWebView, r.webView},
		{StepPendingIntent, r.pendingIntent},
		{StepUri, r.uri},
		{StepKeepHostContext, r.keepHostContext},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed, err := s.fn()
		if err != nil {
			slog.Error("transform step failed", "run", r.result.RunID, "step", s.name, "error", err)
			return nil, classify(s.name, err)
		}
		r.result.Steps = append(r.result.Steps, StepSummary{Name: s.name, Changed: changed})
		r.emit(s.name, EventStep, "", fmt.Sprintf("changed=%d", changed))
		slog.Debug("transform step complete", "run", r.result.RunID, "step", s.name, "changed", changed)
	}

	snap, err = p.Snapshot()
	if err != nil {
		return nil, classify("commit", err)
	}
	r.result.OutputDigest = ir.SnapshotDigest(snap)
	r.result.Classes = p.Len()
	slog.Info("transform complete",
		"run", r.result.RunID,
		"classes", r.result.Classes,
		"fragments", len(r.result.Fragments),
		"clones", len(r.result.Clones),
	)
	return r.result, nil
}

func (r *run) recordRename(res rename.Result) int {
	for _, name := range res.Changed {
		r.emit(StepRename, EventRenamed, name, "")
	}
	for _, m := range res.Moves {
		r.emit(StepRename, EventMoved, m.From, m.To)
	}
	return len(res.Changed)
}

// rename applies the host table to every class and the remote view table
// to every class outside the remote view SDK package.
func (r *run) rename() (int, error) {
	res, err := rename.Apply(r.pool, r.mapping)
	if err != nil {
		return 0, err
	}
	n := r.recordRename(res)

	res, err = rename.Apply(r.pool, r.remote, rename.SkipPackage(r.names.RemoteViewLocalSDKPackage))
	if err != nil {
		return n, err
	}
	return n + r.recordRename(res), nil
}

func (r *run) findFragments() (int, error) {
	r.frags = fragment.Detect(r.pool, r.resolver, r.names)
	for _, f := range r.frags {
		r.emit(StepFindFragments, EventFragment, f.OriginalName, string(f.Kind))
	}
	return len(r.frags), nil
}

func (r *run) swapFragments() (int, error) {
	if err := fragment.Swap(r.pool, r.frags); err != nil {
		return 0, err
	}
	for _, f := range r.frags {
		r.emit(StepSwapFragments, EventMoved, f.OriginalName, f.SuffixedName)
		r.emit(StepSwapFragments, EventFragment, f.OriginalName, f.ContainerSuperclass)
	}
	r.result.Fragments = r.frags
	return len(r.frags), nil
}

// pending reports whether any class a sweep guarded by guard would visit
// exists. Steps with nothing to visit skip looking up their host and
// runtime methods, so runs that never touch a host type do not need it on
// the classpath.
func (r *run) pending(guard string) bool {
	return len(r.resolver.Recompilable(guard)) > 0
}

func (r *run) sweep(step string, conv *redirect.Converter, guard string, exclude ...string) (int, error) {
	changed, err := redirect.Sweep(r.pool, r.resolver, conv, []string{guard}, exclude...)
	if err != nil {
		return 0, err
	}
	for _, name := range changed {
		r.emit(step, EventRedirected, name, "")
	}
	return len(changed), nil
}

// dialog redirects the owner activity accessors of the virtualized dialog.
// After the rename step those calls carry the virtualized activity type,
// so the host accessors are matched under the plugin accessors'
// descriptors.
func (r *run) dialog() (int, error) {
	if !r.pending(r.names.ShadowDialog) {
		return 0, nil
	}
	conv := redirect.NewConverter()
	for _, pair := range [][2]string{r.names.DialogOwnerGetters, r.names.DialogOwnerSetters} {
		host, err := redirect.Method(r.pool, r.names.Dialog, pair[0])
		if err != nil {
			return 0, err
		}
		plugin, err := redirect.Method(r.pool, r.names.ShadowDialog, pair[1])
		if err != nil {
			return 0, err
		}
		if err := conv.RedirectCall(host.WithDescriptor(plugin.Descriptor), plugin); err != nil {
			return 0, err
		}
	}
	return r.sweep(StepDialog, conv, r.names.ShadowDialog)
}

// webView moves direct WebView subclasses onto the virtualized WebView and
// makes every WebView allocation allocate the virtualized type.
func (r *run) webView() (int, error) {
	if !r.pending(r.names.WebView) {
		return 0, nil
	}
	if !r.pool.Has(r.names.ShadowWebView) {
		return 0, fmt.Errorf("%w: %s", pool.ErrUnknownClass, r.names.ShadowWebView)
	}
	resupered, err := redirect.ReplaceSuperclass(r.pool, r.resolver, r.names.WebView, r.names.ShadowWebView)
	if err != nil {
		return 0, err
	}
	for _, name := range resupered {
		r.emit(StepWebView, EventResuper, name, r.names.ShadowWebView)
	}

	conv := redirect.NewConverter()
	conv.ReplaceNew(r.names.WebView, r.names.ShadowWebView)
	n, err := r.sweep(StepWebView, conv, r.names.WebView)
	return len(resupered) + n, err
}

func (r *run) pendingIntent() (int, error) {
	if !r.pending(r.names.PendingIntent) {
		return 0, nil
	}
	conv := redirect.NewConverter()
	for _, name := range r.names.PendingIntentFactories {
		host, err := redirect.Methods(r.pool, r.names.PendingIntent, name)
		if err != nil {
			return 0, err
		}
		plugin, err := redirect.Methods(r.pool, r.names.ShadowPendingIntent, name)
		if err != nil {
			return 0, err
		}
		for _, pair := range redirect.MatchOverloads(host, plugin) {
			if err := conv.RedirectCall(pair.From, pair.To); err != nil {
				return 0, err
			}
		}
	}
	return r.sweep(StepPendingIntent, conv, r.names.PendingIntent)
}

func (r *run) uri() (int, error) {
	if !r.pending(r.names.Uri) {
		return 0, nil
	}
	host, err := redirect.Methods(r.pool, r.names.Uri, r.names.UriFactory)
	if err != nil {
		return 0, err
	}
	plugin, err := redirect.Methods(r.pool, r.names.UriConverter, r.names.UriFactory)
	if err != nil {
		return 0, err
	}
	conv := redirect.NewConverter()
	for _, pair := range redirect.MatchByDescriptor(host, plugin) {
		if err := conv.RedirectCall(pair.From, pair.To); err != nil {
			return 0, err
		}
	}
	return r.sweep(StepUri, conv, r.names.Uri)
}

// keepHostContext resolves every rule against the final class names, then
// applies them in order.
func (r *run) keepHostContext() (int, error) {
	if len(r.rules) == 0 {
		return 0, nil
	}
	targets, err := hostctx.ResolveAll(r.pool, r.names, r.rules)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, t := range targets {
		clone, err := hostctx.Apply(r.pool, r.resolver, r.names, t)
		if err != nil {
			return changed, err
		}
		r.emit(StepKeepHostContext, EventClone, clone.Class, clone.Method+clone.Descriptor)
		for _, name := range clone.Redirected {
			r.emit(StepKeepHostContext, EventRedirected, name, clone.Method)
		}
		r.result.Clones = append(r.result.Clones, clone)
		changed += 1 + len(clone.Redirected)
	}
	return changed, nil
}

// Load reads sources into a pool resolving host types through cp. Load
// errors carry the same codes as run errors.
func Load(ctx context.Context, sources []pool.Source, cp pool.Classpath) (*pool.Pool, error) {
	p, err := pool.Load(ctx, sources, cp)
	if err != nil {
		return nil, classify("load", err)
	}
	return p, nil
}

// CheckRules parses rules and, when p is non-nil, binds each one to a
// method of p. It never modifies p.
func CheckRules(p *pool.Pool, rules []string) error {
	parsed, err := hostctx.ParseAll(rules)
	if err != nil {
		return classify(StepKeepHostContext, err)
	}
	if p == nil {
		return nil
	}
	if _, err := hostctx.ResolveAll(p, ir.DefaultNames(), parsed); err != nil {
		return classify(StepKeepHostContext, err)
	}
	return nil
}
