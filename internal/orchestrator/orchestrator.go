// Package orchestrator coordinates a single rewrite job from trigger to
// submission. It owns the job state machine and the correlation queue;
// all host-page work goes through the page adapter, all generation
// through the rewrite client. One job at a time: Idle is the only state
// a new job may start from.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/errors"
	"github.com/promptboost/promptboost/internal/page"
	"github.com/promptboost/promptboost/internal/registry"
	"github.com/promptboost/promptboost/internal/rewrite"
	"github.com/promptboost/promptboost/internal/store"
	"github.com/promptboost/promptboost/internal/text"
)

// State identifies where the current job is in its lifecycle. Done and
// Failed collapse back to Idle before any method returns; callers only
// ever observe Idle, Generating, or Reviewing at rest.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateGenerating State = "generating"
	StateReviewing  State = "reviewing"
	StateWriting    State = "writing"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// DefaultInstruction backs the primary action when no template is
// selected.
const DefaultInstruction = "Focus on deep thinking. Rewrite the message " +
	"to be clearer and more specific, ask clarifying questions when the request " +
	"is ambiguous, and return only the rewritten message."

// CorrelationRecord links an original draft to the text actually written
// and submitted, so the rendered message can be annotated later.
type CorrelationRecord struct {
	Original string
	Written  string
}

// Snapshot is the orchestrator state the surface controller renders from.
type Snapshot struct {
	State       State
	Notice      string
	PreviewText string
}

// Orchestrator runs rewrite jobs. All exported methods are safe for
// concurrent use; the single-flight rule is enforced by state, so a
// request made while a job is active is rejected, never queued.
type Orchestrator struct {
	store    *store.Store
	adapter  *page.Adapter
	rewriter rewrite.Rewriter

	mu       sync.Mutex
	state    State
	notice   string
	job      *job
	pending  []CorrelationRecord
	onChange func()
}

// job carries the per-run context, including the configuration snapshot
// taken when the job started. Settings changed mid-job do not affect it.
type job struct {
	original   string
	surface    page.Surface
	opts       rewrite.Options
	preview    bool
	maxPending int
	generated  string
}

// New creates an orchestrator in the Idle state.
func New(s *store.Store, adapter *page.Adapter, rewriter rewrite.Rewriter) *Orchestrator {
	return &Orchestrator{
		store:    s,
		adapter:  adapter,
		rewriter: rewriter,
		state:    StateIdle,
	}
}

// SetOnChange registers a callback invoked after every state or notice
// change. The controller uses it to re-render the injected controls.
func (o *Orchestrator) SetOnChange(fn func()) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

// Snapshot returns the current state for rendering.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{State: o.state, Notice: o.notice}
	if o.state == StateReviewing && o.job != nil {
		snap.PreviewText = o.job.generated
	}
	return snap
}

// PendingCorrelations reports how many sent messages are still awaiting
// annotation.
func (o *Orchestrator) PendingCorrelations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// RequestBoost starts a job with the active template, or with the
// built-in default instruction when none is selected.
func (o *Orchestrator) RequestBoost(ctx context.Context) error {
	defer o.signal()

	settings, err := o.store.Load()
	if err != nil {
		return o.rejectWithNotice(err)
	}
	tpl := o.activeTemplate(settings)
	return o.start(ctx, settings, tpl)
}

// RequestTemplate starts a job with a specific template, as triggered by
// one of the quick-access controls.
func (o *Orchestrator) RequestTemplate(ctx context.Context, id string) error {
	defer o.signal()

	settings, err := o.store.Load()
	if err != nil {
		return o.rejectWithNotice(err)
	}
	tpl, err := registry.Get(o.store, id)
	if err != nil {
		return o.rejectWithNotice(err)
	}
	return o.start(ctx, settings, tpl)
}

// ConfirmPreview resumes a reviewing job with the (possibly edited)
// suggestion. An all-whitespace edit falls back to the generated text.
func (o *Orchestrator) ConfirmPreview(ctx context.Context, edited string) error {
	defer o.signal()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateReviewing || o.job == nil {
		return errors.NewConflict("no suggestion is awaiting review")
	}
	chosen := edited
	if strings.TrimSpace(chosen) == "" {
		chosen = o.job.generated
	}
	return o.writeAndSubmitLocked(ctx, chosen)
}

// RejectPreview resumes a reviewing job with the original draft. The job
// still submits; rejecting the suggestion never cancels the send.
func (o *Orchestrator) RejectPreview(ctx context.Context) error {
	defer o.signal()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateReviewing || o.job == nil {
		return errors.NewConflict("no suggestion is awaiting review")
	}
	return o.writeAndSubmitLocked(ctx, o.job.original)
}

// ObserveSent checks newly rendered sent messages against the
// correlation queue, strictly FIFO. A message that matches the oldest
// record gets annotated with the original draft; a message that does not
// match discards the oldest record, so the queue never retains stale
// history.
func (o *Orchestrator) ObserveSent(ctx context.Context, msgs []page.SentMessage) error {
	for _, msg := range msgs {
		o.mu.Lock()
		if len(o.pending) == 0 {
			o.mu.Unlock()
			continue
		}
		head := o.pending[0]
		matched := text.ContainsNormalized(msg.Text, head.Written)
		o.pending = o.pending[1:]
		o.mu.Unlock()

		if !matched {
			log.Printf("discarded correlation record: sent message does not contain the written text")
			continue
		}
		if err := o.adapter.Annotate(ctx, msg.Node, head.Original); err != nil {
			return err
		}
	}
	return nil
}

// start runs the synchronous front half of a job: capture the draft,
// resolve the template, and either write directly (Append) or hand off
// to the rewrite service (Boosted).
func (o *Orchestrator) start(ctx context.Context, settings *config.Settings, tpl *store.Template) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		o.notice = "a rewrite is already in progress"
		return errors.NewBusy()
	}
	o.state = StateCapturing
	o.notice = ""

	surface, ok, err := o.adapter.LocateSurface(ctx)
	if err != nil {
		return o.failLocked(err)
	}
	if !ok {
		return o.failLocked(errors.NewSurfaceNotFound())
	}
	draft, err := o.adapter.ReadDraft(ctx, surface)
	if err != nil {
		return o.failLocked(err)
	}
	// An Append template tolerates an empty draft (the body is sent
	// alone); generation does not.
	if draft == "" && tpl.Kind != store.KindAppend {
		return o.failLocked(errors.NewEmptyDraft())
	}

	o.job = &job{
		original:   draft,
		surface:    surface,
		preview:    settings.Preview,
		maxPending: settings.CorrelationMaxPending,
		opts: rewrite.Options{
			APIKey:   settings.APIKey,
			Endpoint: settings.Endpoint,
			Model:    settings.Model,
			Timeout:  time.Duration(settings.RewriteTimeoutSeconds) * time.Second,
		},
	}

	if tpl.Kind == store.KindAppend {
		if strings.TrimSpace(tpl.Body) == "" {
			return o.failLocked(errors.NewEmptyAppend(tpl.Label))
		}
		return o.writeAndSubmitLocked(ctx, joinAppend(draft, tpl.Body))
	}

	o.state = StateGenerating
	go o.generate(ctx, draft, tpl.Body, o.job.opts)
	return nil
}

// generate runs the rewrite call off the event loop and feeds the result
// back through the state machine.
func (o *Orchestrator) generate(ctx context.Context, original, instruction string, opts rewrite.Options) {
	result, err := o.rewriter.Rewrite(ctx, original, instruction, opts)
	o.finishGeneration(ctx, result, err)
	o.signal()
}

func (o *Orchestrator) finishGeneration(ctx context.Context, result string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateGenerating || o.job == nil {
		return
	}
	if err != nil {
		o.failLocked(err)
		return
	}
	if o.job.preview {
		o.job.generated = result
		o.state = StateReviewing
		return
	}
	o.writeAndSubmitLocked(ctx, result)
}

// writeAndSubmitLocked is the back half of every job: overwrite the
// surface, enqueue the correlation record, trigger submission. Requires
// o.mu and a current job.
func (o *Orchestrator) writeAndSubmitLocked(ctx context.Context, written string) error {
	o.state = StateWriting
	if err := o.adapter.WriteDraft(ctx, o.job.surface, written); err != nil {
		return o.failLocked(err)
	}

	o.state = StateSubmitting
	o.pushCorrelationLocked(CorrelationRecord{Original: o.job.original, Written: written})
	if err := o.adapter.TriggerSubmit(ctx, o.job.surface); err != nil {
		return o.failLocked(err)
	}

	o.state = StateDone
	o.job = nil
	o.state = StateIdle
	return nil
}

// pushCorrelationLocked appends a record, dropping the oldest when the
// queue is at capacity. Capacity comes from the job's configuration
// snapshot.
func (o *Orchestrator) pushCorrelationLocked(rec CorrelationRecord) {
	limit := o.job.maxPending
	if limit <= 0 {
		limit = config.DefaultSettings().CorrelationMaxPending
	}
	o.pending = append(o.pending, rec)
	for len(o.pending) > limit {
		o.pending = o.pending[1:]
		log.Printf("correlation queue full, dropped oldest record")
	}
}

// failLocked surfaces the failure as a notice and resets to Idle. No
// failure may leave the machine stuck in a non-Idle state.
func (o *Orchestrator) failLocked(err error) error {
	o.state = StateFailed
	o.notice = errors.Notice(err)
	o.job = nil
	o.state = StateIdle
	log.Printf("rewrite job failed: %v", err)
	return err
}

// rejectWithNotice reports a pre-job failure without touching the state
// machine.
func (o *Orchestrator) rejectWithNotice(err error) error {
	o.mu.Lock()
	o.notice = errors.Notice(err)
	o.mu.Unlock()
	return err
}

// ClearNotice removes the notice if it still reads msg. Notices are
// transient: the surface controller expires them after a short interval,
// but a newer notice must not be clobbered by an older expiry.
func (o *Orchestrator) ClearNotice(msg string) {
	o.mu.Lock()
	if o.notice != msg {
		o.mu.Unlock()
		return
	}
	o.notice = ""
	o.mu.Unlock()
	o.signal()
}

// activeTemplate resolves the configured active template, falling back
// to the built-in default instruction when none is selected or the
// reference dangles.
func (o *Orchestrator) activeTemplate(settings *config.Settings) *store.Template {
	if settings.ActiveTemplateID != "" {
		if tpl, err := registry.Get(o.store, settings.ActiveTemplateID); err == nil {
			return tpl
		}
	}
	return &store.Template{
		Label: "Boost",
		Kind:  store.KindBoosted,
		Body:  DefaultInstruction,
	}
}

func (o *Orchestrator) signal() {
	o.mu.Lock()
	fn := o.onChange
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// joinAppend combines a draft with a literal template body.
func joinAppend(draft, body string) string {
	if draft == "" {
		return body
	}
	return draft + "\n" + body
}
