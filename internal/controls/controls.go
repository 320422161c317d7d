// Package controls is the surface controller: it computes the injected
// control set from orchestrator and registry state, forwards user
// interactions, and drives the reconciliation loop. Pure presentation;
// all decisions live in the orchestrator.
package controls

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/dom"
	"github.com/promptboost/promptboost/internal/orchestrator"
	"github.com/promptboost/promptboost/internal/page"
	"github.com/promptboost/promptboost/internal/registry"
	"github.com/promptboost/promptboost/internal/store"
)

// Control actions carried by dom.ControlEvent.Action.
const (
	ActionBoost          = "boost"
	ActionTemplatePrefix = "template:"
	ActionPreviewConfirm = "preview:confirm"
	ActionPreviewReject  = "preview:reject"
	ActionOpenConfig     = "open-config"
)

// Reconciliation schedule after a structural change: poll briefly, then
// rely on mutation observation alone.
const (
	pollInterval = 300 * time.Millisecond
	pollWindow   = 10 * time.Second
)

// noticeTTL is how long a failure notice stays visible before it expires
// on its own.
const noticeTTL = 8 * time.Second

// Controller renders injected controls and forwards their events.
type Controller struct {
	store   *store.Store
	orc     *orchestrator.Orchestrator
	adapter *page.Adapter

	// OpenConfig is invoked on the open-configuration action, e.g. to
	// print or open the settings UI URL. Optional.
	OpenConfig func()

	// NoticeTTL overrides how long a failure notice stays visible.
	NoticeTTL time.Duration

	refresh chan struct{}

	noticeMu    sync.Mutex
	noticeShown string
	noticeTimer *time.Timer
}

// New creates a controller. Call Run to start the loop.
func New(s *store.Store, orc *orchestrator.Orchestrator, adapter *page.Adapter) *Controller {
	c := &Controller{
		store:     s,
		orc:       orc,
		adapter:   adapter,
		NoticeTTL: noticeTTL,
		refresh:   make(chan struct{}, 1),
	}
	orc.SetOnChange(c.requestRefresh)
	s.Subscribe(func(*config.Settings) { c.requestRefresh() })
	return c
}

func (c *Controller) requestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Specs computes the desired control set from current state. Controls
// are disabled whenever a job is active; the preview panel appears only
// while a suggestion awaits review.
func (c *Controller) Specs(ctx context.Context) ([]page.ControlSpec, error) {
	snap := c.orc.Snapshot()
	settings, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	quick, err := registry.QuickAccess(c.store)
	if err != nil {
		return nil, err
	}

	busy := snap.State != orchestrator.StateIdle

	specs := []page.ControlSpec{{
		Key:  "boost",
		Tag:  "button",
		Text: boostLabel(snap.State),
		Attrs: buttonAttrs(ActionBoost, busy, map[string]string{
			"class": "pb-btn pb-boost",
			"title": "Rewrite the draft and send it",
		}),
	}}

	for _, tpl := range quick {
		attrs := buttonAttrs(ActionTemplatePrefix+tpl.ID, busy, map[string]string{
			"class": "pb-btn pb-template",
		})
		if tpl.ID == settings.ActiveTemplateID {
			attrs["class"] = "pb-btn pb-template pb-active"
		}
		specs = append(specs, page.ControlSpec{
			Key:   "tpl-" + tpl.ID,
			Tag:   "button",
			Text:  tpl.Label,
			Attrs: attrs,
		})
	}

	specs = append(specs, page.ControlSpec{
		Key:  "config",
		Tag:  "button",
		Text: "Settings",
		Attrs: buttonAttrs(ActionOpenConfig, false, map[string]string{
			"class": "pb-btn pb-config",
		}),
	})

	if snap.Notice != "" {
		specs = append(specs, page.ControlSpec{
			Key:   "notice",
			Tag:   "span",
			Text:  snap.Notice,
			Attrs: map[string]string{"class": "pb-notice"},
		})
	}

	if snap.State == orchestrator.StateReviewing {
		specs = append(specs,
			page.ControlSpec{
				Key:   "preview-text",
				Tag:   "textarea",
				Value: snap.PreviewText,
				Attrs: map[string]string{"class": "pb-preview-text"},
			},
			page.ControlSpec{
				Key:  "preview-send",
				Tag:  "button",
				Text: "Send",
				Attrs: buttonAttrs(ActionPreviewConfirm, false, map[string]string{
					"class": "pb-btn pb-preview-send",
				}),
			},
			page.ControlSpec{
				Key:  "preview-cancel",
				Tag:  "button",
				Text: "Send original",
				Attrs: buttonAttrs(ActionPreviewReject, false, map[string]string{
					"class": "pb-btn pb-preview-cancel",
				}),
			},
		)
	}

	return specs, nil
}

// HandleEvent forwards one control interaction. Job-level failures are
// already surfaced through the orchestrator's notice; only document
// failures propagate.
func (c *Controller) HandleEvent(ctx context.Context, ev dom.ControlEvent) {
	var err error
	switch {
	case ev.Action == ActionBoost:
		err = c.orc.RequestBoost(ctx)
	case strings.HasPrefix(ev.Action, ActionTemplatePrefix):
		err = c.orc.RequestTemplate(ctx, strings.TrimPrefix(ev.Action, ActionTemplatePrefix))
	case ev.Action == ActionPreviewConfirm:
		err = c.orc.ConfirmPreview(ctx, ev.Value)
	case ev.Action == ActionPreviewReject:
		err = c.orc.RejectPreview(ctx)
	case ev.Action == ActionOpenConfig:
		if c.OpenConfig != nil {
			c.OpenConfig()
		}
	default:
		log.Printf("ignoring unknown control action %q", ev.Action)
	}
	if err != nil {
		log.Printf("control action %q: %v", ev.Action, err)
	}
}

// Run drives the session: reconcile controls on every signal, feed
// observed mutations through the correlation queue, and forward control
// events. Returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	doc := c.adapter.Doc()

	// Poll briefly at startup and after each structural change; the
	// anchor may not exist yet when we attach.
	pollUntil := time.Now().Add(pollWindow)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	c.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			c.removeControls()
			return ctx.Err()

		case mut, ok := <-doc.Mutations():
			if !ok {
				return nil
			}
			msgs, err := c.adapter.SentMessagesIn(ctx, mut)
			if err != nil {
				return err
			}
			if err := c.orc.ObserveSent(ctx, msgs); err != nil {
				log.Printf("annotation failed: %v", err)
			}
			pollUntil = time.Now().Add(pollWindow)
			c.reconcile(ctx)

		case ev, ok := <-doc.ControlEvents():
			if !ok {
				return nil
			}
			c.HandleEvent(ctx, ev)
			c.reconcile(ctx)

		case <-c.refresh:
			c.reconcile(ctx)

		case now := <-ticker.C:
			if now.Before(pollUntil) {
				c.reconcile(ctx)
			}
		}
	}
}

func (c *Controller) reconcile(ctx context.Context) {
	specs, err := c.Specs(ctx)
	if err != nil {
		log.Printf("computing controls failed: %v", err)
		return
	}
	if _, err := c.adapter.EnsureControls(ctx, specs); err != nil {
		log.Printf("reconciling controls failed: %v", err)
	}
	c.scheduleNoticeExpiry()
}

// scheduleNoticeExpiry arms a one-shot expiry for the currently shown
// notice; notices are transient and clear on their own.
func (c *Controller) scheduleNoticeExpiry() {
	notice := c.orc.Snapshot().Notice

	c.noticeMu.Lock()
	defer c.noticeMu.Unlock()
	if notice == c.noticeShown {
		return
	}
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	c.noticeShown = notice
	if notice == "" {
		return
	}
	c.noticeTimer = time.AfterFunc(c.NoticeTTL, func() {
		c.orc.ClearNotice(notice)
	})
}

// removeControls cleans up on shutdown with a context detached from the
// canceled session context.
func (c *Controller) removeControls() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.adapter.RemoveControls(ctx); err != nil {
		log.Printf("removing controls failed: %v", err)
	}
}

func boostLabel(state orchestrator.State) string {
	switch state {
	case orchestrator.StateIdle:
		return "Boost"
	case orchestrator.StateReviewing:
		return "Reviewing..."
	default:
		return "Boosting..."
	}
}

// buttonAttrs builds the shared attribute set for an action button. The
// disabled flag travels as an always-present data attribute so
// reconciliation can flip it both ways; the page-side script mirrors it
// onto the element's disabled property.
func buttonAttrs(action string, disabled bool, attrs map[string]string) map[string]string {
	attrs["data-pb-action"] = action
	attrs["type"] = "button"
	attrs["data-pb-disabled"] = "false"
	if disabled {
		attrs["data-pb-disabled"] = "true"
	}
	return attrs
}
