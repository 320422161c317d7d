package page

import (
	"context"
	"html"
	"strings"

	"github.com/promptboost/promptboost/internal/dom"
	"github.com/promptboost/promptboost/internal/errors"
	"github.com/promptboost/promptboost/internal/text"
)

// SurfaceKind distinguishes the two editable input shapes the host page
// uses.
type SurfaceKind int

const (
	// RichText is a contenteditable region; writes must reconstruct the
	// editor's per-line paragraph markup.
	RichText SurfaceKind = iota

	// PlainText is an ordinary textarea; writes assign the value.
	PlainText
)

// Surface is a handle to the current draft input. Valid only for the
// scope of a single adapter operation; the host page may destroy and
// recreate the element between calls.
type Surface struct {
	Kind SurfaceKind
	Node dom.NodeRef
}

// LocateSurface finds the current editable input, preferring the rich
// editor over the plain fallback. Returns ok=false when neither is
// present; callers treat that as retryable, not fatal.
func (a *Adapter) LocateSurface(ctx context.Context) (Surface, bool, error) {
	node, ok, err := a.doc.QueryFirst(ctx, a.sel.RichEditor)
	if err != nil {
		return Surface{}, false, err
	}
	if ok {
		return Surface{Kind: RichText, Node: node}, true, nil
	}

	node, ok, err = a.doc.QueryFirst(ctx, a.sel.PlainEditor)
	if err != nil {
		return Surface{}, false, err
	}
	if ok {
		return Surface{Kind: PlainText, Node: node}, true, nil
	}
	return Surface{}, false, nil
}

// ReadDraft returns the surface's user-visible text, trimmed of leading
// and trailing whitespace.
func (a *Adapter) ReadDraft(ctx context.Context, s Surface) (string, error) {
	var content string
	var err error
	switch s.Kind {
	case PlainText:
		content, err = a.doc.Value(ctx, s.Node)
	default:
		content, err = a.doc.TextContent(ctx, s.Node)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// WriteDraft replaces the surface's entire content with t, firing the
// synthetic notifications the host application's input detection listens
// for. If the surface went stale since it was located, the write
// re-resolves once; with no surface present it fails with an integration
// error and no partial write.
func (a *Adapter) WriteDraft(ctx context.Context, s Surface, t string) error {
	alive, err := a.doc.Alive(ctx, s.Node)
	if err != nil {
		return err
	}
	if !alive {
		fresh, ok, err := a.LocateSurface(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewSurfaceNotFound()
		}
		s = fresh
	}

	switch s.Kind {
	case PlainText:
		if err := a.doc.SetValue(ctx, s.Node, t); err != nil {
			return errors.NewSurfaceNotFound()
		}
	default:
		if err := a.doc.SetInnerHTML(ctx, s.Node, richMarkup(t)); err != nil {
			return errors.NewSurfaceNotFound()
		}
	}

	// Both notifications: some host builds listen for input, others for
	// change.
	if err := a.doc.Dispatch(ctx, s.Node, dom.EventInput); err != nil {
		return err
	}
	return a.doc.Dispatch(ctx, s.Node, dom.EventChange)
}

// TriggerSubmit activates the host's submit affordance, trying each
// configured candidate selector in order; with no button present it
// replays the keyboard-submit convention on the surface instead. It
// never bypasses host-side validation.
func (a *Adapter) TriggerSubmit(ctx context.Context, s Surface) error {
	submit, ok, err := a.locateSubmit(ctx)
	if err != nil {
		return err
	}
	if ok {
		return a.doc.Click(ctx, submit)
	}

	alive, err := a.doc.Alive(ctx, s.Node)
	if err != nil {
		return err
	}
	if !alive {
		return errors.NewSubmitNotFound()
	}
	return a.doc.Dispatch(ctx, s.Node, dom.EventEnterKey)
}

// locateSubmit resolves the submit affordance fresh on every call.
func (a *Adapter) locateSubmit(ctx context.Context) (dom.NodeRef, bool, error) {
	for _, selector := range a.sel.Submit {
		node, ok, err := a.doc.QueryFirst(ctx, selector)
		if err != nil {
			return "", false, err
		}
		if ok {
			return node, true, nil
		}
	}
	return "", false, nil
}

// richMarkup reconstructs the rich editor's expected internal markup:
// one paragraph per draft line, empty lines preserved as placeholder
// breaks.
func richMarkup(t string) string {
	var sb strings.Builder
	for _, line := range text.Lines(t) {
		if line == "" {
			sb.WriteString("<p><br></p>")
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(line))
		sb.WriteString("</p>")
	}
	return sb.String()
}
