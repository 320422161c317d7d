package page

import (
	"context"
	"fmt"

	"github.com/promptboost/promptboost/internal/dom"
)

// Injected-element markers. Identity lives in attributes, never in cached
// handles, so reconciliation survives the host page rebuilding the tree.
const (
	controlsRootAttr = "data-pb-root"
	controlIDAttr    = "data-pb-id"
)

// ControlSpec describes one desired injected control. The surface
// controller computes the full desired list from orchestrator and
// registry state; the adapter makes the document match it.
type ControlSpec struct {
	// Key is the control's stable identity within the injected root.
	Key string

	// Tag is the element tag, e.g. "button" or "textarea".
	Tag string

	// Text is the desired text content.
	Text string

	// Value seeds a form control's value at creation only: later
	// reconciliation ticks must not clobber the user's edits.
	Value string

	// Attrs are the desired attributes.
	Attrs map[string]string
}

// EnsureControls reconciles the injected controls against the desired
// spec list: missing root or controls are created, drifted text and
// attributes corrected, unlisted controls removed. It is idempotent and
// cheap when the document already matches — the driver runs it on every
// mutation observation tick. Returns whether any corrective mutation was
// applied. When neither a submit affordance nor the fallback anchor
// exists yet, it does nothing and reports no change; callers retry on
// their schedule.
func (a *Adapter) EnsureControls(ctx context.Context, specs []ControlSpec) (bool, error) {
	changed := false

	root, mounted, err := a.ensureRoot(ctx, &changed)
	if err != nil || !mounted {
		return changed, err
	}

	keep := make(map[string]bool, len(specs))
	for _, spec := range specs {
		keep[spec.Key] = true
		applied, err := a.ensureControl(ctx, root, spec)
		if err != nil {
			return changed, err
		}
		changed = changed || applied
	}

	// Remove controls that are no longer desired.
	existing, err := a.doc.QueryWithin(ctx, root, "["+controlIDAttr+"]")
	if err != nil {
		return changed, err
	}
	for _, node := range existing {
		key, ok, err := a.doc.Attribute(ctx, node, controlIDAttr)
		if err != nil {
			return changed, err
		}
		if ok && keep[key] {
			continue
		}
		if err := a.doc.Remove(ctx, node); err != nil {
			return changed, err
		}
		changed = true
	}

	return changed, nil
}

// RemoveControls detaches the injected root, if present.
func (a *Adapter) RemoveControls(ctx context.Context) error {
	root, ok, err := a.doc.QueryFirst(ctx, "["+controlsRootAttr+"]")
	if err != nil || !ok {
		return err
	}
	return a.doc.Remove(ctx, root)
}

// ensureRoot finds or creates the injected container and keeps it at its
// intended anchor point: immediately before the submit affordance, or
// appended to the stable fallback anchor.
func (a *Adapter) ensureRoot(ctx context.Context, changed *bool) (dom.NodeRef, bool, error) {
	submit, submitOK, err := a.locateSubmit(ctx)
	if err != nil {
		return "", false, err
	}

	var desiredParent dom.NodeRef
	var haveAnchor bool
	if submitOK {
		parent, ok, err := a.doc.Parent(ctx, submit)
		if err != nil {
			return "", false, err
		}
		desiredParent, haveAnchor = parent, ok
	} else {
		anchor, ok, err := a.doc.QueryFirst(ctx, a.sel.Anchor)
		if err != nil {
			return "", false, err
		}
		desiredParent, haveAnchor = anchor, ok
	}
	if !haveAnchor {
		return "", false, nil
	}

	root, ok, err := a.doc.QueryFirst(ctx, "["+controlsRootAttr+"]")
	if err != nil {
		return "", false, err
	}
	if ok {
		parent, attached, err := a.doc.Parent(ctx, root)
		if err != nil {
			return "", false, err
		}
		if attached && parent == desiredParent {
			return root, true, nil
		}
		// Host page moved or orphaned the container: re-anchor it.
	} else {
		root, err = a.doc.CreateElement(ctx, "div")
		if err != nil {
			return "", false, err
		}
		if err := a.doc.SetAttribute(ctx, root, controlsRootAttr, "controls"); err != nil {
			return "", false, err
		}
	}

	if submitOK {
		err = a.doc.InsertBefore(ctx, desiredParent, root, submit)
	} else {
		err = a.doc.AppendChild(ctx, desiredParent, root)
	}
	if err != nil {
		return "", false, err
	}
	*changed = true
	return root, true, nil
}

// ensureControl makes one control match its spec, creating it on demand.
func (a *Adapter) ensureControl(ctx context.Context, root dom.NodeRef, spec ControlSpec) (bool, error) {
	matches, err := a.doc.QueryWithin(ctx, root, fmt.Sprintf("[%s=%q]", controlIDAttr, spec.Key))
	if err != nil {
		return false, err
	}

	if len(matches) == 0 {
		node, err := a.doc.CreateElement(ctx, spec.Tag)
		if err != nil {
			return false, err
		}
		if err := a.doc.SetAttribute(ctx, node, controlIDAttr, spec.Key); err != nil {
			return false, err
		}
		for name, value := range spec.Attrs {
			if err := a.doc.SetAttribute(ctx, node, name, value); err != nil {
				return false, err
			}
		}
		if spec.Text != "" {
			if err := a.doc.SetTextContent(ctx, node, spec.Text); err != nil {
				return false, err
			}
		}
		if spec.Value != "" {
			if err := a.doc.SetValue(ctx, node, spec.Value); err != nil {
				return false, err
			}
		}
		if err := a.doc.AppendChild(ctx, root, node); err != nil {
			return false, err
		}
		return true, nil
	}

	// Correct drift on the existing control. Value is deliberately left
	// alone: it belongs to the user once the control exists.
	node := matches[0]
	changed := false
	current, err := a.doc.TextContent(ctx, node)
	if err != nil {
		return changed, err
	}
	if current != spec.Text {
		if err := a.doc.SetTextContent(ctx, node, spec.Text); err != nil {
			return changed, err
		}
		changed = true
	}
	for name, want := range spec.Attrs {
		got, ok, err := a.doc.Attribute(ctx, node, name)
		if err != nil {
			return changed, err
		}
		if !ok || got != want {
			if err := a.doc.SetAttribute(ctx, node, name, want); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	return changed, nil
}
