// Package dom abstracts the host page's document tree. The page adapter
// and surface controller are written against Document, so their location,
// write-back, and reconciliation logic can be exercised against the
// in-memory Fake without a browser; the cdp package provides the live
// implementation over the DevTools Protocol.
package dom

import "context"

// NodeRef is an opaque handle to a live element. The host page re-renders
// continuously, so handles go stale at any time: every operation
// re-validates, and callers never cache a handle beyond a single
// adapter operation.
type NodeRef string

// EventType names the synthetic notifications the adapter replays. These
// are the same signals a typing user would produce; they exist so the
// host application's own input detection picks up programmatic writes.
type EventType string

const (
	EventInput    EventType = "input"
	EventChange   EventType = "change"
	EventClick    EventType = "click"
	EventEnterKey EventType = "enter-key"
)

// Mutation is one batch of structural changes observed on the document.
type Mutation struct {
	// Added holds the roots of newly attached subtrees.
	Added []NodeRef
}

// ControlEvent is a user interaction with an injected control, forwarded
// from the page.
type ControlEvent struct {
	// Action identifies the control ("boost", "template:<id>", ...).
	Action string

	// Value carries the control's payload, e.g. the possibly-edited
	// suggestion text on preview confirmation.
	Value string
}

// Document is the set of primitives the adapter needs from a live page.
// Locate-style methods report absence via ok=false or empty results,
// never via errors; errors mean the document itself is unreachable.
type Document interface {
	// Query returns all elements matching selector, in document order.
	Query(ctx context.Context, selector string) ([]NodeRef, error)

	// QueryFirst returns the first element matching selector.
	QueryFirst(ctx context.Context, selector string) (NodeRef, bool, error)

	// QueryWithin returns elements matching selector inside node.
	QueryWithin(ctx context.Context, node NodeRef, selector string) ([]NodeRef, error)

	// Alive reports whether node is still attached to the document.
	Alive(ctx context.Context, node NodeRef) (bool, error)

	// Matches reports whether node matches selector.
	Matches(ctx context.Context, node NodeRef, selector string) (bool, error)

	// TextContent returns the node's visible text.
	TextContent(ctx context.Context, node NodeRef) (string, error)

	// Value returns a form field's current value.
	Value(ctx context.Context, node NodeRef) (string, error)

	// Attribute returns the named attribute, with ok=false when absent.
	Attribute(ctx context.Context, node NodeRef, name string) (string, bool, error)

	// SetValue assigns a form field's value through the element's native
	// setter, so framework-internal state observes the change.
	SetValue(ctx context.Context, node NodeRef, value string) error

	// SetInnerHTML replaces the node's markup wholesale.
	SetInnerHTML(ctx context.Context, node NodeRef, html string) error

	// SetTextContent replaces the node's text.
	SetTextContent(ctx context.Context, node NodeRef, text string) error

	// SetAttribute sets an attribute on the node.
	SetAttribute(ctx context.Context, node NodeRef, name, value string) error

	// Dispatch fires a synthetic event on the node.
	Dispatch(ctx context.Context, node NodeRef, event EventType) error

	// Click simulates activation of the node.
	Click(ctx context.Context, node NodeRef) error

	// CreateElement creates a detached element.
	CreateElement(ctx context.Context, tag string) (NodeRef, error)

	// AppendChild attaches child as parent's last child.
	AppendChild(ctx context.Context, parent, child NodeRef) error

	// InsertBefore attaches child into parent immediately before ref.
	InsertBefore(ctx context.Context, parent, child, ref NodeRef) error

	// Remove detaches node from the document.
	Remove(ctx context.Context, node NodeRef) error

	// Parent returns node's parent, with ok=false at the root or when
	// detached.
	Parent(ctx context.Context, node NodeRef) (NodeRef, bool, error)

	// Mutations returns the structural-change stream. The channel is
	// closed when the document goes away.
	Mutations() <-chan Mutation

	// ControlEvents returns the stream of interactions with injected
	// controls.
	ControlEvents() <-chan ControlEvent
}
