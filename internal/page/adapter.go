// Package page adapts the host chat application's document structure.
// The host page is an externally owned, continuously re-rendering client
// application with no version contract: every operation here re-resolves
// the elements it needs, treats absence as a retryable condition, and
// replays only the signals a typing user would produce.
package page

import (
	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/dom"
)

// Adapter provides the four host-page operations: surface location and
// draft I/O, submission, sent-message observation, and injected-control
// reconciliation. It holds no element handles across operations.
type Adapter struct {
	doc dom.Document
	sel config.Selectors

	// seen dedupes observed message elements; exactly one callback per
	// element.
	seen      map[dom.NodeRef]struct{}
	seenOrder []dom.NodeRef
}

// New creates an adapter over doc using the given selectors.
func New(doc dom.Document, sel config.Selectors) *Adapter {
	return &Adapter{doc: doc, sel: sel}
}

// Doc exposes the underlying document for the driver's event loop.
func (a *Adapter) Doc() dom.Document {
	return a.doc
}
