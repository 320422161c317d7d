package page

import (
	"context"

	"github.com/promptboost/promptboost/internal/dom"
	"github.com/promptboost/promptboost/internal/text"
)

// seenLimit bounds the dedupe set for observed message elements. Old
// entries are pruned FIFO; the host page does not re-announce old
// messages, so pruning only matters for very long sessions.
const seenLimit = 512

// SentMessage is a newly rendered message the current user sent.
type SentMessage struct {
	Node dom.NodeRef
	Text string
}

// SentMessagesIn extracts the user-sent messages that appeared in one
// mutation batch. Each message element is reported exactly once per
// element across calls; text is normalized for matching. The driver's
// event loop feeds every mutation batch through here.
func (a *Adapter) SentMessagesIn(ctx context.Context, mut dom.Mutation) ([]SentMessage, error) {
	var out []SentMessage
	for _, root := range mut.Added {
		nodes, err := a.sentMessageNodes(ctx, root)
		if err != nil {
			return out, err
		}
		for _, node := range nodes {
			if a.alreadySeen(node) {
				continue
			}
			content, err := a.doc.TextContent(ctx, node)
			if err != nil {
				return out, err
			}
			a.markSeen(node)
			out = append(out, SentMessage{Node: node, Text: text.Normalize(content)})
		}
	}
	return out, nil
}

// sentMessageNodes returns the message elements within an added subtree,
// including the root itself when it matches.
func (a *Adapter) sentMessageNodes(ctx context.Context, root dom.NodeRef) ([]dom.NodeRef, error) {
	matches, err := a.doc.Matches(ctx, root, a.sel.SentMessage)
	if err != nil {
		return nil, err
	}
	var nodes []dom.NodeRef
	if matches {
		nodes = append(nodes, root)
	}
	within, err := a.doc.QueryWithin(ctx, root, a.sel.SentMessage)
	if err != nil {
		return nodes, err
	}
	return append(nodes, within...), nil
}

func (a *Adapter) alreadySeen(node dom.NodeRef) bool {
	_, ok := a.seen[node]
	return ok
}

func (a *Adapter) markSeen(node dom.NodeRef) {
	if a.seen == nil {
		a.seen = make(map[dom.NodeRef]struct{})
	}
	a.seen[node] = struct{}{}
	a.seenOrder = append(a.seenOrder, node)
	for len(a.seenOrder) > seenLimit {
		delete(a.seen, a.seenOrder[0])
		a.seenOrder = a.seenOrder[1:]
	}
}

// noteClass marks annotation elements so repeated annotation attempts on
// the same message are no-ops.
const noteClass = "pb-note"

// Annotate permanently attaches a non-interactive note to a sent message
// element, displaying the original draft that produced it. Idempotent
// per element.
func (a *Adapter) Annotate(ctx context.Context, node dom.NodeRef, original string) error {
	existing, err := a.doc.QueryWithin(ctx, node, "."+noteClass)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	note, err := a.doc.CreateElement(ctx, "div")
	if err != nil {
		return err
	}
	if err := a.doc.SetAttribute(ctx, note, "class", noteClass); err != nil {
		return err
	}
	if err := a.doc.SetTextContent(ctx, note, "Original: "+original); err != nil {
		return err
	}
	return a.doc.AppendChild(ctx, node, note)
}
