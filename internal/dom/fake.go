package dom

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
)

// Fake is an in-memory Document for tests: a synthetic tree with the same
// staleness and mutation semantics as the live page. Tests build a tree,
// run adapter logic against it, and fire mutations or control events by
// hand.
type Fake struct {
	mu     sync.Mutex
	nextID int
	nodes  map[NodeRef]*fakeNode
	root   *fakeNode

	mutations chan Mutation
	controls  chan ControlEvent

	// DispatchedEvents records synthetic events in dispatch order as
	// "<node>:<event>" strings.
	DispatchedEvents []string

	// Clicked records nodes activated via Click.
	Clicked []NodeRef

	// MutationCount counts structural writes (insert/append/remove),
	// letting tests assert that reconciliation was a no-op.
	MutationCount int
}

type fakeNode struct {
	id       NodeRef
	tag      string
	attrs    map[string]string
	text     string
	value    string
	raw      string // innerHTML as set, verbatim
	parent   *fakeNode
	children []*fakeNode
}

// NewFake creates an empty document with a body root.
func NewFake() *Fake {
	f := &Fake{
		nodes:     make(map[NodeRef]*fakeNode),
		mutations: make(chan Mutation, 64),
		controls:  make(chan ControlEvent, 64),
	}
	f.root = f.newNode("body", nil)
	return f
}

var _ Document = (*Fake)(nil)

func (f *Fake) newNode(tag string, attrs map[string]string) *fakeNode {
	f.nextID++
	n := &fakeNode{
		id:    NodeRef(fmt.Sprintf("fake-%d", f.nextID)),
		tag:   strings.ToLower(tag),
		attrs: map[string]string{},
	}
	for k, v := range attrs {
		n.attrs[strings.ToLower(k)] = v
	}
	f.nodes[n.id] = n
	return n
}

// Root returns the body node.
func (f *Fake) Root() NodeRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.root.id
}

// Add builds and attaches an element under parent, returning its handle.
// Intended for test setup.
func (f *Fake) Add(parent NodeRef, tag string, attrs map[string]string, text string) NodeRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.nodes[parent]
	if !ok {
		panic("dom: Add under unknown parent " + parent)
	}
	n := f.newNode(tag, attrs)
	n.text = text
	n.parent = p
	p.children = append(p.children, n)
	return n.id
}

// Detach removes a node out from under the adapter, simulating a host
// re-render destroying an element. Intended for test setup; does not
// count as an adapter mutation.
func (f *Fake) Detach(node NodeRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detachLocked(node)
}

// SetText replaces a node's own text. Intended for test setup.
func (f *Fake) SetText(node NodeRef, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[node]; ok {
		n.text = text
	}
}

// EmitMutation pushes a structural-change batch to observers.
func (f *Fake) EmitMutation(added ...NodeRef) {
	f.mutations <- Mutation{Added: added}
}

// EmitControl pushes a control interaction to observers.
func (f *Fake) EmitControl(action, value string) {
	f.controls <- ControlEvent{Action: action, Value: value}
}

// InnerHTML returns the markup last written to node via SetInnerHTML.
func (f *Fake) InnerHTML(node NodeRef) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[node]; ok {
		return n.raw
	}
	return ""
}

// Query implements Document.
func (f *Fake) Query(_ context.Context, selector string) ([]NodeRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	var out []NodeRef
	f.walk(f.root, func(n *fakeNode) {
		if sel.matches(n) {
			out = append(out, n.id)
		}
	})
	return out, nil
}

// QueryFirst implements Document.
func (f *Fake) QueryFirst(ctx context.Context, selector string) (NodeRef, bool, error) {
	matches, err := f.Query(ctx, selector)
	if err != nil || len(matches) == 0 {
		return "", false, err
	}
	return matches[0], true, nil
}

// QueryWithin implements Document.
func (f *Fake) QueryWithin(_ context.Context, node NodeRef, selector string) ([]NodeRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, err := parseSelector(selector)
	if err != nil {
		return nil, err
	}
	n, ok := f.nodes[node]
	if !ok {
		return nil, nil
	}
	var out []NodeRef
	for _, child := range n.children {
		f.walk(child, func(c *fakeNode) {
			if sel.matches(c) {
				out = append(out, c.id)
			}
		})
	}
	return out, nil
}

// Alive implements Document.
func (f *Fake) Alive(_ context.Context, node NodeRef) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachedLocked(node), nil
}

// Matches implements Document.
func (f *Fake) Matches(_ context.Context, node NodeRef, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel, err := parseSelector(selector)
	if err != nil {
		return false, err
	}
	n, ok := f.nodes[node]
	if !ok {
		return false, nil
	}
	return sel.matches(n), nil
}

// TextContent implements Document.
func (f *Fake) TextContent(_ context.Context, node NodeRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[node]
	if !ok {
		return "", nil
	}
	var sb strings.Builder
	collectText(n, &sb)
	return sb.String(), nil
}

// Value implements Document.
func (f *Fake) Value(_ context.Context, node NodeRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[node]; ok {
		return n.value, nil
	}
	return "", nil
}

// Attribute implements Document.
func (f *Fake) Attribute(_ context.Context, node NodeRef, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[node]
	if !ok {
		return "", false, nil
	}
	v, ok := n.attrs[strings.ToLower(name)]
	return v, ok, nil
}

// SetValue implements Document.
func (f *Fake) SetValue(_ context.Context, node NodeRef, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[node]
	if !ok {
		return fmt.Errorf("dom: stale node %s", node)
	}
	n.value = value
	return nil
}

// SetInnerHTML implements Document. The fake keeps the raw markup and a
// naive tag-stripped text so reads after writes behave like a browser's
// textContent.
func (f *Fake) SetInnerHTML(_ context.Context, node NodeRef, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[node]
	if !ok {
		return fmt.Errorf("dom: stale node %s", node)
	}
	n.raw = html
	n.children = nil
	n.text = stripTags(html)
	return nil
}

// SetTextContent implements Document.
func (f *Fake) SetTextContent(_ context.Context, node NodeRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[node]
	if !ok {
		return fmt.Errorf("dom: stale node %s", node)
	}
	n.children = nil
	n.text = text
	return nil
}

// SetAttribute implements Document.
func (f *Fake) SetAttribute(_ context.Context, node NodeRef, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[node]
	if !ok {
		return fmt.Errorf("dom: stale node %s", node)
	}
	n.attrs[strings.ToLower(name)] = value
	return nil
}

// Dispatch implements Document.
func (f *Fake) Dispatch(_ context.Context, node NodeRef, event EventType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[node]; !ok {
		return fmt.Errorf("dom: stale node %s", node)
	}
	f.DispatchedEvents = append(f.DispatchedEvents, fmt.Sprintf("%s:%s", node, event))
	return nil
}

// Click implements Document.
func (f *Fake) Click(_ context.Context, node NodeRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[node]; !ok {
		return fmt.Errorf("dom: stale node %s", node)
	}
	f.Clicked = append(f.Clicked, node)
	return nil
}

// CreateElement implements Document.
func (f *Fake) CreateElement(_ context.Context, tag string) (NodeRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.newNode(tag, nil)
	return n.id, nil
}

// AppendChild implements Document.
func (f *Fake) AppendChild(_ context.Context, parent, child NodeRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.nodes[parent]
	if !ok {
		return fmt.Errorf("dom: stale node %s", parent)
	}
	c, ok := f.nodes[child]
	if !ok {
		return fmt.Errorf("dom: stale node %s", child)
	}
	f.detachLocked(child)
	c.parent = p
	p.children = append(p.children, c)
	f.MutationCount++
	return nil
}

// InsertBefore implements Document.
func (f *Fake) InsertBefore(_ context.Context, parent, child, ref NodeRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.nodes[parent]
	if !ok {
		return fmt.Errorf("dom: stale node %s", parent)
	}
	c, ok := f.nodes[child]
	if !ok {
		return fmt.Errorf("dom: stale node %s", child)
	}
	if child == ref {
		return nil
	}
	// Detach before computing the insertion index: if child already
	// precedes ref under the same parent, its removal shifts ref one
	// slot left.
	found := false
	for _, existing := range p.children {
		if existing.id == ref {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("dom: reference node %s not under %s", ref, parent)
	}
	f.detachLocked(child)
	idx := -1
	for i, existing := range p.children {
		if existing.id == ref {
			idx = i
			break
		}
	}
	c.parent = p
	p.children = append(p.children[:idx], append([]*fakeNode{c}, p.children[idx:]...)...)
	f.MutationCount++
	return nil
}

// Remove implements Document.
func (f *Fake) Remove(_ context.Context, node NodeRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detachLocked(node)
	f.MutationCount++
	return nil
}

// Parent implements Document.
func (f *Fake) Parent(_ context.Context, node NodeRef) (NodeRef, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[node]
	if !ok || n.parent == nil {
		return "", false, nil
	}
	return n.parent.id, true, nil
}

// Mutations implements Document.
func (f *Fake) Mutations() <-chan Mutation {
	return f.mutations
}

// ControlEvents implements Document.
func (f *Fake) ControlEvents() <-chan ControlEvent {
	return f.controls
}

func (f *Fake) detachLocked(node NodeRef) {
	n, ok := f.nodes[node]
	if !ok || n.parent == nil {
		return
	}
	siblings := n.parent.children
	for i, s := range siblings {
		if s.id == node {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}

func (f *Fake) attachedLocked(node NodeRef) bool {
	n, ok := f.nodes[node]
	if !ok {
		return false
	}
	for n != nil {
		if n == f.root {
			return true
		}
		n = n.parent
	}
	return false
}

func (f *Fake) walk(n *fakeNode, visit func(*fakeNode)) {
	visit(n)
	for _, c := range n.children {
		f.walk(c, visit)
	}
}

func collectText(n *fakeNode, sb *strings.Builder) {
	if n.text != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(n.text)
	}
	for _, c := range n.children {
		collectText(c, sb)
	}
}

// stripTags removes markup for the fake's textContent approximation.
// Closing block tags and line breaks become newlines.
func stripTags(markup string) string {
	var sb, tag strings.Builder
	inTag := false
	for _, r := range markup {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>':
			inTag = false
			name := strings.ToLower(strings.TrimSpace(tag.String()))
			if name == "/p" || name == "/div" || name == "br" || name == "br/" {
				sb.WriteString("\n")
			}
		case inTag:
			tag.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return html.UnescapeString(strings.TrimRight(sb.String(), "\n"))
}
