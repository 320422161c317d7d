package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/promptboost/promptboost/internal/dom"
	"github.com/promptboost/promptboost/internal/errors"
)

// Document implements dom.Document over one attached page target.
type Document struct {
	client    *Client
	mutations chan dom.Mutation
	events    chan dom.ControlEvent
}

var _ dom.Document = (*Document)(nil)

// Attach discovers the chat page behind devToolsURL, connects to it, and
// installs the page-side registry and observers. urlContains narrows the
// target choice; empty picks the first page.
func Attach(ctx context.Context, devToolsURL, urlContains string) (*Document, error) {
	targets, err := Targets(ctx, devToolsURL)
	if err != nil {
		return nil, err
	}
	target, ok := FindPage(targets, urlContains)
	if !ok {
		return nil, errors.NewNotFound("debuggable chat page")
	}

	client, err := Dial(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		return nil, err
	}

	d := &Document{
		client:    client,
		mutations: make(chan dom.Mutation, 64),
		events:    make(chan dom.ControlEvent, 64),
	}
	if err := d.install(ctx); err != nil {
		client.Close()
		return nil, err
	}
	go d.pump()
	return d, nil
}

// install enables the runtime, registers the binding, and injects the
// bootstrap script.
func (d *Document) install(ctx context.Context) error {
	if err := d.client.Call(ctx, "Runtime.enable", nil, nil); err != nil {
		return err
	}
	if err := d.client.Call(ctx, "Runtime.addBinding",
		map[string]any{"name": bindingName}, nil); err != nil {
		return err
	}
	return d.eval(ctx, bootstrapScript, nil)
}

// Close drops the connection; the channels close once the read loop
// exits.
func (d *Document) Close() error {
	return d.client.Close()
}

// pump converts binding calls into the typed channels.
func (d *Document) pump() {
	defer close(d.mutations)
	defer close(d.events)

	for {
		select {
		case <-d.client.Done():
			return
		case call := <-d.client.Bindings():
			if call.Name != bindingName {
				continue
			}
			var msg struct {
				Kind   string   `json:"kind"`
				Added  []string `json:"added"`
				Action string   `json:"action"`
				Value  string   `json:"value"`
			}
			if err := json.Unmarshal([]byte(call.Payload), &msg); err != nil {
				continue
			}
			switch msg.Kind {
			case "mutation":
				mut := dom.Mutation{}
				for _, id := range msg.Added {
					mut.Added = append(mut.Added, dom.NodeRef(id))
				}
				select {
				case d.mutations <- mut:
				default:
				}
			case "control":
				select {
				case d.events <- dom.ControlEvent{Action: msg.Action, Value: msg.Value}:
				default:
				}
			}
		}
	}
}

// eval runs an expression in the page and decodes its by-value result.
func (d *Document) eval(ctx context.Context, expr string, out any) error {
	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	err := d.client.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	}, &result)
	if err != nil {
		return err
	}
	if result.ExceptionDetails != nil {
		return errors.NewTransport(0, "page script failed: "+result.ExceptionDetails.Text)
	}
	if out != nil && len(result.Result.Value) > 0 {
		if err := json.Unmarshal(result.Result.Value, out); err != nil {
			return errors.NewTransport(0, "malformed page script result")
		}
	}
	return nil
}

// call evaluates one registry function with JSON-encoded arguments.
func (d *Document) call(ctx context.Context, fn string, out any, args ...any) error {
	encoded := make([]string, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return errors.NewInternal(err)
		}
		encoded[i] = string(b)
	}
	expr := fmt.Sprintf("window.__pb.%s(%s)", fn, strings.Join(encoded, ", "))
	return d.eval(ctx, expr, out)
}

func (d *Document) Query(ctx context.Context, selector string) ([]dom.NodeRef, error) {
	var ids []string
	if err := d.call(ctx, "query", &ids, selector); err != nil {
		return nil, err
	}
	return toRefs(ids), nil
}

func (d *Document) QueryFirst(ctx context.Context, selector string) (dom.NodeRef, bool, error) {
	nodes, err := d.Query(ctx, selector)
	if err != nil || len(nodes) == 0 {
		return "", false, err
	}
	return nodes[0], true, nil
}

func (d *Document) QueryWithin(ctx context.Context, node dom.NodeRef, selector string) ([]dom.NodeRef, error) {
	var ids []string
	if err := d.call(ctx, "within", &ids, string(node), selector); err != nil {
		return nil, err
	}
	return toRefs(ids), nil
}

func (d *Document) Alive(ctx context.Context, node dom.NodeRef) (bool, error) {
	var alive bool
	err := d.call(ctx, "alive", &alive, string(node))
	return alive, err
}

func (d *Document) Matches(ctx context.Context, node dom.NodeRef, selector string) (bool, error) {
	var matches bool
	err := d.call(ctx, "matches", &matches, string(node), selector)
	return matches, err
}

func (d *Document) TextContent(ctx context.Context, node dom.NodeRef) (string, error) {
	var text string
	err := d.call(ctx, "text", &text, string(node))
	return text, err
}

func (d *Document) Value(ctx context.Context, node dom.NodeRef) (string, error) {
	var value string
	err := d.call(ctx, "value", &value, string(node))
	return value, err
}

func (d *Document) Attribute(ctx context.Context, node dom.NodeRef, name string) (string, bool, error) {
	var value *string
	if err := d.call(ctx, "attr", &value, string(node), name); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (d *Document) SetValue(ctx context.Context, node dom.NodeRef, value string) error {
	return d.mutate(ctx, "setValue", string(node), value)
}

func (d *Document) SetInnerHTML(ctx context.Context, node dom.NodeRef, html string) error {
	return d.mutate(ctx, "setHTML", string(node), html)
}

func (d *Document) SetTextContent(ctx context.Context, node dom.NodeRef, text string) error {
	return d.mutate(ctx, "setText", string(node), text)
}

func (d *Document) SetAttribute(ctx context.Context, node dom.NodeRef, name, value string) error {
	return d.mutate(ctx, "setAttr", string(node), name, value)
}

func (d *Document) Dispatch(ctx context.Context, node dom.NodeRef, event dom.EventType) error {
	return d.mutate(ctx, "dispatch", string(node), string(event))
}

func (d *Document) Click(ctx context.Context, node dom.NodeRef) error {
	return d.mutate(ctx, "click", string(node))
}

func (d *Document) CreateElement(ctx context.Context, tag string) (dom.NodeRef, error) {
	var id string
	if err := d.call(ctx, "create", &id, tag); err != nil {
		return "", err
	}
	return dom.NodeRef(id), nil
}

func (d *Document) AppendChild(ctx context.Context, parent, child dom.NodeRef) error {
	return d.mutate(ctx, "append", string(parent), string(child))
}

func (d *Document) InsertBefore(ctx context.Context, parent, child, ref dom.NodeRef) error {
	return d.mutate(ctx, "insertBefore", string(parent), string(child), string(ref))
}

func (d *Document) Remove(ctx context.Context, node dom.NodeRef) error {
	return d.mutate(ctx, "remove", string(node))
}

func (d *Document) Parent(ctx context.Context, node dom.NodeRef) (dom.NodeRef, bool, error) {
	var id *string
	if err := d.call(ctx, "parent", &id, string(node)); err != nil {
		return "", false, err
	}
	if id == nil {
		return "", false, nil
	}
	return dom.NodeRef(*id), true, nil
}

func (d *Document) Mutations() <-chan dom.Mutation {
	return d.mutations
}

func (d *Document) ControlEvents() <-chan dom.ControlEvent {
	return d.events
}

// mutate runs a registry function that reports success as a boolean;
// false means the handle went stale, which surfaces as a vanished
// element to the caller's re-resolution logic.
func (d *Document) mutate(ctx context.Context, fn string, args ...any) error {
	var ok bool
	if err := d.call(ctx, fn, &ok, args...); err != nil {
		return err
	}
	if !ok {
		return errors.NewConflict("element is no longer attached")
	}
	return nil
}

func toRefs(ids []string) []dom.NodeRef {
	refs := make([]dom.NodeRef, len(ids))
	for i, id := range ids {
		refs[i] = dom.NodeRef(id)
	}
	return refs
}
