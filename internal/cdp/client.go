// Package cdp implements the dom.Document contract over the Chrome
// DevTools Protocol, attaching to an already-running browser through its
// debugging port. Element handles are ids held in a page-side registry;
// the Go side never sees raw DOM nodes.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/promptboost/promptboost/internal/errors"
)

// Target is one debuggable page reported by the browser's /json list.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Targets lists the browser's debuggable targets.
func Targets(ctx context.Context, devToolsURL string) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(devToolsURL, "/")+"/json/list", nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.NewTransport(0, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTransport(resp.StatusCode, "devtools target list")
	}
	var targets []Target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, errors.NewTransport(0, "malformed devtools target list")
	}
	return targets, nil
}

// FindPage picks the first page target whose URL contains urlContains;
// an empty filter matches the first page.
func FindPage(targets []Target, urlContains string) (Target, bool) {
	for _, t := range targets {
		if t.Type != "page" || t.WebSocketDebuggerURL == "" {
			continue
		}
		if urlContains == "" || strings.Contains(t.URL, urlContains) {
			return t, true
		}
	}
	return Target{}, false
}

// rpcError is a protocol-level failure for one command.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope covers both command responses (ID set) and events (Method set).
type envelope struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type command struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// bindingCall is a Runtime.bindingCalled event payload.
type bindingCall struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// Client is a single-target DevTools connection. Writes are serialized;
// responses are correlated by command id on the read loop.
type Client struct {
	conn   *websocket.Conn
	nextID atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan envelope
	closed  bool

	bindings chan bindingCall
	done     chan struct{}
}

// Dial connects to a page target's debugger websocket and starts the
// read and ping loops.
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.NewTransport(0, fmt.Sprintf("devtools dial %s: %v", wsURL, err))
	}

	c := &Client{
		conn:     conn,
		pending:  make(map[int64]chan envelope),
		bindings: make(chan bindingCall, 64),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Call sends one command and decodes its result into out (out may be
// nil). It fails once the connection drops or ctx expires.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	id := c.nextID.Add(1)
	ch := make(chan envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.NewTransport(0, "devtools connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(command{ID: id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return errors.NewTransport(0, ctx.Err().Error())
	case <-c.done:
		return errors.NewTransport(0, "devtools connection closed")
	case resp := <-ch:
		if resp.Error != nil {
			return errors.NewTransport(0, fmt.Sprintf("%s: %s", method, resp.Error.Message))
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return errors.NewTransport(0, fmt.Sprintf("%s: malformed result", method))
			}
		}
		return nil
	}
}

// Bindings exposes page-to-client calls made through the installed
// binding.
func (c *Client) Bindings() <-chan bindingCall {
	return c.bindings
}

// Done closes when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection; pending calls fail.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return errors.NewTransport(0, fmt.Sprintf("devtools write: %v", err))
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch {
		case env.ID != 0:
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			c.mu.Unlock()
			if ok {
				ch <- env
			}
		case env.Method == "Runtime.bindingCalled":
			var call bindingCall
			if err := json.Unmarshal(env.Params, &call); err != nil {
				continue
			}
			select {
			case c.bindings <- call:
			default:
				// Drop rather than stall the read loop; the
				// reconciliation tick recovers missed signals.
			}
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
