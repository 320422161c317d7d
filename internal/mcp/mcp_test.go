package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/promptboost/promptboost/internal/registry"
	"github.com/promptboost/promptboost/internal/rewrite"
	"github.com/promptboost/promptboost/internal/store"
)

// testSetup creates a temporary store and a fake rewriter for testing.
func testSetup(t *testing.T) (*store.Store, *rewrite.Fake) {
	t.Helper()

	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &rewrite.Fake{Result: "rewritten"}
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func resultPayload(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()

	if result.IsError {
		t.Fatalf("expected success, got error: %+v", result.Content)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is not TextContent")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	return payload
}

func TestHandleRewrite(t *testing.T) {
	s, rw := testSetup(t)
	h := NewHandlers(s, rw)
	ctx := context.Background()

	tpl, err := registry.Create(s, registry.CreateInput{
		Label: "Deep", Kind: store.KindBoosted, Body: "think hard",
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "explicit instruction",
			args:      map[string]any{"text": "hello", "instruction": "shorten"},
			wantError: false,
		},
		{
			name:      "named template",
			args:      map[string]any{"text": "hello", "template_id": tpl.ID},
			wantError: false,
		},
		{
			name:      "empty text",
			args:      map[string]any{"text": "   "},
			wantError: true,
			errorCode: "EMPTY_DRAFT",
		},
		{
			name:      "no instruction and no active template",
			args:      map[string]any{"text": "hello"},
			wantError: true,
			errorCode: "NO_TEMPLATE",
		},
		{
			name:      "unknown template",
			args:      map[string]any{"text": "hello", "template_id": "nope"},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleRewrite(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
				return
			}
			payload := resultPayload(t, result)
			if payload["rewritten"] != "rewritten" {
				t.Errorf("rewritten = %v, want fake result", payload["rewritten"])
			}
		})
	}
}

func TestHandleRewrite_UsesActiveTemplate(t *testing.T) {
	s, rw := testSetup(t)
	h := NewHandlers(s, rw)

	tpl, err := registry.Create(s, registry.CreateInput{
		Label: "Deep", Kind: store.KindBoosted, Body: "the active instruction",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := registry.SetActive(s, tpl.ID); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandleRewrite(context.Background(), makeRequest(map[string]any{"text": "hello"}))
	if err != nil {
		t.Fatal(err)
	}
	resultPayload(t, result)

	if len(rw.Calls) != 1 || rw.Calls[0].Instruction != "the active instruction" {
		t.Errorf("calls = %+v, want active template instruction", rw.Calls)
	}
}

func TestHandleTemplateSaveListDelete(t *testing.T) {
	s, rw := testSetup(t)
	h := NewHandlers(s, rw)
	ctx := context.Background()

	// Create
	result, err := h.HandleTemplateSave(ctx, makeRequest(map[string]any{
		"label": "PS", "kind": "append", "body": "Keep it short.",
	}))
	if err != nil {
		t.Fatal(err)
	}
	created := resultPayload(t, result)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("created template has no id")
	}

	// Update by id
	result, err = h.HandleTemplateSave(ctx, makeRequest(map[string]any{
		"id": id, "label": "PS2", "kind": "append", "body": "Keep it very short.",
	}))
	if err != nil {
		t.Fatal(err)
	}
	updated := resultPayload(t, result)
	if updated["label"] != "PS2" {
		t.Errorf("label = %v, want PS2", updated["label"])
	}

	// Invalid kind is rejected
	result, _ = h.HandleTemplateSave(ctx, makeRequest(map[string]any{
		"label": "X", "kind": "bogus", "body": "x",
	}))
	if !result.IsError {
		t.Error("invalid kind should fail")
	}
	assertErrorCode(t, result, "INVALID_REQUEST")

	// List
	result, err = h.HandleTemplateList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	listed := resultPayload(t, result)
	templates, _ := listed["templates"].([]any)
	if len(templates) != 1 {
		t.Fatalf("templates = %d, want 1", len(templates))
	}

	// Delete
	result, err = h.HandleTemplateDelete(ctx, makeRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatal(err)
	}
	resultPayload(t, result)
	if _, err := registry.Get(s, id); err == nil {
		t.Error("template should be gone")
	}
}

func TestHandleTemplateReorderAndActivate(t *testing.T) {
	s, rw := testSetup(t)
	h := NewHandlers(s, rw)
	ctx := context.Background()

	a, _ := registry.Create(s, registry.CreateInput{Label: "A", Kind: store.KindAppend, Body: "a"})
	b, _ := registry.Create(s, registry.CreateInput{Label: "B", Kind: store.KindAppend, Body: "b"})

	result, err := h.HandleTemplateReorder(ctx, makeRequest(map[string]any{
		"ids": []any{b.ID, a.ID},
	}))
	if err != nil {
		t.Fatal(err)
	}
	resultPayload(t, result)
	items, _ := registry.List(s)
	if items[0].ID != b.ID {
		t.Errorf("first = %q, want %q after reorder", items[0].ID, b.ID)
	}

	// Partial id list is rejected
	result, _ = h.HandleTemplateReorder(ctx, makeRequest(map[string]any{"ids": []any{a.ID}}))
	if !result.IsError {
		t.Error("partial reorder should fail")
	}

	// Activate and clear
	result, err = h.HandleTemplateActivate(ctx, makeRequest(map[string]any{"id": a.ID}))
	if err != nil {
		t.Fatal(err)
	}
	resultPayload(t, result)
	settings, _ := s.Load()
	if settings.ActiveTemplateID != a.ID {
		t.Errorf("active = %q, want %q", settings.ActiveTemplateID, a.ID)
	}

	result, err = h.HandleTemplateActivate(ctx, makeRequest(map[string]any{"id": ""}))
	if err != nil {
		t.Fatal(err)
	}
	resultPayload(t, result)
	settings, _ = s.Load()
	if settings.ActiveTemplateID != "" {
		t.Errorf("active = %q, want cleared", settings.ActiveTemplateID)
	}
}

func TestHandleConfigGetAndSet(t *testing.T) {
	s, rw := testSetup(t)
	h := NewHandlers(s, rw)
	ctx := context.Background()

	result, err := h.HandleConfigSet(ctx, makeRequest(map[string]any{
		"api_key": "sk-secret",
		"model":   "pb-large",
		"preview": true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	payload := resultPayload(t, result)
	if payload["api_key_set"] != true {
		t.Error("api_key_set should be true after setting a key")
	}
	if payload["model"] != "pb-large" {
		t.Errorf("model = %v, want pb-large", payload["model"])
	}
	if payload["preview"] != true {
		t.Error("preview should be enabled")
	}

	// The key itself never appears in the payload
	result, err = h.HandleConfigGet(ctx, makeRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := result.Content[0].(mcp.TextContent)
	if strings.Contains(raw.Text, "sk-secret") {
		t.Error("config_get must not expose the API key")
	}

	// Preview can be turned off explicitly
	result, err = h.HandleConfigSet(ctx, makeRequest(map[string]any{"preview": false}))
	if err != nil {
		t.Fatal(err)
	}
	payload = resultPayload(t, result)
	if payload["preview"] != false {
		t.Error("explicit preview=false should disable it")
	}
}

func TestServerRegistration(t *testing.T) {
	s, rw := testSetup(t)

	srv := NewServer(s, rw, "test", nil)
	tools := srv.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	for _, name := range AllToolNames() {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
	if len(tools) != len(toolRegistry) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry))
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	s, rw := testSetup(t)

	srv := NewServer(s, rw, "test", []string{"config_set", "template_delete"})
	tools := srv.ListTools()

	if _, ok := tools["config_set"]; ok {
		t.Error("config_set should be disabled")
	}
	if _, ok := tools["template_delete"]; ok {
		t.Error("template_delete should be disabled")
	}
	if _, ok := tools["boost_rewrite"]; !ok {
		t.Error("boost_rewrite should still be registered")
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"boost_rewrite", "bogus_tool"})
	if len(unknown) != 1 || unknown[0] != "bogus_tool" {
		t.Errorf("unknown = %v, want [bogus_tool]", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	s, rw := testSetup(t)
	h := NewHandlers(s, rw)

	// A malformed argument payload surfaces as INVALID_REQUEST, not as a
	// raw decoding error.
	result, err := h.HandleTemplateSave(context.Background(), makeRequest(map[string]any{
		"label": map[string]any{"nested": true},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}
