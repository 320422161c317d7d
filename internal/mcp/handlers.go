package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/errors"
	"github.com/promptboost/promptboost/internal/registry"
	"github.com/promptboost/promptboost/internal/rewrite"
	"github.com/promptboost/promptboost/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store    *store.Store
	rewriter rewrite.Rewriter
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(s *store.Store, rewriter rewrite.Rewriter) *Handlers {
	return &Handlers{store: s, rewriter: rewriter}
}

// decode maps a tool call's arguments onto one of the request structs
// below by round-tripping through JSON, so malformed arguments surface
// as a decode error instead of a type assertion panic.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// Request types for each tool

// RewriteRequest represents the arguments for boost_rewrite.
type RewriteRequest struct {
	Text        string `json:"text"`
	Instruction string `json:"instruction,omitempty"`
	TemplateID  string `json:"template_id,omitempty"`
}

// TemplateSaveRequest represents the arguments for template_save.
type TemplateSaveRequest struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
	Body  string `json:"body"`
}

// TemplateDeleteRequest represents the arguments for template_delete.
type TemplateDeleteRequest struct {
	ID string `json:"id"`
}

// TemplateReorderRequest represents the arguments for template_reorder.
type TemplateReorderRequest struct {
	IDs []string `json:"ids"`
}

// TemplateActivateRequest represents the arguments for template_activate.
type TemplateActivateRequest struct {
	ID string `json:"id,omitempty"`
}

// ConfigSetRequest represents the arguments for config_set.
type ConfigSetRequest struct {
	APIKey                string `json:"api_key,omitempty"`
	Endpoint              string `json:"endpoint,omitempty"`
	Model                 string `json:"model,omitempty"`
	DevToolsURL           string `json:"devtools_url,omitempty"`
	Preview               *bool  `json:"preview,omitempty"`
	RewriteTimeoutSeconds int    `json:"rewrite_timeout_seconds,omitempty"`
	CorrelationMaxPending int    `json:"correlation_max_pending,omitempty"`
}

// Handler implementations

// HandleRewrite handles the boost_rewrite tool call: a one-shot rewrite
// without any browser attachment.
func (h *Handlers) HandleRewrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RewriteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return errorResult(errors.NewEmptyDraft()), nil
	}

	settings, err := h.store.Load()
	if err != nil {
		return errorResult(err), nil
	}

	instruction, err := h.resolveInstruction(input, settings)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.rewriter.Rewrite(ctx, input.Text, instruction, rewrite.Options{
		APIKey:   settings.APIKey,
		Endpoint: settings.Endpoint,
		Model:    settings.Model,
		Timeout:  time.Duration(settings.RewriteTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"original":  input.Text,
		"rewritten": result,
	})
}

// resolveInstruction picks the explicit instruction, the named template,
// or the active template, in that order.
func (h *Handlers) resolveInstruction(input RewriteRequest, settings *config.Settings) (string, error) {
	if strings.TrimSpace(input.Instruction) != "" {
		return input.Instruction, nil
	}
	id := input.TemplateID
	if id == "" {
		id = settings.ActiveTemplateID
	}
	if id == "" {
		return "", errors.NewNoTemplate()
	}
	tpl, err := registry.Get(h.store, id)
	if err != nil {
		return "", err
	}
	if tpl.Kind != store.KindBoosted {
		return "", errors.NewInvalidRequest("template is not a boosted template")
	}
	return tpl.Body, nil
}

// HandleTemplateList handles the template_list tool call.
func (h *Handlers) HandleTemplateList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := registry.List(h.store)
	if err != nil {
		return errorResult(err), nil
	}
	settings, err := h.store.Load()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"templates": items,
		"active_id": settings.ActiveTemplateID,
	})
}

// HandleTemplateSave handles the template_save tool call.
func (h *Handlers) HandleTemplateSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplateSaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var tpl *store.Template
	if input.ID == "" {
		tpl, err = registry.Create(h.store, registry.CreateInput{
			Label: input.Label,
			Kind:  store.Kind(input.Kind),
			Body:  input.Body,
		})
	} else {
		tpl, err = registry.Update(h.store, registry.UpdateInput{
			ID:    input.ID,
			Label: input.Label,
			Kind:  store.Kind(input.Kind),
			Body:  input.Body,
		})
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(tpl)
}

// HandleTemplateDelete handles the template_delete tool call.
func (h *Handlers) HandleTemplateDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplateDeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := registry.Delete(h.store, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": input.ID})
}

// HandleTemplateReorder handles the template_reorder tool call.
func (h *Handlers) HandleTemplateReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplateReorderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := registry.Reorder(h.store, input.IDs); err != nil {
		return errorResult(err), nil
	}
	items, err := registry.List(h.store)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"templates": items})
}

// HandleTemplateActivate handles the template_activate tool call.
func (h *Handlers) HandleTemplateActivate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplateActivateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := registry.SetActive(h.store, input.ID); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"active_id": input.ID})
}

// HandleConfigGet handles the config_get tool call.
func (h *Handlers) HandleConfigGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	settings, err := h.store.Load()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(redactSettings(settings))
}

// HandleConfigSet handles the config_set tool call.
func (h *Handlers) HandleConfigSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfigSetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	// Only fields present in the request reach the stored document, which
	// stays partial; preview is tri-state, so only an explicit value
	// replaces the stored flag.
	merged, err := h.store.UpdateStored(func(stored *config.Settings) {
		if input.APIKey != "" {
			stored.APIKey = input.APIKey
		}
		if input.Endpoint != "" {
			stored.Endpoint = input.Endpoint
		}
		if input.Model != "" {
			stored.Model = input.Model
		}
		if input.DevToolsURL != "" {
			stored.DevToolsURL = input.DevToolsURL
		}
		if input.RewriteTimeoutSeconds > 0 {
			stored.RewriteTimeoutSeconds = input.RewriteTimeoutSeconds
		}
		if input.CorrelationMaxPending > 0 {
			stored.CorrelationMaxPending = input.CorrelationMaxPending
		}
		if input.Preview != nil {
			stored.Preview = *input.Preview
		}
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(redactSettings(merged))
}

// redactSettings reports the API key as set/unset, never in the clear.
func redactSettings(s *config.Settings) map[string]any {
	return map[string]any{
		"api_key_set":             s.APIKey != "",
		"endpoint":                s.Endpoint,
		"model":                   s.Model,
		"preview":                 s.Preview,
		"active_template_id":      s.ActiveTemplateID,
		"rewrite_timeout_seconds": s.RewriteTimeoutSeconds,
		"correlation_max_pending": s.CorrelationMaxPending,
		"devtools_url":            s.DevToolsURL,
	}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if bErr, ok := err.(*errors.BoostError); ok {
		errorObj := map[string]any{
			"code":    bErr.Code,
			"message": bErr.Message,
			"status":  bErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if bErr.Code != errors.ErrInternal && bErr.Details != nil {
			errorObj["details"] = bErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
