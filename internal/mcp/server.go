package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/promptboost/promptboost/internal/rewrite"
	"github.com/promptboost/promptboost/internal/store"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"boost_rewrite": {
		def:     rewriteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRewrite },
	},
	"template_list": {
		def:     templateListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplateList },
	},
	"template_save": {
		def:     templateSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplateSave },
	},
	"template_delete": {
		def:     templateDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplateDelete },
	},
	"template_reorder": {
		def:     templateReorderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplateReorder },
	},
	"template_activate": {
		def:     templateActivateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplateActivate },
	},
	"config_get": {
		def:     configGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConfigGet },
	},
	"config_set": {
		def:     configSetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConfigSet },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with PromptBoost tools registered.
// Tools listed in disabledTools are excluded from registration.
func NewServer(s *store.Store, rewriter rewrite.Rewriter, version string, disabledTools []string) *server.MCPServer {
	srv := server.NewMCPServer(
		"promptboost",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(s, rewriter)

	disabled := make(map[string]bool, len(disabledTools))
	for _, name := range disabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		srv.AddTool(entry.def, entry.handler(h))
	}

	return srv
}

// Run starts the MCP server using stdio transport.
func Run(s *store.Store, rewriter rewrite.Rewriter, version string, disabledTools []string) error {
	return server.ServeStdio(NewServer(s, rewriter, version, disabledTools))
}
