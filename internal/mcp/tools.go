package mcp

import "github.com/mark3labs/mcp-go/mcp"

var rewriteToolDef = mcp.NewTool("boost_rewrite",
	mcp.WithDescription("Rewrite a piece of text with the configured rewrite service. "+
		"Uses the active template's instruction unless one is given explicitly."),
	mcp.WithString("text", mcp.Required(),
		mcp.Description("The text to rewrite")),
	mcp.WithString("instruction",
		mcp.Description("Rewrite instruction; defaults to the active template's body")),
	mcp.WithString("template_id",
		mcp.Description("Use this template's instruction instead of the active one")),
)

var templateListToolDef = mcp.NewTool("template_list",
	mcp.WithDescription("List rewrite templates in user order. The first three are "+
		"exposed as quick-access buttons on the chat page."),
)

var templateSaveToolDef = mcp.NewTool("template_save",
	mcp.WithDescription("Create a template, or update one when id is given."),
	mcp.WithString("id",
		mcp.Description("Template id to update; omit to create")),
	mcp.WithString("label", mcp.Required(),
		mcp.Description("Display name, at most 20 characters")),
	mcp.WithString("kind", mcp.Required(),
		mcp.Description("One of: boosted (rewrite via service), append (literal text)")),
	mcp.WithString("body", mcp.Required(),
		mcp.Description("Instruction text (boosted) or appended text (append)")),
)

var templateDeleteToolDef = mcp.NewTool("template_delete",
	mcp.WithDescription("Delete a template. Clears the active selection if it "+
		"pointed at the deleted template."),
	mcp.WithString("id", mcp.Required(),
		mcp.Description("Template id")),
)

var templateReorderToolDef = mcp.NewTool("template_reorder",
	mcp.WithDescription("Replace the template order. ids must contain every "+
		"existing template id exactly once."),
	mcp.WithArray("ids", mcp.Required(),
		mcp.Description("Template ids in the new order"),
		mcp.Items(map[string]any{"type": "string"})),
)

var templateActivateToolDef = mcp.NewTool("template_activate",
	mcp.WithDescription("Select the template used by the primary boost action, "+
		"or clear the selection with an empty id."),
	mcp.WithString("id",
		mcp.Description("Template id; empty clears the selection")),
)

var configGetToolDef = mcp.NewTool("config_get",
	mcp.WithDescription("Read the current configuration. The API key is reported "+
		"as set/unset, never in the clear."),
)

var configSetToolDef = mcp.NewTool("config_set",
	mcp.WithDescription("Merge the given fields into the stored configuration."),
	mcp.WithString("api_key", mcp.Description("Rewrite service API key")),
	mcp.WithString("endpoint", mcp.Description("Chat-completions endpoint URL")),
	mcp.WithString("model", mcp.Description("Model identifier")),
	mcp.WithString("devtools_url", mcp.Description("Browser DevTools URL")),
	mcp.WithBoolean("preview", mcp.Description("Review rewritten text before sending")),
	mcp.WithNumber("rewrite_timeout_seconds", mcp.Description("Per-call rewrite timeout")),
	mcp.WithNumber("correlation_max_pending", mcp.Description("Pending annotation cap")),
)
