package config

import (
	"encoding/json"
	"strings"
)

// Selectors are the best-effort CSS selectors used to find the host page's
// structure. The host application is unversioned and can change at any
// time, so every selector is revisable configuration, not a constant.
type Selectors struct {
	// RichEditor matches the contenteditable input region (preferred).
	RichEditor string `json:"rich_editor,omitempty"`

	// PlainEditor matches the plain textarea fallback.
	PlainEditor string `json:"plain_editor,omitempty"`

	// Submit lists candidate submit-button selectors, tried in order.
	Submit []string `json:"submit,omitempty"`

	// SentMessage matches elements rendered for messages the current
	// user sent.
	SentMessage string `json:"sent_message,omitempty"`

	// Anchor is the stable fallback anchor for injected controls when no
	// submit button is present.
	Anchor string `json:"anchor,omitempty"`
}

// Settings holds process-wide configuration. The store merges persisted
// values under these defaults; a rewrite job always works from the
// snapshot taken at its start.
type Settings struct {
	// APIKey is the credential for the text-generation service.
	APIKey string `json:"api_key,omitempty"`

	// Endpoint is the chat-completions URL of the service.
	Endpoint string `json:"endpoint,omitempty"`

	// Model is the model identifier sent with each rewrite request.
	Model string `json:"model,omitempty"`

	// Preview shows a review step before the rewritten text is sent.
	Preview bool `json:"preview,omitempty"`

	// ActiveTemplateID references a template by id; empty means none.
	// Cleared automatically when the referenced template is deleted.
	ActiveTemplateID string `json:"active_template_id,omitempty"`

	// RewriteTimeoutSeconds bounds a single rewrite service call.
	RewriteTimeoutSeconds int `json:"rewrite_timeout_seconds,omitempty"`

	// CorrelationMaxPending caps the queue of unannotated sent messages;
	// oldest records are dropped on overflow.
	CorrelationMaxPending int `json:"correlation_max_pending,omitempty"`

	// DevToolsURL is the Chrome DevTools HTTP endpoint to attach to.
	DevToolsURL string `json:"devtools_url,omitempty"`

	// Selectors override the host page selectors.
	Selectors Selectors `json:"selectors,omitempty"`
}

// DefaultSettings returns the default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Endpoint:              "https://api.openai.com/v1/chat/completions",
		Model:                 "gpt-4o-mini",
		RewriteTimeoutSeconds: 60,
		CorrelationMaxPending: 8,
		DevToolsURL:           "http://127.0.0.1:9222",
		Selectors: Selectors{
			RichEditor:  `div[contenteditable="true"]`,
			PlainEditor: `textarea`,
			Submit: []string{
				`button[aria-label="Send message"]`,
				`button[data-testid="send-button"]`,
				`button[type="submit"]`,
			},
			SentMessage: `[data-message-author-role="user"]`,
			Anchor:      `form`,
		},
	}
}

// Merge combines base and overlay settings.
// Overlay values take precedence for non-zero scalars; the boolean Preview
// is true if either side sets it; selector lists replace wholesale.
func Merge(base, overlay *Settings) *Settings {
	result := &Settings{}

	result.APIKey = pick(overlay.APIKey, base.APIKey)
	result.Endpoint = pick(overlay.Endpoint, base.Endpoint)
	result.Model = pick(overlay.Model, base.Model)
	result.ActiveTemplateID = pick(overlay.ActiveTemplateID, base.ActiveTemplateID)
	result.DevToolsURL = pick(overlay.DevToolsURL, base.DevToolsURL)

	result.Preview = base.Preview || overlay.Preview

	result.RewriteTimeoutSeconds = overlay.RewriteTimeoutSeconds
	if result.RewriteTimeoutSeconds == 0 {
		result.RewriteTimeoutSeconds = base.RewriteTimeoutSeconds
	}
	result.CorrelationMaxPending = overlay.CorrelationMaxPending
	if result.CorrelationMaxPending == 0 {
		result.CorrelationMaxPending = base.CorrelationMaxPending
	}

	result.Selectors.RichEditor = pick(overlay.Selectors.RichEditor, base.Selectors.RichEditor)
	result.Selectors.PlainEditor = pick(overlay.Selectors.PlainEditor, base.Selectors.PlainEditor)
	result.Selectors.SentMessage = pick(overlay.Selectors.SentMessage, base.Selectors.SentMessage)
	result.Selectors.Anchor = pick(overlay.Selectors.Anchor, base.Selectors.Anchor)
	result.Selectors.Submit = overlay.Selectors.Submit
	if len(result.Selectors.Submit) == 0 {
		result.Selectors.Submit = base.Selectors.Submit
	}

	return result
}

// pick returns overlay if non-empty after trimming, else base.
func pick(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// Decode parses a JSON settings document. An empty document yields a
// zero-valued Settings (not defaults); callers merge under DefaultSettings.
func Decode(data []byte) (*Settings, error) {
	s := &Settings{}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode serializes settings to their JSON document form.
func Encode(s *Settings) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
