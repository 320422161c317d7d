package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/promptboost/promptboost/internal/store"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// runApp runs the CLI with captured stdout.
func runApp(t *testing.T, s *store.Store, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(s)

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := app.Run(append([]string{"promptboost"}, args...))

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	return buf.String(), err
}

// withStdin replaces os.Stdin with a pipe carrying the given text.
func withStdin(t *testing.T, text string) {
	t.Helper()
	oldStdin := os.Stdin
	stdinR, stdinW, _ := os.Pipe()
	os.Stdin = stdinR
	go func() {
		_, _ = stdinW.WriteString(text)
		stdinW.Close()
	}()
	t.Cleanup(func() { os.Stdin = oldStdin })
}

func TestCLITemplateLifecycle(t *testing.T) {
	s := setupTestStore(t)

	out, err := runApp(t, s, "template", "create", "--label=Deep Think", "--kind=boosted", "--body=Think deeply.")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var created store.Template
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if created.ID == "" {
		t.Error("expected non-empty ID")
	}
	if created.Label != "Deep Think" {
		t.Errorf("expected label 'Deep Think', got %q", created.Label)
	}

	out, err = runApp(t, s, "template", "update", created.ID, "--label=Deeper")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	var updated store.Template
	if err := json.Unmarshal([]byte(out), &updated); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if updated.Label != "Deeper" {
		t.Errorf("expected label 'Deeper', got %q", updated.Label)
	}
	if updated.Body != "Think deeply." {
		t.Errorf("unset body should keep its value, got %q", updated.Body)
	}

	out, err = runApp(t, s, "template", "activate", created.ID)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}

	out, err = runApp(t, s, "template", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var listed struct {
		Templates []store.Template `json:"templates"`
		ActiveID  string           `json:"active_id"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if len(listed.Templates) != 1 {
		t.Fatalf("expected 1 template, got %d", len(listed.Templates))
	}
	if listed.ActiveID != created.ID {
		t.Errorf("expected active_id %s, got %s", created.ID, listed.ActiveID)
	}

	if _, err := runApp(t, s, "template", "delete", created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	out, err = runApp(t, s, "template", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if len(listed.Templates) != 0 {
		t.Errorf("expected 0 templates after delete, got %d", len(listed.Templates))
	}
	if listed.ActiveID != "" {
		t.Errorf("deleting the active template should clear active_id, got %s", listed.ActiveID)
	}
}

func TestCLITemplateCreateFromStdin(t *testing.T) {
	s := setupTestStore(t)
	withStdin(t, "Append me.\n")

	out, err := runApp(t, s, "template", "create", "--label=Sign-off", "--kind=append")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var created store.Template
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if created.Body != "Append me." {
		t.Errorf("expected trimmed stdin body, got %q", created.Body)
	}
	if created.Kind != store.KindAppend {
		t.Errorf("expected kind append, got %s", created.Kind)
	}
}

func TestCLITemplateReorder(t *testing.T) {
	s := setupTestStore(t)

	var ids []string
	for _, label := range []string{"First", "Second", "Third"} {
		out, err := runApp(t, s, "template", "create", "--label="+label, "--body=x")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		var tpl store.Template
		if err := json.Unmarshal([]byte(out), &tpl); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		ids = append(ids, tpl.ID)
	}

	out, err := runApp(t, s, "template", "reorder", ids[2], ids[0], ids[1])
	if err != nil {
		t.Fatalf("reorder failed: %v", err)
	}
	var listed struct {
		Templates []store.Template `json:"templates"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if listed.Templates[0].Label != "Third" {
		t.Errorf("expected 'Third' first after reorder, got %q", listed.Templates[0].Label)
	}

	// Partial id list is rejected
	if _, err := runApp(t, s, "template", "reorder", ids[0]); err == nil {
		t.Error("expected error for partial reorder, got nil")
	}
}

func TestCLIConfigSetAndGet(t *testing.T) {
	s := setupTestStore(t)

	out, err := runApp(t, s, "config", "set", "--api-key=sk-cli-secret", "--model=gpt-4o", "--preview", "--timeout=30")
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if strings.Contains(out, "sk-cli-secret") {
		t.Error("config set output must not contain the raw API key")
	}

	out, err = runApp(t, s, "config", "get")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if got["api_key_set"] != true {
		t.Error("expected api_key_set=true")
	}
	if got["model"] != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %v", got["model"])
	}
	if got["preview"] != true {
		t.Error("expected preview=true")
	}
	if got["rewrite_timeout_seconds"] != float64(30) {
		t.Errorf("expected timeout 30, got %v", got["rewrite_timeout_seconds"])
	}
	// Untouched fields keep their defaults
	if got["endpoint"] != "https://api.openai.com/v1/chat/completions" {
		t.Errorf("expected default endpoint, got %v", got["endpoint"])
	}
	if strings.Contains(out, "sk-cli-secret") {
		t.Error("config get output must not contain the raw API key")
	}
}

func TestCLIConfigPreviewOff(t *testing.T) {
	s := setupTestStore(t)

	if _, err := runApp(t, s, "config", "set", "--preview"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if _, err := runApp(t, s, "config", "set", "--preview=false"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}

	settings, err := s.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if settings.Preview {
		t.Error("expected preview disabled after --preview=false")
	}
}

func TestCLIRewriteWithAppendTemplate(t *testing.T) {
	s := setupTestStore(t)

	out, err := runApp(t, s, "template", "create", "--label=Sign-off", "--kind=append", "--body=-- sent from CLI")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	var tpl store.Template
	if err := json.Unmarshal([]byte(out), &tpl); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}

	out, err = runApp(t, s, "rewrite", "--template="+tpl.ID, "hello there")
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	var result map[string]string
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if result["original"] != "hello there" {
		t.Errorf("expected original 'hello there', got %q", result["original"])
	}
	if result["rewritten"] != "hello there\n-- sent from CLI" {
		t.Errorf("unexpected rewritten text: %q", result["rewritten"])
	}
}

func TestCLIRewriteAppendWithoutDraft(t *testing.T) {
	s := setupTestStore(t)
	withStdin(t, "")

	out, err := runApp(t, s, "template", "create", "--label=Standup", "--kind=append", "--body=What did I miss?")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	var tpl store.Template
	if err := json.Unmarshal([]byte(out), &tpl); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}

	out, err = runApp(t, s, "rewrite", "--template="+tpl.ID)
	if err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	var result map[string]string
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if result["rewritten"] != "What did I miss?" {
		t.Errorf("expected body alone, got %q", result["rewritten"])
	}
}

func TestCLIErrorHandling(t *testing.T) {
	s := setupTestStore(t)

	t.Run("rewrite with empty draft returns error", func(t *testing.T) {
		withStdin(t, "")
		if _, err := runApp(t, s, "rewrite"); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("template delete not found returns error", func(t *testing.T) {
		if _, err := runApp(t, s, "template", "delete", "nonexistent"); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("template activate not found returns error", func(t *testing.T) {
		if _, err := runApp(t, s, "template", "activate", "nonexistent"); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("template create with long label returns error", func(t *testing.T) {
		if _, err := runApp(t, s, "template", "create", "--label=this label is far too long to display", "--body=x"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{
			name:     "no args",
			args:     []string{"promptboost"},
			expected: false,
		},
		{
			name:     "run command",
			args:     []string{"promptboost", "run"},
			expected: true,
		},
		{
			name:     "template command",
			args:     []string{"promptboost", "template", "list"},
			expected: true,
		},
		{
			name:     "help flag",
			args:     []string{"promptboost", "--help"},
			expected: true,
		},
		{
			name:     "version flag",
			args:     []string{"promptboost", "--version"},
			expected: true,
		},
		{
			name:     "unknown arg defaults to MCP",
			args:     []string{"promptboost", "--disable-tools=config_set"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{
			name:     "no args",
			args:     []string{"promptboost"},
			expected: false,
		},
		{
			name:     "help word",
			args:     []string{"promptboost", "help"},
			expected: true,
		},
		{
			name:     "short help",
			args:     []string{"promptboost", "-h"},
			expected: true,
		},
		{
			name:     "version flag",
			args:     []string{"promptboost", "--version"},
			expected: true,
		},
		{
			name:     "regular command",
			args:     []string{"promptboost", "run"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestSplitToolNames(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single name",
			input:    "config_set",
			expected: []string{"config_set"},
		},
		{
			name:     "multiple names with spaces",
			input:    " config_set , template_delete ",
			expected: []string{"config_set", "template_delete"},
		},
		{
			name:     "empty entries filtered",
			input:    "config_set,,",
			expected: []string{"config_set"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitToolNames(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d names, got %d", len(tt.expected), len(result))
			}
			for i, name := range result {
				if name != tt.expected[i] {
					t.Errorf("expected name[%d]=%q, got %q", i, tt.expected[i], name)
				}
			}
		})
	}
}

func TestMCPDisabledTools(t *testing.T) {
	if got := mcpDisabledTools([]string{"--disable-tools=config_set,boost_rewrite"}); len(got) != 2 {
		t.Errorf("expected 2 names, got %v", got)
	}
	if got := mcpDisabledTools([]string{"--disable-tools", "config_set"}); len(got) != 1 || got[0] != "config_set" {
		t.Errorf("expected [config_set], got %v", got)
	}
	if got := mcpDisabledTools(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
