package web

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/registry"
	"github.com/promptboost/promptboost/internal/store"
)

func newTestHandler(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	h, s, _ := newTestHandlerAt(t)
	return h, s
}

func newTestHandlerAt(t *testing.T) (http.Handler, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	srv := NewServer(s, "test", "127.0.0.1", 0)
	return srv.Handler, s, dir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRootRedirectsToSettings(t *testing.T) {
	h, _ := newTestHandler(t)

	w := get(t, h, "/")
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/settings" {
		t.Errorf("Location = %q, want /settings", loc)
	}
}

func TestSettingsPageShowsDefaults(t *testing.T) {
	h, _ := newTestHandler(t)

	w := get(t, h, "/settings")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "api.openai.com") {
		t.Error("settings page should show the default endpoint")
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestSettingsSave_MergesAndRedirects(t *testing.T) {
	h, s := newTestHandler(t)

	w := postForm(t, h, "/settings", url.Values{
		"api_key":                 {"sk-test"},
		"model":                   {"pb-large"},
		"preview":                 {"on"},
		"rewrite_timeout_seconds": {"30"},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}

	settings, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if settings.APIKey != "sk-test" || settings.Model != "pb-large" {
		t.Errorf("settings = %+v, want saved fields", settings)
	}
	if !settings.Preview {
		t.Error("preview should be enabled")
	}
	if settings.RewriteTimeoutSeconds != 30 {
		t.Errorf("timeout = %d, want 30", settings.RewriteTimeoutSeconds)
	}
	if settings.Endpoint == "" {
		t.Error("endpoint default should survive a partial save")
	}
}

func TestSettingsSave_DefaultValuesNotStored(t *testing.T) {
	h, _, dir := newTestHandlerAt(t)

	// The form prefills current values, so an untouched field comes back
	// holding the default. Saving it must not pin that default in the
	// stored document.
	defaults := config.DefaultSettings()
	postForm(t, h, "/settings", url.Values{
		"endpoint": {defaults.Endpoint},
		"model":    {"pb-large"},
	})

	db, err := sql.Open("sqlite", filepath.Join(dir, "promptboost.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var doc string
	if err := db.QueryRow(`SELECT value FROM settings WHERE key = 'settings'`).Scan(&doc); err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["endpoint"]; ok {
		t.Error("submitting the default endpoint must not store it")
	}
	if raw["model"] != "pb-large" {
		t.Errorf("stored model = %v, want pb-large", raw["model"])
	}
}

func TestSettingsSave_UncheckedPreviewDisables(t *testing.T) {
	h, s := newTestHandler(t)

	postForm(t, h, "/settings", url.Values{"preview": {"on"}})
	postForm(t, h, "/settings", url.Values{})

	settings, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if settings.Preview {
		t.Error("absent checkbox should disable preview")
	}
}

func TestTemplateCreateListAndActivate(t *testing.T) {
	h, s := newTestHandler(t)

	w := postForm(t, h, "/templates", url.Values{
		"label": {"Deep"},
		"kind":  {"boosted"},
		"body":  {"Focus on **deep** thinking."},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("create status = %d, want 303: %s", w.Code, w.Body.String())
	}

	items, err := registry.List(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("templates = %d, want 1", len(items))
	}

	w = get(t, h, "/templates")
	body := w.Body.String()
	if !strings.Contains(body, "Deep") {
		t.Error("list should show the template label")
	}
	if !strings.Contains(body, "<strong>deep</strong>") {
		t.Error("body preview should render markdown")
	}

	w = postForm(t, h, "/templates/"+items[0].ID+"/activate", url.Values{})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("activate status = %d, want 303", w.Code)
	}
	settings, _ := s.Load()
	if settings.ActiveTemplateID != items[0].ID {
		t.Errorf("active = %q, want %q", settings.ActiveTemplateID, items[0].ID)
	}

	// Clearing the selection
	w = postForm(t, h, "/templates/"+items[0].ID+"/activate", url.Values{"clear": {"1"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("deselect status = %d, want 303", w.Code)
	}
	settings, _ = s.Load()
	if settings.ActiveTemplateID != "" {
		t.Errorf("active = %q, want cleared", settings.ActiveTemplateID)
	}
}

func TestTemplateCreate_ValidationErrorPage(t *testing.T) {
	h, _ := newTestHandler(t)

	w := postForm(t, h, "/templates", url.Values{
		"label": {""},
		"kind":  {"boosted"},
		"body":  {"x"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "label is required") {
		t.Error("error page should carry the validation message")
	}
}

func TestTemplateUpdateAndDelete(t *testing.T) {
	h, s := newTestHandler(t)

	tpl, err := registry.Create(s, registry.CreateInput{Label: "PS", Kind: store.KindAppend, Body: "old"})
	if err != nil {
		t.Fatal(err)
	}

	w := postForm(t, h, "/templates/"+tpl.ID, url.Values{
		"label": {"PS2"},
		"kind":  {"append"},
		"body":  {"new body"},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("update status = %d, want 303", w.Code)
	}
	got, err := registry.Get(s, tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Label != "PS2" || got.Body != "new body" {
		t.Errorf("template = %+v, want updated fields", got)
	}

	w = postForm(t, h, "/templates/"+tpl.ID+"/delete", url.Values{})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("delete status = %d, want 303", w.Code)
	}
	if _, err := registry.Get(s, tpl.ID); err == nil {
		t.Error("template should be gone")
	}
}

func TestTemplateReorder(t *testing.T) {
	h, s := newTestHandler(t)

	a, _ := registry.Create(s, registry.CreateInput{Label: "A", Kind: store.KindAppend, Body: "a"})
	b, _ := registry.Create(s, registry.CreateInput{Label: "B", Kind: store.KindAppend, Body: "b"})

	w := postForm(t, h, "/templates/reorder", url.Values{"ids": {b.ID + "," + a.ID}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("reorder status = %d, want 303", w.Code)
	}

	items, err := registry.List(s)
	if err != nil {
		t.Fatal(err)
	}
	if items[0].ID != b.ID {
		t.Errorf("first = %q, want %q", items[0].ID, b.ID)
	}
}

func TestErrorNegotiation_JSON(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/templates/nope", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	if !strings.Contains(w.Body.String(), "NOT_FOUND") {
		t.Errorf("body = %q, want error code", w.Body.String())
	}
}
