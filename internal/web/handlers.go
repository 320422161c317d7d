package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/registry"
	"github.com/promptboost/promptboost/internal/store"
)

// Handlers contains HTTP route handlers for the settings UI.
type Handlers struct {
	store    *store.Store
	renderer *Renderer
}

// HandleSettings handles GET /settings — the configuration form.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Load()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "settings", SettingsPageData{
		PageData: PageData{
			Title:   "Settings",
			Version: h.renderer.version,
			Nav:     "settings",
		},
		Settings: settings,
		Saved:    r.URL.Query().Get("saved") == "1",
	})
}

// HandleSettingsSave handles POST /settings — apply the submitted fields
// to the stored configuration. Values left at their default are not
// written out, so the stored document stays partial and revised defaults
// in a later release still take effect.
func (h *Handlers) HandleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	defaults := config.DefaultSettings()
	_, err := h.store.UpdateStored(func(stored *config.Settings) {
		stored.APIKey = strings.TrimSpace(r.PostFormValue("api_key"))
		stored.Endpoint = omitDefault(strings.TrimSpace(r.PostFormValue("endpoint")), defaults.Endpoint)
		stored.Model = omitDefault(strings.TrimSpace(r.PostFormValue("model")), defaults.Model)
		stored.DevToolsURL = omitDefault(strings.TrimSpace(r.PostFormValue("devtools_url")), defaults.DevToolsURL)
		stored.RewriteTimeoutSeconds = omitDefaultInt(parseIntField(r, "rewrite_timeout_seconds"), defaults.RewriteTimeoutSeconds)
		stored.CorrelationMaxPending = omitDefaultInt(parseIntField(r, "correlation_max_pending"), defaults.CorrelationMaxPending)
		// The checkbox is absent when unchecked.
		stored.Preview = r.PostFormValue("preview") == "on"
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
}

// omitDefault keeps the stored document partial: a submitted value equal
// to the built-in default is stored as unset.
func omitDefault(v, def string) string {
	if v == def {
		return ""
	}
	return v
}

func omitDefaultInt(v, def int) int {
	if v == def {
		return 0
	}
	return v
}

// HandleTemplates handles GET /templates — ordered list with previews.
func (h *Handlers) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Load()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	items, err := registry.List(h.store)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := TemplatesPageData{
		PageData: PageData{
			Title:   "Templates",
			Version: h.renderer.version,
			Nav:     "templates",
		},
	}
	for _, t := range items {
		data.Items = append(data.Items, TemplateItem{
			Template:    t,
			Active:      t.ID == settings.ActiveTemplateID,
			BodyPreview: renderMarkdown(t.Body),
		})
	}
	h.renderer.renderPage(w, r, "templates", data)
}

// HandleTemplateCreate handles POST /templates.
func (h *Handlers) HandleTemplateCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	_, err := registry.Create(h.store, registry.CreateInput{
		Label: r.PostFormValue("label"),
		Kind:  store.Kind(r.PostFormValue("kind")),
		Body:  r.PostFormValue("body"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/templates", http.StatusSeeOther)
}

// HandleTemplateEdit handles GET /templates/{id}.
func (h *Handlers) HandleTemplateEdit(w http.ResponseWriter, r *http.Request) {
	t, err := registry.Get(h.store, r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "template_edit", TemplateEditPageData{
		PageData: PageData{
			Title:   t.Label,
			Version: h.renderer.version,
			Nav:     "templates",
		},
		Item:        t,
		BodyPreview: renderMarkdown(t.Body),
	})
}

// HandleTemplateUpdate handles POST /templates/{id}.
func (h *Handlers) HandleTemplateUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	_, err := registry.Update(h.store, registry.UpdateInput{
		ID:    r.PathValue("id"),
		Label: r.PostFormValue("label"),
		Kind:  store.Kind(r.PostFormValue("kind")),
		Body:  r.PostFormValue("body"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/templates", http.StatusSeeOther)
}

// HandleTemplateDelete handles POST /templates/{id}/delete.
func (h *Handlers) HandleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	if err := registry.Delete(h.store, r.PathValue("id")); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/templates", http.StatusSeeOther)
}

// HandleTemplateActivate handles POST /templates/{id}/activate. An empty
// id in the form field clears the selection; the path id activates.
func (h *Handlers) HandleTemplateActivate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	id := r.PathValue("id")
	if r.PostFormValue("clear") == "1" {
		id = ""
	}
	if err := registry.SetActive(h.store, id); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/templates", http.StatusSeeOther)
}

// HandleTemplateReorder handles POST /templates/reorder with the full
// ordered id list in the "ids" field, comma separated.
func (h *Handlers) HandleTemplateReorder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var ids []string
	for _, id := range strings.Split(r.PostFormValue("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if err := registry.Reorder(h.store, ids); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/templates", http.StatusSeeOther)
}

// parseIntField parses a positive integer form field, 0 when absent or
// invalid.
func parseIntField(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.PostFormValue(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
