// Package registry implements the template registry: pure data operations
// over the store. The "top 3" quick-access exposure is always a read-time
// projection of the current order, never a separately stored selection.
package registry

import (
	"crypto/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/errors"
	"github.com/promptboost/promptboost/internal/store"
)

// MaxLabelChars bounds template display names.
const MaxLabelChars = 20

// QuickAccessCount is how many leading templates are exposed as quick
// controls on the host page.
const QuickAccessCount = 3

// CreateInput contains parameters for Create.
type CreateInput struct {
	Label string     `json:"label"`
	Kind  store.Kind `json:"kind"`
	Body  string     `json:"body"`
}

// UpdateInput contains parameters for Update. ID is immutable; everything
// else is replaced.
type UpdateInput struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Kind  store.Kind `json:"kind"`
	Body  string     `json:"body"`
}

// List returns all templates in user order.
func List(s *store.Store) ([]*store.Template, error) {
	return s.ListTemplates()
}

// QuickAccess returns the first QuickAccessCount templates of the current
// order.
func QuickAccess(s *store.Store) ([]*store.Template, error) {
	templates, err := s.ListTemplates()
	if err != nil {
		return nil, err
	}
	if len(templates) > QuickAccessCount {
		templates = templates[:QuickAccessCount]
	}
	return templates, nil
}

// Get retrieves a template by id.
func Get(s *store.Store, id string) (*store.Template, error) {
	return s.GetTemplate(strings.TrimSpace(id))
}

// Create validates input, assigns a new ULID, and appends the template to
// the user order.
func Create(s *store.Store, input CreateInput) (*store.Template, error) {
	if err := validate(input.Label, input.Kind, input.Body); err != nil {
		return nil, err
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	t := &store.Template{
		ID:    id,
		Label: strings.TrimSpace(input.Label),
		Kind:  input.Kind,
		Body:  input.Body,
	}
	if err := s.InsertTemplate(t); err != nil {
		return nil, err
	}
	if err := s.NotifyChanged(); err != nil {
		return nil, err
	}
	return t, nil
}

// Update mutates label, kind, and body of an existing template.
func Update(s *store.Store, input UpdateInput) (*store.Template, error) {
	if strings.TrimSpace(input.ID) == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := validate(input.Label, input.Kind, input.Body); err != nil {
		return nil, err
	}

	t := &store.Template{
		ID:    strings.TrimSpace(input.ID),
		Label: strings.TrimSpace(input.Label),
		Kind:  input.Kind,
		Body:  input.Body,
	}
	if err := s.UpdateTemplate(t); err != nil {
		return nil, err
	}
	if err := s.NotifyChanged(); err != nil {
		return nil, err
	}
	return s.GetTemplate(t.ID)
}

// Delete removes a template. If the configuration's active template
// reference pointed at the deleted id, the reference is cleared so it
// never dangles.
func Delete(s *store.Store, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.NewInvalidRequest("id is required")
	}

	if err := s.DeleteTemplate(id); err != nil {
		return err
	}

	// One write covers both the template-list change notification and a
	// dangling active reference.
	_, err := s.UpdateStored(func(stored *config.Settings) {
		if stored.ActiveTemplateID == id {
			stored.ActiveTemplateID = ""
		}
	})
	return err
}

// Reorder replaces the whole ordered sequence. ids must contain every
// existing template id exactly once.
func Reorder(s *store.Store, ids []string) error {
	if err := s.ReorderTemplates(ids); err != nil {
		return err
	}
	return s.NotifyChanged()
}

// SetActive points the configuration's active template reference at id,
// or clears it when id is empty. The referenced template must exist.
func SetActive(s *store.Store, id string) error {
	id = strings.TrimSpace(id)
	if id != "" {
		if _, err := s.GetTemplate(id); err != nil {
			return err
		}
	}

	_, err := s.UpdateStored(func(stored *config.Settings) {
		stored.ActiveTemplateID = id
	})
	return err
}

func validate(label string, kind store.Kind, body string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return errors.NewInvalidRequest("label is required")
	}
	if utf8.RuneCountInString(label) > MaxLabelChars {
		return errors.NewInvalidRequest("label must be at most 20 characters")
	}
	if kind != store.KindBoosted && kind != store.KindAppend {
		return errors.NewInvalidRequest("kind must be one of: boosted, append")
	}
	if strings.TrimSpace(body) == "" {
		return errors.NewInvalidRequest("body is required")
	}
	return nil
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
