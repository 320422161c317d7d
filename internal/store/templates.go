package store

import (
	"database/sql"
	"time"

	"github.com/promptboost/promptboost/internal/errors"
)

// Kind determines how a template's body is interpreted.
type Kind string

const (
	// KindBoosted sends the draft plus the body (a natural-language
	// instruction) to the rewrite service and substitutes the result.
	KindBoosted Kind = "boosted"

	// KindAppend concatenates the literal body after the draft. No
	// network call.
	KindAppend Kind = "append"
)

// Template is a named transformation rule. ID is immutable once created
// and never reused.
type Template struct {
	ID        string `json:"id"`
	Position  int    `json:"position"`
	Label     string `json:"label"`
	Kind      Kind   `json:"kind"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// InsertTemplate stores a new template at the end of the user order.
func (s *Store) InsertTemplate(t *Template) error {
	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO templates (id, position, label, kind, body, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM templates), ?, ?, ?, ?, ?)
	`, t.ID, t.Label, string(t.Kind), t.Body, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetTemplate retrieves a template by id.
func (s *Store) GetTemplate(id string) (*Template, error) {
	row := s.db.QueryRow(`
		SELECT id, position, label, kind, body, created_at, updated_at
		FROM templates WHERE id = ?
	`, id)

	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return t, nil
}

// ListTemplates returns all templates in user order.
func (s *Store) ListTemplates() ([]*Template, error) {
	rows, err := s.db.Query(`
		SELECT id, position, label, kind, body, created_at, updated_at
		FROM templates ORDER BY position ASC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return templates, nil
}

// UpdateTemplate mutates label, kind, and body of an existing template.
// Position and id are untouched.
func (s *Store) UpdateTemplate(t *Template) error {
	result, err := s.db.Exec(`
		UPDATE templates SET label = ?, kind = ?, body = ?, updated_at = ?
		WHERE id = ?
	`, t.Label, string(t.Kind), t.Body, time.Now().Unix(), t.ID)
	if err != nil {
		return errors.NewInternal(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if affected == 0 {
		return errors.NewNotFound(t.ID)
	}
	return nil
}

// DeleteTemplate removes a template by id and compacts positions.
func (s *Store) DeleteTemplate(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if affected == 0 {
		return errors.NewNotFound(id)
	}

	if err := compactPositions(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ReorderTemplates replaces the whole user order. ids must contain every
// existing template id exactly once.
func (s *Store) ReorderTemplates(ids []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM templates`).Scan(&count); err != nil {
		return errors.NewInternal(err)
	}
	if count != len(ids) {
		return errors.NewInvalidRequest("reorder must include every template id exactly once")
	}

	// Two-phase update avoids transient position collisions.
	for i, id := range ids {
		result, err := tx.Exec(`UPDATE templates SET position = ? WHERE id = ?`, -(i + 1), id)
		if err != nil {
			return errors.NewInternal(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.NewInternal(err)
		}
		if affected == 0 {
			return errors.NewNotFound(id)
		}
	}
	if _, err := tx.Exec(`UPDATE templates SET position = -position - 1`); err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// compactPositions renumbers positions to 0..n-1 preserving order.
func compactPositions(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT id FROM templates ORDER BY position ASC`)
	if err != nil {
		return errors.NewInternal(err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE templates SET position = ? WHERE id = ?`, i, id); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanTemplate.
type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (*Template, error) {
	t := &Template{}
	var kind string
	if err := row.Scan(&t.ID, &t.Position, &t.Label, &kind, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Kind = Kind(kind)
	return t, nil
}
