package database

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"vcfolio/internal/models"
)

const documentColumns = `d.id, d.name, d.type, d.url, d.storage_key, d.content_type, d.size_bytes,
	d.is_visible, d.description, d.project_id, p.name AS project_name, d.created_at`

const documentFrom = ` FROM documents d LEFT JOIN projects p ON p.id = d.project_id`

type DocumentFilter struct {
	ProjectID   string
	VisibleOnly bool
	// GeneralOnly selects documents without an owning project.
	GeneralOnly bool
}

func (r *Repo) CreateDocument(ctx context.Context, d *models.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Type = models.NormalizeType(d.Type)
	d.CreatedAt = now()
	q := r.db.Rebind(`INSERT INTO documents (id, name, type, url, storage_key, content_type, size_bytes,
		is_visible, description, project_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		d.ID, d.Name, d.Type, d.URL, d.StorageKey, d.ContentType, d.SizeBytes,
		d.IsVisible, d.Description, d.ProjectID, d.CreatedAt)
	return classify(err)
}

func (r *Repo) GetDocument(ctx context.Context, id string) (models.Document, error) {
	var d models.Document
	if !validID(id) {
		return d, ErrNotFound
	}
	q := r.db.Rebind(`SELECT ` + documentColumns + documentFrom + ` WHERE d.id = ?`)
	if err := r.db.GetContext(ctx, &d, q, id); err != nil {
		return d, classify(err)
	}
	return d, nil
}

// ListDocuments returns documents newest first with the owning project's
// name joined in.
func (r *Repo) ListDocuments(ctx context.Context, f DocumentFilter) ([]models.Document, error) {
	res := []models.Document{}
	where := []string{}
	args := []interface{}{}
	if f.ProjectID != "" {
		if !validID(f.ProjectID) {
			return res, nil
		}
		where = append(where, "d.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.GeneralOnly {
		where = append(where, "d.project_id IS NULL")
	}
	if f.VisibleOnly {
		where = append(where, "d.is_visible = ?")
		args = append(args, true)
	}
	q := `SELECT ` + documentColumns + documentFrom
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY d.created_at DESC`
	if err := r.db.SelectContext(ctx, &res, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Repo) SetDocumentVisibility(ctx context.Context, id string, visible bool) (models.Document, error) {
	if !validID(id) {
		return models.Document{}, ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE documents SET is_visible = ? WHERE id = ?`), visible, id)
	if err != nil {
		return models.Document{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Document{}, ErrNotFound
	}
	return r.GetDocument(ctx, id)
}

// DeleteDocument removes the row and returns it as it was before deletion.
func (r *Repo) DeleteDocument(ctx context.Context, id string) (models.Document, error) {
	var d models.Document
	if !validID(id) {
		return d, ErrNotFound
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()

	if err := tx.GetContext(ctx, &d, tx.Rebind(`SELECT `+documentColumns+documentFrom+` WHERE d.id = ?`), id); err != nil {
		return d, classify(err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM documents WHERE id = ?`), id); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// ListStorageKeys returns every storage key referenced by a document row.
func (r *Repo) ListStorageKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	err := r.db.SelectContext(ctx, &keys, `SELECT storage_key FROM documents WHERE storage_key IS NOT NULL ORDER BY storage_key`)
	return keys, err
}

type projectCount struct {
	ProjectID string `db:"project_id"`
	Count     int    `db:"n"`
}

// DocumentCounts returns the number of documents per project id.
func (r *Repo) DocumentCounts(ctx context.Context) (map[string]int, error) {
	rows := []projectCount{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT project_id, COUNT(*) AS n FROM documents WHERE project_id IS NOT NULL GROUP BY project_id`); err != nil {
		return nil, err
	}
	res := make(map[string]int, len(rows))
	for _, c := range rows {
		res[c.ProjectID] = c.Count
	}
	return res, nil
}
