package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
)

const itemColumns = `id, kind, name, description, category, campus, location, occurred_at,
	contact_name, contact_email, contact_phone, additional_info, status, owner_id,
	(image IS NOT NULL OR image_key IS NOT NULL), created_at, updated_at, concluded_at`

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var kind string
	var email, phone, info sql.NullString
	err := row.Scan(&item.ID, &kind, &item.Name, &item.Description, &item.Category, &item.Campus,
		&item.Location, &item.OccurredAt, &item.ContactName, &email, &phone, &info, &item.Status,
		&item.OwnerID, &item.HasImage, &item.CreatedAt, &item.UpdatedAt, &item.ConcludedAt)
	if err != nil {
		return nil, err
	}
	item.Kind = model.ItemKind(kind)
	item.ContactEmail = email.String
	item.ContactPhone = phone.String
	item.AdditionalInfo = info.String
	return item, nil
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CreateItem stores a new lost or found report and returns it as persisted.
// ID, status and timestamps are assigned here.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item) (*model.Item, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := db.ExecContext(ctx,
		`INSERT INTO items (id, kind, name, description, category, campus, location, occurred_at,
		                    contact_name, contact_email, contact_phone, additional_info, status,
		                    owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(item.Kind), item.Name, item.Description, item.Category, item.Campus, item.Location,
		item.OccurredAt.UTC(), item.ContactName, nullableString(item.ContactEmail),
		nullableString(item.ContactPhone), nullableString(item.AdditionalInfo),
		model.ItemStatusActive, item.OwnerID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, db *sql.DB, id string) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns items matching the filter, newest first.
// The search term is matched case-insensitively against name, description,
// category, location and campus.
func ListItems(ctx context.Context, db *sql.DB, f model.ItemFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	var args []any

	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + escapeLike(term) + "%"
		query += ` AND (name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR category LIKE ? ESCAPE '\'
		           OR location LIKE ? ESCAPE '\' OR campus LIKE ? ESCAPE '\')`
		args = append(args, like, like, like, like, like)
	}
	if f.Campus != "" {
		query += ` AND campus = ?`
		args = append(args, f.Campus)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND occurred_at <= ?`
		args = append(args, f.To.UTC())
	}

	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// ListCandidates returns items of the given kind reported on exactly the given
// campus, newest first. A limit of zero or less returns every candidate.
func ListCandidates(ctx context.Context, db *sql.DB, kind model.ItemKind, campus string, limit int) ([]model.Item, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE kind = ? AND campus = ?
		 ORDER BY created_at DESC, id
		 LIMIT ?`,
		string(kind), campus, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// UpdateItem updates an item's descriptive fields. Kind, owner and status are
// not changed here.
func UpdateItem(ctx context.Context, db *sql.DB, item *model.Item) error {
	res, err := db.ExecContext(ctx,
		`UPDATE items SET name = ?, description = ?, category = ?, campus = ?, location = ?,
		                  occurred_at = ?, contact_name = ?, contact_email = ?, contact_phone = ?,
		                  additional_info = ?, updated_at = ?
		 WHERE id = ?`,
		item.Name, item.Description, item.Category, item.Campus, item.Location,
		item.OccurredAt.UTC(), item.ContactName, nullableString(item.ContactEmail),
		nullableString(item.ContactPhone), nullableString(item.AdditionalInfo),
		time.Now().UTC(), item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetItemImage stores a processed photo and its thumbnail inline.
func SetItemImage(ctx context.Context, db *sql.DB, id string, image, thumbnail []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, thumbnail = ?, image_mime = ?, image_key = NULL, updated_at = ?
		 WHERE id = ?`,
		image, thumbnail, mime, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's inline photo (or thumbnail) and MIME type.
// A nil slice means the item has no inline photo.
func GetItemImage(ctx context.Context, db *sql.DB, id string, thumbnail bool) ([]byte, string, error) {
	column := "image"
	if thumbnail {
		column = "thumbnail"
	}

	var data []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT `+column+`, image_mime FROM items WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return data, mime.String, nil
}

// SetItemImageKey records that an item's photo lives in object storage under key.
func SetItemImageKey(ctx context.Context, db *sql.DB, id, key, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET image_key = ?, image_mime = ?, image = NULL, thumbnail = NULL, updated_at = ?
		 WHERE id = ?`,
		key, mime, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting item image key: %w", err)
	}
	return nil
}

// GetItemImageKey returns the object storage key of an item's photo, or "".
func GetItemImageKey(ctx context.Context, db *sql.DB, id string) (string, error) {
	var key sql.NullString
	err := db.QueryRowContext(ctx, `SELECT image_key FROM items WHERE id = ?`, id).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting item image key: %w", err)
	}
	return key.String, nil
}

// PurgeConcludedItems deletes concluded items concluded before the cutoff.
// Items referenced by a match are kept because matches are never deleted.
// It returns the IDs of the deleted items.
func PurgeConcludedItems(ctx context.Context, db *sql.DB, before time.Time) ([]string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM items
		 WHERE status = ? AND concluded_at < ?
		   AND NOT EXISTS (
		       SELECT 1 FROM matches m WHERE m.lost_item_id = items.id OR m.found_item_id = items.id
		   )`,
		model.ItemStatusConcluded, before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("selecting purgeable items: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning purgeable item: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("selecting purgeable items: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("purging item %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing purge: %w", err)
	}
	return ids, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
