package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
)

// ConcludeItem marks an item as concluded. When story or matchID is given a
// returned-item record is written in the same transaction and returned.
// It returns ErrNotFound for unknown items and ErrItemConcluded when the item
// was already concluded.
func ConcludeItem(ctx context.Context, db *sql.DB, itemID, matchID, story string) (*model.ReturnedItem, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM items WHERE id = ?`, itemID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item status: %w", err)
	}
	if status == model.ItemStatusConcluded {
		return nil, ErrItemConcluded
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, concluded_at = ?, updated_at = ? WHERE id = ?`,
		model.ItemStatusConcluded, now, now, itemID,
	); err != nil {
		return nil, fmt.Errorf("concluding item: %w", err)
	}

	var returned *model.ReturnedItem
	if story != "" || matchID != "" {
		returned = &model.ReturnedItem{
			ID:         uuid.NewString(),
			ItemID:     itemID,
			MatchID:    matchID,
			Story:      story,
			ReturnedAt: now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO returned_items (id, item_id, match_id, story, returned_at) VALUES (?, ?, ?, ?, ?)`,
			returned.ID, itemID, nullableString(matchID), nullableString(story), now,
		); err != nil {
			return nil, fmt.Errorf("recording returned item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing conclusion: %w", err)
	}
	return returned, nil
}

// ReturnedFilter narrows returned-item listings.
type ReturnedFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// ListReturnedItems returns returned-item stories, most recent first.
func ListReturnedItems(ctx context.Context, db *sql.DB, f ReturnedFilter) ([]model.ReturnedItem, error) {
	query := `SELECT r.id, r.item_id, r.match_id, r.story, r.returned_at, i.name, i.category, i.campus
		FROM returned_items r
		JOIN items i ON i.id = r.item_id
		WHERE 1=1`
	var args []any

	if !f.From.IsZero() {
		query += ` AND r.returned_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND r.returned_at <= ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY r.returned_at DESC, r.id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing returned items: %w", err)
	}
	defer rows.Close()

	var items []model.ReturnedItem
	for rows.Next() {
		var r model.ReturnedItem
		var matchID, story sql.NullString
		if err := rows.Scan(&r.ID, &r.ItemID, &matchID, &story, &r.ReturnedAt, &r.ItemName, &r.Category, &r.Campus); err != nil {
			return nil, fmt.Errorf("scanning returned item: %w", err)
		}
		r.MatchID = matchID.String
		r.Story = story.String
		items = append(items, r)
	}
	return items, rows.Err()
}
