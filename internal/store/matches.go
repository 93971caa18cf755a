package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
)

const matchColumns = `m.id, m.lost_item_id, m.found_item_id, m.score, m.reason, m.status,
	m.created_at, m.decided_at, m.decided_by, l.name, f.name, l.campus`

const matchFrom = ` FROM matches m
	JOIN items l ON l.id = m.lost_item_id
	JOIN items f ON f.id = m.found_item_id`

func scanMatch(row rowScanner) (*model.Match, error) {
	m := &model.Match{}
	err := row.Scan(&m.ID, &m.LostItemID, &m.FoundItemID, &m.Score, &m.Reason, &m.Status,
		&m.CreatedAt, &m.DecidedAt, &m.DecidedBy, &m.LostItemName, &m.FoundItemName, &m.Campus)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MatchExists reports whether a match for the pair was already recorded,
// whatever its status.
func MatchExists(ctx context.Context, db *sql.DB, lostID, foundID string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM matches WHERE lost_item_id = ? AND found_item_id = ?)`,
		lostID, foundID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking match: %w", err)
	}
	return exists, nil
}

// CreateMatch records a pending match for the pair. If the pair already has a
// match, no row is written and ErrMatchExists is returned.
func CreateMatch(ctx context.Context, db *sql.DB, lostID, foundID string, score float64, reason string) (*model.Match, error) {
	id := uuid.NewString()

	res, err := db.ExecContext(ctx,
		`INSERT INTO matches (id, lost_item_id, found_item_id, score, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (lost_item_id, found_item_id) DO NOTHING`,
		id, lostID, foundID, score, reason, model.MatchStatusPending, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("creating match: %w", err)
	}
	if n == 0 {
		return nil, ErrMatchExists
	}

	return GetMatch(ctx, db, id)
}

// GetMatch returns a match by ID, or nil if it does not exist.
func GetMatch(ctx context.Context, db *sql.DB, id string) (*model.Match, error) {
	m, err := scanMatch(db.QueryRowContext(ctx,
		`SELECT `+matchColumns+matchFrom+` WHERE m.id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// MatchFilter narrows match listings. Zero values mean "no filter".
type MatchFilter struct {
	// ItemID selects matches where the item is on either side.
	ItemID string
	// UserID selects matches where the user owns either item.
	UserID int64
	Status string
	Limit  int
}

// ListMatches returns matches matching the filter, newest first.
func ListMatches(ctx context.Context, db *sql.DB, f MatchFilter) ([]model.Match, error) {
	query := `SELECT ` + matchColumns + matchFrom + ` WHERE 1=1`
	var args []any

	if f.ItemID != "" {
		query += ` AND (m.lost_item_id = ? OR m.found_item_id = ?)`
		args = append(args, f.ItemID, f.ItemID)
	}
	if f.UserID != 0 {
		query += ` AND (l.owner_id = ? OR f.owner_id = ?)`
		args = append(args, f.UserID, f.UserID)
	}
	if f.Status != "" {
		query += ` AND m.status = ?`
		args = append(args, f.Status)
	}

	query += ` ORDER BY m.created_at DESC, m.id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// DecideMatch moves a pending match to confirmed or rejected.
// It returns ErrNotFound for unknown matches and ErrMatchDecided when the
// match is no longer pending.
func DecideMatch(ctx context.Context, db *sql.DB, id, status string, decidedBy int64) (*model.Match, error) {
	if !model.CanTransition(model.MatchStatusPending, status) {
		return nil, fmt.Errorf("invalid match status %q", status)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE matches SET status = ?, decided_at = ?, decided_by = ?
		 WHERE id = ? AND status = ?`,
		status, time.Now().UTC(), decidedBy, id, model.MatchStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("deciding match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("deciding match: %w", err)
	}

	m, err := GetMatch(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if n == 0 {
		return m, ErrMatchDecided
	}
	return m, nil
}
