package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
)

// CreateNotification records that userID was told about matchID over channel.
// A second notification for the same match and user is ignored; the returned
// bool reports whether a row was written.
func CreateNotification(ctx context.Context, db *sql.DB, matchID string, userID int64, channel string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO match_notifications (id, match_id, user_id, channel, sent_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (match_id, user_id) DO NOTHING`,
		uuid.NewString(), matchID, userID, channel, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("creating notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("creating notification: %w", err)
	}
	return n > 0, nil
}

// SetNotificationChannel records the channel a notification was delivered
// over after the fact, for example once mail went out.
func SetNotificationChannel(ctx context.Context, db *sql.DB, matchID string, userID int64, channel string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE match_notifications SET channel = ? WHERE match_id = ? AND user_id = ?`,
		channel, matchID, userID,
	)
	if err != nil {
		return fmt.Errorf("updating notification channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating notification channel: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotifications returns a user's match notifications, newest first.
func ListNotifications(ctx context.Context, db *sql.DB, userID int64, unreadOnly bool) ([]model.MatchNotification, error) {
	query := `SELECT n.id, n.match_id, n.user_id, n.channel, n.sent_at, n.read_at, m.status
		FROM match_notifications n
		JOIN matches m ON m.id = n.match_id
		WHERE n.user_id = ?`
	if unreadOnly {
		query += ` AND n.read_at IS NULL`
	}
	query += ` ORDER BY n.sent_at DESC, n.id`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.MatchNotification
	for rows.Next() {
		var n model.MatchNotification
		if err := rows.Scan(&n.ID, &n.MatchID, &n.UserID, &n.Channel, &n.SentAt, &n.ReadAt, &n.MatchStatus); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead sets read_at on a user's notification. Marking an
// already read notification keeps the first timestamp.
func MarkNotificationRead(ctx context.Context, db *sql.DB, id string, userID int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE match_notifications SET read_at = COALESCE(read_at, ?)
		 WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
