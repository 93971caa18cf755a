package model

import "time"

// Match statuses. A match starts pending and is decided exactly once.
const (
	MatchStatusPending   = "pending"
	MatchStatusConfirmed = "confirmed"
	MatchStatusRejected  = "rejected"
)

// Match pairs one lost item with one found item.
type Match struct {
	ID          string     `json:"id"`
	LostItemID  string     `json:"lost_item_id"`
	FoundItemID string     `json:"found_item_id"`
	Score       float64    `json:"score"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   *int64     `json:"decided_by,omitempty"`

	// Joined fields (not always populated).
	LostItemName  string `json:"lost_item_name,omitempty"`
	FoundItemName string `json:"found_item_name,omitempty"`
	Campus        string `json:"campus,omitempty"`
}

// CanTransition reports whether a match in status from may move to status to.
func CanTransition(from, to string) bool {
	return from == MatchStatusPending && (to == MatchStatusConfirmed || to == MatchStatusRejected)
}

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// MatchNotification records that a user was told about a match.
type MatchNotification struct {
	ID        string     `json:"id"`
	MatchID   string     `json:"match_id"`
	UserID    int64      `json:"user_id"`
	Channel   string     `json:"channel"`
	SentAt    time.Time  `json:"sent_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`

	// Joined fields (not always populated).
	MatchStatus string `json:"match_status,omitempty"`
}

// ReturnedItem is a story recorded when an item made it back to its owner.
type ReturnedItem struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	MatchID    string    `json:"match_id,omitempty"`
	Story      string    `json:"story,omitempty"`
	ReturnedAt time.Time `json:"returned_at"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty"`
	Category string `json:"category,omitempty"`
	Campus   string `json:"campus,omitempty"`
}
