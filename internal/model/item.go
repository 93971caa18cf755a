package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ItemKind distinguishes lost reports from found reports.
type ItemKind string

// Item kinds.
const (
	KindLost  ItemKind = "lost"
	KindFound ItemKind = "found"
)

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	return k == KindLost || k == KindFound
}

// Opposite returns the kind a candidate must have to pair with k.
func (k ItemKind) Opposite() ItemKind {
	if k == KindLost {
		return KindFound
	}
	return KindLost
}

// ParseItemKind converts a user-supplied string into an ItemKind.
func ParseItemKind(s string) (ItemKind, error) {
	k := ItemKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("invalid item kind %q", s)
	}
	return k, nil
}

// Item statuses.
const (
	ItemStatusActive    = "active"
	ItemStatusConcluded = "concluded"
)

// Categories offered when reporting an item.
var Categories = []string{
	"Wallet",
	"Bag",
	"Electronics",
	"Personal Items",
	"Accessories",
	"Keys",
	"Books",
	"ID Cards",
	"Jewelry",
	"Documents",
	"Medical",
	"Other",
}

// Campuses is the default campus list exposed to clients.
var Campuses = []string{
	"North Campus",
	"South Campus",
	"Central Campus",
	"East Campus",
	"West Campus",
}

// ValidCategory reports whether c is one of Categories.
func ValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// Item is a lost or found report. Lost and found reports share one shape;
// OccurredAt is the date the item was lost or found depending on Kind.
type Item struct {
	ID             string
	Kind           ItemKind
	Name           string
	Description    string
	Category       string
	Campus         string
	Location       string
	OccurredAt     time.Time
	ContactName    string
	ContactEmail   string
	ContactPhone   string
	AdditionalInfo string
	Status         string
	OwnerID        *int64
	HasImage       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConcludedAt    *time.Time
}

// itemJSON is the wire form of Item. The occurrence date is published as
// date_lost or date_found so clients see the field matching the kind.
type itemJSON struct {
	ID             string     `json:"id,omitempty"`
	Kind           ItemKind   `json:"kind"`
	Name           string     `json:"item_name"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	Campus         string     `json:"campus"`
	Location       string     `json:"location"`
	DateLost       *time.Time `json:"date_lost,omitempty"`
	DateFound      *time.Time `json:"date_found,omitempty"`
	ContactName    string     `json:"contact_name"`
	ContactEmail   string     `json:"contact_email,omitempty"`
	ContactPhone   string     `json:"contact_phone,omitempty"`
	AdditionalInfo string     `json:"additional_info,omitempty"`
	Status         string     `json:"status,omitempty"`
	OwnerID        *int64     `json:"owner_id,omitempty"`
	HasImage       bool       `json:"has_image"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	ConcludedAt    *time.Time `json:"concluded_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (i Item) MarshalJSON() ([]byte, error) {
	out := itemJSON{
		ID:             i.ID,
		Kind:           i.Kind,
		Name:           i.Name,
		Description:    i.Description,
		Category:       i.Category,
		Campus:         i.Campus,
		Location:       i.Location,
		ContactName:    i.ContactName,
		ContactEmail:   i.ContactEmail,
		ContactPhone:   i.ContactPhone,
		AdditionalInfo: i.AdditionalInfo,
		Status:         i.Status,
		OwnerID:        i.OwnerID,
		HasImage:       i.HasImage,
		ConcludedAt:    i.ConcludedAt,
	}
	occurred := i.OccurredAt
	if i.Kind == KindFound {
		out.DateFound = &occurred
	} else {
		out.DateLost = &occurred
	}
	if !i.CreatedAt.IsZero() {
		created := i.CreatedAt
		out.CreatedAt = &created
	}
	if !i.UpdatedAt.IsZero() {
		updated := i.UpdatedAt
		out.UpdatedAt = &updated
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Either date field is accepted;
// when kind is missing it is inferred from which date is present.
func (i *Item) UnmarshalJSON(data []byte) error {
	var in itemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*i = Item{
		ID:             in.ID,
		Kind:           in.Kind,
		Name:           in.Name,
		Description:    in.Description,
		Category:       in.Category,
		Campus:         in.Campus,
		Location:       in.Location,
		ContactName:    in.ContactName,
		ContactEmail:   in.ContactEmail,
		ContactPhone:   in.ContactPhone,
		AdditionalInfo: in.AdditionalInfo,
		Status:         in.Status,
		OwnerID:        in.OwnerID,
		HasImage:       in.HasImage,
		ConcludedAt:    in.ConcludedAt,
	}
	switch {
	case in.DateLost != nil:
		i.OccurredAt = *in.DateLost
		if i.Kind == "" {
			i.Kind = KindLost
		}
	case in.DateFound != nil:
		i.OccurredAt = *in.DateFound
		if i.Kind == "" {
			i.Kind = KindFound
		}
	}
	if in.CreatedAt != nil {
		i.CreatedAt = *in.CreatedAt
	}
	if in.UpdatedAt != nil {
		i.UpdatedAt = *in.UpdatedAt
	}
	return nil
}

// OwnedBy reports whether the item was reported by the given user.
func (i *Item) OwnedBy(userID int64) bool {
	return i.OwnerID != nil && *i.OwnerID == userID
}

// ItemFilter narrows item listings. Zero values mean "no filter".
type ItemFilter struct {
	Kind     ItemKind
	Search   string
	Campus   string
	Category string
	Status   string
	From     time.Time
	To       time.Time
	Limit    int
}
