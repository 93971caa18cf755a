package photos

import (
	"context"
	"database/sql"

	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/store"
)

// DBStore keeps photos as blobs next to the item row.
type DBStore struct {
	db *sql.DB
}

// NewDBStore returns a store backed by the items table.
func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{db: db}
}

// Save implements Store.
func (s *DBStore) Save(ctx context.Context, itemID string, photo *imaging.Photo) error {
	return store.SetItemImage(ctx, s.db, itemID, photo.Full, photo.Thumb, photo.MIME)
}

// Load implements Store.
func (s *DBStore) Load(ctx context.Context, itemID string, thumbnail bool) (*Image, error) {
	data, mime, err := store.GetItemImage(ctx, s.db, itemID, thumbnail)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return &Image{Data: data, MIME: mime}, nil
}
