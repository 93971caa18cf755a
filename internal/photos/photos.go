// Package photos stores processed item photos in the database or in an S3
// bucket.
package photos

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/imaging"
)

// Image is a stored photo. Exactly one of Data or URL is set: Data for
// inline photos, URL for a short-lived link to object storage.
type Image struct {
	Data []byte
	MIME string
	URL  string
}

// Store saves and loads item photos.
type Store interface {
	Save(ctx context.Context, itemID string, photo *imaging.Photo) error
	// Load returns nil when the item has no photo.
	Load(ctx context.Context, itemID string, thumbnail bool) (*Image, error)
}

// New returns the backend selected by cfg.Backend.
func New(ctx context.Context, db *sql.DB, cfg config.Photos) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return NewDBStore(db), nil
	case config.BackendS3:
		return NewS3Store(ctx, db, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown photo backend %q", cfg.Backend)
	}
}
