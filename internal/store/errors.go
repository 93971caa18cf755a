package store

import "errors"

var (
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrMatchExists is returned when a match for the same lost/found pair
	// was already recorded. The unique constraint on the pair is the guard.
	ErrMatchExists = errors.New("match already exists")

	// ErrMatchDecided is returned when a match is no longer pending.
	ErrMatchDecided = errors.New("match already decided")

	// ErrItemConcluded is returned when concluding an item twice.
	ErrItemConcluded = errors.New("item already concluded")
)

// nullableString maps empty strings to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
