package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys.
//
// IDs are assigned in Go rather than by a column default so the same code
// runs on PostgreSQL and SQLite. Because v7 IDs sort by creation time,
// ordering by id also orders rows by age; the permission resolver relies on
// that when it breaks ties between groups.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
