// Package dbtest provides a migrated in-memory SQLite database for tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// New opens a fresh in-memory database with all migrations applied.
// The database is closed when the test finishes.
func New(t testing.TB) *bun.DB {
	t.Helper()

	db, err := bunx.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	Migrate(t, db)
	return db
}

// Migrate applies all registered migrations to db.
func Migrate(t testing.TB, db *bun.DB) {
	t.Helper()

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)
}

// CreateUser inserts a user with the given email and role.
func CreateUser(t testing.TB, db bun.IDB, email, role string) *models.User {
	t.Helper()

	now := time.Now().UTC()
	u := &models.User{
		ID:        bunx.NewUUIDv7(),
		Email:     email,
		Name:      email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

// Permission loads a catalog entry by code.
func Permission(t testing.TB, db bun.IDB, code string) *models.Permission {
	t.Helper()

	p := new(models.Permission)
	err := db.NewSelect().Model(p).Where("code = ?", code).Scan(context.Background())
	require.NoError(t, err)
	return p
}
