package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/dbtest"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
)

func TestBunUserRepository(t *testing.T) {
	db := dbtest.New(t)
	repo := NewBunUserRepository(db)
	ctx := context.Background()

	subject, provider := "google-oauth2|42", "google"
	user := &models.User{Email: "  Carol@Example.com ", Name: "Carol", Subject: &subject, Provider: &provider, Role: models.RoleUser}
	require.NoError(t, repo.Create(ctx, user))

	t.Run("email is normalized", func(t *testing.T) {
		assert.Equal(t, "carol@example.com", user.Email)
		got, err := repo.GetByEmail(ctx, "CAROL@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		err := repo.Create(ctx, &models.User{Email: "carol@example.com", Role: models.RoleUser})
		assert.ErrorIs(t, err, iamerr.ErrConflict)
	})

	t.Run("lookup by subject", func(t *testing.T) {
		got, err := repo.GetBySubject(ctx, "google", "google-oauth2|42")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		_, err = repo.GetBySubject(ctx, "github", "google-oauth2|42")
		assert.ErrorIs(t, err, iamerr.ErrNotFound)
	})

	t.Run("lock for update inside a transaction", func(t *testing.T) {
		tx := NewBunTransactor(db)
		err := tx.InTx(ctx, func(ctx context.Context, s Stores) error {
			locked, err := s.Users.LockForUpdate(ctx, user.ID)
			if err != nil {
				return err
			}
			return s.Users.UpdateRole(ctx, locked.ID, models.RoleStaff)
		})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleStaff, got.Role)
	})

	t.Run("lock on unknown user is not found", func(t *testing.T) {
		_, err := repo.LockForUpdate(ctx, "missing")
		assert.ErrorIs(t, err, iamerr.ErrNotFound)
		assert.ErrorIs(t, repo.UpdateRole(ctx, "missing", models.RoleAdmin), iamerr.ErrNotFound)
	})

	t.Run("last login and list", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, at))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLoginAt)
		assert.WithinDuration(t, at, *got.LastLoginAt, time.Second)

		users, err := repo.List(ctx)
		require.NoError(t, err)
		// seeded system user plus carol
		assert.Len(t, users, 2)
	})
}

func TestBunTransactor_RollsBackOnError(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, db, "dave@example.com", models.RoleUser)

	err := NewBunTransactor(db).InTx(ctx, func(ctx context.Context, s Stores) error {
		if err := s.Users.UpdateRole(ctx, user.ID, models.RoleAdmin); err != nil {
			return err
		}
		return iamerr.ErrConflict
	})
	require.ErrorIs(t, err, iamerr.ErrConflict)

	got, err := NewBunUserRepository(db).GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, got.Role)
}
