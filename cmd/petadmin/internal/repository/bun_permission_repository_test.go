package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/dbtest"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
)

func TestBunPermissionRepository_Catalog(t *testing.T) {
	db := dbtest.New(t)
	repo := NewBunPermissionRepository(db)
	ctx := context.Background()

	t.Run("bootstrap catalog is seeded", func(t *testing.T) {
		perms, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, perms, len(models.BootstrapCatalog))
	})

	t.Run("create and get by code", func(t *testing.T) {
		p := &models.Permission{Code: "vaccines.record", Name: "Record vaccinations", Category: "vaccines"}
		require.NoError(t, repo.Create(ctx, p))
		assert.NotEmpty(t, p.ID)

		got, err := repo.GetByCode(ctx, "vaccines.record")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "vaccines", got.Category)
	})

	t.Run("duplicate code is a conflict", func(t *testing.T) {
		err := repo.Create(ctx, &models.Permission{Code: models.PermUsersView, Name: "again", Category: "users"})
		assert.ErrorIs(t, err, iamerr.ErrConflict)
	})

	t.Run("missing code is not found", func(t *testing.T) {
		_, err := repo.GetByCode(ctx, "nope.nothing")
		assert.ErrorIs(t, err, iamerr.ErrNotFound)
	})

	t.Run("list is ordered by category then name", func(t *testing.T) {
		perms, err := repo.List(ctx)
		require.NoError(t, err)
		for i := 1; i < len(perms); i++ {
			prev, cur := perms[i-1], perms[i]
			if prev.Category == cur.Category {
				assert.LessOrEqual(t, prev.Name, cur.Name)
			} else {
				assert.Less(t, prev.Category, cur.Category)
			}
		}
	})

	t.Run("categories are distinct and sorted", func(t *testing.T) {
		cats, err := repo.Categories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"audit", "groups", "permissions", "pets", "qr", "users", "vaccines"}, cats)
	})

	t.Run("get by codes skips unknown codes", func(t *testing.T) {
		perms, err := repo.GetByCodes(ctx, []string{models.PermUsersView, "ghost.code", models.PermGroupsManage})
		require.NoError(t, err)
		require.Len(t, perms, 2)
		assert.Equal(t, models.PermGroupsManage, perms[0].Code)
		assert.Equal(t, models.PermUsersView, perms[1].Code)

		none, err := repo.GetByCodes(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete cascades direct grants", func(t *testing.T) {
		user := dbtest.CreateUser(t, db, "cascade@example.com", models.RoleUser)
		p, err := repo.GetByCode(ctx, "vaccines.record")
		require.NoError(t, err)

		grants := NewBunDirectGrantRepository(db)
		require.NoError(t, grants.Grant(ctx, user.ID, p.ID, user.ID, nil))

		require.NoError(t, repo.Delete(ctx, p.ID))
		rows, err := grants.ListForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, rows)

		assert.ErrorIs(t, repo.Delete(ctx, p.ID), iamerr.ErrNotFound)
	})
}
