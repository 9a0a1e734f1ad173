package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

// BunDirectGrantRepository implements DirectGrantRepository using Bun ORM
type BunDirectGrantRepository struct {
	db bun.IDB
}

// NewBunDirectGrantRepository creates a new Bun-based direct grant store
func NewBunDirectGrantRepository(db bun.IDB) *BunDirectGrantRepository {
	return &BunDirectGrantRepository{db: db}
}

func (r *BunDirectGrantRepository) upsert(ctx context.Context, row *models.UserPermission) error {
	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id, permission_id) DO UPDATE").
		Set("granted = EXCLUDED.granted").
		Set("granted_by = EXCLUDED.granted_by").
		Set("granted_at = EXCLUDED.granted_at").
		Set("expires_at = EXCLUDED.expires_at").
		Returning("NULL").
		Exec(ctx)
	return err
}

// Grant upserts an allow row
func (r *BunDirectGrantRepository) Grant(ctx context.Context, userID, permissionID, grantedBy string, expiresAt *time.Time) error {
	row := &models.UserPermission{
		UserID:       userID,
		PermissionID: permissionID,
		Granted:      true,
		GrantedBy:    grantedBy,
		GrantedAt:    time.Now().UTC(),
		ExpiresAt:    expiresAt,
	}
	if err := r.upsert(ctx, row); err != nil {
		return fmt.Errorf("grant permission %s to user %s: %w", permissionID, userID, err)
	}
	return nil
}

// Deny upserts an explicit deny row. Deny rows never expire.
func (r *BunDirectGrantRepository) Deny(ctx context.Context, userID, permissionID, grantedBy string) error {
	row := &models.UserPermission{
		UserID:       userID,
		PermissionID: permissionID,
		Granted:      false,
		GrantedBy:    grantedBy,
		GrantedAt:    time.Now().UTC(),
	}
	if err := r.upsert(ctx, row); err != nil {
		return fmt.Errorf("deny permission %s to user %s: %w", permissionID, userID, err)
	}
	return nil
}

// Revoke deletes the row
func (r *BunDirectGrantRepository) Revoke(ctx context.Context, userID, permissionID string) error {
	res, err := r.db.NewDelete().
		Model((*models.UserPermission)(nil)).
		Where("user_id = ?", userID).
		Where("permission_id = ?", permissionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke permission %s from user %s: %w", permissionID, userID, err)
	}
	return expectRows(res, "revoke permission %s from user %s", permissionID, userID)
}

// ListForUser returns all direct rows for the user including expired ones
func (r *BunDirectGrantRepository) ListForUser(ctx context.Context, userID string) ([]models.UserPermission, error) {
	var rows []models.UserPermission
	err := r.db.NewSelect().
		Model(&rows).
		Relation("Permission").
		Where("up.user_id = ?", userID).
		Order("permission.category ASC", "permission.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list direct permissions for user %s: %w", userID, err)
	}
	return rows, nil
}

// ReplaceForUser deletes every row for the user and inserts grants
func (r *BunDirectGrantRepository) ReplaceForUser(ctx context.Context, userID string, grants []models.UserPermission) error {
	return inTx(ctx, r.db, func(ctx context.Context, tx bun.IDB) error {
		if _, err := tx.NewDelete().
			Model((*models.UserPermission)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear direct permissions for user %s: %w", userID, err)
		}
		if len(grants) == 0 {
			return nil
		}

		now := time.Now().UTC()
		rows := make([]models.UserPermission, len(grants))
		for i, g := range grants {
			g.UserID = userID
			g.Permission = nil
			if g.GrantedAt.IsZero() {
				g.GrantedAt = now
			}
			rows[i] = g
		}
		if _, err := tx.NewInsert().Model(&rows).Returning("NULL").Exec(ctx); err != nil {
			return conflict(err, "insert direct permissions for user %s", userID)
		}
		return nil
	})
}
