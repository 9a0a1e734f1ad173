package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

// BunGroupGrantRepository implements GroupGrantRepository using Bun ORM
type BunGroupGrantRepository struct {
	db bun.IDB
}

// NewBunGroupGrantRepository creates a new Bun-based group grant store
func NewBunGroupGrantRepository(db bun.IDB) *BunGroupGrantRepository {
	return &BunGroupGrantRepository{db: db}
}

// Grant inserts a group grant; ErrConflict if the pair exists
func (r *BunGroupGrantRepository) Grant(ctx context.Context, grant *models.GroupPermission) error {
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	if _, err := r.db.NewInsert().Model(grant).Returning("NULL").Exec(ctx); err != nil {
		return conflict(err, "grant permission %s to group %s", grant.PermissionID, grant.GroupID)
	}
	return nil
}

// Revoke deletes a group grant; ErrNotFound if absent
func (r *BunGroupGrantRepository) Revoke(ctx context.Context, groupID, permissionID string) error {
	res, err := r.db.NewDelete().
		Model((*models.GroupPermission)(nil)).
		Where("group_id = ?", groupID).
		Where("permission_id = ?", permissionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke permission %s from group %s: %w", permissionID, groupID, err)
	}
	return expectRows(res, "revoke permission %s from group %s", permissionID, groupID)
}

func (r *BunGroupGrantRepository) ListForGroup(ctx context.Context, groupID string) ([]models.GroupPermission, error) {
	return r.ListForGroups(ctx, []string{groupID})
}

func (r *BunGroupGrantRepository) ListForGroups(ctx context.Context, groupIDs []string) ([]models.GroupPermission, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var grants []models.GroupPermission
	err := r.db.NewSelect().
		Model(&grants).
		Relation("Permission").
		Where("gp.group_id IN (?)", bun.In(groupIDs)).
		Order("gp.group_id ASC", "permission.category ASC", "permission.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list group permissions: %w", err)
	}
	return grants, nil
}
