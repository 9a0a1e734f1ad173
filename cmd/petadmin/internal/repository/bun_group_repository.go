package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

// BunGroupRepository implements GroupRepository using Bun ORM
type BunGroupRepository struct {
	db bun.IDB
}

// NewBunGroupRepository creates a new Bun-based group store
func NewBunGroupRepository(db bun.IDB) *BunGroupRepository {
	return &BunGroupRepository{db: db}
}

func prepareGroup(group *models.Group) {
	if group.ID == "" {
		group.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
}

// Create inserts a group; ErrConflict if the name is taken
func (r *BunGroupRepository) Create(ctx context.Context, group *models.Group) error {
	prepareGroup(group)
	if _, err := r.db.NewInsert().Model(group).Returning("NULL").Exec(ctx); err != nil {
		return conflict(err, "create group %q", group.Name)
	}
	return nil
}

// InsertOrGet relies on the unique index on name: the insert is a no-op when
// the name exists, and the caller then reads back whichever row won.
func (r *BunGroupRepository) InsertOrGet(ctx context.Context, group *models.Group) (*models.Group, bool, error) {
	prepareGroup(group)
	res, err := r.db.NewInsert().
		Model(group).
		On("CONFLICT (name) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("insert group %q: %w", group.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("get rows affected: %w", err)
	}
	if n == 1 {
		return group, true, nil
	}

	stored, err := r.GetByName(ctx, group.Name)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *BunGroupRepository) GetByID(ctx context.Context, id string) (*models.Group, error) {
	g := new(models.Group)
	if err := r.db.NewSelect().Model(g).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "get group %s", id)
	}
	return g, nil
}

func (r *BunGroupRepository) GetByName(ctx context.Context, name string) (*models.Group, error) {
	g := new(models.Group)
	if err := r.db.NewSelect().Model(g).Where("name = ?", name).Scan(ctx); err != nil {
		return nil, notFound(err, "get group %q", name)
	}
	return g, nil
}

// GetByNames returns the groups that exist among names, ordered by id
func (r *BunGroupRepository) GetByNames(ctx context.Context, names []string) ([]models.Group, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var groups []models.Group
	err := r.db.NewSelect().
		Model(&groups).
		Where("name IN (?)", bun.In(names)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get groups by name: %w", err)
	}
	return groups, nil
}

// Update persists name, description, color and active flag
func (r *BunGroupRepository) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model(group).
		Column("name", "description", "color", "is_active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return conflict(err, "update group %s", group.ID)
	}
	return expectRows(res, "update group %s", group.ID)
}

// Delete removes a group; memberships and grants cascade
func (r *BunGroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.Group)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete group %s: %w", id, err)
	}
	return expectRows(res, "delete group %s", id)
}

func (r *BunGroupRepository) List(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.NewSelect().
		Model(&groups).
		ColumnExpr("g.*").
		ColumnExpr("(SELECT COUNT(*) FROM group_members AS gm WHERE gm.group_id = g.id) AS member_count").
		ColumnExpr("(SELECT COUNT(*) FROM group_permissions AS gp WHERE gp.group_id = g.id) AS permission_count").
		Order("g.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (r *BunGroupRepository) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*models.Group)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}
	return n, nil
}
