package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db bun.IDB
}

// NewBunPermissionRepository creates a new Bun-based permission catalog
func NewBunPermissionRepository(db bun.IDB) *BunPermissionRepository {
	return &BunPermissionRepository{db: db}
}

// Create inserts a catalog entry; ErrConflict if the code is taken
func (r *BunPermissionRepository) Create(ctx context.Context, permission *models.Permission) error {
	if permission.ID == "" {
		permission.ID = bunx.NewUUIDv7()
	}
	if permission.CreatedAt.IsZero() {
		permission.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NewInsert().Model(permission).Exec(ctx); err != nil {
		return conflict(err, "create permission %s", permission.Code)
	}
	return nil
}

func (r *BunPermissionRepository) GetByID(ctx context.Context, id string) (*models.Permission, error) {
	p := new(models.Permission)
	if err := r.db.NewSelect().Model(p).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "get permission %s", id)
	}
	return p, nil
}

func (r *BunPermissionRepository) GetByCode(ctx context.Context, code string) (*models.Permission, error) {
	p := new(models.Permission)
	if err := r.db.NewSelect().Model(p).Where("code = ?", code).Scan(ctx); err != nil {
		return nil, notFound(err, "get permission %s", code)
	}
	return p, nil
}

func (r *BunPermissionRepository) GetByCodes(ctx context.Context, codes []string) ([]models.Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var perms []models.Permission
	err := r.db.NewSelect().
		Model(&perms).
		Where("code IN (?)", bun.In(codes)).
		Order("code ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get permissions by code: %w", err)
	}
	return perms, nil
}

func (r *BunPermissionRepository) List(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	err := r.db.NewSelect().
		Model(&perms).
		Order("category ASC", "name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// Categories returns the distinct categories in the catalog, sorted
func (r *BunPermissionRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.NewSelect().
		Model((*models.Permission)(nil)).
		ColumnExpr("DISTINCT category").
		Order("category ASC").
		Scan(ctx, &categories)
	if err != nil {
		return nil, fmt.Errorf("list permission categories: %w", err)
	}
	return categories, nil
}

// Delete removes a catalog entry; grant rows go with it through ON DELETE CASCADE
func (r *BunPermissionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete permission %s: %w", id, err)
	}
	return expectRows(res, "delete permission %s", id)
}
