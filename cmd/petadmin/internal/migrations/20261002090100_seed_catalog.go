package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261002090100, down_20261002090100)
}

// up_20261002090100 seeds the system user and the bootstrap permission catalog.
func up_20261002090100(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding system user and permission catalog...")
	now := time.Now().UTC()

	sysSub, sysProvider := "system", "internal"
	sysUser := models.User{
		ID:        auth.SystemUserID,
		Email:     "system@petadmin.local",
		Name:      "System",
		Subject:   &sysSub,
		Provider:  &sysProvider,
		Role:      models.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := db.NewInsert().Model(&sysUser).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed system user: %w", err)
	}

	for _, p := range models.BootstrapCatalog {
		p.ID = bunx.NewUUIDv7()
		p.CreatedAt = now
		if _, err := db.NewInsert().Model(&p).On("CONFLICT (code) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed permission %s: %w", p.Code, err)
		}
	}

	fmt.Println(" OK")
	return nil
}

func down_20261002090100(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing seeded catalog...")

	codes := make([]string, 0, len(models.BootstrapCatalog))
	for _, p := range models.BootstrapCatalog {
		codes = append(codes, p.Code)
	}
	if _, err := db.NewDelete().Model((*models.Permission)(nil)).Where("code IN (?)", bun.In(codes)).Exec(ctx); err != nil {
		return fmt.Errorf("delete seeded permissions: %w", err)
	}
	if _, err := db.NewDelete().Model((*models.User)(nil)).Where("id = ?", auth.SystemUserID).Exec(ctx); err != nil {
		return fmt.Errorf("delete system user: %w", err)
	}

	fmt.Println(" OK")
	return nil
}
