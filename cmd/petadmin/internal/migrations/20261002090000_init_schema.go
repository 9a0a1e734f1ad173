package migrations

import (
	"context"
	"fmt"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261002090000, down_20261002090000)
}

// up_20261002090000 creates the user, permission catalog, grant and group tables.
func up_20261002090000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating users table...")
	if _, err := db.NewCreateTable().Model((*models.User)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create users: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_provider_subject ON users(provider, subject) WHERE subject IS NOT NULL`); err != nil {
		return fmt.Errorf("create users provider/subject index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating permissions table...")
	if _, err := db.NewCreateTable().Model((*models.Permission)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create permissions: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_permissions_category ON permissions(category, name)`); err != nil {
		return fmt.Errorf("create permissions category index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating user_permissions table...")
	_, err := db.NewCreateTable().Model((*models.UserPermission)(nil)).IfNotExists().
		ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`).
		ForeignKey(`(permission_id) REFERENCES permissions(id) ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create user_permissions: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_user_permissions_permission ON user_permissions(permission_id)`); err != nil {
		return fmt.Errorf("create user_permissions permission index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating groups table...")
	_, err = db.NewCreateTable().Model((*models.Group)(nil)).IfNotExists().
		ForeignKey(`(created_by) REFERENCES users(id)`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create groups: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating group_members table...")
	_, err = db.NewCreateTable().Model((*models.GroupMember)(nil)).IfNotExists().
		ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`).
		ForeignKey(`(group_id) REFERENCES "groups"(id) ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create group_members: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_group_members_group ON group_members(group_id)`); err != nil {
		return fmt.Errorf("create group_members group index: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating group_permissions table...")
	_, err = db.NewCreateTable().Model((*models.GroupPermission)(nil)).IfNotExists().
		ForeignKey(`(group_id) REFERENCES "groups"(id) ON DELETE CASCADE`).
		ForeignKey(`(permission_id) REFERENCES permissions(id) ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create group_permissions: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_group_permissions_permission ON group_permissions(permission_id)`); err != nil {
		return fmt.Errorf("create group_permissions permission index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20261002090000 drops all tables in dependency order.
func down_20261002090000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping all tables...")

	tables := []string{
		"group_permissions",
		"group_members",
		"user_permissions",
		`"groups"`,
		"permissions",
		"users",
	}

	suffix := ""
	if bunx.IsPostgreSQL(db) {
		suffix = " CASCADE"
	}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s%s", table, suffix)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}

	fmt.Println(" OK")
	return nil
}
