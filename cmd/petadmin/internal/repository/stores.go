package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
	"github.com/uptrace/bun"
)

// Stores bundles every repository bound to the same database handle, which
// is either the pool or an open transaction.
type Stores struct {
	Users        UserRepository
	Permissions  PermissionRepository
	DirectGrants DirectGrantRepository
	Groups       GroupRepository
	Memberships  MembershipRepository
	GroupGrants  GroupGrantRepository
}

// NewBunStores builds the bun-backed repositories over db.
func NewBunStores(db bun.IDB) Stores {
	return Stores{
		Users:        NewBunUserRepository(db),
		Permissions:  NewBunPermissionRepository(db),
		DirectGrants: NewBunDirectGrantRepository(db),
		Groups:       NewBunGroupRepository(db),
		Memberships:  NewBunMembershipRepository(db),
		GroupGrants:  NewBunGroupGrantRepository(db),
	}
}

// Transactor runs fn against stores bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// BunTransactor implements Transactor on a bun.DB.
type BunTransactor struct {
	db *bun.DB
}

// NewBunTransactor creates a transactor for db.
func NewBunTransactor(db *bun.DB) *BunTransactor {
	return &BunTransactor{db: db}
}

// InTx implements Transactor.
func (t *BunTransactor) InTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	return t.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, NewBunStores(tx))
	})
}

// inTx runs fn in a new transaction when db is the pool, and directly when
// db is already a transaction.
func inTx(ctx context.Context, db bun.IDB, fn func(ctx context.Context, tx bun.IDB) error) error {
	if pool, ok := db.(*bun.DB); ok {
		return pool.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	}
	return fn(ctx, db)
}

// notFound maps sql.ErrNoRows to iamerr.ErrNotFound and wraps anything else.
func notFound(err error, format string, args ...any) error {
	op := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, iamerr.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// conflict maps unique violations to iamerr.ErrConflict and wraps anything else.
func conflict(err error, format string, args ...any) error {
	op := fmt.Sprintf(format, args...)
	if bunx.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, iamerr.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectRows returns ErrNotFound when the statement touched no rows.
func expectRows(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), iamerr.ErrNotFound)
	}
	return nil
}
