package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db bun.IDB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db bun.IDB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user. Emails are stored lower-cased.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = bunx.NewUUIDv7()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return conflict(err, "create user %s", user.Email)
	}
	return nil
}

// GetByID retrieves a user by their ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	if err := r.db.NewSelect().Model(user).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err, "get user %s", id)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "get user by email %s", email)
	}
	return user, nil
}

// GetBySubject retrieves a user by upstream provider and subject
func (r *BunUserRepository) GetBySubject(ctx context.Context, provider, subject string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("provider = ?", provider).
		Where("subject = ?", subject).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "get user by subject %s/%s", provider, subject)
	}
	return user, nil
}

// LockForUpdate loads the user row with SELECT ... FOR UPDATE on PostgreSQL.
// SQLite has no row locks; its single connection already serializes writers.
func (r *BunUserRepository) LockForUpdate(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	q := r.db.NewSelect().Model(user).Where("id = ?", id)
	if bunx.IsPostgreSQL(r.db) {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, notFound(err, "lock user %s", id)
	}
	return user, nil
}

// Update updates email, name, provider linkage and disabled state
func (r *BunUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.NewUpdate().
		Model(user).
		Column("email", "name", "subject", "provider", "role", "disabled_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return conflict(err, "update user %s", user.ID)
	}
	return expectRows(res, "update user %s", user.ID)
}

// UpdateRole sets the user's application role
func (r *BunUserRepository) UpdateRole(ctx context.Context, id, role string) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("role = ?", role).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update role for user %s: %w", id, err)
	}
	return expectRows(res, "update role for user %s", id)
}

// UpdateLastLogin records the time of the last successful login
func (r *BunUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login for user %s: %w", id, err)
	}
	return expectRows(res, "update last login for user %s", id)
}

// List returns all users ordered by email
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.NewSelect().Model(&users).Order("email ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
