package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/uptrace/bun"
)

// BunMembershipRepository implements MembershipRepository using Bun ORM
type BunMembershipRepository struct {
	db bun.IDB
}

// NewBunMembershipRepository creates a new Bun-based membership store
func NewBunMembershipRepository(db bun.IDB) *BunMembershipRepository {
	return &BunMembershipRepository{db: db}
}

// Add inserts a single membership; ErrConflict if it already exists
func (r *BunMembershipRepository) Add(ctx context.Context, member *models.GroupMember) error {
	if member.AddedAt.IsZero() {
		member.AddedAt = time.Now().UTC()
	}
	if _, err := r.db.NewInsert().Model(member).Returning("NULL").Exec(ctx); err != nil {
		return conflict(err, "add user %s to group %s", member.UserID, member.GroupID)
	}
	return nil
}

// Remove deletes a single membership; ErrNotFound if absent
func (r *BunMembershipRepository) Remove(ctx context.Context, userID, groupID string) error {
	res, err := r.db.NewDelete().
		Model((*models.GroupMember)(nil)).
		Where("user_id = ?", userID).
		Where("group_id = ?", groupID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("remove user %s from group %s: %w", userID, groupID, err)
	}
	return expectRows(res, "remove user %s from group %s", userID, groupID)
}

func (r *BunMembershipRepository) ListForUser(ctx context.Context, userID string) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.NewSelect().
		Model(&members).
		Relation("Group").
		Where("gm.user_id = ?", userID).
		Order("gm.group_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups for user %s: %w", userID, err)
	}
	return members, nil
}

func (r *BunMembershipRepository) ListForGroup(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := r.db.NewSelect().
		Model(&members).
		Relation("User").
		Where("gm.group_id = ?", groupID).
		Order("user.email ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members of group %s: %w", groupID, err)
	}
	return members, nil
}

// ReplaceForUser deletes the user's memberships and inserts one per group id.
// Readers never see the empty intermediate state.
func (r *BunMembershipRepository) ReplaceForUser(ctx context.Context, userID string, groupIDs []string, addedBy string) error {
	return inTx(ctx, r.db, func(ctx context.Context, tx bun.IDB) error {
		if _, err := tx.NewDelete().
			Model((*models.GroupMember)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("clear memberships for user %s: %w", userID, err)
		}

		seen := make(map[string]struct{}, len(groupIDs))
		rows := make([]models.GroupMember, 0, len(groupIDs))
		now := time.Now().UTC()
		for _, id := range groupIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			rows = append(rows, models.GroupMember{UserID: userID, GroupID: id, AddedBy: addedBy, AddedAt: now})
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Returning("NULL").Exec(ctx); err != nil {
			return fmt.Errorf("insert memberships for user %s: %w", userID, err)
		}
		return nil
	})
}
