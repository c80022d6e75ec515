package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts durable group membership.
type GroupRepository interface {
	ListGroupIDsForUser(ctx context.Context, userID int) ([]int, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	ListMemberIDs(ctx context.Context, groupID int) ([]int, error)
	TouchGroup(ctx context.Context, groupID int) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// ListGroupIDsForUser returns the ids of every group the user belongs to.
func (r *GroupRepo) ListGroupIDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	if err := r.db.SelectContext(ctx, &ids, `SELECT group_id FROM group_members WHERE user_id=$1 ORDER BY group_id`, userID); err != nil {
		return nil, fmt.Errorf("list groups for user %d: %w", userID, err)
	}
	return ids, nil
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// ListMemberIDs returns the user ids of the group's durable members.
func (r *GroupRepo) ListMemberIDs(ctx context.Context, groupID int) ([]int, error) {
	var ids []int
	if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM group_members WHERE group_id=$1`, groupID); err != nil {
		return nil, fmt.Errorf("list members of group %d: %w", groupID, err)
	}
	return ids, nil
}

// TouchGroup bumps the group's last activity timestamp.
func (r *GroupRepo) TouchGroup(ctx context.Context, groupID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET updated_at = NOW() WHERE id=$1`, groupID)
	if err != nil {
		return fmt.Errorf("touch group %d: %w", groupID, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrGroupNotFound
	}
	return nil
}
