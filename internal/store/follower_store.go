package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/threadmail/internal/model"
)

// AddFollower subscribes a user or an address to a related record.
func (s *SQLStore) AddFollower(ctx context.Context, f *model.Follower) error {
	if f.RelatedModel == "" || f.RelatedID == "" {
		return fmt.Errorf("follower must reference a record")
	}
	if f.UserID == nil && f.AddressID == nil {
		return fmt.Errorf("follower must reference a user or an address")
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, `
		INSERT INTO followers (
			id, related_model, related_id, user_id, address_id, archived, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RelatedModel, f.RelatedID, f.UserID, f.AddressID,
		boolToInt(f.Archived), f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding follower to %s/%s: %w", f.RelatedModel, f.RelatedID, err)
	}
	return nil
}

// ArchiveFollower marks a follower archived.
func (s *SQLStore) ArchiveFollower(ctx context.Context, id string) error {
	result, err := s.exec(ctx, "UPDATE followers SET archived = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("archiving follower %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("archiving follower %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetFollowers retrieves every follower of a record, archived ones
// included, with the user email and raw address joined in.
func (s *SQLStore) GetFollowers(
	ctx context.Context,
	relatedModel, relatedID string,
) ([]model.Follower, error) {
	var followers []model.Follower
	err := s.list(ctx, &followers, `
		SELECT f.*,
			COALESCE(u.email, '') AS user_email,
			COALESCE(a.address, '') AS address
		FROM followers f
		LEFT JOIN users u ON f.user_id = u.id
		LEFT JOIN addresses a ON f.address_id = a.id
		WHERE f.related_model = ? AND f.related_id = ?
		ORDER BY f.created_at, f.id`, relatedModel, relatedID)
	if err != nil {
		return nil, fmt.Errorf("querying followers of %s/%s: %w", relatedModel, relatedID, err)
	}
	return followers, nil
}
