package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/threadmail/internal/model"
)

// CreateUser inserts a new user. The code defaults to the generated ID.
func (s *SQLStore) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if strings.TrimSpace(user.Code) == "" {
		user.Code = user.ID
	}
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx,
		"INSERT INTO users (id, code, name, email, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Code, user.Name, user.Email, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", user.Code, err)
	}
	return nil
}

// FindUserByEmail returns the first user whose email matches, ignoring case.
func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeAddress(email)
	if email == "" {
		return nil, ErrNotFound
	}

	var user model.User
	err := s.get(ctx, &user, `
		SELECT * FROM users
		WHERE LOWER(email) = ?
		ORDER BY created_at, id
		LIMIT 1`, email)
	if err != nil {
		return nil, fmt.Errorf("finding user %s: %w", email, err)
	}
	return &user, nil
}

// SearchUsers returns users with an email matching the filter, ordered by
// name.
func (s *SQLStore) SearchUsers(ctx context.Context, filter UserFilter) ([]model.User, error) {
	conditions := []string{"email <> ''"}
	var args []interface{}

	if match := strings.ToLower(strings.TrimSpace(filter.Match)); match != "" {
		conditions = append(conditions, "(LOWER(email) LIKE ? OR LOWER(name) LIKE ?)")
		q := "%" + match + "%"
		args = append(args, q, q)
	}

	var excluded []string
	for _, e := range filter.Exclude {
		if e = model.NormalizeAddress(e); e != "" {
			excluded = append(excluded, e)
		}
	}
	if len(excluded) > 0 {
		conditions = append(conditions, "LOWER(email) NOT IN (?)")
		args = append(args, excluded)
	}

	query := "SELECT * FROM users WHERE " + strings.Join(conditions, " AND ") +
		" ORDER BY name, email"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("building user search: %w", err)
	}

	var users []model.User
	if err := s.list(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	return users, nil
}
