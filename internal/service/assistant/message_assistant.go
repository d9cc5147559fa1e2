package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jindalchat/internal/models"
)

// AppendMessage inserts one message into the user's log. Content is stored
// as given; duplicates are allowed.
func (s *Service) AppendMessage(ctx context.Context, userID int64, content string, role models.Role) (*models.Message, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.Message{
		ID:        id,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// ListMessagesByUser returns every message owned by the user in insertion order.
func (s *Service) ListMessagesByUser(ctx context.Context, userID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM messages WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
