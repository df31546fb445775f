package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mnemos/mnemos/pkg/domain"
)

// CreateConversation inserts a new, untitled Conversation.
func (s *Store) CreateConversation(ctx context.Context, ownerID string) (domain.Conversation, error) {
	c := domain.Conversation{ID: newULID(), OwnerID: ownerID, CreatedAt: nowUTC(), UpdatedAt: nowUTC()}
	_, err := s.db.ExecContext(ctx, "INSERT INTO conversations (id, owner_id, title, created_at, updated_at) VALUES (?,?,?,?,?)",
		c.ID, c.OwnerID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("store: create conversation: %w", err)
	}
	return c, nil
}

// SetConversationTitle applies the chat pipeline's AI-generated
// title_update frame.
func (s *Store) SetConversationTitle(ctx context.Context, conversationID, title string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?", title, nowUTC(), conversationID)
	if err != nil {
		return fmt.Errorf("store: set conversation title: %w", err)
	}
	return nil
}

// AppendMessage inserts one ConversationMessage and bumps the parent
// conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, msg domain.ConversationMessage) (domain.ConversationMessage, error) {
	msg.ID = newULID()
	msg.CreatedAt = nowUTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (id, conversation_id, role, content, cited_memory_ids, created_at)
			VALUES (?,?,?,?,?,?)`,
			msg.ID, msg.ConversationID, string(msg.Role), msg.Content, strings.Join(msg.CitedMemoryIDs, ","), msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", msg.CreatedAt, msg.ConversationID); err != nil {
			return fmt.Errorf("bump conversation: %w", err)
		}
		return nil
	})
	return msg, err
}

// ListMessages returns every message in conversationID, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, cited_memory_ids, created_at
		FROM conversation_messages WHERE conversation_id = ? ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ConversationMessage
	for rows.Next() {
		var m domain.ConversationMessage
		var role, cited string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &cited, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		if cited != "" {
			m.CitedMemoryIDs = strings.Split(cited, ",")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
