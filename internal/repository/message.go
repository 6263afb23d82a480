package repository

import (
	"context"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db dbtx
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.ConversationID, message.Role, message.Content, message.CreatedAt,
	)
	return err
}

// ListByConversation returns messages in chronological order. A limit of 0
// returns the full history; a positive limit returns the most recent messages,
// still oldest first.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at
	          FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`
	args := []any{conversationID}

	if limit > 0 {
		query = `SELECT id, conversation_id, role, content, created_at FROM (
		             SELECT id, conversation_id, role, content, created_at
		             FROM messages WHERE conversation_id = $1
		             ORDER BY created_at DESC, id DESC
		             LIMIT $2
		         ) recent ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
