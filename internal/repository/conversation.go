package repository

import (
	"context"
	"errors"
	"time"

	"github.com/quill-labs/quillai/internal/domain"
	"github.com/quill-labs/quillai/internal/pagination"
	"github.com/quill-labs/quillai/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, workspace_id, title, model, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		conversation.ID, conversation.WorkspaceID, conversation.Title, nullableString(conversation.Model), conversation.CreatedAt, conversation.UpdatedAt,
	)
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	var model *string
	err := r.db.QueryRow(ctx,
		`SELECT id, workspace_id, title, model, created_at, updated_at
		 FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.WorkspaceID, &c.Title, &model, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	if model != nil {
		c.Model = *model
	}
	return &c, nil
}

func (r *ConversationRepository) ListByWorkspaceWithCursor(ctx context.Context, workspaceID string, cursor *pagination.Cursor, limit int) (*service.ConversationPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, workspace_id, title, model, created_at, updated_at
			 FROM conversations
			 WHERE workspace_id = $1 AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			workspaceID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, workspace_id, title, model, created_at, updated_at
			 FROM conversations
			 WHERE workspace_id = $1
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			workspaceID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var model *string
		if err := rows.Scan(&c.ID, &c.WorkspaceID, &c.Title, &model, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if model != nil {
			c.Model = *model
		}
		conversations = append(conversations, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(conversations) > limit
	if hasMore {
		conversations = conversations[:limit]
	}

	var nextCursor string
	if hasMore && len(conversations) > 0 {
		last := conversations[len(conversations)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.UpdatedAt)
	}

	return &service.ConversationPageResult{
		Conversations: conversations,
		NextCursor:    nextCursor,
		HasMore:       hasMore,
	}, nil
}

func (r *ConversationRepository) UpdateTitle(ctx context.Context, id, title string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE conversations SET title = $1, updated_at = $2 WHERE id = $3`,
		title, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
