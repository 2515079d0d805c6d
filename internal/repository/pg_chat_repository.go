package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"vnovel-server/internal/models"
)

const (
	insertChatMessageQuery = `
        INSERT INTO chat_messages (id, chat_id, user_id, role, content, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING
    `
	listChatMessagesQuery = `
        SELECT id, chat_id, user_id, role, content, created_at
        FROM chat_messages
        WHERE chat_id = $1 AND user_id = $2
        ORDER BY created_at, id
    `
)

var _ ChatRepository = (*pgChatRepository)(nil)

type pgChatRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgChatRepository(db DBTX, logger *zap.Logger) ChatRepository {
	return &pgChatRepository{
		db:     db,
		logger: logger.Named("PgChatRepo"),
	}
}

// Append сохраняет сообщения одним батчем.
func (r *pgChatRepository) Append(ctx context.Context, messages ...*models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	batch := &pgxV5.Batch{}
	for _, m := range messages {
		batch.Queue(insertChatMessageQuery, m.ID, m.ChatID, m.UserID, m.Role, m.Content, m.CreatedAt)
	}

	sender, ok := r.db.(interface {
		SendBatch(ctx context.Context, b *pgxV5.Batch) pgxV5.BatchResults
	})
	if !ok {
		// DBTX без поддержки батчей, пишем по одному
		for _, m := range messages {
			if _, err := r.db.Exec(ctx, insertChatMessageQuery, m.ID, m.ChatID, m.UserID, m.Role, m.Content, m.CreatedAt); err != nil {
				return fmt.Errorf("failed to insert chat message %s: %w", m.ID, err)
			}
		}
		return nil
	}

	results := sender.SendBatch(ctx, batch)
	defer results.Close()
	for range messages {
		if _, err := results.Exec(); err != nil {
			r.logger.Error("Error appending chat messages", zap.String("chat_id", messages[0].ChatID), zap.Error(err))
			return fmt.Errorf("failed to append chat messages: %w", err)
		}
	}
	return nil
}

func (r *pgChatRepository) ListByChat(ctx context.Context, userID, chatID string) ([]*models.ChatMessage, error) {
	var msgs []*models.ChatMessage
	if err := pgxscan.Select(ctx, r.db, &msgs, listChatMessagesQuery, chatID, userID); err != nil {
		r.logger.Error("Error listing chat messages", zap.String("chat_id", chatID), zap.Error(err))
		return nil, fmt.Errorf("failed to list chat messages for chat %s: %w", chatID, err)
	}
	return msgs, nil
}
