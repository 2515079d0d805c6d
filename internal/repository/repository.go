package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vnovel-server/internal/models"
)

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// SessionRepository хранит игровые сессии.
// Сессия принадлежит пользователю: чужая сессия возвращается как models.ErrNotFound.
//
//go:generate mockery --name SessionRepository --output ./mocks --outpkg mocks --case=underscore
type SessionRepository interface {
	// Save создает или обновляет сессию целиком.
	Save(ctx context.Context, session *models.GameSession) error
	GetByID(ctx context.Context, userID, sessionID string) (*models.GameSession, error)
	// ListByUser возвращает сессии пользователя, последние обновленные первыми.
	ListByUser(ctx context.Context, userID string) ([]*models.GameSession, error)
	Delete(ctx context.Context, userID, sessionID string) error
}

// ImageRepository хранит записи о сгенерированных изображениях.
//
//go:generate mockery --name ImageRepository --output ./mocks --outpkg mocks --case=underscore
type ImageRepository interface {
	Create(ctx context.Context, record *models.ImageRecord) error
	// ListByUser возвращает записи пользователя (новые первыми).
	// Пустой services означает все сервисы; limit <= 0 означает без ограничения.
	ListByUser(ctx context.Context, userID string, services []string, limit int) ([]*models.ImageRecord, error)
}

// SettingsRepository хранит настройки проигрывания пользователя.
//
//go:generate mockery --name SettingsRepository --output ./mocks --outpkg mocks --case=underscore
type SettingsRepository interface {
	// Get возвращает models.ErrNotFound, если пользователь еще не сохранял настройки.
	Get(ctx context.Context, userID string) (*models.VisualNovelSettings, error)
	Upsert(ctx context.Context, userID string, settings models.VisualNovelSettings) error
}

// DocumentRepository хранит документы, созданные инструментом create_file.
//
//go:generate mockery --name DocumentRepository --output ./mocks --outpkg mocks --case=underscore
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, userID, docID string) (*models.Document, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Document, error)
}

// ChatRepository хранит историю чатов.
//
//go:generate mockery --name ChatRepository --output ./mocks --outpkg mocks --case=underscore
type ChatRepository interface {
	Append(ctx context.Context, messages ...*models.ChatMessage) error
	// ListByChat возвращает сообщения чата в хронологическом порядке.
	ListByChat(ctx context.Context, userID, chatID string) ([]*models.ChatMessage, error)
}
