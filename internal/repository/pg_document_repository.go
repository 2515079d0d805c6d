package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"vnovel-server/internal/models"
)

const (
	documentColumns     = `id, user_id, filename, title, content, width, height, position_x, position_y, created_at`
	createDocumentQuery = `
        INSERT INTO documents (` + documentColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	getDocumentQuery   = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND user_id = $2`
	listDocumentsQuery = `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
)

var _ DocumentRepository = (*pgDocumentRepository)(nil)

// documentRow - плоское представление документа (позиция хранится в двух колонках).
type documentRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Filename  string    `db:"filename"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	Width     int       `db:"width"`
	Height    int       `db:"height"`
	PositionX float64   `db:"position_x"`
	PositionY float64   `db:"position_y"`
	CreatedAt time.Time `db:"created_at"`
}

func (r documentRow) toModel() *models.Document {
	return &models.Document{
		ID:        r.ID,
		UserID:    r.UserID,
		Filename:  r.Filename,
		Title:     r.Title,
		Content:   r.Content,
		Width:     r.Width,
		Height:    r.Height,
		Position:  models.DocumentPosition{X: r.PositionX, Y: r.PositionY},
		CreatedAt: r.CreatedAt,
	}
}

type pgDocumentRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgDocumentRepository(db DBTX, logger *zap.Logger) DocumentRepository {
	return &pgDocumentRepository{
		db:     db,
		logger: logger.Named("PgDocumentRepo"),
	}
}

func (r *pgDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	_, err := r.db.Exec(ctx, createDocumentQuery,
		doc.ID, doc.UserID, doc.Filename, doc.Title, doc.Content,
		doc.Width, doc.Height, doc.Position.X, doc.Position.Y, doc.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Error creating document", zap.String("document_id", doc.ID), zap.Error(err))
		return fmt.Errorf("database error creating document %s: %w", doc.ID, err)
	}
	return nil
}

func (r *pgDocumentRepository) GetByID(ctx context.Context, userID, docID string) (*models.Document, error) {
	var row documentRow
	if err := pgxscan.Get(ctx, r.db, &row, getDocumentQuery, docID, userID); err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, docID)
		}
		r.logger.Error("Error getting document", zap.String("document_id", docID), zap.Error(err))
		return nil, fmt.Errorf("failed to get document %s: %w", docID, err)
	}
	return row.toModel(), nil
}

func (r *pgDocumentRepository) ListByUser(ctx context.Context, userID string) ([]*models.Document, error) {
	var rows []documentRow
	if err := pgxscan.Select(ctx, r.db, &rows, listDocumentsQuery, userID); err != nil {
		r.logger.Error("Error listing documents", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list documents for user %s: %w", userID, err)
	}
	docs := make([]*models.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toModel())
	}
	return docs, nil
}
