package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"vnovel-server/internal/models"
)

const (
	createImageRecordQuery = `
        INSERT INTO image_records (id, user_id, url, prompt, service, model, fallback, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	listImageRecordsQuery = `
        SELECT id, user_id, url, prompt, service, model, fallback, created_at
        FROM image_records
        WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR service = ANY($2::text[]))
        ORDER BY created_at DESC
        LIMIT NULLIF($3, 0)
    `
)

var _ ImageRepository = (*pgImageRepository)(nil)

type pgImageRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgImageRepository создает репозиторий записей изображений.
func NewPgImageRepository(db DBTX, logger *zap.Logger) ImageRepository {
	return &pgImageRepository{
		db:     db,
		logger: logger.Named("PgImageRepo"),
	}
}

func (r *pgImageRepository) Create(ctx context.Context, record *models.ImageRecord) error {
	_, err := r.db.Exec(ctx, createImageRecordQuery,
		record.ID, record.UserID, record.URL, record.Prompt,
		record.Service, record.Model, record.Fallback, record.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Error creating image record", zap.String("image_id", record.ID), zap.Error(err))
		return fmt.Errorf("database error creating image record %s: %w", record.ID, err)
	}
	r.logger.Debug("Image record created", zap.String("image_id", record.ID), zap.String("service", record.Service))
	return nil
}

func (r *pgImageRepository) ListByUser(ctx context.Context, userID string, services []string, limit int) ([]*models.ImageRecord, error) {
	if services == nil {
		services = []string{}
	}
	if limit < 0 {
		limit = 0
	}

	var records []*models.ImageRecord
	if err := pgxscan.Select(ctx, r.db, &records, listImageRecordsQuery, userID, pq.Array(services), limit); err != nil {
		r.logger.Error("Error listing image records", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list image records for user %s: %w", userID, err)
	}
	return records, nil
}
