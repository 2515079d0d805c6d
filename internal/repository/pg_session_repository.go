package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"vnovel-server/internal/models"
)

const (
	upsertSessionQuery = `
        INSERT INTO game_sessions (id, user_id, title, genre, data, created_at, updated_at, saved_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            title = EXCLUDED.title,
            genre = EXCLUDED.genre,
            data = EXCLUDED.data,
            updated_at = EXCLUDED.updated_at,
            saved_at = EXCLUDED.saved_at
        WHERE game_sessions.user_id = EXCLUDED.user_id
    `
	getSessionQuery    = `SELECT data FROM game_sessions WHERE id = $1 AND user_id = $2`
	listSessionsQuery  = `SELECT data FROM game_sessions WHERE user_id = $1 ORDER BY updated_at DESC`
	deleteSessionQuery = `DELETE FROM game_sessions WHERE id = $1 AND user_id = $2`
)

var _ SessionRepository = (*pgSessionRepository)(nil)

type sessionRow struct {
	Data []byte `db:"data"`
}

type pgSessionRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgSessionRepository создает репозиторий сессий поверх PostgreSQL.
// Тело сессии хранится как JSONB.
func NewPgSessionRepository(db DBTX, logger *zap.Logger) SessionRepository {
	return &pgSessionRepository{
		db:     db,
		logger: logger.Named("PgSessionRepo"),
	}
}

func (r *pgSessionRepository) Save(ctx context.Context, session *models.GameSession) error {
	log := r.logger.With(zap.String("session_id", session.ID), zap.String("user_id", session.UserID))

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}

	var savedAt *time.Time
	if !session.GameState.SaveDate.IsZero() {
		savedAt = &session.GameState.SaveDate
	}

	tag, err := r.db.Exec(ctx, upsertSessionQuery,
		session.ID, session.UserID, session.Title, session.Genre, data,
		session.CreatedAt, session.UpdatedAt, savedAt,
	)
	if err != nil {
		log.Error("Error saving game session", zap.Error(err))
		return fmt.Errorf("database error saving session %s: %w", session.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// id занят сессией другого пользователя
		log.Warn("Session upsert affected no rows, owner mismatch")
		return fmt.Errorf("%w: session %s", models.ErrForbidden, session.ID)
	}
	log.Debug("Game session saved", zap.Int("segments", len(session.Story)))
	return nil
}

func (r *pgSessionRepository) GetByID(ctx context.Context, userID, sessionID string) (*models.GameSession, error) {
	log := r.logger.With(zap.String("session_id", sessionID), zap.String("user_id", userID))

	var row sessionRow
	if err := pgxscan.Get(ctx, r.db, &row, getSessionQuery, sessionID, userID); err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			log.Debug("Game session not found")
			return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
		}
		log.Error("Error getting game session", zap.Error(err))
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return decodeSession(row.Data)
}

func (r *pgSessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.GameSession, error) {
	var rows []sessionRow
	if err := pgxscan.Select(ctx, r.db, &rows, listSessionsQuery, userID); err != nil {
		r.logger.Error("Error listing game sessions", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}

	sessions := make([]*models.GameSession, 0, len(rows))
	for _, row := range rows {
		s, err := decodeSession(row.Data)
		if err != nil {
			r.logger.Warn("Skipping undecodable session", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *pgSessionRepository) Delete(ctx context.Context, userID, sessionID string) error {
	tag, err := r.db.Exec(ctx, deleteSessionQuery, sessionID, userID)
	if err != nil {
		r.logger.Error("Error deleting game session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, sessionID)
	}
	return nil
}

func decodeSession(data []byte) (*models.GameSession, error) {
	var s models.GameSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.GameState.PlayerChoices == nil {
		s.GameState.PlayerChoices = map[string]string{}
	}
	if dropped := s.DropDanglingChoices(); len(dropped) > 0 {
		zap.L().Warn("Dropped choices that reference missing segment choices",
			zap.String("session_id", s.ID),
			zap.Strings("segment_ids", dropped))
	}
	return &s, nil
}
