package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"vnovel-server/internal/models"
)

const (
	getSettingsQuery = `
        SELECT text_speed, auto_advance, auto_advance_delay, voice_volume, music_volume, effects_volume, fullscreen
        FROM user_settings WHERE user_id = $1
    `
	upsertSettingsQuery = `
        INSERT INTO user_settings (user_id, text_speed, auto_advance, auto_advance_delay, voice_volume, music_volume, effects_volume, fullscreen)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id) DO UPDATE SET
            text_speed = EXCLUDED.text_speed,
            auto_advance = EXCLUDED.auto_advance,
            auto_advance_delay = EXCLUDED.auto_advance_delay,
            voice_volume = EXCLUDED.voice_volume,
            music_volume = EXCLUDED.music_volume,
            effects_volume = EXCLUDED.effects_volume,
            fullscreen = EXCLUDED.fullscreen,
            updated_at = NOW()
    `
)

var _ SettingsRepository = (*pgSettingsRepository)(nil)

type pgSettingsRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgSettingsRepository(db DBTX, logger *zap.Logger) SettingsRepository {
	return &pgSettingsRepository{
		db:     db,
		logger: logger.Named("PgSettingsRepo"),
	}
}

func (r *pgSettingsRepository) Get(ctx context.Context, userID string) (*models.VisualNovelSettings, error) {
	var s models.VisualNovelSettings
	if err := pgxscan.Get(ctx, r.db, &s, getSettingsQuery, userID); err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Error getting settings", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get settings for user %s: %w", userID, err)
	}
	return &s, nil
}

func (r *pgSettingsRepository) Upsert(ctx context.Context, userID string, s models.VisualNovelSettings) error {
	_, err := r.db.Exec(ctx, upsertSettingsQuery, userID,
		s.TextSpeed, s.AutoAdvance, s.AutoAdvanceDelay,
		s.VoiceVolume, s.MusicVolume, s.EffectsVolume, s.Fullscreen,
	)
	if err != nil {
		r.logger.Error("Error saving settings", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to save settings for user %s: %w", userID, err)
	}
	return nil
}
