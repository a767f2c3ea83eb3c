package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biopeak-sync/internal/models"
	"github.com/jackc/pgx/v5"
)

// TokenRepository handles Garmin token persistence. One row per user,
// refreshed in place.
type TokenRepository struct {
	db *PostgresDB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *PostgresDB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get retrieves a user's token record, or nil when the user never connected
func (r *TokenRepository) Get(ctx context.Context, userID string) (*models.TokenRecord, error) {
	query := `
		SELECT user_id, access_token, token_secret, refresh_token, expires_at, created_at, updated_at
		FROM garmin_tokens
		WHERE user_id = $1
	`

	var rec models.TokenRecord
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.AccessToken,
		&rec.TokenSecret,
		&rec.RefreshToken,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}

	return &rec, nil
}

// Upsert creates or replaces a user's token record. Used both for the initial
// OAuth exchange result and for refresh rotation.
func (r *TokenRepository) Upsert(ctx context.Context, rec *models.TokenRecord) error {
	query := `
		INSERT INTO garmin_tokens (user_id, access_token, token_secret, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			token_secret = EXCLUDED.token_secret,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	_, err := r.db.Pool().Exec(ctx, query,
		rec.UserID,
		rec.AccessToken,
		rec.TokenSecret,
		rec.RefreshToken,
		rec.ExpiresAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token record: %w", err)
	}

	return nil
}

// Delete removes a user's token record on disconnect
func (r *TokenRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM garmin_tokens WHERE user_id = $1`

	result, err := r.db.Pool().Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("token record not found: %s", userID)
	}

	return nil
}
