// Package token manages per-user Garmin credentials: lookup, proactive
// refresh, and disconnect.
package token

import (
	"context"
	"time"

	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/garmin"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/models"
)

// DefaultRefreshWindow is how close to expiry a token may get before a
// refresh is attempted.
const DefaultRefreshWindow = 5 * time.Minute

// Store is the persistence surface the service needs
type Store interface {
	Get(ctx context.Context, userID string) (*models.TokenRecord, error)
	Upsert(ctx context.Context, rec *models.TokenRecord) error
	Delete(ctx context.Context, userID string) error
}

// Refresher performs the OAuth 2.0 refresh exchange. Satisfied by
// *garmin.Client.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*garmin.RefreshedToken, error)
}

// Service provides validated Garmin credentials for outbound calls
type Service struct {
	store         Store
	refresher     Refresher
	refreshWindow time.Duration
}

// NewService creates a token service. refreshWindow <= 0 selects the default.
func NewService(store Store, refresher Refresher, refreshWindow time.Duration) *Service {
	if refreshWindow <= 0 {
		refreshWindow = DefaultRefreshWindow
	}
	return &Service{
		store:         store,
		refresher:     refresher,
		refreshWindow: refreshWindow,
	}
}

// EnsureValidToken returns usable credentials for the user, refreshing them
// first when expiry is near. The check-then-refresh is not guarded against
// concurrent callers; a double refresh loses one rotation but the row stays
// usable.
func (s *Service) EnsureValidToken(ctx context.Context, userID string) (*models.TokenRecord, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, errors.NewDatabaseError("token lookup", err)
	}
	if rec == nil {
		return nil, errors.NewNotConnectedError(userID)
	}

	if !rec.ExpiresWithin(s.refreshWindow, time.Now()) {
		return rec, nil
	}

	logging.FromContext(ctx).WithField("userId", userID).Info("Refreshing Garmin token near expiry")

	refreshed, err := s.refresher.RefreshToken(ctx, rec.RefreshToken)
	if err != nil {
		return nil, errors.NewRefreshFailedError(userID, err)
	}

	rec.AccessToken = refreshed.AccessToken
	// The vendor may or may not rotate the refresh token
	if refreshed.RefreshToken != "" {
		rec.RefreshToken = refreshed.RefreshToken
	}
	rec.ExpiresAt = time.Now().Add(refreshed.ExpiresIn)

	if err := s.store.Upsert(ctx, rec); err != nil {
		return nil, errors.NewDatabaseError("token update", err)
	}

	return rec, nil
}

// Disconnect removes the user's stored credentials
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return errors.NewNotFoundError("garmin connection", userID)
	}
	return nil
}
