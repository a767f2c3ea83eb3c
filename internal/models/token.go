package models

import "time"

// TokenRecord holds one user's Garmin credentials. Exactly one live record
// exists per user; refreshes update the row in place.
type TokenRecord struct {
	UserID       string    `json:"userId" db:"user_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	TokenSecret  string    `json:"-" db:"token_secret"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// ExpiresWithin reports whether the access token expires inside the window,
// which is when a proactive refresh should happen.
func (t *TokenRecord) ExpiresWithin(window time.Duration, now time.Time) bool {
	return !t.ExpiresAt.After(now.Add(window))
}
