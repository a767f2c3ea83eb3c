// Package garmin implements the outbound Garmin Connect API client: backfill
// requests signed with OAuth 1.0 and OAuth 2.0 token refresh.
package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/biopeak-sync/internal/config"
	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/types"
)

// Client talks to the Garmin wellness and auth APIs
type Client struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	signer       RequestSigner
	httpClient   *http.Client
}

// RequestSigner produces OAuth 1.0 Authorization header values.
// Satisfied by *oauth.Signer.
type RequestSigner interface {
	AuthorizationHeader(method, rawURL string, params map[string]string, token, tokenSecret string) (string, error)
}

// RefreshedToken is the result of an OAuth 2.0 refresh exchange
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string // empty when the vendor did not rotate it
	ExpiresIn    time.Duration
}

// NewClient creates a Garmin API client from configuration
func NewClient(cfg *config.GarminConfig, signer RequestSigner) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.APIBaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		signer:       signer,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// RequestBackfill asks the vendor to replay historical data for one summary
// type over a period. Garmin answers 202 and delivers the data asynchronously
// via webhook; any other status is a rejection whose body is returned verbatim.
func (c *Client) RequestBackfill(ctx context.Context, accessToken, tokenSecret string, summaryType types.SummaryType, start, end time.Time) error {
	endpoint := fmt.Sprintf("%s/backfill/%s", c.baseURL, summaryType)
	params := map[string]string{
		"summaryStartTimeInSeconds": strconv.FormatInt(start.Unix(), 10),
		"summaryEndTimeInSeconds":   strconv.FormatInt(end.Unix(), 10),
	}

	authHeader, err := c.signer.AuthorizationHeader(http.MethodGet, endpoint, params, accessToken, tokenSecret)
	if err != nil {
		return errors.NewInternalError("failed to sign backfill request", err)
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return errors.NewInternalError("failed to build backfill request", err)
	}
	req.Header.Set("Authorization", authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewVendorError(0, fmt.Sprintf("backfill request failed: %v", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusAccepted {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"summaryType": summaryType,
			"status":      resp.StatusCode,
		}).Warn("Garmin rejected backfill request")
		return errors.NewVendorError(resp.StatusCode, string(body))
	}

	return nil
}

// RefreshToken exchanges a refresh token for a new access token using HTTP
// Basic auth with the OAuth 2.0 client credentials
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.NewInternalError("failed to build token refresh request", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewVendorError(0, fmt.Sprintf("token refresh failed: %v", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewVendorError(resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.NewVendorError(resp.StatusCode, fmt.Sprintf("malformed token response: %v", err))
	}
	if payload.AccessToken == "" {
		return nil, errors.NewVendorError(resp.StatusCode, "token response missing access_token")
	}

	return &RefreshedToken{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    time.Duration(payload.ExpiresIn) * time.Second,
	}, nil
}
