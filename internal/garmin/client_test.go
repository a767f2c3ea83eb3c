package garmin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/biopeak-sync/internal/config"
	"github.com/biopeak-sync/internal/errors"
	"github.com/biopeak-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSigner struct {
	header string
	err    error

	method string
	rawURL string
	params map[string]string
	token  string
	secret string
}

func (s *stubSigner) AuthorizationHeader(method, rawURL string, params map[string]string, token, tokenSecret string) (string, error) {
	s.method = method
	s.rawURL = rawURL
	s.params = params
	s.token = token
	s.secret = tokenSecret
	return s.header, s.err
}

func newTestClient(serverURL string, signer RequestSigner) *Client {
	return NewClient(&config.GarminConfig{
		APIBaseURL:     serverURL,
		TokenURL:       serverURL + "/oauth/token",
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		RequestTimeout: 5 * time.Second,
	}, signer)
}

func TestRequestBackfillAccepted(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	signer := &stubSigner{header: `OAuth oauth_signature="sig"`}
	client := newTestClient(server.URL, signer)

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)

	err := client.RequestBackfill(context.Background(), "access", "secret", types.SummaryDailies, start, end)
	require.NoError(t, err)

	assert.Equal(t, `OAuth oauth_signature="sig"`, gotAuth)
	assert.Equal(t, "/backfill/dailies", gotPath)
	assert.Contains(t, gotQuery, "summaryStartTimeInSeconds=1746057600")
	assert.Contains(t, gotQuery, "summaryEndTimeInSeconds=1746662400")

	// The signed parameters match what was sent on the wire
	assert.Equal(t, http.MethodGet, signer.method)
	assert.Equal(t, "access", signer.token)
	assert.Equal(t, "secret", signer.secret)
	assert.Equal(t, "1746057600", signer.params["summaryStartTimeInSeconds"])
}

func TestRequestBackfillRejectionKeepsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"errorMessage":"backfill quota exceeded"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubSigner{header: "OAuth x"})

	err := client.RequestBackfill(context.Background(), "a", "s", types.SummarySleeps, time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)

	var catErr *errors.CategorizedError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, errors.CategoryVendor, catErr.Category)
	assert.Equal(t, http.StatusTooManyRequests, catErr.Details["vendorStatus"])
	assert.Equal(t, `{"errorMessage":"backfill quota exceeded"}`, catErr.Message)
}

func TestRequestBackfillSignerFailure(t *testing.T) {
	client := newTestClient("http://unused.invalid", &stubSigner{err: assert.AnError})

	err := client.RequestBackfill(context.Background(), "a", "s", types.SummaryDailies, time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}

func TestRefreshTokenSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubSigner{})

	refreshed, err := client.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", refreshed.AccessToken)
	assert.Equal(t, "new-refresh", refreshed.RefreshToken)
	assert.Equal(t, time.Hour, refreshed.ExpiresIn)
}

func TestRefreshTokenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"new-access","expires_in":900}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubSigner{})

	refreshed, err := client.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", refreshed.AccessToken)
	assert.Empty(t, refreshed.RefreshToken)
}

func TestRefreshTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubSigner{})

	_, err := client.RefreshToken(context.Background(), "stale")
	require.Error(t, err)

	var catErr *errors.CategorizedError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, errors.CategoryVendor, catErr.Category)
	assert.Equal(t, http.StatusUnauthorized, catErr.Details["vendorStatus"])
}

func TestRefreshTokenMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, &stubSigner{})

	_, err := client.RefreshToken(context.Background(), "r")
	assert.Error(t, err)
}
