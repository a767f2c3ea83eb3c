// Package oauth implements OAuth 1.0 HMAC-SHA1 request signing for the
// Garmin wellness API, which does not accept bearer tokens on its
// health-data endpoints.
package oauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Signer produces OAuth 1.0 Authorization headers for outbound vendor calls
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string
}

// NewSigner creates a signer with the given consumer credentials
func NewSigner(consumerKey, consumerSecret string) *Signer {
	return &Signer{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
	}
}

// AuthorizationHeader builds the OAuth 1.0 Authorization header value for a
// request. params are the request's query parameters; they participate in the
// signature base string together with the oauth_* parameters. Every call
// generates a fresh nonce and timestamp, nothing is cached.
func (s *Signer) AuthorizationHeader(method, rawURL string, params map[string]string, token, tokenSecret string) (string, error) {
	nonce, err := generateNonce(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	return s.buildHeader(method, rawURL, params, token, tokenSecret, nonce, timestamp)
}

// buildHeader is the deterministic part of signing, split out so tests can fix
// nonce and timestamp.
func (s *Signer) buildHeader(method, rawURL string, params map[string]string, token, tokenSecret, nonce, timestamp string) (string, error) {
	baseURL, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        timestamp,
		"oauth_version":          "1.0",
	}
	if token != "" {
		oauthParams["oauth_token"] = token
	}

	// All parameters, request and oauth alike, are sorted into one string
	all := make(map[string]string, len(params)+len(oauthParams))
	for k, v := range params {
		all[k] = v
	}
	for k, v := range oauthParams {
		all[k] = v
	}

	paramString := sortedParamString(all)
	baseString := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(paramString)
	signingKey := percentEncode(s.ConsumerSecret) + "&" + percentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(baseString))
	oauthParams["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// Header parameters in sorted order for deterministic output
	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", percentEncode(k), percentEncode(oauthParams[k])))
	}

	return "OAuth " + strings.Join(pairs, ", "), nil
}

// normalizeURL strips the query and fragment; query parameters are signed via
// the parameter string, not the URL.
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// sortedParamString encodes and alphabetically sorts parameters into the
// canonical k=v&k=v form
func sortedParamString(params map[string]string) string {
	encoded := make([]string, 0, len(params))
	for k, v := range params {
		encoded = append(encoded, percentEncode(k)+"="+percentEncode(v))
	}
	sort.Strings(encoded)
	return strings.Join(encoded, "&")
}

// percentEncode implements RFC 3986 percent encoding as OAuth 1.0 requires.
// url.QueryEscape is not usable here: it encodes spaces as '+' and handles
// '~' differently than the RFC.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// generateNonce returns a random alphanumeric string of length n
func generateNonce(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = nonceAlphabet[int(buf[i])%len(nonceAlphabet)]
	}
	return string(buf), nil
}
