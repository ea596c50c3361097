package bis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/internal/upstream"
)

const (
	// DefaultTokenTTL is assumed when the issued token carries no readable
	// expiry claim.
	DefaultTokenTTL = 1 * time.Hour

	// refreshMargin is how long before expiry a token is refreshed
	// proactively, so in-flight data calls never race a hard expiry.
	refreshMargin = 60 * time.Second
)

// TokenSourceConfig holds configuration for the bearer token source.
type TokenSourceConfig struct {
	// TokenURL is the OAuth token endpoint.
	TokenURL string

	// ClientID and ClientSecret are the API credentials.
	ClientID     string
	ClientSecret string

	// HTTPClient executes the token request. If nil, a default resilient
	// client is used.
	HTTPClient *upstream.Client

	// Logger for token operations.
	Logger zerolog.Logger
}

// TokenSource obtains and caches the upstream bearer token, refreshing it
// proactively before expiry. Safe for concurrent use.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *upstream.Client
	logger       zerolog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a token source.
func NewTokenSource(cfg TokenSourceConfig) *TokenSource {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = upstream.NewClient(upstream.ClientConfig{Name: "bis-token"})
	}

	return &TokenSource{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		logger:       cfg.Logger,
	}
}

// Token returns a valid bearer token, fetching a fresh one when the cached
// token is missing or within the refresh margin of its expiry.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt.Add(-refreshMargin)) {
		return s.token, nil
	}

	return s.fetchLocked(ctx)
}

// Invalidate discards the cached token. Called after an HTTP 401 so the next
// data call fetches a fresh token.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// fetchLocked requests a new token. Caller holds the lock.
func (s *TokenSource) fetchLocked(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching token: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	s.token = tr.AccessToken
	s.expiresAt = tokenExpiry(tr)

	s.logger.Debug().
		Time("expires_at", s.expiresAt).
		Msg("bearer token refreshed")

	return s.token, nil
}

// tokenExpiry determines when the token expires. The token is a JWT, so the
// exp claim is authoritative; expires_in is the fallback, then DefaultTokenTTL.
// The claim is read without signature verification because the client never
// trusts the token's contents, only its lifetime.
func tokenExpiry(tr tokenResponse) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	if tr.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return time.Now().Add(DefaultTokenTTL)
}
