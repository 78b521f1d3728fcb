package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Ironcock/GameReleaseFetcher/internal/services"
	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	tokenKey = "igdb:bearer"

	// expiryMargin is subtracted from expires_in so a token is never used
	// in its last minute
	expiryMargin = time.Minute
	maxAuthTries = 3
)

// tokenResponse is the Twitch client-credentials grant response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Authenticator exchanges the client credentials for a bearer token and
// caches it until shortly before it expires
type Authenticator struct {
	clientID     string
	clientSecret string
	authURL      string
	httpClient   *http.Client
	tokens       *cache.Cache
	logger       *logrus.Logger
	newBackOff   func() backoff.BackOff

	mu sync.Mutex
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(clientID, clientSecret, authURL string, httpClient *http.Client, logger *logrus.Logger) *Authenticator {
	return &Authenticator{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      authURL,
		httpClient:   httpClient,
		tokens:       cache.New(cache.NoExpiration, 10*time.Minute),
		logger:       logger,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAuthTries-1)
		},
	}
}

// Token returns a valid bearer token, exchanging credentials when the
// cached one is missing or expired. 4xx answers are not retried.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	if token, ok := a.tokens.Get(tokenKey); ok {
		return token.(string), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if token, ok := a.tokens.Get(tokenKey); ok {
		return token.(string), nil
	}

	var tok tokenResponse
	operation := func() error {
		var err error
		tok, err = a.exchange(ctx)
		if services.IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		a.logger.WithError(err).WithField("retry_in", wait).Warn("Token exchange failed, retrying")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(a.newBackOff(), ctx), notify); err != nil {
		return "", fmt.Errorf("failed to obtain IGDB token: %w", err)
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - expiryMargin
	if ttl <= 0 {
		ttl = time.Duration(tok.ExpiresIn) * time.Second
	}
	a.tokens.Set(tokenKey, tok.AccessToken, ttl)

	a.logger.WithField("expires_in", tok.ExpiresIn).Info("Obtained IGDB token")
	return tok.AccessToken, nil
}

// Invalidate drops the cached token, e.g. after the API rejected it
func (a *Authenticator) Invalidate() {
	a.tokens.Delete(tokenKey)
}

func (a *Authenticator) exchange(ctx context.Context) (tokenResponse, error) {
	var tok tokenResponse

	params := url.Values{}
	params.Set("client_id", a.clientID)
	params.Set("client_secret", a.clientSecret)
	params.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL+"?"+params.Encode(), nil)
	if err != nil {
		return tok, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return tok, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return tok, services.NewAPIError("twitch", resp.StatusCode, bodyBytes)
	}

	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tok, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return tok, backoff.Permanent(fmt.Errorf("token response has no access_token"))
	}

	return tok, nil
}
