// Package identity talks to the external identity provider. Login,
// refresh, and admin user creation are forwarded over HTTP; bearer
// resolution verifies the provider's HS256 JWTs locally with the shared
// secret, so the hot path performs no network I/O.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haexhub/haex-sync/internal/common"
)

const requestTimeout = 10 * time.Second

// User is the provider's view of an account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the token bundle returned by login and refresh.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Client wraps the identity provider's HTTP surface.
type Client struct {
	baseURL    string
	serviceKey string
	jwtSecret  []byte
	httpClient *http.Client
}

// NewClient constructs a Client. serviceKey authorizes admin calls;
// jwtSecret verifies access tokens.
func NewClient(baseURL, serviceKey, jwtSecret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		jwtSecret:  []byte(jwtSecret),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Login exchanges email/password for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.tokenRequest(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.tokenRequest(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

func (c *Client) tokenRequest(ctx context.Context, grantType string, body map[string]string) (*Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/token?grant_type=%s", c.baseURL, grantType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		session := &Session{}
		if err := json.NewDecoder(resp.Body).Decode(session); err != nil {
			return nil, fmt.Errorf("identity provider response: %w", err)
		}
		return session, nil
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		return nil, common.ErrorUnauthorized
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity provider status %d: %s", resp.StatusCode, body)
	}
}

// CreateUser provisions an account via the provider's admin surface.
// Requires the service key. An existing account maps to
// common.ErrorAlreadyExists.
func (c *Client) CreateUser(ctx context.Context, email, password string) (*User, error) {
	payload, err := json.Marshal(map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/users", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		user := &User{}
		if err := json.NewDecoder(resp.Body).Decode(user); err != nil {
			return nil, fmt.Errorf("identity provider response: %w", err)
		}
		return user, nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return nil, common.ErrorAlreadyExists
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity provider status %d: %s", resp.StatusCode, body)
	}
}

// ResolveToken verifies an access token and returns the subject user id.
// Tokens signed with any algorithm other than HS256, expired tokens, and
// tokens without a subject all map to common.ErrInvalidToken.
func (c *Client) ResolveToken(tokenString string) (string, error) {
	if len(c.jwtSecret) == 0 {
		return "", common.ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", common.ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
