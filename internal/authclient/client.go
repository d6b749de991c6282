// Package authclient talks to the retail back office's authentication
// service. The terminal itself stays usable offline; a cashier login is
// only required for operations that need a named identity on the audit
// trail.
package authclient

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

	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

// Client is an HTTP client for the authentication service.
type Client struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New builds an auth client from configuration.
func New(cfg config.AuthConfig, opts ...Option) (*Client, error) {
	if cfg.ServiceURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "auth service URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "auth JWT secret is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(cfg.ServiceURL, "/"),
		secret:     []byte(cfg.JWTSecret),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Credentials is a cashier login request.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Identity is a verified cashier identity extracted from the service's
// token.
type Identity struct {
	Subject   string    `json:"subject"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Token     string    `json:"-"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a verified identity.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username and password are required")
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding login request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/login", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building login request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConnectivity, err, "auth service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		case http.StatusForbidden:
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account not permitted on this terminal")
		default:
			return nil, pkgerrors.New(pkgerrors.CodeDependency,
				fmt.Sprintf("auth service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		}
	}

	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding login response")
	}
	if decoded.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "auth service returned no token")
	}
	return c.ParseToken(decoded.Token)
}

type identityClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken verifies a service-issued token and extracts the identity.
func (c *Client) ParseToken(token string) (*Identity, error) {
	var claims identityClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token rejected")
	}

	identity := &Identity{
		Subject: claims.Subject,
		Name:    claims.Name,
		Role:    claims.Role,
		Token:   token,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
