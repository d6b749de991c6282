package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(config.AuthConfig{
		ServiceURL: server.URL,
		JWTSecret:  testSecret,
	})
	require.NoError(t, err)
	return client
}

func TestLoginSuccess(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":  "cashier:ana",
		"name": "Ana",
		"role": "cashier",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/login", r.URL.Path)

		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "ana", creds.Username)

		json.NewEncoder(w).Encode(loginResponse{Token: token})
	}))

	identity, err := client.Login(context.Background(), Credentials{Username: "ana", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "cashier:ana", identity.Subject)
	require.Equal(t, "Ana", identity.Name)
	require.Equal(t, "cashier", identity.Role)
	require.Equal(t, token, identity.Token)
	require.False(t, identity.ExpiresAt.IsZero())
}

func TestLoginRejectedCredentials(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Login(context.Background(), Credentials{Username: "ana", Password: "wrong"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}

func TestLoginValidation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the service")
	}))

	_, err := client.Login(context.Background(), Credentials{Username: "ana"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestLoginServiceUnreachable(t *testing.T) {
	client, err := New(config.AuthConfig{
		ServiceURL: "http://127.0.0.1:1",
		JWTSecret:  testSecret,
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	_, err = client.Login(context.Background(), Credentials{Username: "ana", Password: "pw"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConnectivity))
}

func TestParseTokenRejectsTampering(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).
		SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = client.ParseToken(other)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}

func TestParseTokenRejectsExpired(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	expired := signToken(t, jwt.MapClaims{
		"sub": "cashier:ana",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err := client.ParseToken(expired)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}

func TestNewRequiresConfiguration(t *testing.T) {
	_, err := New(config.AuthConfig{JWTSecret: testSecret})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConfiguration))

	_, err = New(config.AuthConfig{ServiceURL: "http://localhost"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConfiguration))
}
