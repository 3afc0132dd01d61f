package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"arkenstone/services/stakingd/api"
	"arkenstone/services/stakingd/middleware"
)

const alice = "0x00000000000000000000000000000000000000C3"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(append([]string{"--profile", filepath.Join(t.TempDir(), "profile.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestDepositCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/pools/base/deposit", r.URL.Path)
		require.Equal(t, "Bearer static", r.Header.Get("Authorization"))
		var req api.AmountRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(api.ReceiptResponse{Pool: "base", Amount: req.Amount, Reward: "0", Principal: req.Amount})
	}))
	defer srv.Close()

	out, err := execute(t, "--endpoint", srv.URL, "--token", "static", "deposit", "base", "1000")
	require.NoError(t, err)
	var receipt api.ReceiptResponse
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Equal(t, "1000", receipt.Principal)
}

func TestCommandSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "staking: caller is not the owner", Code: api.CodeNotOwner})
	}))
	defer srv.Close()

	_, err := execute(t, "--endpoint", srv.URL, "--token", "static", "rate", "set", "base", "500")
	require.Error(t, err)
	require.Contains(t, err.Error(), api.CodeNotOwner)
}

func TestArgumentValidation(t *testing.T) {
	_, err := execute(t, "deposit", "gold", "1")
	require.Error(t, err)
	_, err = execute(t, "deposit", "base", "abc")
	require.Error(t, err)
	_, err = execute(t, "rate", "set", "base", "-1")
	require.Error(t, err)
	_, err = execute(t, "position", "base", "not-an-address")
	require.Error(t, err)
}

func TestAuthTokenCommand(t *testing.T) {
	t.Setenv(defaultSecretEnv, "cli-secret")
	out, err := execute(t, "auth", "token", alice)
	require.NoError(t, err)

	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: "cli-secret", Issuer: defaultIssuer}, nil)
	require.NoError(t, err)
	var seen string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := middleware.CallerFromContext(r.Context())
		seen = caller.Hex()
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(out))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, strings.EqualFold(alice, seen))
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.yaml")
	profile, err := loadProfile(path)
	require.NoError(t, err)
	require.Equal(t, defaultEndpoint, profile.Endpoint)

	profile.Subject = alice
	require.NoError(t, saveProfile(path, profile))
	loaded, err := loadProfile(path)
	require.NoError(t, err)
	require.Equal(t, alice, loaded.Subject)
	require.Equal(t, defaultIssuer, loaded.Issuer)

	t.Setenv(defaultSecretEnv, "")
	_, err = loaded.bearer()
	require.Error(t, err)
	t.Setenv(defaultSecretEnv, "s3cret")
	token, err := loaded.bearer()
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
