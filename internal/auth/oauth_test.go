package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testSecret = "super-secret-client-value"

// fakeGitHub serves the token endpoint and the two API routes the provider
// calls. Handlers can be swapped per test.
type fakeGitHub struct {
	srv    *httptest.Server
	token  http.HandlerFunc
	user   http.HandlerFunc
	emails http.HandlerFunc
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{
		token: func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, map[string]string{"access_token": "gho_test", "token_type": "bearer", "scope": "user:email"})
		},
		user: func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, map[string]any{"id": 42, "login": "octocat", "email": "octo@example.com", "avatar_url": "https://avatars/42"})
		},
		emails: func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, []map[string]any{{"email": "primary@example.com", "primary": true, "verified": true}})
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) { f.token(w, r) })
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) { f.user(w, r) })
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) { f.emails(w, r) })
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGitHub) provider(timeout time.Duration) *GitHubProvider {
	return NewGitHubProvider(Config{
		ClientID:     "client-123",
		ClientSecret: testSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.srv.URL + "/login/oauth/authorize",
			TokenURL: f.srv.URL + "/login/oauth/access_token",
		},
		APIBaseURL: f.srv.URL,
		Timeout:    timeout,
		HTTPClient: f.srv.Client(),
	})
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestAuthURL(t *testing.T) {
	p := NewGitHubProvider(Config{ClientID: "client-123", ClientSecret: testSecret})

	u, err := url.Parse(p.AuthURL())
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "/login/oauth/authorize", u.Path)
	assert.Equal(t, "client-123", u.Query().Get("client_id"))
	assert.Equal(t, "user:email", u.Query().Get("scope"))
	assert.NotContains(t, p.AuthURL(), testSecret)
}

func TestExchange_Success(t *testing.T) {
	f := newFakeGitHub(t)
	var gotForm url.Values
	f.token = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		writeTestJSON(w, http.StatusOK, map[string]string{"access_token": "gho_test", "token_type": "bearer"})
	}

	tok, err := f.provider(time.Second).Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_test", tok.AccessToken)

	// Credentials travel in the form body, not a Basic auth header.
	assert.Equal(t, "the-code", gotForm.Get("code"))
	assert.Equal(t, "client-123", gotForm.Get("client_id"))
	assert.Equal(t, testSecret, gotForm.Get("client_secret"))
}

func TestExchange_BadVerificationCode(t *testing.T) {
	f := newFakeGitHub(t)
	f.token = func(w http.ResponseWriter, r *http.Request) {
		// GitHub answers 200 with an error body.
		writeTestJSON(w, http.StatusOK, map[string]string{
			"error":             "bad_verification_code",
			"error_description": "The code passed is incorrect or expired.",
		})
	}

	_, err := f.provider(time.Second).Exchange(context.Background(), "stale")
	require.Error(t, err)

	var te *TokenError
	require.True(t, errors.As(err, &te), "error = %v, want *TokenError", err)
	assert.Equal(t, "bad_verification_code", te.Code)
	assert.Equal(t, "The code passed is incorrect or expired.", te.Description)
	assert.NotContains(t, err.Error(), testSecret)
}

func TestExchange_ServerError(t *testing.T) {
	f := newFakeGitHub(t)
	f.token = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}

	_, err := f.provider(time.Second).Exchange(context.Background(), "code")
	require.Error(t, err)
	var te *TokenError
	assert.False(t, errors.As(err, &te))
}

func TestFetchUser_SendsHeaders(t *testing.T) {
	f := newFakeGitHub(t)
	var got http.Header
	f.user = func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeTestJSON(w, http.StatusOK, map[string]any{"id": 7, "login": "seven"})
	}

	u, err := f.provider(time.Second).FetchUser(context.Background(), &oauth2.Token{AccessToken: "gho_test"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "seven", u.Login)

	assert.Equal(t, "Bearer gho_test", got.Get("Authorization"))
	assert.Equal(t, "faucet-app", got.Get("User-Agent"))
	assert.Equal(t, "application/vnd.github+json", got.Get("Accept"))
}

func TestFetchUser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		}},
		{"malformed JSON", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":`))
		}},
		{"zero id", func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, map[string]any{"login": "ghost"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeGitHub(t)
			f.user = tt.handler
			_, err := f.provider(time.Second).FetchUser(context.Background(), &oauth2.Token{AccessToken: "gho_test"})
			assert.Error(t, err)
		})
	}
}

func TestFetchUser_Timeout(t *testing.T) {
	f := newFakeGitHub(t)
	f.user = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}

	_, err := f.provider(50*time.Millisecond).FetchUser(context.Background(), &oauth2.Token{AccessToken: "gho_test"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "error = %v, want deadline exceeded", err)
}

func TestFetchEmails(t *testing.T) {
	f := newFakeGitHub(t)
	f.emails = func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, []map[string]any{
			{"email": "other@example.com", "primary": false},
			{"email": "main@example.com", "primary": true, "verified": true},
		})
	}

	emails, err := f.provider(time.Second).FetchEmails(context.Background(), &oauth2.Token{AccessToken: "gho_test"})
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, "main@example.com", emails[1].Email)
	assert.True(t, emails[1].Primary)
}

func TestNewGitHubProvider_Defaults(t *testing.T) {
	p := NewGitHubProvider(Config{ClientID: "id", ClientSecret: testSecret, APIBaseURL: "http://example.test/"})
	assert.Equal(t, "http://example.test", p.apiBaseURL)
	assert.Equal(t, DefaultTimeout, p.timeout)
	assert.Equal(t, oauth2.AuthStyleInParams, p.config.Endpoint.AuthStyle)
	assert.True(t, strings.HasPrefix(p.config.Endpoint.TokenURL, "https://github.com/"))
}
