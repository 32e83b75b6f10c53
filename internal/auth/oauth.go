// Package auth talks to GitHub: the OAuth token endpoint and the REST API.
//
// It knows nothing about users in our database. It turns an authorization code
// into an access token and an access token into GitHub's view of the account.
// Deciding what to store is the job of service.AuthService.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	// DefaultAPIBaseURL is the GitHub REST API root.
	DefaultAPIBaseURL = "https://api.github.com"

	// DefaultTimeout bounds each outbound call when Config.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	// GitHub rejects API requests that carry no User-Agent.
	userAgent = "faucet-app"

	// emailScope is the only scope requested. It grants read access to the
	// account's email list, and the public profile is always readable.
	emailScope = "user:email"
)

// GitHubUser is the portion of the GitHub /user API response we care about.
// GitHub returns a much larger object — we only unmarshal the fields we need.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type GitHubUser struct {
	ID        int64  `json:"id"`         // GitHub's numeric user ID — stable, never changes
	Login     string `json:"login"`      // GitHub username, e.g. "sakif"
	Email     string `json:"email"`      // Public email (empty if hidden in GitHub settings)
	AvatarURL string `json:"avatar_url"` // Profile picture URL
}

// GitHubEmail is one entry of GET /user/emails.
type GitHubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// TokenError is returned by Exchange when the token endpoint answered but
// refused the code, e.g. {"error":"bad_verification_code"}.
//
// GitHub reports these with HTTP 200 and an "error" field in the body, so a
// plain status check is not enough to tell success from failure.
type TokenError struct {
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	if e.Description == "" {
		return "auth: token endpoint error: " + e.Code
	}
	return fmt.Sprintf("auth: token endpoint error: %s: %s", e.Code, e.Description)
}

// Config holds what NewGitHubProvider needs.
// Endpoint, APIBaseURL and HTTPClient are only set by tests; zero values mean
// the real GitHub.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	Endpoint   oauth2.Endpoint
	APIBaseURL string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GitHubProvider wraps golang.org/x/oauth2 for the GitHub Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. The frontend asks us for the authorization URL and sends the user there.
// 2. The user approves (or denies) the authorization request on GitHub.
// 3. GitHub redirects back to our callback with a short-lived "code".
// 4. We exchange the code for an access token (server-to-server call).
// 5. We use the access token to call the GitHub API for user info.
//
// WHY SERVER-SIDE EXCHANGE?
// The code-for-token exchange happens server-to-server, using the ClientSecret.
// The access token never touches the client's browser.
type GitHubProvider struct {
	config     *oauth2.Config
	apiBaseURL string
	timeout    time.Duration
	httpClient *http.Client
}

// NewGitHubProvider creates a GitHubProvider with the given credentials.
//
// You get ClientID and ClientSecret by registering an OAuth App at:
// https://github.com/settings/developers → "OAuth Apps" → "New OAuth App"
//
// CallbackURL may be empty, in which case GitHub uses the callback registered
// with the OAuth App.
func NewGitHubProvider(cfg Config) *GitHubProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}
	// AUTH STYLE:
	// Left on auto-detect, oauth2 retries a failed exchange with the other
	// credential style. An authorization code is single-use, so the retry can
	// only fail, and it hides the first (real) error. GitHub accepts the
	// credentials in the form body.
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{emailScope},
			Endpoint:     endpoint,
		},
		apiBaseURL: apiBase,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// AuthURL returns the URL to send the user to for authorization, e.g.
//
//	https://github.com/login/oauth/authorize?client_id=X&response_type=code&scope=user%3Aemail
//
// No state parameter is attached: there is no session to bind it to.
func (p *GitHubProvider) AuthURL() string {
	return p.config.AuthCodeURL("")
}

// Exchange trades the authorization code for an access token.
//
// This makes a POST to GitHub's token endpoint using our ClientSecret. A
// refusal from GitHub comes back as *TokenError; anything else (network,
// timeout, malformed body) is wrapped as-is.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(p.clientContext(ctx), p.timeout)
	defer cancel()

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode != "" {
			return nil, &TokenError{Code: re.ErrorCode, Description: re.ErrorDescription}
		}
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	return token, nil
}

// FetchUser calls GET /user with the token.
func (p *GitHubProvider) FetchUser(ctx context.Context, token *oauth2.Token) (*GitHubUser, error) {
	var ghUser GitHubUser
	if err := p.getJSON(ctx, token, "/user", &ghUser); err != nil {
		return nil, err
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}
	return &ghUser, nil
}

// FetchEmails calls GET /user/emails with the token.
func (p *GitHubProvider) FetchEmails(ctx context.Context, token *oauth2.Token) ([]GitHubEmail, error) {
	var emails []GitHubEmail
	if err := p.getJSON(ctx, token, "/user/emails", &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// getJSON performs an authenticated GET against the API and decodes the body into v.
func (p *GitHubProvider) getJSON(ctx context.Context, token *oauth2.Token, path string, v any) error {
	ctx, cancel := context.WithTimeout(p.clientContext(ctx), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building GitHub %s request: %w", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	// oauth2.Config.Client returns an *http.Client that adds
	// "Authorization: Bearer <token>" to every request.
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling GitHub %s API: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("auth: GitHub %s API returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("auth: decoding GitHub %s response: %w", path, err)
	}
	return nil
}

// clientContext tells oauth2 which *http.Client to use for the token request
// and as the base transport for API calls.
func (p *GitHubProvider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
