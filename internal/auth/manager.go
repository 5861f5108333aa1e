// Package auth owns the OAuth credential lifecycle for a Spotify session.
//
// The [Manager] holds the access token, refresh token, and expiry instant,
// and is the only component allowed to mutate them. Refreshes are
// serialized: concurrent callers observing an expired token await a single
// in-flight token-endpoint exchange instead of racing their own.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

const (
	AuthURL  = "https://accounts.spotify.com/authorize"
	TokenURL = "https://accounts.spotify.com/api/token"
)

// Scopes is the superset of OAuth scopes the engine requires.
var Scopes = []string{
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-private",
	"playlist-modify-public",
	"user-read-email",
	"user-read-private",
}

// Credential is the OAuth credential triple plus session identity.
// Value-typed; snapshots returned by [Manager.Credential] do not alias
// manager state.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UserID       string
	Scopes       []string
}

// State enumerates the credential lifecycle.
type State int

const (
	Uninitialized State = iota
	Authenticated
	Refreshing
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// NewOAuthConfig builds the oauth2 configuration for the authorization code
// flow against the Spotify accounts service.
func NewOAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  AuthURL,
			TokenURL: TokenURL,
		},
	}
}

// Manager implements [gateway.TokenSource] over a refreshable credential.
type Manager struct {
	clientID     string
	clientSecret string
	tokenURL     string
	client       *http.Client
	logger       *log.Logger
	skew         time.Duration
	now          func() time.Time

	onRefresh func(Credential) // persistence hook, called after a commit

	mu       sync.Mutex
	state    State
	cred     Credential
	inflight chan struct{} // non-nil while a refresh is running
	lastErr  error
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	ClientID     string
	ClientSecret string
	TokenURL     string        // defaults to the Spotify accounts endpoint
	Client       *http.Client  // defaults to http.DefaultClient
	Logger       *log.Logger   // defaults to stderr
	RefreshSkew  time.Duration // default 30s
	Now          func() time.Time
}

// NewManager creates an uninitialized Manager. Call [Manager.Bootstrap]
// with the result of the authorization code exchange before use.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", shared.ErrMissingCredentials)
	}
	if opts.TokenURL == "" {
		opts.TokenURL = TokenURL
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.RefreshSkew <= 0 {
		opts.RefreshSkew = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		tokenURL:     opts.TokenURL,
		client:       opts.Client,
		logger:       opts.Logger,
		skew:         opts.RefreshSkew,
		now:          opts.Now,
		state:        Uninitialized,
	}, nil
}

// SetRefreshCallback registers a hook invoked with a credential snapshot
// after every committed refresh, used to persist rotated tokens.
func (m *Manager) SetRefreshCallback(fn func(Credential)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRefresh = fn
}

// Bootstrap seeds the manager from an authorization code exchange result.
// Expiry comes from the token's expires_in-derived instant.
func (m *Manager) Bootstrap(token *oauth2.Token, userID string, scopes []string) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrMissingCredentials)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Authenticated
	m.lastErr = nil
	m.cred = Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		UserID:       userID,
		Scopes:       scopes,
	}
	m.logger.Debug("credential bootstrapped", "user", userID, "token", shared.TokenTail(token.AccessToken))
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Credential returns a snapshot of the current credential.
func (m *Manager) Credential() Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred := m.cred
	cred.Scopes = append([]string(nil), m.cred.Scopes...)
	return cred
}

// UserID returns the authenticated user's Spotify id.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.UserID
}

// SetUserID records the user id resolved from the profile endpoint after
// bootstrap.
func (m *Manager) SetUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred.UserID = id
}

// SignOut destroys the credential.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Uninitialized
	m.cred = Credential{}
}

// Bearer returns an access token valid for at least the refresh skew
// window, refreshing first when the current one is too close to expiry.
func (m *Manager) Bearer(ctx context.Context) (string, error) {
	return m.bearer(ctx, false)
}

// Invalidate forces a refresh regardless of the recorded expiry. The
// gateway calls this after an upstream 401.
func (m *Manager) Invalidate(ctx context.Context) error {
	_, err := m.bearer(ctx, true)
	return err
}

func (m *Manager) bearer(ctx context.Context, force bool) (string, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case Uninitialized:
			m.mu.Unlock()
			return "", shared.ErrNotAuthenticated
		case Failed:
			err := m.lastErr
			m.mu.Unlock()
			if err == nil {
				err = shared.ErrAuthExpired
			}
			return "", err
		}

		if !force && m.state == Authenticated && m.now().Before(m.cred.Expiry.Add(-m.skew)) {
			token := m.cred.AccessToken
			m.mu.Unlock()
			return token, nil
		}

		if m.inflight != nil {
			// Another caller is already refreshing; a forced refresh is
			// satisfied by the one in flight.
			done := m.inflight
			m.mu.Unlock()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-done:
			}
			force = false
			continue
		}

		done := make(chan struct{})
		m.inflight = done
		m.state = Refreshing
		refreshToken := m.cred.RefreshToken
		m.mu.Unlock()

		token, err := m.exchange(ctx, refreshToken)

		m.mu.Lock()
		if err != nil {
			m.state = Failed
			m.lastErr = err
		} else {
			m.state = Authenticated
			m.cred.AccessToken = token.AccessToken
			m.cred.Expiry = token.Expiry
			if token.RefreshToken != "" {
				m.cred.RefreshToken = token.RefreshToken
			}
		}
		hook := m.onRefresh
		cred := m.cred
		m.inflight = nil
		close(done)
		m.mu.Unlock()

		if err != nil {
			return "", err
		}

		m.logger.Debug("token refreshed", "token", shared.TokenTail(cred.AccessToken), "expiry", cred.Expiry)
		if hook != nil {
			hook(cred)
		}
		return cred.AccessToken, nil
	}
}

// tokenResponse is the accounts-service token endpoint reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// exchange trades the refresh token for a new access token using HTTP Basic
// auth built from the client credentials.
func (m *Manager) exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", shared.ErrAuthExpired)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthExpired, err)
	}
	req.SetBasicAuth(m.clientID, m.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: refresh request failed: %v", shared.ErrAuthExpired, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthExpired, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: malformed token response", shared.ErrAuthExpired)
	}

	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		if tr.Error != "" {
			m.logger.Warn("token refresh denied", "error", tr.Error, "description", tr.ErrorDesc)
		}
		return nil, fmt.Errorf("%w: refresh denied (status %d, %s)", shared.ErrAuthExpired, resp.StatusCode, tr.Error)
	}

	return &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Expiry:       m.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
