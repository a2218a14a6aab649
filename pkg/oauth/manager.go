// Package oauth manages the amoCRM OAuth2 session: authorization-code and
// refresh-token grants, token validation, staleness checks and persistence.
//
// The Manager is the only owner of the token set. Stores are plain durable
// slots; every authenticated call obtains its bearer token through
// Manager.AccessToken, which refreshes the session transparently when it is
// about to expire.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	httpclient "github.com/natserract/amocrm/pkg/http"
	"go.uber.org/zap"
)

const (
	// GrantAttempts is the number of grant requests made before giving up on
	// malformed token responses (the first one plus two retries).
	GrantAttempts = 3
	// DefaultGrantRetryInterval is the pause between grant attempts.
	DefaultGrantRetryInterval = time.Second

	consentURL = "https://www.amocrm.ru/oauth"
)

// Store is a durable slot holding at most one token set.
type Store interface {
	// Load returns the stored set; found is false when nothing is stored.
	Load(ctx context.Context) (ts TokenSet, found bool, err error)
	Save(ctx context.Context, ts TokenSet) error
	// Delete removes the stored set and succeeds when it is already absent.
	Delete(ctx context.Context) error
}

// Credentials identify the integration. They never change during the
// lifetime of a Manager.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseDomain   string
}

// State is the session state derived from the stored token set.
type State int

const (
	StateUnauthenticated State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "authenticated"
	case StateStale:
		return "stale"
	default:
		return "unauthenticated"
	}
}

type grantRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
}

type Manager struct {
	creds         Credentials
	baseURL       string
	dispatcher    *httpclient.Dispatcher
	store         Store
	logger        *zap.Logger
	now           func() time.Time
	retryInterval time.Duration
}

// NewManager creates a token manager. The dispatcher is used for grant
// requests only; callers that want authenticated requests should register
// the manager with Dispatcher.SetAuthenticator.
func NewManager(creds Credentials, dispatcher *httpclient.Dispatcher, store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		creds:         creds,
		baseURL:       httpclient.BaseURL(creds.BaseDomain),
		dispatcher:    dispatcher,
		store:         store,
		logger:        logger,
		now:           time.Now,
		retryInterval: DefaultGrantRetryInterval,
	}
}

// SetClock replaces the time source used for stamping and staleness.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetRetryInterval overrides the pause between grant attempts.
func (m *Manager) SetRetryInterval(interval time.Duration) {
	m.retryInterval = interval
}

// AuthorizationURL returns the consent page the user must visit to obtain an
// authorization code.
func (m *Manager) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", m.creds.ClientID)
	q.Set("state", state)
	q.Set("mode", "post_message")
	return consentURL + "?" + q.Encode()
}

// ExchangeAuthorizationCode trades a code for a token set. The result is not
// persisted; call Save once the caller accepts it.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, code string) (TokenSet, error) {
	m.logger.Info("Exchanging authorization code")
	ts, err := m.grant(ctx, grantRequest{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  m.creds.RedirectURI,
	})
	if err != nil {
		m.logger.Error("Authorization code exchange failed", zap.Error(err))
		return TokenSet{}, err
	}
	m.logger.Info("Authorization code exchanged", zap.Time("expires_at", ts.ExpiresAt()))
	return ts, nil
}

// Refresh trades the refresh token of ts for a new set and persists it.
func (m *Manager) Refresh(ctx context.Context, ts TokenSet) (TokenSet, error) {
	m.logger.Info("Refreshing access token")
	fresh, err := m.grant(ctx, grantRequest{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		GrantType:    "refresh_token",
		RefreshToken: ts.RefreshToken,
		RedirectURI:  m.creds.RedirectURI,
	})
	if err != nil {
		m.logger.Error("Token refresh failed", zap.Error(err))
		return TokenSet{}, err
	}
	if err := m.Save(ctx, fresh); err != nil {
		return TokenSet{}, err
	}
	m.logger.Info("Access token refreshed", zap.Time("expires_at", fresh.ExpiresAt()))
	return fresh, nil
}

// Save persists ts as the current session.
func (m *Manager) Save(ctx context.Context, ts TokenSet) error {
	if err := ts.Validate(); err != nil {
		return err
	}
	if err := m.store.Save(ctx, ts); err != nil {
		m.logger.Error("Failed to save tokens", zap.Error(err))
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

// AccessToken returns a usable access token, refreshing the stored set first
// when it is stale. When the grant endpoint rejects the refresh the session is
// deleted and the error wraps httpclient.ErrReauthRequired.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	ts, err := m.load(ctx)
	if err != nil {
		return "", err
	}

	if ts.IsStale(m.now()) {
		m.logger.Info("Access token is stale", zap.Time("expires_at", ts.ExpiresAt()))
		ts, err = m.Refresh(ctx, ts)
		if err != nil {
			if grantRejected(err) {
				return "", m.dropSession(ctx, err)
			}
			return "", fmt.Errorf("failed to refresh access token: %w", err)
		}
	}

	return ts.AccessToken, nil
}

// grantRejected reports refresh failures that retrying cannot fix: malformed
// token responses and 4xx answers from the grant endpoint. Network errors and
// 5xx keep the session.
func grantRejected(err error) bool {
	if errors.Is(err, ErrInvalidTokenResponse) {
		return true
	}
	status := httpclient.StatusCode(err)
	return status >= 400 && status < 500
}

// dropSession deletes a session whose refresh token no longer works.
func (m *Manager) dropSession(ctx context.Context, cause error) error {
	m.logger.Error("Refresh token rejected, logging out", zap.Error(cause))
	if err := m.Logout(ctx); err != nil {
		return fmt.Errorf("%w: %w (logout failed: %v)", httpclient.ErrReauthRequired, cause, err)
	}
	return fmt.Errorf("%w: %w", httpclient.ErrReauthRequired, cause)
}

// ForceRefresh refreshes the stored set regardless of its expiry.
func (m *Manager) ForceRefresh(ctx context.Context) (TokenSet, error) {
	ts, err := m.load(ctx)
	if err != nil {
		return TokenSet{}, err
	}
	return m.Refresh(ctx, ts)
}

// Reauthenticate implements httpclient.Authenticator.
func (m *Manager) Reauthenticate(ctx context.Context) error {
	_, err := m.ForceRefresh(ctx)
	return err
}

// Logout deletes the stored set. It is a no-op when nothing is stored.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Delete(ctx); err != nil {
		m.logger.Error("Failed to delete tokens", zap.Error(err))
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	m.logger.Info("Logged out")
	return nil
}

// IsAuthorized reports whether a token set is stored. Validity is not
// checked.
func (m *Manager) IsAuthorized(ctx context.Context) bool {
	_, found, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("Failed to load tokens", zap.Error(err))
		return false
	}
	return found
}

// State reports the current session state.
func (m *Manager) State(ctx context.Context) (State, error) {
	ts, found, err := m.store.Load(ctx)
	if err != nil {
		return StateUnauthenticated, fmt.Errorf("failed to load tokens: %w", err)
	}
	if !found {
		return StateUnauthenticated, nil
	}
	if ts.IsStale(m.now()) {
		return StateStale, nil
	}
	return StateFresh, nil
}

func (m *Manager) load(ctx context.Context) (TokenSet, error) {
	ts, found, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("Failed to load tokens", zap.Error(err))
		return TokenSet{}, fmt.Errorf("failed to load tokens: %w", err)
	}
	if !found {
		return TokenSet{}, ErrUnauthenticated
	}
	return ts, nil
}

// grant posts req to the token endpoint, retrying malformed token responses.
// Transport and HTTP failures are returned unchanged without retrying.
func (m *Manager) grant(ctx context.Context, req grantRequest) (TokenSet, error) {
	endpoint := m.baseURL + "/oauth2/access_token"
	attempt := 0

	operation := func() (TokenSet, error) {
		attempt++
		resp, err := m.dispatcher.Send(ctx, httpclient.Request{
			Method:  http.MethodPost,
			URL:     endpoint,
			Body:    req,
			Retries: httpclient.DefaultRetries,
		})
		if err != nil {
			return TokenSet{}, backoff.Permanent(err)
		}

		ts, err := parseTokenResponse(resp.Body, m.now())
		if err != nil {
			m.logger.Warn("Invalid token response",
				zap.String("grant_type", req.GrantType),
				zap.Int("attempts_left", GrantAttempts-attempt),
				zap.String("response", string(resp.Body)),
				zap.Error(err))
			return TokenSet{}, err
		}
		return ts, nil
	}

	ts, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(m.retryInterval)),
		backoff.WithMaxTries(GrantAttempts),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return TokenSet{}, permanent.Unwrap()
		}
		return TokenSet{}, err
	}
	return ts, nil
}
