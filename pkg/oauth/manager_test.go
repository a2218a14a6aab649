package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	httpclient "github.com/natserract/amocrm/pkg/http"
	"github.com/natserract/amocrm/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	ts      *TokenSet
	saves   int
	loadErr error
}

func (s *memStore) Load(ctx context.Context) (TokenSet, bool, error) {
	if s.loadErr != nil {
		return TokenSet{}, false, s.loadErr
	}
	if s.ts == nil {
		return TokenSet{}, false, nil
	}
	return *s.ts, true, nil
}

func (s *memStore) Save(ctx context.Context, ts TokenSet) error {
	s.saves++
	s.ts = &ts
	return nil
}

func (s *memStore) Delete(ctx context.Context) error {
	s.ts = nil
	return nil
}

type tokenServer struct {
	mu       sync.Mutex
	requests []grantRequest
	replies  []string
	status   int
}

func (ts *tokenServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		defer ts.mu.Unlock()

		assert.Equal(t, "/oauth2/access_token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req grantRequest
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))
		ts.requests = append(ts.requests, req)

		if ts.status != 0 {
			w.WriteHeader(ts.status)
		}
		n := len(ts.requests) - 1
		if n >= len(ts.replies) {
			n = len(ts.replies) - 1
		}
		_, _ = io.WriteString(w, ts.replies[n])
	}
}

func (ts *tokenServer) calls() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.requests)
}

const validReply = `{"token_type":"Bearer","expires_in":86400,"access_token":"access-new","refresh_token":"refresh-new"}`

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, srv *tokenServer, store Store) *Manager {
	t.Helper()
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	dispatcher := httpclient.NewDispatcher(httpclient.NewClientWithLogger(zap.NewNop()), ratelimit.NewWithClock(1000, nil), zap.NewNop())
	dispatcher.SetRetryInterval(time.Millisecond)

	m := NewManager(Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://example.com/callback",
		BaseDomain:   server.URL,
	}, dispatcher, store, zap.NewNop())
	m.SetClock(func() time.Time { return fixedNow })
	m.SetRetryInterval(time.Millisecond)
	dispatcher.SetAuthenticator(m)
	return m
}

func TestManager_ExchangeAuthorizationCode(t *testing.T) {
	srv := &tokenServer{replies: []string{validReply}}
	store := &memStore{}
	m := newTestManager(t, srv, store)

	ts, err := m.ExchangeAuthorizationCode(context.Background(), "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "access-new", ts.AccessToken)
	assert.Equal(t, "refresh-new", ts.RefreshToken)
	assert.Equal(t, int64(86400), ts.ExpiresIn)
	assert.Equal(t, fixedNow.Unix(), ts.CreatedAt)
	assert.Zero(t, store.saves, "exchange must not persist")

	require.Equal(t, 1, srv.calls())
	req := srv.requests[0]
	assert.Equal(t, "authorization_code", req.GrantType)
	assert.Equal(t, "auth-code", req.Code)
	assert.Equal(t, "client-id", req.ClientID)
	assert.Equal(t, "client-secret", req.ClientSecret)
	assert.Equal(t, "https://example.com/callback", req.RedirectURI)

	require.NoError(t, m.Save(context.Background(), ts))
	assert.True(t, m.IsAuthorized(context.Background()))
}

func TestManager_ExchangeAuthorizationCode_MissingRefreshToken(t *testing.T) {
	srv := &tokenServer{replies: []string{`{"token_type":"Bearer","expires_in":86400,"access_token":"a"}`}}
	m := newTestManager(t, srv, &memStore{})
	m.SetRetryInterval(20 * time.Millisecond)

	start := time.Now()
	_, err := m.ExchangeAuthorizationCode(context.Background(), "code")

	require.ErrorIs(t, err, ErrInvalidTokenResponse)
	assert.Equal(t, GrantAttempts, srv.calls())
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond, "expected a pause between each attempt")
}

func TestManager_ExchangeAuthorizationCode_RecoversOnRetry(t *testing.T) {
	srv := &tokenServer{replies: []string{`{"token_type":"bearer"}`, validReply}}
	m := newTestManager(t, srv, &memStore{})

	ts, err := m.ExchangeAuthorizationCode(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "access-new", ts.AccessToken)
	assert.Equal(t, 2, srv.calls())
}

func TestManager_ExchangeAuthorizationCode_HTTPErrorNotRetried(t *testing.T) {
	srv := &tokenServer{status: http.StatusBadRequest, replies: []string{`{"hint":"Authorization code has expired"}`}}
	m := newTestManager(t, srv, &memStore{})

	_, err := m.ExchangeAuthorizationCode(context.Background(), "code")

	var httpErr *httpclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.NotErrorIs(t, err, ErrInvalidTokenResponse)
	assert.Equal(t, 1, srv.calls())
}

func TestParseTokenResponse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		expiresIn int64
		wantErr   bool
	}{
		{name: "valid", body: validReply, expiresIn: 86400},
		{name: "numeric string expires_in", body: `{"token_type":"Bearer","expires_in":"3600","access_token":"a","refresh_token":"r"}`, expiresIn: 3600},
		{name: "fractional expires_in", body: `{"token_type":"Bearer","expires_in":3600.9,"access_token":"a","refresh_token":"r"}`, expiresIn: 3600},
		{name: "non numeric expires_in", body: `{"token_type":"Bearer","expires_in":"soon","access_token":"a","refresh_token":"r"}`, wantErr: true},
		{name: "zero expires_in", body: `{"token_type":"Bearer","expires_in":0,"access_token":"a","refresh_token":"r"}`, wantErr: true},
		{name: "negative expires_in", body: `{"token_type":"Bearer","expires_in":-5,"access_token":"a","refresh_token":"r"}`, wantErr: true},
		{name: "wrong token type", body: `{"token_type":"bearer","expires_in":60,"access_token":"a","refresh_token":"r"}`, wantErr: true},
		{name: "access token not a string", body: `{"token_type":"Bearer","expires_in":60,"access_token":1,"refresh_token":"r"}`, wantErr: true},
		{name: "missing access token", body: `{"token_type":"Bearer","expires_in":60,"refresh_token":"r"}`, wantErr: true},
		{name: "null refresh token", body: `{"token_type":"Bearer","expires_in":60,"access_token":"a","refresh_token":null}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := parseTokenResponse([]byte(tt.body), fixedNow)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTokenResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expiresIn, ts.ExpiresIn)
			assert.Equal(t, fixedNow.Unix(), ts.CreatedAt)
		})
	}
}

func TestManager_AccessToken_FreshDoesNotRefresh(t *testing.T) {
	srv := &tokenServer{replies: []string{validReply}}
	store := &memStore{ts: &TokenSet{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		TokenType:    TokenTypeBearer,
		ExpiresIn:    3600,
		CreatedAt:    fixedNow.Add(-30 * time.Minute).Unix(),
	}}
	m := newTestManager(t, srv, store)

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-old", token)
	assert.Zero(t, srv.calls())
	assert.Zero(t, store.saves)
}

func TestManager_AccessToken_StaleRefreshesOnce(t *testing.T) {
	tests := []struct {
		name      string
		createdAt time.Time
	}{
		{name: "inside safety margin", createdAt: fixedNow.Add(-3600*time.Second + 60*time.Second)},
		{name: "thirty seconds left", createdAt: fixedNow.Add(-3570 * time.Second)},
		{name: "already expired", createdAt: fixedNow.Add(-2 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &tokenServer{replies: []string{validReply}}
			store := &memStore{ts: &TokenSet{
				AccessToken:  "access-old",
				RefreshToken: "refresh-old",
				TokenType:    TokenTypeBearer,
				ExpiresIn:    3600,
				CreatedAt:    tt.createdAt.Unix(),
			}}
			m := newTestManager(t, srv, store)

			token, err := m.AccessToken(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "access-new", token)

			require.Equal(t, 1, srv.calls())
			assert.Equal(t, "refresh_token", srv.requests[0].GrantType)
			assert.Equal(t, "refresh-old", srv.requests[0].RefreshToken)
			assert.Equal(t, fixedNow.Unix(), store.ts.CreatedAt)
			assert.Equal(t, "refresh-new", store.ts.RefreshToken)
		})
	}
}

func TestManager_AccessToken_RefreshFailure(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		reply       string
		wantCalls   int
		wantDropped bool
	}{
		{name: "revoked refresh token", status: http.StatusUnauthorized, reply: `{"hint":"Token has been revoked"}`, wantCalls: 1, wantDropped: true},
		{name: "bad request", status: http.StatusBadRequest, reply: `{"title":"Bad Request"}`, wantCalls: 1, wantDropped: true},
		{name: "malformed token response", reply: `{"access_token":"a"}`, wantCalls: GrantAttempts, wantDropped: true},
		{name: "server error keeps session", status: http.StatusBadGateway, reply: `{}`, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &tokenServer{replies: []string{tt.reply}, status: tt.status}
			store := &memStore{ts: &TokenSet{
				AccessToken:  "access-old",
				RefreshToken: "refresh-old",
				TokenType:    TokenTypeBearer,
				ExpiresIn:    3600,
				CreatedAt:    fixedNow.Add(-48 * time.Hour).Unix(),
			}}
			m := newTestManager(t, srv, store)
			ctx := context.Background()

			_, err := m.AccessToken(ctx)
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, srv.calls())
			assert.Equal(t, tt.wantDropped, errors.Is(err, httpclient.ErrReauthRequired))
			assert.Equal(t, !tt.wantDropped, m.IsAuthorized(ctx))

			if tt.wantDropped {
				_, err = m.AccessToken(ctx)
				assert.ErrorIs(t, err, ErrUnauthenticated)
				assert.Equal(t, tt.wantCalls, srv.calls(), "no further grant requests")

				state, err := m.State(ctx)
				require.NoError(t, err)
				assert.Equal(t, StateUnauthenticated, state)
			}
		})
	}
}

func TestManager_AccessToken_Unauthenticated(t *testing.T) {
	m := newTestManager(t, &tokenServer{replies: []string{validReply}}, &memStore{})

	_, err := m.AccessToken(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestManager_AccessToken_StoreError(t *testing.T) {
	loadErr := errors.New("disk on fire")
	m := newTestManager(t, &tokenServer{replies: []string{validReply}}, &memStore{loadErr: loadErr})

	_, err := m.AccessToken(context.Background())
	require.ErrorIs(t, err, loadErr)
	assert.False(t, m.IsAuthorized(context.Background()))
}

func TestManager_ForceRefresh(t *testing.T) {
	srv := &tokenServer{replies: []string{validReply}}
	store := &memStore{ts: &TokenSet{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		TokenType:    TokenTypeBearer,
		ExpiresIn:    86400,
		CreatedAt:    fixedNow.Unix(),
	}}
	m := newTestManager(t, srv, store)

	ts, err := m.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-new", ts.AccessToken)
	assert.Equal(t, 1, srv.calls())
	assert.Equal(t, 1, store.saves)
}

func TestManager_ForceRefresh_InvalidResponseKeepsOldSet(t *testing.T) {
	srv := &tokenServer{replies: []string{`{"access_token":"a"}`}}
	old := TokenSet{AccessToken: "access-old", RefreshToken: "refresh-old", TokenType: TokenTypeBearer, ExpiresIn: 60, CreatedAt: fixedNow.Unix()}
	store := &memStore{ts: &old}
	m := newTestManager(t, srv, store)

	_, err := m.ForceRefresh(context.Background())
	require.ErrorIs(t, err, ErrInvalidTokenResponse)
	assert.Equal(t, GrantAttempts, srv.calls())
	assert.Equal(t, old, *store.ts)
}

func TestManager_LogoutAndState(t *testing.T) {
	store := &memStore{ts: &TokenSet{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    TokenTypeBearer,
		ExpiresIn:    3600,
		CreatedAt:    fixedNow.Unix(),
	}}
	m := newTestManager(t, &tokenServer{replies: []string{validReply}}, store)
	ctx := context.Background()

	state, err := m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFresh, state)

	m.SetClock(func() time.Time { return fixedNow.Add(59*time.Minute + 30*time.Second) })
	state, err = m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateStale, state)

	require.NoError(t, m.Logout(ctx))
	require.NoError(t, m.Logout(ctx))
	assert.False(t, m.IsAuthorized(ctx))

	state, err = m.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, state)
	assert.Equal(t, "unauthenticated", state.String())
}

func TestManager_AuthorizationURL(t *testing.T) {
	m := newTestManager(t, &tokenServer{replies: []string{validReply}}, &memStore{})

	u, err := url.Parse(m.AuthorizationURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "www.amocrm.ru", u.Host)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "post_message", u.Query().Get("mode"))
}

func TestTokenSet_UnmarshalJSON(t *testing.T) {
	var ts TokenSet
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":60,"created_at":1700000000}`), &ts))
	assert.Equal(t, int64(1700000000), ts.CreatedAt)

	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":60,"createdAt":1700000001}`), &ts))
	assert.Equal(t, int64(1700000001), ts.CreatedAt)
	assert.Equal(t, time.Unix(1700000061, 0), ts.ExpiresAt())

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"a","refresh_token":"r","token_type":"Bearer","expires_in":60,"created_at":1700000001}`, string(data))
}
