// Package amocrm is a client for the amoCRM REST API v4.
//
// All resource calls go through one rate-limited dispatcher and obtain their
// bearer token from an oauth.Manager, which refreshes the session when it is
// about to expire. Create operations repair values that do not match the
// declared type of their custom field and resubmit.
package amocrm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	httpclient "github.com/natserract/amocrm/pkg/http"
	"github.com/natserract/amocrm/pkg/oauth"
	"github.com/natserract/amocrm/pkg/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	// DefaultWriteAttempts bounds the corrective write loop.
	DefaultWriteAttempts = 3
)

// Client is the amoCRM API client. One Client owns one session and one
// throttle window; it is not meant for concurrent use.
type Client struct {
	baseURL    string
	dispatcher *httpclient.Dispatcher
	tokens     *oauth.Manager
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a client with the default production logger.
func NewClient(creds oauth.Credentials, store oauth.Store) *Client {
	logger, _ := zap.NewProduction()
	return NewClientWithLogger(creds, store, logger)
}

// NewClientWithLogger creates a client with a custom logger.
func NewClientWithLogger(creds oauth.Credentials, store oauth.Store, logger *zap.Logger) *Client {
	return NewClientWithTransport(creds, store, httpclient.NewClientWithLogger(logger), logger)
}

// NewClientWithTransport creates a client that sends requests through
// transport.
func NewClientWithTransport(creds oauth.Credentials, store oauth.Store, transport *httpclient.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	dispatcher := httpclient.NewDispatcher(transport, ratelimit.New(), logger)
	tokens := oauth.NewManager(creds, dispatcher, store, logger)
	dispatcher.SetAuthenticator(tokens)

	return &Client{
		baseURL:    httpclient.BaseURL(creds.BaseDomain),
		dispatcher: dispatcher,
		tokens:     tokens,
		logger:     logger,
		now:        time.Now,
	}
}

// Tokens returns the session manager.
func (c *Client) Tokens() *oauth.Manager {
	return c.tokens
}

// LastErrorResponse returns the body of the most recent non-200 response.
func (c *Client) LastErrorResponse() []byte {
	return c.dispatcher.LastErrorResponse()
}

func (c *Client) AuthorizationURL(state string) string {
	return c.tokens.AuthorizationURL(state)
}

// Authorized reports whether a session is stored.
func (c *Client) Authorized(ctx context.Context) bool {
	return c.tokens.IsAuthorized(ctx)
}

func (c *Client) SessionState(ctx context.Context) (oauth.State, error) {
	return c.tokens.State(ctx)
}

// Login exchanges an authorization code and stores the resulting session.
func (c *Client) Login(ctx context.Context, code string) (oauth.TokenSet, error) {
	ts, err := c.tokens.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return oauth.TokenSet{}, err
	}
	if err := c.tokens.Save(ctx, ts); err != nil {
		return oauth.TokenSet{}, err
	}
	return ts, nil
}

// RefreshSession refreshes the stored session regardless of its expiry.
func (c *Client) RefreshSession(ctx context.Context) (oauth.TokenSet, error) {
	return c.tokens.ForceRefresh(ctx)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.Logout(ctx)
}

// Account retrieves the account the session belongs to.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	c.logger.Info("Getting account")

	resp, err := c.get(ctx, "/api/v4/account", nil)
	if err != nil {
		c.logger.Error("Get account failed", zap.Error(err))
		return nil, fmt.Errorf("get account failed: %w", err)
	}

	var account Account
	if err := resp.Decode(&account); err != nil {
		c.logger.Error("Failed to parse account response", zap.Error(err))
		return nil, fmt.Errorf("failed to parse account response: %w", err)
	}

	c.logger.Info("Successfully retrieved account",
		zap.Int64("account_id", account.ID),
		zap.String("subdomain", account.Subdomain))
	return &account, nil
}

func (c *Client) ContactFields(ctx context.Context) ([]CustomField, error) {
	return c.customFields(ctx, KindContacts)
}

func (c *Client) LeadFields(ctx context.Context) ([]CustomField, error) {
	return c.customFields(ctx, KindLeads)
}

func (c *Client) customFields(ctx context.Context, kind EntityKind) ([]CustomField, error) {
	c.logger.Info("Getting custom fields", zap.String("entity", string(kind)))

	resp, err := c.get(ctx, "/api/v4/"+string(kind)+"/custom_fields", nil)
	if err != nil {
		if isEmptyCollection(err) {
			return []CustomField{}, nil
		}
		c.logger.Error("Get custom fields failed", zap.String("entity", string(kind)), zap.Error(err))
		return nil, fmt.Errorf("get %s custom fields failed: %w", kind, err)
	}

	var parsed customFieldsResponse
	if err := resp.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse custom fields response: %w", err)
	}

	fields := parsed.Embedded.CustomFields
	if fields == nil {
		fields = []CustomField{}
	}
	c.logger.Info("Successfully retrieved custom fields",
		zap.String("entity", string(kind)),
		zap.Int("items_count", len(fields)))
	return fields, nil
}

// Contacts lists one page of contacts. Non-positive page and limit fall back
// to DefaultPage and DefaultLimit.
func (c *Client) Contacts(ctx context.Context, page, limit int) ([]Contact, error) {
	c.logger.Info("Getting contacts", zap.Int("page", page), zap.Int("limit", limit))

	resp, err := c.get(ctx, "/api/v4/contacts", pageParams(page, limit))
	if err != nil {
		if isEmptyCollection(err) {
			return []Contact{}, nil
		}
		c.logger.Error("Get contacts failed", zap.Error(err))
		return nil, fmt.Errorf("get contacts failed: %w", err)
	}

	var parsed contactsResponse
	if err := resp.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse contacts response: %w", err)
	}

	contacts := parsed.Embedded.Contacts
	if contacts == nil {
		contacts = []Contact{}
	}
	c.logger.Info("Successfully retrieved contacts", zap.Int("items_count", len(contacts)))
	return contacts, nil
}

// Leads lists one page of leads. Non-positive page and limit fall back to
// DefaultPage and DefaultLimit.
func (c *Client) Leads(ctx context.Context, page, limit int) ([]Lead, error) {
	c.logger.Info("Getting leads", zap.Int("page", page), zap.Int("limit", limit))

	resp, err := c.get(ctx, "/api/v4/leads", pageParams(page, limit))
	if err != nil {
		if isEmptyCollection(err) {
			return []Lead{}, nil
		}
		c.logger.Error("Get leads failed", zap.Error(err))
		return nil, fmt.Errorf("get leads failed: %w", err)
	}

	var parsed leadsResponse
	if err := resp.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse leads response: %w", err)
	}

	leads := parsed.Embedded.Leads
	if leads == nil {
		leads = []Lead{}
	}
	c.logger.Info("Successfully retrieved leads", zap.Int("items_count", len(leads)))
	return leads, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string) (*httpclient.Response, error) {
	endpoint, err := httpclient.BuildURL(c.baseURL, path, query)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Making GET request", zap.String("endpoint", endpoint))
	return c.dispatcher.Send(ctx, httpclient.Request{
		Method:       http.MethodGet,
		URL:          endpoint,
		RequiresAuth: true,
		Retries:      httpclient.DefaultRetries,
	})
}

func pageParams(page, limit int) map[string]string {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}
}

// isEmptyCollection reports the 204 the API answers for a collection with
// no items.
func isEmptyCollection(err error) bool {
	var httpErr *httpclient.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNoContent
}
