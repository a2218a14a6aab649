package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/natserract/amocrm/pkg/ratelimit"
	"go.uber.org/zap"
)

const (
	// DefaultRetries is the replay budget for ordinary calls.
	DefaultRetries = 1
	// DefaultRetryInterval is the pause before replaying a 429/5xx response.
	DefaultRetryInterval = time.Second
)

// Authenticator supplies bearer tokens to the dispatcher and lets it recover
// from a rejected session.
type Authenticator interface {
	AccessToken(ctx context.Context) (string, error)
	// Reauthenticate refreshes the session regardless of its expiry.
	Reauthenticate(ctx context.Context) error
	Logout(ctx context.Context) error
}

// Request describes one logical call. Retries is the number of replays
// allowed after the first attempt.
type Request struct {
	Method       string
	URL          string
	Body         interface{}
	Headers      map[string]string
	RequiresAuth bool
	Retries      int
}

// Dispatcher sends requests through the rate limiter and the transport,
// replaying transient failures and rejected sessions within a fixed budget.
type Dispatcher struct {
	transport     *Client
	limiter       *ratelimit.Limiter
	auth          Authenticator
	logger        *zap.Logger
	retryInterval time.Duration

	mu            sync.Mutex
	lastErrorBody []byte
}

func NewDispatcher(transport *Client, limiter *ratelimit.Limiter, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &Dispatcher{
		transport:     transport,
		limiter:       limiter,
		logger:        logger,
		retryInterval: DefaultRetryInterval,
	}
}

// SetAuthenticator wires the token source used for RequiresAuth requests.
func (d *Dispatcher) SetAuthenticator(auth Authenticator) {
	d.auth = auth
}

// SetRetryInterval overrides the pause between transient retries.
func (d *Dispatcher) SetRetryInterval(interval time.Duration) {
	d.retryInterval = interval
}

// LastErrorResponse returns the body of the most recent non-200 response. It
// is nil once a later request succeeds.
func (d *Dispatcher) LastErrorResponse() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErrorBody
}

// Send performs the request and returns a response whose body is a JSON
// object.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.RequiresAuth && d.auth == nil {
		return nil, fmt.Errorf("authenticated request to %s without an authenticator", req.URL)
	}

	retries := req.Retries
	if retries < 0 {
		retries = 0
	}
	left := retries
	reauthenticated := false
	requestID := uuid.NewString()
	logger := d.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("url", req.URL))

	operation := func() (*Response, error) {
		resp, err := d.attempt(ctx, req)
		if err != nil {
			logger.Error("Request failed", zap.Error(err))
			return nil, backoff.Permanent(err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && req.RequiresAuth:
			if reauthenticated {
				d.recordErrorBody(resp.Body)
				return nil, backoff.Permanent(d.dropSession(ctx, logger, errors.New("session rejected after refresh")))
			}
			if left == 0 {
				return nil, backoff.Permanent(d.httpError(logger, req, resp))
			}
			logger.Warn("Access token rejected, refreshing session")
			if err := d.auth.Reauthenticate(ctx); err != nil {
				return nil, backoff.Permanent(d.dropSession(ctx, logger, err))
			}
			reauthenticated = true
			left--
			return nil, backoff.RetryAfter(0)

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			httpErr := d.httpError(logger, req, resp)
			if left == 0 {
				return nil, backoff.Permanent(httpErr)
			}
			left--
			return nil, httpErr

		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(d.httpError(logger, req, resp))
		}

		if !isJSONObject(resp.Body) {
			logger.Error("Invalid JSON response", zap.String("response", string(resp.Body)))
			return nil, backoff.Permanent(&InvalidResponseError{URL: req.URL, Body: resp.Body})
		}
		d.recordErrorBody(nil)
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(d.retryInterval)),
		backoff.WithMaxTries(uint(retries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Retrying request", zap.Error(err), zap.Duration("backoff", next))
		}),
	)
	if err != nil {
		return nil, unwrapPermanent(err)
	}
	return resp, nil
}

func (d *Dispatcher) attempt(ctx context.Context, req Request) (*Response, error) {
	if waited := d.limiter.Acquire(); waited > 0 {
		d.logger.Debug("Throttled request", zap.Duration("waited", waited), zap.String("url", req.URL))
	}

	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	if req.RequiresAuth {
		token, err := d.auth.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		headers["Authorization"] = "Bearer " + token
	}

	return d.transport.Do(RequestOptions{
		Method:  req.Method,
		URL:     req.URL,
		Headers: headers,
		Body:    req.Body,
		Context: ctx,
	})
}

func (d *Dispatcher) httpError(logger *zap.Logger, req Request, resp *Response) *HTTPError {
	d.recordErrorBody(resp.Body)
	logger.Warn("HTTP error",
		zap.Int("status", resp.StatusCode),
		zap.String("response", string(resp.Body)))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		URL:        req.URL,
		Body:       resp.Body,
	}
}

func (d *Dispatcher) recordErrorBody(body []byte) {
	d.mu.Lock()
	d.lastErrorBody = body
	d.mu.Unlock()
}

// dropSession clears the stored tokens after an unrecoverable 401.
func (d *Dispatcher) dropSession(ctx context.Context, logger *zap.Logger, cause error) error {
	logger.Error("Session cannot be recovered, logging out", zap.Error(cause))
	if err := d.auth.Logout(ctx); err != nil {
		logger.Error("Failed to clear stored tokens", zap.Error(err))
	}
	return fmt.Errorf("%w: %w", ErrReauthRequired, cause)
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}

func isJSONObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
