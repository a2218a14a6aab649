package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// TokenTypeBearer is the only token type the platform issues.
	TokenTypeBearer = "Bearer"
	// StalenessMargin is how long before expiry a token set is refreshed.
	StalenessMargin = 60 * time.Second
)

var (
	// ErrInvalidTokenResponse means the grant endpoint kept answering with a
	// body that is not a usable token set.
	ErrInvalidTokenResponse = errors.New("invalid token response")
	// ErrUnauthenticated means there is no stored token set.
	ErrUnauthenticated = errors.New("not authenticated")
)

// TokenSet is the access/refresh token pair issued by a grant exchange.
// CreatedAt is a unix timestamp stamped locally when the set was received.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	CreatedAt    int64  `json:"created_at"`
}

// UnmarshalJSON also accepts the createdAt key written by older token files.
func (t *TokenSet) UnmarshalJSON(data []byte) error {
	type plain TokenSet
	var aux struct {
		plain
		CreatedAtLegacy *int64 `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = TokenSet(aux.plain)
	if t.CreatedAt == 0 && aux.CreatedAtLegacy != nil {
		t.CreatedAt = *aux.CreatedAtLegacy
	}
	return nil
}

// ExpiresAt is the moment the access token stops being accepted.
func (t TokenSet) ExpiresAt() time.Time {
	return time.Unix(t.CreatedAt+t.ExpiresIn, 0)
}

// IsStale reports whether the set is within StalenessMargin of expiry, or
// already expired, at now.
func (t TokenSet) IsStale(now time.Time) bool {
	return !now.Before(t.ExpiresAt().Add(-StalenessMargin))
}

// Validate checks the fields every usable token set must carry.
func (t TokenSet) Validate() error {
	switch {
	case t.AccessToken == "":
		return fmt.Errorf("%w: missing access_token", ErrInvalidTokenResponse)
	case t.RefreshToken == "":
		return fmt.Errorf("%w: missing refresh_token", ErrInvalidTokenResponse)
	case t.TokenType != TokenTypeBearer:
		return fmt.Errorf("%w: unexpected token_type %q", ErrInvalidTokenResponse, t.TokenType)
	case t.ExpiresIn <= 0:
		return fmt.Errorf("%w: expires_in must be positive", ErrInvalidTokenResponse)
	}
	return nil
}

// parseTokenResponse validates a grant endpoint body and stamps the issuance
// time. expires_in may be a JSON number or a numeric string.
func parseTokenResponse(body []byte, now time.Time) (TokenSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return TokenSet{}, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
	}

	ts := TokenSet{CreatedAt: now.Unix()}
	var err error
	if ts.AccessToken, err = stringField(raw, "access_token"); err != nil {
		return TokenSet{}, err
	}
	if ts.RefreshToken, err = stringField(raw, "refresh_token"); err != nil {
		return TokenSet{}, err
	}
	if ts.TokenType, err = stringField(raw, "token_type"); err != nil {
		return TokenSet{}, err
	}
	if ts.ExpiresIn, err = numericField(raw, "expires_in"); err != nil {
		return TokenSet{}, err
	}

	if err := ts.Validate(); err != nil {
		return TokenSet{}, err
	}
	return ts, nil
}

func stringField(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidTokenResponse, key)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrInvalidTokenResponse, key)
	}
	return s, nil
}

func numericField(raw map[string]json.RawMessage, key string) (int64, error) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidTokenResponse, key)
	}

	var text string
	var num json.Number
	if err := json.Unmarshal(v, &num); err == nil {
		text = num.String()
	} else if err := json.Unmarshal(v, &text); err != nil {
		return 0, fmt.Errorf("%w: %s is not numeric", ErrInvalidTokenResponse, key)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not numeric", ErrInvalidTokenResponse, key)
	}
	return int64(f), nil
}
