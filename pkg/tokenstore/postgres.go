package tokenstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/natserract/amocrm/pkg/oauth"
	"github.com/natserract/amocrm/pkg/storage/postgres"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS amocrm_tokens (
	key           TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	token_type    TEXT NOT NULL,
	expires_in    BIGINT NOT NULL,
	created_at    BIGINT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps the token set in one row of amocrm_tokens.
type PostgresStore struct {
	db  *postgres.DB
	key string
}

// NewPostgresStore creates the table when it is missing.
func NewPostgresStore(ctx context.Context, db *postgres.DB, key string) (*PostgresStore, error) {
	if err := db.InitSchema(ctx, postgresSchema); err != nil {
		return nil, &StoreError{Operation: "init", Backend: "postgres", Cause: err}
	}
	return &PostgresStore{db: db, key: key}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (oauth.TokenSet, bool, error) {
	var ts oauth.TokenSet
	err := s.db.Pool().QueryRow(ctx,
		`SELECT access_token, refresh_token, token_type, expires_in, created_at
		 FROM amocrm_tokens WHERE key = $1`, s.key,
	).Scan(&ts.AccessToken, &ts.RefreshToken, &ts.TokenType, &ts.ExpiresIn, &ts.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return oauth.TokenSet{}, false, nil
		}
		return oauth.TokenSet{}, false, &StoreError{Operation: "load", Backend: "postgres", Cause: err}
	}
	return ts, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, ts oauth.TokenSet) error {
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO amocrm_tokens (key, access_token, refresh_token, token_type, expires_in, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (key) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expires_in = EXCLUDED.expires_in,
			created_at = EXCLUDED.created_at,
			updated_at = NOW()`,
		s.key, ts.AccessToken, ts.RefreshToken, ts.TokenType, ts.ExpiresIn, ts.CreatedAt)
	if err != nil {
		return &StoreError{Operation: "save", Backend: "postgres", Cause: err}
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context) error {
	if _, err := s.db.Pool().Exec(ctx, `DELETE FROM amocrm_tokens WHERE key = $1`, s.key); err != nil {
		return &StoreError{Operation: "delete", Backend: "postgres", Cause: err}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
