package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used by PostgresStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists sessions in the fdm_authn.session table.
type PostgresStore struct {
	db  Querier
	now func() time.Time
}

// NewPostgresStore creates a store on top of a pgx pool or transaction.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const sessionColumns = `id, token, principal_id, ip, user_agent, data, created_at, last_active_at, expires_at`

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	values, err := json.Marshal(s.Values)
	if err != nil {
		return fmt.Errorf("session: marshal values: %w", err)
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO fdm_authn.session (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Token, s.PrincipalID, s.IP, s.UserAgent, values,
		s.CreatedAt, s.LastActiveAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, token string) (*Session, error) {
	var (
		s      Session
		values []byte
	)
	err := p.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM fdm_authn.session WHERE token = $1`, token,
	).Scan(&s.ID, &s.Token, &s.PrincipalID, &s.IP, &s.UserAgent, &values,
		&s.CreatedAt, &s.LastActiveAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}

	if len(values) > 0 {
		if err := json.Unmarshal(values, &s.Values); err != nil {
			return nil, fmt.Errorf("session: unmarshal values: %w", err)
		}
	}
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	if s.IsExpired(p.now()) {
		return nil, ErrExpired
	}
	return &s, nil
}

func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	values, err := json.Marshal(s.Values)
	if err != nil {
		return fmt.Errorf("session: marshal values: %w", err)
	}

	tag, err := p.db.Exec(ctx, `
		UPDATE fdm_authn.session
		SET token = $2, principal_id = $3, data = $4, last_active_at = $5, expires_at = $6
		WHERE id = $1`,
		s.ID, s.Token, s.PrincipalID, values, s.LastActiveAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("session: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM fdm_authn.session WHERE id = $1`, id); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteByPrincipal(ctx context.Context, principalID string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM fdm_authn.session WHERE principal_id = $1`, principalID); err != nil {
		return fmt.Errorf("session: delete by principal: %w", err)
	}
	return nil
}

func (p *PostgresStore) Touch(ctx context.Context, id string, lastActiveAt time.Time) error {
	tag, err := p.db.Exec(ctx, `UPDATE fdm_authn.session SET last_active_at = $2 WHERE id = $1`, id, lastActiveAt)
	if err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM fdm_authn.session WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("session: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
