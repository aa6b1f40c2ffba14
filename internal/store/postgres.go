package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/guregu/null/v6"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"twquote/internal/account"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id               BIGSERIAL PRIMARY KEY,
	username         VARCHAR(80)  NOT NULL UNIQUE,
	email            VARCHAR(120) NOT NULL UNIQUE,
	password_hash    VARCHAR(255) NOT NULL,
	full_name        VARCHAR(100),
	phone            VARCHAR(20),
	membership_level VARCHAR(20)  NOT NULL DEFAULT 'free',
	created_at       TIMESTAMPTZ  NOT NULL,
	last_login       TIMESTAMPTZ,
	is_active        BOOLEAN      NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS watchlists (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	stock_code  VARCHAR(10) NOT NULL,
	stock_name  VARCHAR(100),
	added_price NUMERIC(14,4),
	notes       TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT unique_user_stock UNIQUE (user_id, stock_code)
);

CREATE TABLE IF NOT EXISTS price_alerts (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT      NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	stock_code   VARCHAR(10) NOT NULL,
	stock_name   VARCHAR(100),
	alert_type   VARCHAR(20) NOT NULL,
	target_price NUMERIC(14,4) NOT NULL,
	is_active    BOOLEAN     NOT NULL DEFAULT TRUE,
	is_triggered BOOLEAN     NOT NULL DEFAULT FALSE,
	triggered_at TIMESTAMPTZ,
	notes        TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_active ON price_alerts (user_id, is_active);
CREATE INDEX IF NOT EXISTS idx_stock_active ON price_alerts (stock_code, is_active);

CREATE TABLE IF NOT EXISTS search_history (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT REFERENCES users(id) ON DELETE CASCADE,
	stock_code   VARCHAR(10) NOT NULL,
	stock_name   VARCHAR(100),
	search_price NUMERIC(14,4),
	ip_address   VARCHAR(45),
	user_agent   VARCHAR(500),
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_created ON search_history (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_stock_created ON search_history (stock_code, created_at);
`

// Postgres is the database-backed Store.
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenPostgres connects with exponential backoff until timeout and creates
// the schema if it is missing.
func OpenPostgres(ctx context.Context, dsn string, timeout time.Duration, log zerolog.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	log = log.With().Str("component", "store").Logger()
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout
	ping := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			log.Warn().Err(err).Msg("postgres not ready")
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("after retries: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{db: db, log: log}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// uniqueViolation maps a pq unique_violation to its constraint name.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}

func (p *Postgres) CreateUser(ctx context.Context, u *account.User) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, phone, membership_level, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		u.Username, u.Email, u.PasswordHash, u.FullName, u.Phone, string(u.Level), u.CreatedAt, u.Active,
	).Scan(&u.ID)
	if c, ok := uniqueViolation(err); ok {
		if strings.Contains(c, "email") {
			return account.ErrEmailTaken
		}
		return account.ErrUsernameTaken
	}
	return err
}

const userColumns = `id, username, email, password_hash, COALESCE(full_name, ''), COALESCE(phone, ''),
	membership_level, created_at, last_login, is_active`

func scanUser(row *sql.Row) (*account.User, error) {
	var (
		u     account.User
		level string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone,
		&level, &u.CreatedAt, &u.LastLogin, &u.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Level = account.ParseLevel(level)
	return &u, nil
}

func (p *Postgres) UserByUsername(ctx context.Context, username string) (*account.User, error) {
	return scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (*account.User, error) {
	return scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (p *Postgres) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (p *Postgres) AddWatch(ctx context.Context, item *WatchItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO watchlists (user_id, stock_code, stock_name, added_price, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		item.UserID, item.Code, item.Name, item.AddedPrice, item.Notes, item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)
	if _, ok := uniqueViolation(err); ok {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) ListWatch(ctx context.Context, userID int64) ([]WatchItem, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, stock_code, COALESCE(stock_name, ''), added_price, COALESCE(notes, ''), created_at, updated_at
		FROM watchlists WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WatchItem
	for rows.Next() {
		var w WatchItem
		if err := rows.Scan(&w.ID, &w.UserID, &w.Code, &w.Name, &w.AddedPrice, &w.Notes, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) RemoveWatch(ctx context.Context, userID int64, code string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM watchlists WHERE user_id = $1 AND stock_code = $2`, userID, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CountWatch(ctx context.Context, userID int64) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM watchlists WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (p *Postgres) AddAlert(ctx context.Context, a *PriceAlert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	a.Active, a.Triggered, a.TriggeredAt = true, false, null.Time{}
	return p.db.QueryRowContext(ctx, `
		INSERT INTO price_alerts (user_id, stock_code, stock_name, alert_type, target_price, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		a.UserID, a.Code, a.Name, string(a.Kind), a.Target, a.Notes, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
}

func (p *Postgres) ListAlerts(ctx context.Context, userID int64) ([]PriceAlert, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, stock_code, COALESCE(stock_name, ''), alert_type, target_price,
		       is_active, is_triggered, triggered_at, COALESCE(notes, ''), created_at, updated_at
		FROM price_alerts WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceAlert
	for rows.Next() {
		var a PriceAlert
		if err := rows.Scan(&a.ID, &a.UserID, &a.Code, &a.Name, &a.Kind, &a.Target,
			&a.Active, &a.Triggered, &a.TriggeredAt, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) RemoveAlert(ctx context.Context, userID, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) TriggerAlert(ctx context.Context, id int64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE price_alerts SET is_active = FALSE, is_triggered = TRUE, triggered_at = $2, updated_at = $2
		WHERE id = $1 AND is_active`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RecordSearch(ctx context.Context, rec *SearchRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.UserAgent = truncate(rec.UserAgent, maxUA)
	return p.db.QueryRowContext(ctx, `
		INSERT INTO search_history (user_id, stock_code, stock_name, search_price, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		rec.UserID, rec.Code, rec.Name, rec.Price, rec.IP, rec.UserAgent, rec.CreatedAt,
	).Scan(&rec.ID)
}

func (p *Postgres) ListSearches(ctx context.Context, userID int64, since time.Time, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, stock_code, COALESCE(stock_name, ''), search_price,
		       COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM search_history
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchRecord
	for rows.Next() {
		var r SearchRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Code, &r.Name, &r.Price, &r.IP, &r.UserAgent, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
