package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/govconsole/model"
)

const pgUniqueViolation = "23505"

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS collection_items (
		id          BIGSERIAL PRIMARY KEY,
		kind        TEXT NOT NULL,
		name        TEXT NOT NULL,
		name_key    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (kind, name_key)
	)`,
	`CREATE TABLE IF NOT EXISTS funding_rounds (
		id        BIGSERIAL PRIMARY KEY,
		name      TEXT NOT NULL,
		name_key  TEXT NOT NULL UNIQUE,
		opened_at TIMESTAMPTZ NOT NULL,
		closed    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS proposals (
		id         BIGSERIAL PRIMARY KEY,
		round_id   BIGINT NOT NULL REFERENCES funding_rounds (id),
		title      TEXT NOT NULL,
		proposer   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS proposals_round_idx ON proposals (round_id, id)`,
}

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PgStore)(nil)

// NewPgStore creates a new PostgreSQL store on an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// OpenPg connects a pool to dsn and verifies the connection.
func OpenPg(ctx context.Context, dsn string, maxConns int32) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPgStore(pool), nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Migrate creates the schema.
func (s *PgStore) Migrate(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// HealthCheck pings the pool.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// Count returns the number of items of kind.
func (s *PgStore) Count(ctx context.Context, kind Kind) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM collection_items WHERE kind = $1`, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// List returns a page of items ordered by name.
func (s *PgStore) List(ctx context.Context, kind Kind, offset, limit int) ([]Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, name, description, created_at
		FROM collection_items
		WHERE kind = $1
		ORDER BY name_key, id
		LIMIT $2 OFFSET $3`,
		string(kind), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		var k string
		if err := rows.Scan(&it.ID, &k, &it.Name, &it.Description, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		it.Kind = Kind(k)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Item returns one item.
func (s *PgStore) Item(ctx context.Context, kind Kind, id int64) (Item, error) {
	if err := checkKind(kind); err != nil {
		return Item{}, err
	}
	it := Item{Kind: kind}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, created_at
		FROM collection_items
		WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&it.ID, &it.Name, &it.Description, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, itemNotFound(kind, id)
	}
	if err != nil {
		return Item{}, fmt.Errorf("query %s: %w", kind, err)
	}
	return it, nil
}

// Create adds an item.
func (s *PgStore) Create(ctx context.Context, kind Kind, name, description string) (Item, error) {
	if err := checkKind(kind); err != nil {
		return Item{}, err
	}
	name, err := normalizeName(name)
	if err != nil {
		return Item{}, err
	}
	description, err = checkDescription(description)
	if err != nil {
		return Item{}, err
	}

	it := Item{Kind: kind, Name: name, Description: description, CreatedAt: time.Now().UTC()}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO collection_items (kind, name, name_key, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(kind), name, nameKey(name), description, it.CreatedAt,
	).Scan(&it.ID)
	if isPgUniqueViolation(err) {
		return Item{}, duplicateError(kind, name)
	}
	if err != nil {
		return Item{}, fmt.Errorf("insert %s: %w", kind, err)
	}
	return it, nil
}

// Delete removes items.
func (s *PgStore) Delete(ctx context.Context, kind Kind, ids ...int64) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM collection_items WHERE kind = $1 AND id = ANY($2)`,
		string(kind), ids,
	)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, model.NewNotFoundError(fmt.Sprintf("none of the selected %s exist", kind))
	}
	return int(tag.RowsAffected()), nil
}

// Rounds returns every round, newest first.
func (s *PgStore) Rounds(ctx context.Context) ([]Round, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, opened_at, closed FROM funding_rounds ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	rounds := []Round{}
	for rows.Next() {
		var r Round
		if err := rows.Scan(&r.ID, &r.Name, &r.OpenedAt, &r.Closed); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// Round returns one round.
func (s *PgStore) Round(ctx context.Context, id int64) (Round, error) {
	var r Round
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, opened_at, closed FROM funding_rounds WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name, &r.OpenedAt, &r.Closed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Round{}, model.NewNotFoundError(fmt.Sprintf("funding round %d not found", id))
	}
	if err != nil {
		return Round{}, fmt.Errorf("query round: %w", err)
	}
	return r, nil
}

// CountByRound returns the number of proposals in a round.
func (s *PgStore) CountByRound(ctx context.Context, roundID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM proposals WHERE round_id = $1`, roundID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count proposals: %w", err)
	}
	return n, nil
}

// ListByRound returns a page of a round's proposals ordered by id.
func (s *PgStore) ListByRound(ctx context.Context, roundID int64, offset, limit int) ([]Proposal, error) {
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, round_id, title, proposer, status, updated_at
		FROM proposals
		WHERE round_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3`,
		roundID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	out := []Proposal{}
	for rows.Next() {
		var p Proposal
		var status string
		if err := rows.Scan(&p.ID, &p.RoundID, &p.Title, &p.Proposer, &status, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		p.Status = Status(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Proposal returns one proposal.
func (s *PgStore) Proposal(ctx context.Context, id int64) (Proposal, error) {
	var p Proposal
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, round_id, title, proposer, status, updated_at
		FROM proposals WHERE id = $1`, id,
	).Scan(&p.ID, &p.RoundID, &p.Title, &p.Proposer, &status, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, model.NewNotFoundError(fmt.Sprintf("proposal %d not found", id))
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("query proposal: %w", err)
	}
	p.Status = Status(status)
	return p, nil
}

// SetStatus moves a proposal to status.
func (s *PgStore) SetStatus(ctx context.Context, id int64, status Status) (Proposal, error) {
	if err := checkStatus(status); err != nil {
		return Proposal{}, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE proposals SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return Proposal{}, fmt.Errorf("update proposal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Proposal{}, model.NewNotFoundError(fmt.Sprintf("proposal %d not found", id))
	}
	return s.Proposal(ctx, id)
}

// CreateRound adds a funding round.
func (s *PgStore) CreateRound(ctx context.Context, name string) (Round, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Round{}, err
	}
	r := Round{Name: name, OpenedAt: time.Now().UTC()}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO funding_rounds (name, name_key, opened_at) VALUES ($1, $2, $3) RETURNING id`,
		name, nameKey(name), r.OpenedAt,
	).Scan(&r.ID)
	if isPgUniqueViolation(err) {
		return Round{}, model.NewConflictError(fmt.Sprintf("A funding round named %q already exists.", name))
	}
	if err != nil {
		return Round{}, fmt.Errorf("insert round: %w", err)
	}
	return r, nil
}

// CreateProposal adds a proposal to a round with status submitted.
func (s *PgStore) CreateProposal(ctx context.Context, roundID int64, title, proposer string) (Proposal, error) {
	title, err := normalizeName(title)
	if err != nil {
		return Proposal{}, err
	}
	if _, err := s.Round(ctx, roundID); err != nil {
		return Proposal{}, err
	}
	p := Proposal{RoundID: roundID, Title: title, Proposer: proposer, Status: StatusSubmitted, UpdatedAt: time.Now().UTC()}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO proposals (round_id, title, proposer, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		roundID, title, proposer, string(p.Status), p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}
	return p, nil
}
