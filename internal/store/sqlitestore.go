package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pitabwire/govconsole/model"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS collection_items (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		name        TEXT NOT NULL,
		name_key    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		UNIQUE (kind, name_key)
	)`,
	`CREATE TABLE IF NOT EXISTS funding_rounds (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		name      TEXT NOT NULL,
		name_key  TEXT NOT NULL UNIQUE,
		opened_at TEXT NOT NULL,
		closed    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS proposals (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		round_id   INTEGER NOT NULL REFERENCES funding_rounds (id),
		title      TEXT NOT NULL,
		proposer   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS proposals_round_idx ON proposals (round_id, id)`,
}

// SQLiteStore is a Store on an embedded SQLite database (pure Go driver).
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens the database at dsn. ":memory:" gives a private
// in-memory database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an open database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Count returns the number of items of kind.
func (s *SQLiteStore) Count(ctx context.Context, kind Kind) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM collection_items WHERE kind = ?`, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// List returns a page of items ordered by name.
func (s *SQLiteStore) List(ctx context.Context, kind Kind, offset, limit int) ([]Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at
		FROM collection_items
		WHERE kind = ?
		ORDER BY name_key, id
		LIMIT ? OFFSET ?`,
		string(kind), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	items := []Item{}
	for rows.Next() {
		it := Item{Kind: kind}
		var created string
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &created); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		it.CreatedAt = parseTime(created)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Item returns one item.
func (s *SQLiteStore) Item(ctx context.Context, kind Kind, id int64) (Item, error) {
	if err := checkKind(kind); err != nil {
		return Item{}, err
	}
	it := Item{Kind: kind}
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at
		FROM collection_items
		WHERE kind = ? AND id = ?`,
		string(kind), id,
	).Scan(&it.ID, &it.Name, &it.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, itemNotFound(kind, id)
	}
	if err != nil {
		return Item{}, fmt.Errorf("query %s: %w", kind, err)
	}
	it.CreatedAt = parseTime(created)
	return it, nil
}

// Create adds an item.
func (s *SQLiteStore) Create(ctx context.Context, kind Kind, name, description string) (Item, error) {
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_items (kind, name, name_key, description, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(kind), name, nameKey(name), description, formatTime(it.CreatedAt),
	)
	if isSQLiteUnique(err) {
		return Item{}, duplicateError(kind, name)
	}
	if err != nil {
		return Item{}, fmt.Errorf("insert %s: %w", kind, err)
	}
	if it.ID, err = res.LastInsertId(); err != nil {
		return Item{}, fmt.Errorf("insert %s: %w", kind, err)
	}
	return it, nil
}

// Delete removes items.
func (s *SQLiteStore) Delete(ctx context.Context, kind Kind, ids ...int64) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, model.NewNotFoundError(fmt.Sprintf("none of the selected %s exist", kind))
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, string(kind))
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM collection_items WHERE kind = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	if n == 0 {
		return 0, model.NewNotFoundError(fmt.Sprintf("none of the selected %s exist", kind))
	}
	return int(n), nil
}

func scanRound(scan func(...any) error) (Round, error) {
	var r Round
	var opened string
	var closed int
	if err := scan(&r.ID, &r.Name, &opened, &closed); err != nil {
		return Round{}, err
	}
	r.OpenedAt = parseTime(opened)
	r.Closed = closed != 0
	return r, nil
}

// Rounds returns every round, newest first.
func (s *SQLiteStore) Rounds(ctx context.Context) ([]Round, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, opened_at, closed FROM funding_rounds ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rounds := []Round{}
	for rows.Next() {
		r, err := scanRound(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// Round returns one round.
func (s *SQLiteStore) Round(ctx context.Context, id int64) (Round, error) {
	r, err := scanRound(s.db.QueryRowContext(ctx,
		`SELECT id, name, opened_at, closed FROM funding_rounds WHERE id = ?`, id,
	).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Round{}, model.NewNotFoundError(fmt.Sprintf("funding round %d not found", id))
	}
	if err != nil {
		return Round{}, fmt.Errorf("query round: %w", err)
	}
	return r, nil
}

// CountByRound returns the number of proposals in a round.
func (s *SQLiteStore) CountByRound(ctx context.Context, roundID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM proposals WHERE round_id = ?`, roundID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count proposals: %w", err)
	}
	return n, nil
}

func scanProposal(scan func(...any) error) (Proposal, error) {
	var p Proposal
	var status, updated string
	if err := scan(&p.ID, &p.RoundID, &p.Title, &p.Proposer, &status, &updated); err != nil {
		return Proposal{}, err
	}
	p.Status = Status(status)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// ListByRound returns a page of a round's proposals ordered by id.
func (s *SQLiteStore) ListByRound(ctx context.Context, roundID int64, offset, limit int) ([]Proposal, error) {
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, round_id, title, proposer, status, updated_at
		FROM proposals
		WHERE round_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?`,
		roundID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Proposal returns one proposal.
func (s *SQLiteStore) Proposal(ctx context.Context, id int64) (Proposal, error) {
	p, err := scanProposal(s.db.QueryRowContext(ctx, `
		SELECT id, round_id, title, proposer, status, updated_at
		FROM proposals WHERE id = ?`, id,
	).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Proposal{}, model.NewNotFoundError(fmt.Sprintf("proposal %d not found", id))
	}
	if err != nil {
		return Proposal{}, fmt.Errorf("query proposal: %w", err)
	}
	return p, nil
}

// SetStatus moves a proposal to status.
func (s *SQLiteStore) SetStatus(ctx context.Context, id int64, status Status) (Proposal, error) {
	if err := checkStatus(status); err != nil {
		return Proposal{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id,
	)
	if err != nil {
		return Proposal{}, fmt.Errorf("update proposal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Proposal{}, model.NewNotFoundError(fmt.Sprintf("proposal %d not found", id))
	}
	return s.Proposal(ctx, id)
}

// CreateRound adds a funding round.
func (s *SQLiteStore) CreateRound(ctx context.Context, name string) (Round, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Round{}, err
	}
	r := Round{Name: name, OpenedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO funding_rounds (name, name_key, opened_at) VALUES (?, ?, ?)`,
		name, nameKey(name), formatTime(r.OpenedAt),
	)
	if isSQLiteUnique(err) {
		return Round{}, model.NewConflictError(fmt.Sprintf("A funding round named %q already exists.", name))
	}
	if err != nil {
		return Round{}, fmt.Errorf("insert round: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return Round{}, fmt.Errorf("insert round: %w", err)
	}
	return r, nil
}

// CreateProposal adds a proposal to a round with status submitted.
func (s *SQLiteStore) CreateProposal(ctx context.Context, roundID int64, title, proposer string) (Proposal, error) {
	title, err := normalizeName(title)
	if err != nil {
		return Proposal{}, err
	}
	if _, err := s.Round(ctx, roundID); err != nil {
		return Proposal{}, err
	}
	p := Proposal{RoundID: roundID, Title: title, Proposer: proposer, Status: StatusSubmitted, UpdatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (round_id, title, proposer, status, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		roundID, title, proposer, string(p.Status), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}
	return p, nil
}
