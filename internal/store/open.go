package store

import (
	"context"
	"fmt"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open creates a Store for driver. The schema is not migrated.
func Open(ctx context.Context, driver, dsn string, maxConns int32) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("store: postgres driver requires a dsn")
		}
		return OpenPg(ctx, dsn, maxConns)
	case DriverSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		return OpenSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}

// Seed creates a demo round with a few proposals and one item per
// collection. Existing names are left in place.
func Seed(ctx context.Context, s Store) error {
	for _, kind := range Kinds() {
		name := "Example " + kind.Singular()
		if _, err := s.Create(ctx, kind, name, "Created by seed"); err != nil && !isConflict(err) {
			return fmt.Errorf("seed %s: %w", kind, err)
		}
	}
	round, err := s.CreateRound(ctx, "Seed round")
	if isConflict(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed round: %w", err)
	}
	for _, title := range []string{"Community tooling grant", "Documentation sprint", "Validator onboarding"} {
		if _, err := s.CreateProposal(ctx, round.ID, title, "seed"); err != nil {
			return fmt.Errorf("seed proposal: %w", err)
		}
	}
	return nil
}
