package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/govconsole/model"
)

type factory func(t *testing.T) Store

func backends(t *testing.T) map[string]factory {
	t.Helper()
	b := map[string]factory{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("GOVCONSOLE_TEST_POSTGRES_DSN"); dsn != "" {
		b["postgres"] = func(t *testing.T) Store {
			ctx := context.Background()
			s, err := OpenPg(ctx, dsn, 2)
			require.NoError(t, err)
			_, err = s.pool.Exec(ctx, `DROP TABLE IF EXISTS proposals, funding_rounds, collection_items`)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}
	}
	return b
}

func each(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			require.NoError(t, s.Migrate(context.Background()))
			fn(t, s)
		})
	}
}

func TestStore_CreateListCount(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, name := range []string{"Zeta", "alpha", "Mid"} {
			_, err := s.Create(ctx, KindGroups, name, "")
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, KindTopics, "Other kind", "")
		require.NoError(t, err)

		n, err := s.Count(ctx, KindGroups)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		page, err := s.List(ctx, KindGroups, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "alpha", page[0].Name)
		assert.Equal(t, "Mid", page[1].Name)

		page, err = s.List(ctx, KindGroups, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "Zeta", page[0].Name)

		page, err = s.List(ctx, KindGroups, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestStore_CreateValidation(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		it, err := s.Create(ctx, KindCommittees, "  Budget  ", " reviews spend ")
		require.NoError(t, err)
		assert.Equal(t, "Budget", it.Name)
		assert.Equal(t, "reviews spend", it.Description)
		assert.NotZero(t, it.ID)

		got, err := s.Item(ctx, KindCommittees, it.ID)
		require.NoError(t, err)
		assert.Equal(t, it.Name, got.Name)
		assert.False(t, got.CreatedAt.IsZero())

		_, err = s.Create(ctx, KindCommittees, "budget", "")
		assert.Equal(t, model.ErrConflict, model.CodeOf(err))
		assert.Contains(t, err.Error(), `committee named "budget"`)

		_, err = s.Create(ctx, KindCommittees, "   ", "")
		assert.Equal(t, model.ErrDomain, model.CodeOf(err))

		_, err = s.Create(ctx, KindCommittees, strings.Repeat("n", MaxNameLength+1), "")
		assert.Equal(t, model.ErrDomain, model.CodeOf(err))

		_, err = s.Create(ctx, Kind("unknown"), "x", "")
		assert.Equal(t, model.ErrBadRequest, model.CodeOf(err))

		_, err = s.Item(ctx, KindCommittees, it.ID+100)
		assert.Equal(t, model.ErrNotFound, model.CodeOf(err))
	})
}

func TestStore_Delete(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a, err := s.Create(ctx, KindTopics, "a", "")
		require.NoError(t, err)
		b, err := s.Create(ctx, KindTopics, "b", "")
		require.NoError(t, err)

		n, err := s.Delete(ctx, KindTopics, a.ID, b.ID, 999)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.Delete(ctx, KindTopics, a.ID)
		assert.Equal(t, model.ErrNotFound, model.CodeOf(err))

		_, err = s.Delete(ctx, KindTopics)
		assert.Equal(t, model.ErrNotFound, model.CodeOf(err))
	})
}

func TestStore_DeleteRespectsKind(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		g, err := s.Create(ctx, KindGroups, "shared", "")
		require.NoError(t, err)

		_, err = s.Delete(ctx, KindTopics, g.ID)
		assert.Equal(t, model.ErrNotFound, model.CodeOf(err))

		n, _ := s.Count(ctx, KindGroups)
		assert.Equal(t, 1, n)
	})
}

func TestStore_ListRejectsBadPage(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		_, err := s.List(context.Background(), KindGroups, -1, 5)
		assert.Equal(t, model.ErrBadRequest, model.CodeOf(err))
		_, err = s.List(context.Background(), KindGroups, 0, 0)
		assert.Equal(t, model.ErrBadRequest, model.CodeOf(err))
	})
}

func TestStore_Proposals(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		r1, err := s.CreateRound(ctx, "Round 1")
		require.NoError(t, err)
		r2, err := s.CreateRound(ctx, "Round 2")
		require.NoError(t, err)

		_, err = s.CreateRound(ctx, "round 1")
		assert.Equal(t, model.ErrConflict, model.CodeOf(err))

		rounds, err := s.Rounds(ctx)
		require.NoError(t, err)
		require.Len(t, rounds, 2)
		assert.Equal(t, r2.ID, rounds[0].ID, "newest round first")

		var ids []int64
		for _, title := range []string{"p1", "p2", "p3"} {
			p, err := s.CreateProposal(ctx, r1.ID, title, "alice")
			require.NoError(t, err)
			assert.Equal(t, StatusSubmitted, p.Status)
			ids = append(ids, p.ID)
		}
		_, err = s.CreateProposal(ctx, r1.ID+r2.ID+100, "orphan", "")
		assert.Equal(t, model.ErrNotFound, model.CodeOf(err))

		n, err := s.CountByRound(ctx, r1.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		n, _ = s.CountByRound(ctx, r2.ID)
		assert.Equal(t, 0, n)

		page, err := s.ListByRound(ctx, r1.ID, 1, 5)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, ids[1], page[0].ID)

		p, err := s.SetStatus(ctx, ids[0], StatusApproved)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, p.Status)

		got, err := s.Proposal(ctx, ids[0])
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, got.Status)
		assert.Equal(t, "alice", got.Proposer)

		_, err = s.SetStatus(ctx, ids[0], Status("bogus"))
		assert.Equal(t, model.ErrDomain, model.CodeOf(err))

		_, err = s.SetStatus(ctx, 12345, StatusFunded)
		assert.Equal(t, model.ErrNotFound, model.CodeOf(err))

		_, err = s.Round(ctx, 12345)
		assert.Equal(t, model.ErrNotFound, model.CodeOf(err))
	})
}

func TestStore_HealthCheck(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		assert.NoError(t, s.HealthCheck(context.Background()))
	})
}

func TestSeed_isRepeatable(t *testing.T) {
	each(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, Seed(ctx, s))
		require.NoError(t, Seed(ctx, s))

		rounds, err := s.Rounds(ctx)
		require.NoError(t, err)
		require.Len(t, rounds, 1)
		n, _ := s.CountByRound(ctx, rounds[0].ID)
		assert.Equal(t, 3, n)
		for _, k := range Kinds() {
			n, _ := s.Count(ctx, k)
			assert.Equal(t, 1, n, "kind %s", k)
		}
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, DriverMemory, "", 0)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, DriverSQLite, "", 0)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	_ = s.Close()

	_, err = Open(ctx, DriverPostgres, "", 0)
	assert.Error(t, err)

	_, err = Open(ctx, "oracle", "x", 0)
	assert.Error(t, err)
}

func TestStatusLabel(t *testing.T) {
	tests := map[Status]string{
		StatusSubmitted:   "Submitted",
		StatusUnderReview: "Under review",
		StatusFunded:      "Funded",
	}
	for s, want := range tests {
		if got := s.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", s, got, want)
		}
	}
}
