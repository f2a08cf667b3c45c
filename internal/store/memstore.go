package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/govconsole/model"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	items     map[Kind]map[int64]Item
	rounds    map[int64]Round
	proposals map[int64]Proposal
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		items:     make(map[Kind]map[int64]Item),
		rounds:    make(map[int64]Round),
		proposals: make(map[int64]Proposal),
	}
	for _, k := range Kinds() {
		s.items[k] = make(map[int64]Item)
	}
	return s
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// Migrate is a no-op.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Count returns the number of items of kind.
func (s *MemoryStore) Count(_ context.Context, kind Kind) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items[kind]), nil
}

// List returns a page of items ordered by name.
func (s *MemoryStore) List(_ context.Context, kind Kind, offset, limit int) ([]Item, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}

	s.mu.RLock()
	all := make([]Item, 0, len(s.items[kind]))
	for _, it := range s.items[kind] {
		all = append(all, it)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		ki, kj := nameKey(all[i].Name), nameKey(all[j].Name)
		if ki != kj {
			return ki < kj
		}
		return all[i].ID < all[j].ID
	})
	return window(all, offset, limit), nil
}

func window[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// Item returns one item.
func (s *MemoryStore) Item(_ context.Context, kind Kind, id int64) (Item, error) {
	if err := checkKind(kind); err != nil {
		return Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[kind][id]
	if !ok {
		return Item{}, itemNotFound(kind, id)
	}
	return it, nil
}

// Create adds an item.
func (s *MemoryStore) Create(_ context.Context, kind Kind, name, description string) (Item, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameKey(name)
	for _, it := range s.items[kind] {
		if nameKey(it.Name) == key {
			return Item{}, duplicateError(kind, name)
		}
	}
	it := Item{
		ID:          s.id(),
		Kind:        kind,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.items[kind][it.ID] = it
	return it, nil
}

// Delete removes items.
func (s *MemoryStore) Delete(_ context.Context, kind Kind, ids ...int64) (int, error) {
	if err := checkKind(kind); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := s.items[kind][id]; ok {
			delete(s.items[kind], id)
			removed++
		}
	}
	if removed == 0 {
		return 0, model.NewNotFoundError(fmt.Sprintf("none of the selected %s exist", kind))
	}
	return removed, nil
}

// Rounds returns every round, newest first.
func (s *MemoryStore) Rounds(context.Context) ([]Round, error) {
	s.mu.RLock()
	out := make([]Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Round returns one round.
func (s *MemoryStore) Round(_ context.Context, id int64) (Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[id]
	if !ok {
		return Round{}, model.NewNotFoundError(fmt.Sprintf("funding round %d not found", id))
	}
	return r, nil
}

// CountByRound returns the number of proposals in a round.
func (s *MemoryStore) CountByRound(_ context.Context, roundID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.proposals {
		if p.RoundID == roundID {
			n++
		}
	}
	return n, nil
}

// ListByRound returns a page of a round's proposals ordered by id.
func (s *MemoryStore) ListByRound(_ context.Context, roundID int64, offset, limit int) ([]Proposal, error) {
	if err := checkPage(offset, limit); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var all []Proposal
	for _, p := range s.proposals {
		if p.RoundID == roundID {
			all = append(all, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return window(all, offset, limit), nil
}

// Proposal returns one proposal.
func (s *MemoryStore) Proposal(_ context.Context, id int64) (Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, model.NewNotFoundError(fmt.Sprintf("proposal %d not found", id))
	}
	return p, nil
}

// SetStatus moves a proposal to status.
func (s *MemoryStore) SetStatus(_ context.Context, id int64, status Status) (Proposal, error) {
	if err := checkStatus(status); err != nil {
		return Proposal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, model.NewNotFoundError(fmt.Sprintf("proposal %d not found", id))
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	s.proposals[id] = p
	return p, nil
}

// CreateRound adds a funding round.
func (s *MemoryStore) CreateRound(_ context.Context, name string) (Round, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Round{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if nameKey(r.Name) == nameKey(name) {
			return Round{}, model.NewConflictError(fmt.Sprintf("A funding round named %q already exists.", name))
		}
	}
	r := Round{ID: s.id(), Name: name, OpenedAt: time.Now().UTC()}
	s.rounds[r.ID] = r
	return r, nil
}

// CreateProposal adds a proposal to a round with status submitted.
func (s *MemoryStore) CreateProposal(_ context.Context, roundID int64, title, proposer string) (Proposal, error) {
	title, err := normalizeName(title)
	if err != nil {
		return Proposal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[roundID]; !ok {
		return Proposal{}, model.NewNotFoundError(fmt.Sprintf("funding round %d not found", roundID))
	}
	p := Proposal{
		ID:        s.id(),
		RoundID:   roundID,
		Title:     title,
		Proposer:  proposer,
		Status:    StatusSubmitted,
		UpdatedAt: time.Now().UTC(),
	}
	s.proposals[p.ID] = p
	return p, nil
}
