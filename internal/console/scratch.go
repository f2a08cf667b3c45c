package console

import "sort"

// ScratchKey names a value carried in a request's Scratch. Only this
// package can implement it, so the key set is closed: the values returned
// by ScratchEntityID and ScratchRoundID are the only keys there are.
type ScratchKey interface {
	String() string
	scratchKey()
}

type scratchKey string

func (k scratchKey) String() string { return string(k) }
func (scratchKey) scratchKey() {}

const (
	entityIDKey scratchKey = "entity_id"
	roundIDKey  scratchKey = "round_id"
)

// ScratchEntityID is the id of the entity a multi-step flow just acted on.
func ScratchEntityID() ScratchKey { return entityIDKey }

// ScratchRoundID is the funding round chosen earlier in the request.
func ScratchRoundID() ScratchKey { return roundIDKey }

// Scratch is the request-scoped key/value carrier. Route creates a fresh one
// per interaction and drops it once the view is produced. It is not safe for
// concurrent use and never needs to be.
type Scratch struct {
	values map[ScratchKey]string
}

// NewScratch returns an empty Scratch.
func NewScratch() *Scratch {
	return &Scratch{values: make(map[ScratchKey]string)}
}

// Set stores v under k. It is a no-op on a nil Scratch or a nil key.
func (s *Scratch) Set(k ScratchKey, v string) {
	if s == nil || k == nil {
		return
	}
	if s.values == nil {
		s.values = make(map[ScratchKey]string)
	}
	s.values[k] = v
}

// Get returns the value stored under k.
func (s *Scratch) Get(k ScratchKey) (string, bool) {
	if s == nil || k == nil {
		return "", false
	}
	v, ok := s.values[k]
	return v, ok
}

// Delete removes k.
func (s *Scratch) Delete(k ScratchKey) {
	if s == nil {
		return
	}
	delete(s.values, k)
}

// Keys returns the names of the keys currently set, sorted.
func (s *Scratch) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for k := range s.values {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}
