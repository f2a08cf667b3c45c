// Package capability resolves and caches operator capabilities, and
// evaluates screen access rules written in CEL.
package capability

import (
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/govconsole/model"
)

type cacheEntry struct {
	caps    model.CapabilitySet
	expires time.Time
}

// CacheRecorder observes cache hits and misses.
type CacheRecorder interface {
	RecordCapabilityCacheHit()
	RecordCapabilityCacheMiss()
}

type nopRecorder struct{}

func (nopRecorder) RecordCapabilityCacheHit()  {}
func (nopRecorder) RecordCapabilityCacheMiss() {}

// Resolver implements model.CapabilityResolver with an in-memory cache.
type Resolver struct {
	evaluator model.PolicyEvaluator
	ttl       time.Duration
	recorder  CacheRecorder
	mu        sync.RWMutex
	cache     map[string]cacheEntry
}

// NewResolver creates a new Resolver with the given evaluator and cache TTL.
// A TTL of zero disables caching.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration) *Resolver {
	return &Resolver{
		evaluator: evaluator,
		ttl:       ttl,
		recorder:  nopRecorder{},
		cache:     make(map[string]cacheEntry),
	}
}

// SetRecorder installs a cache hit/miss recorder.
func (r *Resolver) SetRecorder(rec CacheRecorder) {
	if rec != nil {
		r.recorder = rec
	}
}

func cacheKey(rctx *model.RequestContext) string {
	return rctx.SubjectID + ":" + rctx.TenantID + ":" + strings.Join(rctx.Roles, ",")
}

// Resolve returns the full capability set for the given requester. Results
// are cached per subject, tenant and role list for the configured TTL.
func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	if r.ttl <= 0 {
		return r.evaluator.ResolveCapabilities(rctx)
	}
	key := cacheKey(rctx)

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		r.recorder.RecordCapabilityCacheHit()
		return entry.caps, nil
	}
	r.mu.RUnlock()
	r.recorder.RecordCapabilityCacheMiss()

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{caps: caps, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return caps, nil
}

// Invalidate clears cached capabilities for the given subject and tenant.
func (r *Resolver) Invalidate(subjectID, tenantID string) {
	prefix := subjectID + ":" + tenantID + ":"
	r.mu.Lock()
	for key := range r.cache {
		if strings.HasPrefix(key, prefix) {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
}

// InvalidateAll empties the cache, typically after a policy reload.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

// Reload syncs the underlying evaluator and drops every cached set.
func (r *Resolver) Reload() error {
	if err := r.evaluator.Sync(); err != nil {
		return err
	}
	r.InvalidateAll()
	return nil
}
