package model

import (
	"sort"
	"strings"
)

// CapabilitySet is the set of capabilities granted to a requester. Keys look
// like "groups:manage" and may end in a wildcard ("groups:*", "*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern, granted := range cs {
		if granted && matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if every given capability is matched.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny returns true if at least one given capability is matched.
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// Sorted returns the granted capability strings in lexical order.
func (cs CapabilitySet) Sorted() []string {
	out := make([]string, 0, len(cs))
	for cap, granted := range cs {
		if granted {
			out = append(out, cap)
		}
	}
	sort.Strings(out)
	return out
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
//
//	"*"                matches anything
//	"proposals:*"      matches "proposals:manage"
//	"proposals:manage" does NOT match "proposals:manage:status"
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	return strings.HasPrefix(cap, pattern[:len(pattern)-1])
}

// CapabilityResolver resolves the capability set of a requester.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
	Invalidate(subjectID, tenantID string)
}

// PolicyEvaluator maps a requester's roles onto capabilities.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Sync refreshes policy data from its source.
	Sync() error
}
