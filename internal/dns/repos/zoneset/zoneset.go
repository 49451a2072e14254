// Package zoneset is a registry of authoritative zones, keyed by origin and
// sharded by apex (registrable) domain so the responder's "best zone" walk
// only has to search within one shard instead of every loaded zone.
package zoneset

import (
	"strings"
	"sync"

	"github.com/haukened/rr-dns/internal/dns/common/utils"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/repos/zone"
)

// Set holds every zone this server is authoritative for.
type Set struct {
	mu     sync.RWMutex
	shards map[string]map[string]*zone.Zone // apex -> origin key -> zone
}

func New() *Set {
	return &Set{shards: map[string]map[string]*zone.Zone{}}
}

func ownerKey(n domain.Name) string { return strings.ToLower(n.String()) }

// Add registers z under its origin, sharded by apex domain.
func (s *Set) Add(z *zone.Zone) {
	apex := utils.GetApexDomain(z.Origin().String())
	s.mu.Lock()
	defer s.mu.Unlock()
	shard, ok := s.shards[apex]
	if !ok {
		shard = map[string]*zone.Zone{}
		s.shards[apex] = shard
	}
	shard[ownerKey(z.Origin())] = z
}

// Remove drops the zone with the given origin, if present.
func (s *Set) Remove(origin domain.Name) {
	apex := utils.GetApexDomain(origin.String())
	s.mu.Lock()
	defer s.mu.Unlock()
	shard, ok := s.shards[apex]
	if !ok {
		return
	}
	delete(shard, ownerKey(origin))
	if len(shard) == 0 {
		delete(s.shards, apex)
	}
}

// Best returns the zone whose origin is the longest (most specific) suffix
// of qname that this set is authoritative for, or nil if none matches.
func (s *Set) Best(qname domain.Name) *zone.Zone {
	apex := utils.GetApexDomain(qname.String())
	s.mu.RLock()
	shard, ok := s.shards[apex]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	zones := make([]*zone.Zone, 0, len(shard))
	for _, z := range shard {
		zones = append(zones, z)
	}
	s.mu.RUnlock()

	var best *zone.Zone
	bestLabels := -1
	for _, z := range zones {
		if !qname.Subdomain(z.Origin()) {
			continue
		}
		labels := z.Origin().Labels()
		if labels > bestLabels {
			best = z
			bestLabels = labels
		}
	}
	return best
}

// All returns every registered zone across all shards, for AXFR listing and
// reload bookkeeping.
func (s *Set) All() []*zone.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*zone.Zone
	for _, shard := range s.shards {
		for _, z := range shard {
			out = append(out, z)
		}
	}
	return out
}

// Len returns the total number of registered zones.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, shard := range s.shards {
		n += len(shard)
	}
	return n
}
