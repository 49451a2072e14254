// Package dnscache implements the credibility-aware, TTL-expiring resource
// record cache described by spec §3.3/§3.4/§4.4: an ordered associative
// container mapping Name to one-or-many CacheEntry, bounded by max_entries
// with strict-LRU eviction by access.
package dnscache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/haukened/rr-dns/internal/dns/common/clock"
	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/domain"
)

const DefaultMaxEntries = 50_000

// entryKind distinguishes the two CacheEntry variants of spec §3.3.
type entryKind uint8

const (
	entryPositive entryKind = iota
	entryNegative
)

// cacheEntry is a single (name, type) slot: either a positive RRset or a
// negative (NXDOMAIN/NXRRSET) marker.
type cacheEntry struct {
	kind         entryKind
	rrset        domain.RRset
	nxtype       domain.RRType // only meaningful when kind == entryNegative; 0 == NXDOMAIN
	cred         domain.Credibility
	expireEpochS int64
}

func (e *cacheEntry) expired(now int64) bool { return e.expireEpochS <= now }

// nameEntry holds every CacheEntry currently recorded at one owner name,
// keyed by RRType (the negative-NXDOMAIN marker is stored under type 0).
type nameEntry map[domain.RRType]*cacheEntry

// Options configures cache TTL clamps (spec §3.4).
type Options struct {
	MaxEntries    int
	MaxTTLSeconds int64 // -1 == unlimited
	MaxNCacheSeconds int64
}

// Cache is the concrete, concurrency-safe implementation of the core cache.
// A single mutex guards all state: lookups mutate LRU order and may evict,
// so reads are writers too (spec §5).
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, nameEntry]
	clock clock.Clock
	opts  Options
	log   log.Logger
}

// New constructs a Cache. A zero-value Options.MaxEntries defaults to
// DefaultMaxEntries; a zero MaxTTLSeconds/MaxNCacheSeconds means "no clamp"
// (use -1 explicitly, matching the -1 == unlimited convention, or 0 for the
// same effect since record TTLs are never negative).
func New(opts Options, clk clock.Clock, logger log.Logger) (*Cache, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	backing, err := lru.New[string, nameEntry](opts.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: backing, clock: clk, opts: opts, log: logger}, nil
}

func cacheKey(n domain.Name) string { return strings.ToLower(n.String()) }

func (c *Cache) now() int64 { return c.clock.Now().Unix() }

// clampPositive applies the max_ttl_s clamp.
func (c *Cache) clampPositive(ttl uint32) uint32 {
	if c.opts.MaxTTLSeconds < 0 {
		return ttl
	}
	if c.opts.MaxTTLSeconds > 0 && int64(ttl) > c.opts.MaxTTLSeconds {
		return uint32(c.opts.MaxTTLSeconds)
	}
	return ttl
}

func (c *Cache) clampNegative(ttl uint32) uint32 {
	if c.opts.MaxNCacheSeconds < 0 {
		return ttl
	}
	if c.opts.MaxNCacheSeconds > 0 && int64(ttl) > c.opts.MaxNCacheSeconds {
		return uint32(c.opts.MaxNCacheSeconds)
	}
	return ttl
}

// get returns the (possibly empty) nameEntry at key, touching LRU order.
func (c *Cache) get(key string) nameEntry {
	entries, ok := c.lru.Get(key)
	if !ok {
		return nil
	}
	return entries
}

// AddRRset implements add_rrset (spec §4.4): credibility arbitrates whether
// the new set replaces, merges with, or is rejected by any existing entry at
// (owner, type).
func (c *Cache) AddRRset(rrset domain.RRset, cred domain.Credibility) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addRRsetLocked(rrset, cred)
}

func (c *Cache) addRRsetLocked(rrset domain.RRset, cred domain.Credibility) {
	key := cacheKey(rrset.Owner)
	entries := c.get(key)
	if entries == nil {
		entries = nameEntry{}
	}
	existing, ok := entries[rrset.Type]
	if ok && !existing.expired(c.now()) {
		if existing.cred > cred {
			return
		}
		if rrset.TTL == 0 {
			delete(entries, rrset.Type)
			c.lru.Add(key, entries)
			return
		}
		ttl := c.clampPositive(rrset.TTL)
		if existing.cred == cred && existing.kind == entryPositive {
			merged := existing.rrset.Clone()
			merged.Merge(rrset)
			entries[rrset.Type] = &cacheEntry{
				kind: entryPositive, rrset: merged, cred: cred,
				expireEpochS: c.now() + int64(ttl),
			}
			c.lru.Add(key, entries)
			return
		}
		// strictly lower existing credibility: replace.
		entries[rrset.Type] = &cacheEntry{
			kind: entryPositive, rrset: rrset.Clone(), cred: cred,
			expireEpochS: c.now() + int64(ttl),
		}
		c.lru.Add(key, entries)
		return
	}
	if rrset.TTL == 0 {
		return
	}
	ttl := c.clampPositive(rrset.TTL)
	entries[rrset.Type] = &cacheEntry{
		kind: entryPositive, rrset: rrset.Clone(), cred: cred,
		expireEpochS: c.now() + int64(ttl),
	}
	c.lru.Add(key, entries)
}

// AddRecord implements add_record: a singleton RRset merged per the same
// rule as AddRRset.
func (c *Cache) AddRecord(r domain.Record, cred domain.Credibility) error {
	rrset, err := domain.NewRRset(r)
	if err != nil {
		return err
	}
	c.AddRRset(rrset, cred)
	return nil
}

// AddNegative implements add_negative (spec §4.4). nxtype == 0 records an
// NXDOMAIN; any other type records an NXRRSET for that type. ttl is derived
// by the caller from the accompanying SOA (min(soa.minimum, soa.ttl), or 0
// if soa is nil) before calling this method.
func (c *Cache) AddNegative(name domain.Name, nxtype domain.RRType, ttl uint32, cred domain.Credibility) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(name)
	entries := c.get(key)
	if entries == nil {
		entries = nameEntry{}
	}
	existing, ok := entries[nxtype]
	if ok && !existing.expired(c.now()) {
		if existing.cred > cred {
			return
		}
		if ttl == 0 && existing.cred >= cred {
			delete(entries, nxtype)
			c.lru.Add(key, entries)
			return
		}
	}
	if ttl == 0 {
		return
	}
	clamped := c.clampNegative(ttl)
	entries[nxtype] = &cacheEntry{
		kind: entryNegative, nxtype: nxtype, cred: cred,
		expireEpochS: c.now() + int64(clamped),
	}
	c.lru.Add(key, entries)
}

// FlushSet implements flush_set: removes any entry at (name, type).
func (c *Cache) FlushSet(name domain.Name, t domain.RRType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(name)
	entries := c.get(key)
	if entries == nil {
		return
	}
	delete(entries, t)
	if len(entries) == 0 {
		c.lru.Remove(key)
		return
	}
	c.lru.Add(key, entries)
}

// FlushName implements flush_name: removes every entry at name.
func (c *Cache) FlushName(name domain.Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(cacheKey(name))
}

// Lookup implements the §4.4.1 ancestor-walking lookup state machine.
func (c *Cache) Lookup(qname domain.Name, qtype domain.RRType, minCred domain.Credibility) domain.LookupResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	qlabels := qname.Labels()
	for tlabels := qlabels; tlabels >= 1; tlabels-- {
		tname := qname.StripToLabels(tlabels)
		isExact := tlabels == qlabels

		key := cacheKey(tname)
		entries := c.get(key)
		if entries == nil {
			continue
		}
		c.evictExpired(key, entries)
		if len(entries) == 0 {
			continue
		}

		if isExact && qtype == domain.RRTypeANY {
			var sets []domain.RRset
			for _, e := range entries {
				if e.kind == entryPositive && e.cred >= minCred {
					sets = append(sets, e.rrset.Clone())
				}
			}
			if len(sets) > 0 {
				return domain.SuccessResult(sets...)
			}
		} else if isExact {
			if e, ok := entries[qtype]; ok {
				if e.kind == entryPositive && e.cred >= minCred {
					return domain.SuccessResult(e.rrset.Clone())
				}
				if e.kind == entryNegative {
					return domain.NxRRsetResult()
				}
			}
			if e, ok := entries[domain.RRTypeCNAME]; ok && e.kind == entryPositive && e.cred >= minCred {
				return domain.CNameResult(e.rrset.Clone())
			}
		} else {
			if e, ok := entries[domain.RRTypeDNAME]; ok && e.kind == entryPositive && e.cred >= minCred {
				return domain.DNameResult(e.rrset.Clone())
			}
		}

		if e, ok := entries[domain.RRTypeNS]; ok && e.kind == entryPositive && e.cred >= minCred {
			return domain.DelegationResult(e.rrset.Clone())
		}
		if isExact {
			if e, ok := entries[0]; ok && e.kind == entryNegative {
				return domain.NxDomainResult()
			}
		}
	}
	return domain.UnknownResult()
}

// LookupNS returns the nearest cached NS RRset for a strict ancestor of
// qname (qname's parent and up, never qname itself), for attaching AUTHORITY
// delegation data to a cache-sourced answer (spec §4.6 step 5).
func (c *Cache) LookupNS(qname domain.Name) (domain.RRset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	qlabels := qname.Labels()
	for tlabels := qlabels - 1; tlabels >= 1; tlabels-- {
		tname := qname.StripToLabels(tlabels)
		key := cacheKey(tname)
		entries := c.get(key)
		if entries == nil {
			continue
		}
		c.evictExpired(key, entries)
		if e, ok := entries[domain.RRTypeNS]; ok && e.kind == entryPositive {
			return e.rrset.Clone(), true
		}
	}
	return domain.RRset{}, false
}

// evictExpired removes every expired entry at key, per spec §3.3's "MUST be
// removed on next touch" and §5's "MUST NOT return an expired entry".
func (c *Cache) evictExpired(key string, entries nameEntry) {
	now := c.now()
	dirty := false
	for t, e := range entries {
		if e.expired(now) {
			delete(entries, t)
			dirty = true
		}
	}
	if dirty {
		if len(entries) == 0 {
			c.lru.Remove(key)
		} else {
			c.lru.Add(key, entries)
		}
	}
}

// AddMessage implements add_message (spec §4.4): ingests every RRset from a
// decoded response with credibility derived from §3.6 and the AA flag,
// following the in-message CNAME/DNAME chain to establish curname, and
// admitting ADDITIONAL records only for names a prior record marked as
// needing glue.
func (c *Cache) AddMessage(msg *domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	curname := domain.Name{}
	if len(msg.Question) > 0 {
		curname = msg.Question[0].Name
	}

	glueWanted := map[string]bool{}
	ingestSection := func(records []domain.Record, section domain.Section) {
		byGroup := map[string][]domain.Record{}
		var order []string
		for _, r := range records {
			if section == domain.SectionAdditional {
				if !glueWanted[strings.ToLower(r.Owner.String())] {
					continue
				}
			}
			k := r.Owner.String() + "/" + r.Type.String()
			if _, ok := byGroup[k]; !ok {
				order = append(order, k)
			}
			byGroup[k] = append(byGroup[k], r)

			if name, ok := r.AdditionalName(); ok {
				glueWanted[strings.ToLower(name.String())] = true
			}
			if r.Type == domain.RRTypeCNAME {
				if target, err := r.Target(); err == nil {
					curname = target
				}
			}
			if r.Type == domain.RRTypeDNAME {
				if target, err := r.Target(); err == nil {
					if newName, err := curname.FromDNAME(r.Owner, target); err == nil {
						curname = newName
					}
				}
			}
		}
		for _, k := range order {
			rrset, err := domain.NewRRset(byGroup[k]...)
			if err != nil {
				continue
			}
			cred := domain.CredibilityFor(section, msg.Flags.AA)
			c.addRRsetLocked(rrset, cred)
		}
	}

	ingestSection(msg.Answer, domain.SectionAnswer)
	ingestSection(msg.Authority, domain.SectionAuthority)
	ingestSection(msg.Additional, domain.SectionAdditional)

	if msg.Flags.RCode == domain.RCodeNXDomain && !curname.Equal(domain.Name{}) {
		c.recordNegativeFromAuthority(msg, curname, 0)
	} else if msg.Flags.RCode == domain.RCodeNoError && len(msg.Answer) == 0 && !curname.Equal(domain.Name{}) {
		var qtype domain.RRType
		if len(msg.Question) > 0 {
			qtype = msg.Question[0].Type
		}
		c.recordNegativeFromAuthority(msg, curname, qtype)
	}
}

func (c *Cache) recordNegativeFromAuthority(msg *domain.Message, name domain.Name, nxtype domain.RRType) {
	for _, r := range msg.Authority {
		if r.Type != domain.RRTypeSOA {
			continue
		}
		soa, err := r.SOA()
		if err != nil {
			continue
		}
		ttl := soa.Minimum
		if soa.Minimum > r.TTL {
			ttl = r.TTL
		}
		cred := domain.CredibilityFor(domain.SectionAuthority, msg.Flags.AA)
		entries := c.get(cacheKey(name))
		if entries == nil {
			entries = nameEntry{}
		}
		entries[nxtype] = &cacheEntry{
			kind: entryNegative, nxtype: nxtype, cred: cred,
			expireEpochS: c.now() + int64(c.clampNegative(ttl)),
		}
		c.lru.Add(cacheKey(name), entries)
		return
	}
}

// Len returns the number of owner-name keys currently stored.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// SnapshotEntry is one persistable (owner, type) cache slot, used by
// server/cachestore to survive process restarts.
type SnapshotEntry struct {
	Owner        string
	Type         domain.RRType
	Negative     bool
	NXType       domain.RRType
	RRset        domain.RRset
	Cred         domain.Credibility
	ExpireEpochS int64
}

// Snapshot returns every non-expired entry currently held, for persistence.
func (c *Cache) Snapshot() []SnapshotEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var out []SnapshotEntry
	for _, key := range c.lru.Keys() {
		entries, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		for t, e := range entries {
			if e.expired(now) {
				continue
			}
			out = append(out, SnapshotEntry{
				Owner: key, Type: t, Negative: e.kind == entryNegative,
				NXType: e.nxtype, RRset: e.rrset.Clone(), Cred: e.cred,
				ExpireEpochS: e.expireEpochS,
			})
		}
	}
	return out
}

// Restore reloads previously snapshotted entries, skipping any that have
// since expired. It does not arbitrate credibility against existing state;
// callers restore into a freshly constructed, empty Cache.
func (c *Cache) Restore(snapshot []SnapshotEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, se := range snapshot {
		if se.ExpireEpochS <= now {
			continue
		}
		entries := c.get(se.Owner)
		if entries == nil {
			entries = nameEntry{}
		}
		if se.Negative {
			entries[se.Type] = &cacheEntry{kind: entryNegative, nxtype: se.NXType, cred: se.Cred, expireEpochS: se.ExpireEpochS}
		} else {
			entries[se.Type] = &cacheEntry{kind: entryPositive, rrset: se.RRset, cred: se.Cred, expireEpochS: se.ExpireEpochS}
		}
		c.lru.Add(se.Owner, entries)
	}
}
