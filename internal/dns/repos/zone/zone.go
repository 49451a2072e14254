// Package zone implements the authoritative Zone store of spec §3.5/§4.5: an
// associative container from Name to one-or-many RRset, anchored at a
// distinguished origin that must carry SOA and NS data. Owner names are kept
// in a map plus their first-insertion order; they are not sorted.
package zone

import (
	"fmt"
	"strings"
	"sync"

	"github.com/haukened/rr-dns/internal/dns/domain"
)

// Zone is the authoritative, in-memory store for one DNS zone. All mutating
// and lookup operations are guarded by a single mutex; readers serialize
// with writers (spec §5).
type Zone struct {
	mu      sync.RWMutex
	origin  domain.Name
	records map[string]map[domain.RRType]domain.RRset
	hasWild bool
	// order preserves first-insertion order of owner-name keys, giving AXFR
	// a stable (if not strictly canonical) traversal order.
	order []string
}

func ownerKey(n domain.Name) string { return strings.ToLower(n.String()) }

// New constructs a Zone from a flat list of already-parsed records,
// enforcing the construction invariants of spec §4.5: exactly one SOA
// RRset at origin with exactly one record, at least one NS RRset at
// origin, and every record's owner a subdomain of origin.
func New(origin domain.Name, records []domain.Record) (*Zone, error) {
	if !origin.IsAbsolute() {
		return nil, fmt.Errorf("%w: origin %s must be absolute", domain.ErrRelativeName, origin)
	}
	z := &Zone{
		origin:  origin,
		records: map[string]map[domain.RRType]domain.RRset{},
	}
	grouped := map[string]map[domain.RRType][]domain.Record{}
	var order []string
	for _, r := range records {
		if !r.Owner.Subdomain(origin) {
			return nil, fmt.Errorf("%w: owner %s not within origin %s", domain.ErrZoneInvariant, r.Owner, origin)
		}
		if r.Type == domain.RRTypeSOA && !r.Owner.Equal(origin) {
			return nil, fmt.Errorf("%w: SOA owner %s must equal origin %s", domain.ErrZoneInvariant, r.Owner, origin)
		}
		k := ownerKey(r.Owner)
		if _, ok := grouped[k]; !ok {
			grouped[k] = map[domain.RRType][]domain.Record{}
			order = append(order, k)
		}
		grouped[k][r.Type] = append(grouped[k][r.Type], r)
	}

	originKey := ownerKey(origin)
	soaRecords := grouped[originKey][domain.RRTypeSOA]
	if len(soaRecords) != 1 {
		return nil, fmt.Errorf("%w: zone %s requires exactly one SOA record at origin, found %d", domain.ErrZoneInvariant, origin, len(soaRecords))
	}
	if len(grouped[originKey][domain.RRTypeNS]) == 0 {
		return nil, fmt.Errorf("%w: zone %s requires at least one NS record at origin", domain.ErrZoneInvariant, origin)
	}

	for _, k := range order {
		z.records[k] = map[domain.RRType]domain.RRset{}
		for t, recs := range grouped[k] {
			rrset, err := domain.NewRRset(recs...)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrZoneInvariant, err)
			}
			z.records[k][t] = rrset
			if t == domain.RRTypeA || t == domain.RRTypeAAAA || t == domain.RRTypeCNAME {
				// owner carries a wildcard label check below
			}
		}
	}
	z.order = order

	for _, k := range order {
		if len(k) > 0 && k[0] == '*' {
			z.hasWild = true
			break
		}
	}
	return z, nil
}

// Origin returns the zone's origin name.
func (z *Zone) Origin() domain.Name { return z.origin }

// Lookup implements the §4.5 lookup algorithm: walk origin.labels() up to
// q.labels(), checking for delegations, exact matches, ancestor DNAMEs, and
// (failing all else) wildcard synthesis.
func (z *Zone) Lookup(qname domain.Name, qtype domain.RRType) domain.LookupResult {
	z.mu.RLock()
	defer z.mu.RUnlock()

	if !qname.Subdomain(z.origin) {
		return domain.UnknownResult()
	}
	originLabels := z.origin.Labels()
	qlabels := qname.Labels()

	for tlabels := originLabels; tlabels <= qlabels; tlabels++ {
		tname := qname.StripToLabels(tlabels)
		isExact := tlabels == qlabels
		isOrigin := tlabels == originLabels

		at, ok := z.records[ownerKey(tname)]
		if !ok {
			continue
		}
		if !isOrigin {
			if ns, ok := at[domain.RRTypeNS]; ok {
				return domain.DelegationResult(ns.Clone())
			}
		}
		if isExact {
			if qtype == domain.RRTypeANY {
				var sets []domain.RRset
				for _, rrset := range at {
					sets = append(sets, rrset.Clone())
				}
				return domain.SuccessResult(sets...)
			}
			if rrset, ok := at[qtype]; ok {
				return domain.SuccessResult(rrset.Clone())
			}
			if cname, ok := at[domain.RRTypeCNAME]; ok {
				return domain.CNameResult(cname.Clone())
			}
			return domain.NxRRsetResult()
		}
		if dname, ok := at[domain.RRTypeDNAME]; ok {
			return domain.DNameResult(dname.Clone())
		}
	}

	if z.hasWild {
		for strip := 1; strip <= qlabels-originLabels; strip++ {
			suffix := qname.StripToLabels(qlabels - strip)
			wild, err := domain.Concatenate(mustWildLabel(), suffix)
			if err != nil {
				continue
			}
			at, ok := z.records[ownerKey(wild)]
			if !ok {
				continue
			}
			if qtype == domain.RRTypeANY {
				var sets []domain.RRset
				for _, rrset := range at {
					sets = append(sets, rewriteOwner(rrset, qname))
				}
				return domain.SuccessResult(sets...)
			}
			if rrset, ok := at[qtype]; ok {
				return domain.SuccessResult(rewriteOwner(rrset, qname))
			}
			if cname, ok := at[domain.RRTypeCNAME]; ok {
				return domain.CNameResult(rewriteOwner(cname, qname))
			}
		}
	}

	return domain.NxDomainResult()
}

// rewriteOwner returns a copy of rrset with every record's owner replaced by
// newOwner, used when a wildcard match must be presented under the queried
// name (spec §8 scenario 2).
func rewriteOwner(rrset domain.RRset, newOwner domain.Name) domain.RRset {
	out := rrset.Clone()
	out.Owner = newOwner
	for i := range out.Records {
		out.Records[i].Owner = newOwner
	}
	return out
}

func mustWildLabel() domain.Name {
	n, err := domain.ParseName("*", nil)
	if err != nil {
		panic(err)
	}
	return n
}

// SOA returns the zone's single SOA record.
func (z *Zone) SOA() (domain.Record, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	rrset, ok := z.records[ownerKey(z.origin)][domain.RRTypeSOA]
	if !ok || len(rrset.Records) == 0 {
		return domain.Record{}, false
	}
	return rrset.Records[0], true
}

// AXFR yields the zone's records for a full zone transfer: SOA first, then
// every other RRset, then SOA again (spec §4.5). The snapshot is taken over
// the key order recorded at construction/insertion time; as documented in
// spec §5, concurrent mutation during iteration may be observed partially.
func (z *Zone) AXFR() []domain.RRset {
	z.mu.RLock()
	order := append([]string(nil), z.order...)
	origin := ownerKey(z.origin)
	z.mu.RUnlock()

	var out []domain.RRset
	soa, ok := z.SOA()
	if ok {
		soaSet, _ := domain.NewRRset(soa)
		out = append(out, soaSet)
	}
	for _, k := range order {
		z.mu.RLock()
		at, ok := z.records[k]
		z.mu.RUnlock()
		if !ok {
			continue
		}
		for t, rrset := range at {
			if k == origin && t == domain.RRTypeSOA {
				continue
			}
			out = append(out, rrset.Clone())
		}
	}
	if ok {
		soaSet, _ := domain.NewRRset(soa)
		out = append(out, soaSet)
	}
	return out
}
