package domain

import "fmt"

// RRset is a nonempty group of records sharing (owner, type, class) — spec
// §3.2. Its TTL is the minimum of its members' TTLs at insertion time, or the
// first member's TTL, and is preserved rather than recomputed thereafter.
// RRSIG records covering this set's type are kept alongside but never
// merged into Records.
type RRset struct {
	Owner   Name
	Type    RRType
	Class   RRClass
	TTL     uint32
	Records []Record
	RRSIGs  []Record
}

// NewRRset builds an RRset from one or more records that must already share
// the same (owner, type, class).
func NewRRset(records ...Record) (RRset, error) {
	if len(records) == 0 {
		return RRset{}, fmt.Errorf("rrset: at least one record required")
	}
	first := records[0]
	ttl := first.TTL
	for _, r := range records[1:] {
		if !r.SameRRSet(first) {
			return RRset{}, fmt.Errorf("rrset: record %s/%s does not match owner/type/class", r.Owner, r.Type)
		}
		if r.TTL < ttl {
			ttl = r.TTL
		}
	}
	return RRset{
		Owner:   first.Owner,
		Type:    first.Type,
		Class:   first.Class,
		TTL:     ttl,
		Records: append([]Record(nil), records...),
	}, nil
}

// Add appends r to the set. r must match the set's owner/type/class; the
// set's TTL is left untouched (spec §3.2 — TTL is fixed at insert).
func (s *RRset) Add(r Record) error {
	if len(s.Records) == 0 {
		s.Owner, s.Type, s.Class, s.TTL = r.Owner, r.Type, r.Class, r.TTL
	} else if !r.SameRRSet(s.Records[0]) {
		return fmt.Errorf("rrset: record %s/%s does not match owner/type/class", r.Owner, r.Type)
	}
	s.Records = append(s.Records, r)
	return nil
}

// Merge appends other's records into s, deduplicating identical rdata.
func (s *RRset) Merge(other RRset) {
	for _, r := range other.Records {
		dup := false
		for _, existing := range s.Records {
			if bytesEqual(existing.RData, r.RData) {
				dup = true
				break
			}
		}
		if !dup {
			s.Records = append(s.Records, r)
		}
	}
}

// Clone returns a deep-enough copy of s suitable for storing independently
// of the caller's slice.
func (s RRset) Clone() RRset {
	out := RRset{Owner: s.Owner, Type: s.Type, Class: s.Class, TTL: s.TTL}
	out.Records = append([]Record(nil), s.Records...)
	out.RRSIGs = append([]Record(nil), s.RRSIGs...)
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
