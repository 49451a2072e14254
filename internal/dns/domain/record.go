package domain

import (
	"fmt"

	"github.com/haukened/rr-dns/internal/dns/common/wire"
)

// Record is the generic resource-record envelope: an owner name plus type,
// class, TTL, and opaque rdata. Only A, AAAA, NS, SOA, CNAME, and DNAME have
// their rdata inspected by the core (for chasing, glue, and negative-cache
// TTL derivation); every other type rides through as opaque bytes (spec §1,
// Design Notes §9: "tagged variant ... generic fallback").
//
// RData is always stored decompressed and self-contained: for the
// name-bearing types above, any compression pointer present on the wire has
// already been resolved at decode time, so RData can be re-parsed in
// isolation without access to the enclosing message.
type Record struct {
	Owner Name
	Type  RRType
	Class RRClass
	TTL   uint32
	RData []byte
}

// NewRecord constructs a Record, validating owner/type/class.
func NewRecord(owner Name, rrtype RRType, class RRClass, ttl uint32, rdata []byte) (Record, error) {
	r := Record{Owner: owner, Type: rrtype, Class: class, TTL: ttl, RData: rdata}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Validate checks structural validity of the record envelope.
func (r Record) Validate() error {
	if !r.Owner.IsAbsolute() {
		return fmt.Errorf("%w: record owner %s", ErrRelativeName, r.Owner)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid RRType: %d", r.Type)
	}
	if !r.Class.IsValid() {
		return fmt.Errorf("invalid RRClass: %d", r.Class)
	}
	return nil
}

// SameRRSet reports whether r and o belong to the same RRset (owner, type,
// class all equal).
func (r Record) SameRRSet(o Record) bool {
	return r.Owner.Equal(o.Owner) && r.Type == o.Type && r.Class == o.Class
}

// decodeNameRData decodes a single wire-format Name as the entirety of a
// record's rdata (used by CNAME and DNAME), verifying it consumed exactly
// rdlength bytes of the original (possibly compressed) wire image.
func decodeNameRData(r *wire.Reader, rdlength int) ([]byte, error) {
	start := r.Pos()
	name, err := NameFromWire(r)
	if err != nil {
		return nil, err
	}
	if r.Pos()-start != rdlength {
		return nil, fmt.Errorf("%w: name rdata consumed %d bytes, want %d", ErrWireParse, r.Pos()-start, rdlength)
	}
	return name.ToWireCanonical(), nil
}

// decodeNSRData is identical in shape to decodeNameRData; kept distinct for
// readability at call sites and in case NS ever needs bespoke handling.
func decodeNSRData(r *wire.Reader, rdlength int) ([]byte, error) {
	return decodeNameRData(r, rdlength)
}

// soaFields is the parsed rdata of an SOA record (RFC 1035 §3.3.13).
type soaFields struct {
	MName   Name
	RName   Name
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func decodeSOARData(r *wire.Reader, rdlength int) ([]byte, soaFields, error) {
	start := r.Pos()
	mname, err := NameFromWire(r)
	if err != nil {
		return nil, soaFields{}, err
	}
	rname, err := NameFromWire(r)
	if err != nil {
		return nil, soaFields{}, err
	}
	serial, err := r.ReadU32()
	if err != nil {
		return nil, soaFields{}, err
	}
	refresh, err := r.ReadU32()
	if err != nil {
		return nil, soaFields{}, err
	}
	retry, err := r.ReadU32()
	if err != nil {
		return nil, soaFields{}, err
	}
	expire, err := r.ReadU32()
	if err != nil {
		return nil, soaFields{}, err
	}
	minimum, err := r.ReadU32()
	if err != nil {
		return nil, soaFields{}, err
	}
	if r.Pos()-start != rdlength {
		return nil, soaFields{}, fmt.Errorf("%w: SOA rdata consumed %d bytes, want %d", ErrWireParse, r.Pos()-start, rdlength)
	}
	soa := soaFields{mname, rname, serial, refresh, retry, expire, minimum}
	w := wire.NewWriter()
	w.WriteBytes(mname.ToWireCanonical())
	w.WriteBytes(rname.ToWireCanonical())
	w.WriteU32(serial)
	w.WriteU32(refresh)
	w.WriteU32(retry)
	w.WriteU32(expire)
	w.WriteU32(minimum)
	return w.Bytes(), soa, nil
}

// SOA parses r's rdata as an SOA record. Callers must have checked r.Type ==
// RRTypeSOA.
func (r Record) SOA() (soaFields, error) {
	rd := wire.NewReader(r.RData)
	mname, err := NameFromWire(rd)
	if err != nil {
		return soaFields{}, err
	}
	rname, err := NameFromWire(rd)
	if err != nil {
		return soaFields{}, err
	}
	serial, _ := rd.ReadU32()
	refresh, _ := rd.ReadU32()
	retry, _ := rd.ReadU32()
	expire, _ := rd.ReadU32()
	minimum, err := rd.ReadU32()
	if err != nil {
		return soaFields{}, err
	}
	return soaFields{mname, rname, serial, refresh, retry, expire, minimum}, nil
}

// Target returns the single name carried by a CNAME, DNAME, or NS record's
// rdata. Callers must have checked r.Type first.
func (r Record) Target() (Name, error) {
	rd := wire.NewReader(r.RData)
	return NameFromWire(rd)
}

// AdditionalName returns the name that needs A/AAAA glue resolution, if r
// advertises one. Only NS records do (spec §4.6 step 6).
func (r Record) AdditionalName() (Name, bool) {
	if r.Type != RRTypeNS {
		return Name{}, false
	}
	target, err := r.Target()
	if err != nil {
		return Name{}, false
	}
	return target, true
}

// EncodeRData writes r's rdata in wire format, resolving names through ct
// where the type allows compression (NS, CNAME, DNAME, SOA's two names).
func (r Record) EncodeRData(w *wire.Writer, ct *Compression) error {
	switch r.Type {
	case RRTypeNS, RRTypeCNAME, RRTypeDNAME:
		name, err := r.Target()
		if err != nil {
			return err
		}
		return name.ToWire(w, ct)
	case RRTypeSOA:
		soa, err := r.SOA()
		if err != nil {
			return err
		}
		if err := soa.MName.ToWire(w, ct); err != nil {
			return err
		}
		if err := soa.RName.ToWire(w, ct); err != nil {
			return err
		}
		w.WriteU32(soa.Serial)
		w.WriteU32(soa.Refresh)
		w.WriteU32(soa.Retry)
		w.WriteU32(soa.Expire)
		w.WriteU32(soa.Minimum)
		return nil
	default:
		w.WriteBytes(r.RData)
		return nil
	}
}
