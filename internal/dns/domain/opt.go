package domain

// OPT represents an EDNS0 pseudo-record (RFC 2671/6891), carried as the last
// ADDITIONAL entry when a message negotiates extended semantics. Rather than
// a side-channel struct, the core encodes OPT fields into an ordinary Record
// whose Class carries the requestor's UDP payload size and whose TTL packs
// the extended RCODE, version, and DO bit — mirroring dnsjava's OPTRecord.
type OPT struct {
	PayloadSize  uint16
	ExtendedRCode uint8
	Version      uint8
	DO           bool
	Options      []byte
}

// ToRecord renders o as the OPT pseudo-record placed in ADDITIONAL.
func (o OPT) ToRecord() Record {
	var ttl uint32
	ttl |= uint32(o.ExtendedRCode) << 24
	ttl |= uint32(o.Version) << 16
	if o.DO {
		ttl |= 1 << 15
	}
	return Record{
		Owner: Root,
		Type:  RRTypeOPT,
		Class: RRClass(o.PayloadSize),
		TTL:   ttl,
		RData: append([]byte(nil), o.Options...),
	}
}

// OPTFromRecord extracts the OPT fields from an OPT pseudo-record. Callers
// must have checked r.Type == RRTypeOPT.
func OPTFromRecord(r Record) OPT {
	return OPT{
		PayloadSize:   uint16(r.Class),
		ExtendedRCode: uint8(r.TTL >> 24),
		Version:       uint8(r.TTL >> 16),
		DO:            r.TTL&(1<<15) != 0,
		Options:       append([]byte(nil), r.RData...),
	}
}

// FullRCode combines a 4-bit header RCODE with this OPT's extended RCODE
// bits into the effective 12-bit RCODE (RFC 6891 §6.1.3).
func (o OPT) FullRCode(headerRCode RCode) RCode {
	return RCode(uint16(o.ExtendedRCode)<<4 | uint16(headerRCode))
}
