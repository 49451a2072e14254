package domain

import (
	"fmt"

	"github.com/haukened/rr-dns/internal/dns/common/wire"
)

const headerSize = 12

// OpCode is the 4-bit operation code carried in a Message's flags word.
type OpCode uint8

const (
	OpQuery  OpCode = 0
	OpIQuery OpCode = 1
	OpStatus OpCode = 2
	OpNotify OpCode = 4
	OpUpdate OpCode = 5
)

// Flags holds the boolean/opcode/rcode fields of a Message's 16-bit flags
// word (spec §3.7).
type Flags struct {
	QR     bool
	Opcode OpCode
	AA     bool
	TC     bool
	RD     bool
	RA     bool
	RCode  RCode
}

func (f Flags) encode() uint16 {
	var v uint16
	if f.QR {
		v |= 1 << 15
	}
	v |= uint16(f.Opcode&0xF) << 11
	if f.AA {
		v |= 1 << 10
	}
	if f.TC {
		v |= 1 << 9
	}
	if f.RD {
		v |= 1 << 8
	}
	if f.RA {
		v |= 1 << 7
	}
	v |= uint16(f.RCode) & 0xF
	return v
}

func decodeFlags(v uint16) Flags {
	return Flags{
		QR:     v&(1<<15) != 0,
		Opcode: OpCode((v >> 11) & 0xF),
		AA:     v&(1<<10) != 0,
		TC:     v&(1<<9) != 0,
		RD:     v&(1<<8) != 0,
		RA:     v&(1<<7) != 0,
		RCode:  RCode(v & 0xF),
	}
}

// Section identifies which part of a Message a record came from or is
// destined for; used to derive Credibility on ingest (spec §3.6).
type Section uint8

const (
	SectionQuestion Section = iota
	SectionAnswer
	SectionAuthority
	SectionAdditional
)

// Message is a decoded DNS message: a 12-byte header plus the four record
// sections (spec §3.7). Constructed empty, records are appended, and it is
// rendered to bytes once; copies must be made explicitly, as a Message is
// not safe for concurrent use (spec §5).
type Message struct {
	ID         uint16
	Flags      Flags
	Question   []Question
	Answer     []Record
	Authority  []Record
	Additional []Record

	// OPT, if non-nil, is the EDNS0 pseudo-record negotiated by this message.
	// It is encoded/decoded separately from Additional (spec §4.6 step 3, 7).
	OPT *OPT

	// TSIGIndex is the index within the decoded Additional slice of a TSIG
	// record, or -1 if none was present (spec §4.3: "the parser records the
	// byte offset of any TSIG record").
	TSIGIndex int
}

// NewQuery builds a query Message carrying the single question q, with RD set
// only when recursionDesired is true.
func NewQuery(id uint16, q Question, recursionDesired bool) *Message {
	return &Message{
		ID:         id,
		Flags:      Flags{RD: recursionDesired, Opcode: OpQuery},
		Question:   []Question{q},
		TSIGIndex:  -1,
	}
}

// NewReply builds an empty reply Message addressed to the given query,
// copying its ID, opcode, and question.
func NewReply(query *Message, rcode RCode) *Message {
	return &Message{
		ID:        query.ID,
		Flags:     Flags{QR: true, Opcode: query.Flags.Opcode, RD: query.Flags.RD, RCode: rcode},
		Question:  append([]Question(nil), query.Question...),
		TSIGIndex: -1,
	}
}

// Decode parses buf as a wire-format DNS message (spec §4.3). If the TC flag
// is set in the header and decoding fails partway through a section, the
// already-parsed prefix is returned as a best-effort result rather than an
// error.
func Decode(buf []byte) (*Message, error) {
	r := wire.NewReader(buf)
	id, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: header id: %v", ErrWireParse, err)
	}
	flagsWord, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: header flags: %v", ErrWireParse, err)
	}
	flags := decodeFlags(flagsWord)

	qdcount, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: qdcount: %v", ErrWireParse, err)
	}
	ancount, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: ancount: %v", ErrWireParse, err)
	}
	nscount, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: nscount: %v", ErrWireParse, err)
	}
	arcount, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("%w: arcount: %v", ErrWireParse, err)
	}

	m := &Message{ID: id, Flags: flags, TSIGIndex: -1}

	for i := 0; i < int(qdcount); i++ {
		q, err := decodeQuestion(r)
		if err != nil {
			if flags.TC {
				return m, nil
			}
			return nil, fmt.Errorf("%w: question %d: %v", ErrWireParse, i, err)
		}
		m.Question = append(m.Question, q)
	}

	sections := []struct {
		count int
		dest  *[]Record
	}{
		{int(ancount), &m.Answer},
		{int(nscount), &m.Authority},
		{int(arcount), &m.Additional},
	}
	for _, sec := range sections {
		for i := 0; i < sec.count; i++ {
			rec, err := decodeRecord(r)
			if err != nil {
				if flags.TC {
					return m, nil
				}
				return nil, fmt.Errorf("%w: record: %v", ErrWireParse, err)
			}
			*sec.dest = append(*sec.dest, rec)
		}
	}

	m.extractPseudoRecords()
	return m, nil
}

// extractPseudoRecords pulls the OPT record (if any) out of Additional into
// m.OPT, and records the index of a TSIG record (if any), per spec §4.3.
func (m *Message) extractPseudoRecords() {
	kept := m.Additional[:0]
	for _, rec := range m.Additional {
		switch rec.Type {
		case RRTypeOPT:
			opt := OPTFromRecord(rec)
			m.OPT = &opt
		case RRTypeTSIG:
			m.TSIGIndex = len(kept)
			kept = append(kept, rec)
		default:
			kept = append(kept, rec)
		}
	}
	m.Additional = kept
}

func decodeRecord(r *wire.Reader) (Record, error) {
	owner, err := NameFromWire(r)
	if err != nil {
		return Record{}, err
	}
	t, err := r.ReadU16()
	if err != nil {
		return Record{}, err
	}
	c, err := r.ReadU16()
	if err != nil {
		return Record{}, err
	}
	ttl, err := r.ReadU32()
	if err != nil {
		return Record{}, err
	}
	rdlen, err := r.ReadU16()
	if err != nil {
		return Record{}, err
	}
	rdata, err := decodeRData(r, RRType(t), int(rdlen))
	if err != nil {
		return Record{}, err
	}
	return Record{Owner: owner, Type: RRType(t), Class: RRClass(c), TTL: ttl, RData: rdata}, nil
}

func decodeRData(r *wire.Reader, t RRType, rdlen int) ([]byte, error) {
	switch t {
	case RRTypeNS, RRTypeCNAME, RRTypeDNAME:
		return decodeNSRData(r, rdlen)
	case RRTypeSOA:
		data, _, err := decodeSOARData(r, rdlen)
		return data, err
	default:
		return r.ReadBytes(rdlen)
	}
}

// Encode renders m to wire format bounded by maxLength, implementing the
// rendered-prefix truncation algorithm of spec §4.3. OPT and TSIG are not
// part of m.Additional and must be appended by the caller after Encode
// returns, via AppendAdditional — maxLength should already have been reduced
// by their worst-case serialized length before calling Encode.
func (m *Message) Encode(maxLength int) ([]byte, error) {
	if maxLength < headerSize {
		return nil, fmt.Errorf("%w: max_length %d smaller than header", ErrWireParse, maxLength)
	}
	w := wire.NewWriter()
	ct := NewCompression()

	w.WriteU16(m.ID)
	flagsOff := w.Len()
	w.WriteU16(m.Flags.encode())
	qdOff := w.Len()
	w.WriteU16(0)
	anOff := w.Len()
	w.WriteU16(0)
	nsOff := w.Len()
	w.WriteU16(0)
	arOff := w.Len()
	w.WriteU16(0)

	setTC := func() {
		f := m.Flags
		f.TC = true
		w.PatchU16(flagsOff, f.encode())
	}

	qdcount := 0
	for _, q := range m.Question {
		before := w.Len()
		if err := q.encode(w, ct); err != nil {
			return nil, err
		}
		if w.Len() > maxLength {
			w.Truncate(before)
			w.PatchU16(qdOff, uint16(qdcount))
			w.PatchU16(anOff, 0)
			w.PatchU16(nsOff, 0)
			w.PatchU16(arOff, 0)
			setTC()
			return w.Bytes(), nil
		}
		qdcount++
	}
	w.PatchU16(qdOff, uint16(qdcount))

	ancount, truncated := encodeRecordSection(w, m.Answer, ct, maxLength)
	w.PatchU16(anOff, uint16(ancount))
	if truncated {
		w.PatchU16(nsOff, 0)
		w.PatchU16(arOff, 0)
		setTC()
		return w.Bytes(), nil
	}

	nscount, truncated := encodeRecordSection(w, m.Authority, ct, maxLength)
	w.PatchU16(nsOff, uint16(nscount))
	if truncated {
		w.PatchU16(arOff, 0)
		setTC()
		return w.Bytes(), nil
	}

	arcount, _ := encodeRecordSection(w, m.Additional, ct, maxLength)
	w.PatchU16(arOff, uint16(arcount))
	// Per spec §8 boundary case: a partially-fitting ADDITIONAL section does
	// not set TC and simply carries fewer records than were queued.
	return w.Bytes(), nil
}

// encodeRecordSection writes records in atomic RRset-sized groups (runs of
// consecutive records sharing owner/type/class), rolling back to the last
// complete group's boundary if a group's encoding would exceed maxLength.
func encodeRecordSection(w *wire.Writer, records []Record, ct *Compression, maxLength int) (count int, truncated bool) {
	i := 0
	for i < len(records) {
		groupStart := w.Len()
		groupCount := count
		j := i
		for j < len(records) && recordGroupKey(records[i]) == recordGroupKey(records[j]) {
			if err := encodeRecord(w, records[j], ct); err != nil {
				w.Truncate(groupStart)
				return groupCount, true
			}
			count++
			j++
		}
		if w.Len() > maxLength {
			w.Truncate(groupStart)
			return groupCount, true
		}
		i = j
	}
	return count, false
}

func recordGroupKey(r Record) string {
	return fmt.Sprintf("%s/%d/%d", r.Owner.String(), r.Type, r.Class)
}

func encodeRecord(w *wire.Writer, r Record, ct *Compression) error {
	if err := r.Owner.ToWire(w, ct); err != nil {
		return err
	}
	w.WriteU16(uint16(r.Type))
	w.WriteU16(uint16(r.Class))
	w.WriteU32(r.TTL)
	rdlenOff := w.Len()
	w.WriteU16(0)
	before := w.Len()
	if err := r.EncodeRData(w, ct); err != nil {
		return err
	}
	w.PatchU16(rdlenOff, uint16(w.Len()-before))
	return nil
}

// AppendAdditional appends rec's wire bytes to an already-rendered message
// and increments the ARCOUNT field in place. Used to attach OPT and TSIG
// records after the size-capped core encode (spec §4.3's "accounted for
// outside this cap").
func AppendAdditional(rendered []byte, rec Record) ([]byte, error) {
	if len(rendered) < headerSize {
		return nil, fmt.Errorf("%w: rendered message shorter than header", ErrWireParse)
	}
	w := wire.NewWriter()
	w.WriteBytes(rendered)
	ct := NewCompression()
	if err := encodeRecord(w, rec, ct); err != nil {
		return nil, err
	}
	out := w.Bytes()
	arcount := uint16(out[10])<<8 | uint16(out[11])
	out[10] = byte((arcount + 1) >> 8)
	out[11] = byte(arcount + 1)
	return out, nil
}
