// Package responder implements the top-level request-to-response engine of
// spec §4.6: it consults a zone set for authoritative answers, falls back to
// a cache, chases CNAME/DNAME indirection, attaches glue, and negotiates
// EDNS0 and TSIG.
package responder

import (
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/repos/dnscache"
	"github.com/haukened/rr-dns/internal/dns/repos/zone"
	"github.com/haukened/rr-dns/internal/dns/repos/zoneset"
	"github.com/haukened/rr-dns/internal/dns/tsig"
)

// maxChaseDepth caps CNAME/DNAME indirection within a single answer, per
// spec §4.6 step 5 ("depth cap 6").
const maxChaseDepth = 6

const (
	udpMinPayload = 512
	ednsPayload   = 4096
)

// Responder answers a decoded query with a decoded response, per the
// zone-then-cache consultation order of spec §4.6.
type Responder struct {
	Zones    *zoneset.Set
	Cache    *dnscache.Cache
	Keys     tsig.KeyStore
	Signer   tsig.Signer
	Verifier tsig.Verifier
	Log      log.Logger
}

// New constructs a Responder. keys/signer/verifier may be nil/zero-value
// when TSIG support is not configured; a nil KeyStore is treated as "no
// keys known".
func New(zones *zoneset.Set, cache *dnscache.Cache, keys tsig.KeyStore, signer tsig.Signer, verifier tsig.Verifier, logger log.Logger) *Responder {
	return &Responder{Zones: zones, Cache: cache, Keys: keys, Signer: signer, Verifier: verifier, Log: logger}
}

// Transport identifies whether a request arrived over UDP or TCP, since
// truncation and the maximum EDNS0 payload size both depend on it (spec
// §4.6 step 4).
type Transport uint8

const (
	TransportUDP Transport = iota
	TransportTCP
)

// Respond implements spec §4.6 steps 1-8. reqBytes is the raw wire bytes of
// the request, needed for TSIG verification and to size-cap the reply.
func (s *Responder) Respond(reqBytes []byte, transport Transport, now time.Time) ([]byte, error) {
	req, err := domain.Decode(reqBytes)
	if err != nil {
		return nil, err
	}

	// Step 1: drop messages that are themselves responses.
	if req.Flags.QR {
		return nil, nil
	}

	// Step 2: malformed header rcode.
	if req.Flags.RCode != domain.RCodeNoError {
		return encodeSimple(domain.NewReply(req, domain.RCodeFormErr), transport)
	}

	// Step 3: only QUERY is supported by the core responder.
	if req.Flags.Opcode != domain.OpQuery {
		return encodeSimple(domain.NewReply(req, domain.RCodeNotImp), transport)
	}

	// Step 4: TSIG verification, if a TSIG record is present.
	var tsigKey tsig.Key
	haveTSIGKey := false
	if req.TSIGIndex >= 0 && req.TSIGIndex < len(req.Additional) {
		tsigRec := req.Additional[req.TSIGIndex]
		keyName := tsigRec.Owner
		key, ok := s.lookupKey(keyName)
		if !ok {
			reply := domain.NewReply(req, domain.RCodeFormErr)
			reply.Question = nil
			return encodeSimple(reply, transport)
		}
		rcode := s.verifier().Verify(key, req.ID, reqBytes, tsigRec, nil, now)
		if rcode != domain.RCodeNoError {
			reply := domain.NewReply(req, domain.RCodeFormErr)
			reply.Question = nil
			return encodeSimple(reply, transport)
		}
		tsigKey = key
		haveTSIGKey = true
	}

	if len(req.Question) != 1 {
		return encodeSimple(domain.NewReply(req, domain.RCodeFormErr), transport)
	}
	q := req.Question[0]

	// AXFR is dispatched separately by the transport layer (it streams many
	// messages); the core responder only rejects it over UDP.
	if q.Type == domain.RRTypeAXFR && transport == TransportUDP {
		return encodeSimple(domain.NewReply(req, domain.RCodeNotImp), transport)
	}

	reply := domain.NewReply(req, domain.RCodeNoError)
	reply.Flags.RA = false

	// Step 5/6: resolve the answer, chasing CNAME/DNAME, collecting glue.
	s.addAnswer(reply, q, req.Flags.RD, 0)

	// Step 7: EDNS0 negotiation.
	maxLen := udpMinPayload
	if transport == TransportTCP {
		maxLen = 65535
	}
	if req.OPT != nil {
		if transport == TransportUDP {
			payload := int(req.OPT.PayloadSize)
			if payload > maxLen {
				maxLen = payload
			}
		}
		reply.OPT = &domain.OPT{PayloadSize: ednsPayload, Version: 0, DO: req.OPT.DO}
	}

	reserved := 0
	if reply.OPT != nil {
		reserved += optReserve
	}
	if haveTSIGKey {
		reserved += tsigReserve
	}

	rendered, err := reply.Encode(maxLen - reserved)
	if err != nil {
		return nil, err
	}

	if reply.OPT != nil {
		rendered, err = domain.AppendAdditional(rendered, reply.OPT.ToRecord())
		if err != nil {
			return nil, err
		}
	}

	// Step 8: TSIG on the response, truncation only considered over UDP.
	if haveTSIGKey {
		tsigRec, err := s.signer().Generate(tsigKey, reply.ID, rendered, nil, nil)
		if err == nil {
			rendered, err = domain.AppendAdditional(rendered, tsigRec)
			if err != nil {
				return nil, err
			}
		}
	}

	return rendered, nil
}

// optReserve/tsigReserve are conservative worst-case serialized lengths
// reserved ahead of the size-capped core encode (spec §4.3).
const (
	optReserve  = 11
	tsigReserve = 256
)

func (s *Responder) lookupKey(name domain.Name) (tsig.Key, bool) {
	if s.Keys == nil {
		return tsig.Key{}, false
	}
	return s.Keys.Lookup(name)
}

func (s *Responder) verifier() tsig.Verifier {
	if s.Verifier == nil {
		return tsig.NoopVerifier{}
	}
	return s.Verifier
}

func (s *Responder) signer() tsig.Signer {
	if s.Signer == nil {
		return tsig.NoopSigner{}
	}
	return s.Signer
}

func encodeSimple(m *domain.Message, transport Transport) ([]byte, error) {
	maxLen := udpMinPayload
	if transport == TransportTCP {
		maxLen = 65535
	}
	return m.Encode(maxLen)
}

// addAnswer implements the recursive add_answer algorithm of spec §4.6
// step 6: consult the best zone, falling back to the cache, following
// CNAME/DNAME chains up to maxChaseDepth, and attaching NS-glue. The primary
// answer lookup floors at CredNormal so GLUE-credibility cache data (someone
// else's referral additional section) is never handed back as a client's
// own answer; only addGlue's lookups accept CredAny.
func (s *Responder) addAnswer(reply *domain.Message, q domain.Question, recursionDesired bool, depth int) {
	if depth >= maxChaseDepth {
		return
	}

	result, z, fromZone := s.lookupAt(q.Name, q.Type, domain.CredNormal)
	switch result.Kind {
	case domain.LookupNxDomain:
		if depth == 0 {
			reply.Flags.RCode = domain.RCodeNXDomain
			if fromZone {
				reply.Flags.AA = true
				s.addZoneSOA(reply, z)
			}
		}
	case domain.LookupNxRRset:
		// NOERROR with an empty answer, but still owes the requester the
		// SOA it needs to negative-cache the miss.
		if depth == 0 && fromZone {
			reply.Flags.AA = true
			s.addZoneSOA(reply, z)
		}
	case domain.LookupDelegation:
		reply.Authority = append(reply.Authority, result.RRset.Records...)
		s.addGlue(reply, result.RRset)
	case domain.LookupCName:
		reply.Answer = append(reply.Answer, result.RRset.Records...)
		target, err := result.RRset.Records[0].Target()
		if err == nil {
			nextQ := domain.Question{Name: target, Type: q.Type, Class: q.Class}
			s.addAnswer(reply, nextQ, recursionDesired, depth+1)
		}
	case domain.LookupDName:
		reply.Answer = append(reply.Answer, result.RRset.Records...)
		target, terr := result.RRset.Records[0].Target()
		if terr != nil {
			break
		}
		rewritten, err := q.Name.FromDNAME(result.RRset.Owner, target)
		if err == nil {
			nextQ := domain.Question{Name: rewritten, Type: q.Type, Class: q.Class}
			s.addAnswer(reply, nextQ, recursionDesired, depth+1)
		}
	case domain.LookupSuccess:
		for _, rrset := range result.RRsets {
			reply.Answer = append(reply.Answer, rrset.Records...)
		}
		if fromZone {
			reply.Flags.AA = true
			s.addZoneNS(reply, z)
		} else {
			s.addCachedNS(reply, q.Name)
		}
	case domain.LookupUnknown:
		if depth == 0 {
			reply.Flags.RCode = domain.RCodeServFail
		}
	}
}

// lookupAt consults the authoritative zone set first, then falls back to the
// cache at minCred, reporting which zone (if any) answered so the caller can
// decide AA and fetch that zone's SOA/NS.
func (s *Responder) lookupAt(qname domain.Name, qtype domain.RRType, minCred domain.Credibility) (domain.LookupResult, *zone.Zone, bool) {
	if z := s.Zones.Best(qname); z != nil {
		res := z.Lookup(qname, qtype)
		if !res.Unknown() {
			return res, z, true
		}
	}
	if s.Cache != nil {
		return s.Cache.Lookup(qname, qtype, minCred), nil, false
	}
	return domain.UnknownResult(), nil, false
}

// addZoneSOA appends z's SOA record to reply's AUTHORITY section, per spec
// §4.6 step 5's NxDomain/NxRRset handling.
func (s *Responder) addZoneSOA(reply *domain.Message, z *zone.Zone) {
	if z == nil {
		return
	}
	if soa, ok := z.SOA(); ok {
		reply.Authority = append(reply.Authority, soa)
	}
}

// addZoneNS appends z's own NS RRset to reply's AUTHORITY section, per spec
// §4.6 step 5's in-zone Success handling. Querying a zone at its own origin
// for NS resolves through Zone.Lookup's exact-match branch, so no separate
// zone accessor is needed.
func (s *Responder) addZoneNS(reply *domain.Message, z *zone.Zone) {
	if z == nil {
		return
	}
	res := z.Lookup(z.Origin(), domain.RRTypeNS)
	if res.Kind == domain.LookupSuccess {
		for _, rrset := range res.RRsets {
			reply.Authority = append(reply.Authority, rrset.Records...)
		}
	}
}

// addCachedNS appends the nearest cached ancestor NS RRset for qname to
// reply's AUTHORITY section, per spec §4.6 step 5's cache-sourced Success
// handling. Cache-derived data never sets AA.
func (s *Responder) addCachedNS(reply *domain.Message, qname domain.Name) {
	if s.Cache == nil {
		return
	}
	if ns, ok := s.Cache.LookupNS(qname); ok {
		reply.Authority = append(reply.Authority, ns.Records...)
	}
}

// addGlue attaches A/AAAA glue for every NS target named in ns, per spec
// §4.6 step 6's glue pass, at CredAny credibility — glue is acceptable even
// sourced from another referral's additional section.
func (s *Responder) addGlue(reply *domain.Message, ns domain.RRset) {
	for _, rec := range ns.Records {
		target, ok := rec.AdditionalName()
		if !ok {
			continue
		}
		for _, t := range []domain.RRType{domain.RRTypeA, domain.RRTypeAAAA} {
			res, _, _ := s.lookupAt(target, t, domain.CredAny)
			if res.Kind == domain.LookupSuccess {
				for _, rrset := range res.RRsets {
					reply.Additional = append(reply.Additional, rrset.Records...)
				}
			}
		}
	}
}
