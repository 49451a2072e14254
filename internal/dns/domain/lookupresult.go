package domain

// LookupResultKind tags the variant held by a LookupResult (spec §3.8).
type LookupResultKind uint8

const (
	LookupUnknown LookupResultKind = iota
	LookupNxDomain
	LookupNxRRset
	LookupDelegation
	LookupCName
	LookupDName
	LookupSuccess
)

// LookupResult is the sum type produced by both Cache.Lookup and Zone.Lookup.
// Exactly one of the payload fields is meaningful, selected by Kind:
//   - LookupDelegation: RRset holds the NS set.
//   - LookupCName: RRset holds the singleton CNAME set.
//   - LookupDName: RRset holds the singleton DNAME set.
//   - LookupSuccess: RRsets holds one or more answer sets.
type LookupResult struct {
	Kind   LookupResultKind
	RRset  RRset
	RRsets []RRset
}

// Unknown reports whether the lookup found nothing at all relevant to the
// query (the zero value of LookupResult).
func (r LookupResult) Unknown() bool { return r.Kind == LookupUnknown }

func UnknownResult() LookupResult { return LookupResult{Kind: LookupUnknown} }

func NxDomainResult() LookupResult { return LookupResult{Kind: LookupNxDomain} }

func NxRRsetResult() LookupResult { return LookupResult{Kind: LookupNxRRset} }

func DelegationResult(ns RRset) LookupResult {
	return LookupResult{Kind: LookupDelegation, RRset: ns}
}

func CNameResult(cname RRset) LookupResult {
	return LookupResult{Kind: LookupCName, RRset: cname}
}

func DNameResult(dname RRset) LookupResult {
	return LookupResult{Kind: LookupDName, RRset: dname}
}

func SuccessResult(rrsets ...RRset) LookupResult {
	return LookupResult{Kind: LookupSuccess, RRsets: rrsets}
}
