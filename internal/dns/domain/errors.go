package domain

import "errors"

// Package-wide sentinel errors (spec §7). Callers compare with errors.Is;
// wrapped instances carry additional context via %w.
var (
	// ErrWireParse covers malformed message/record/name structure on the wire.
	ErrWireParse = errors.New("wire parse error")

	// ErrZoneInvariant covers missing/duplicate SOA, missing NS, or an owner
	// outside the zone's origin.
	ErrZoneInvariant = errors.New("zone invariant violation")

	// ErrSecurity covers TSIG verification failures.
	ErrSecurity = errors.New("security error")
)
