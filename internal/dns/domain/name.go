package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haukened/rr-dns/internal/dns/common/wire"
)

// Limits from RFC 1035 ยง3.1 / ยง2.3.4.
const (
	maxLabelLen  = 63
	maxNameWire  = 255
	maxLabels    = 128
	maxOffsets   = 7
	labelMask    = 0xC0
	labelNormal  = 0x00
	labelPointer = 0xC0
)

// Name-specific error kinds (spec ยง7).
var (
	ErrBadLabelType   = errors.New("name: bad label type")
	ErrBadCompression = errors.New("name: bad compression pointer")
	ErrTooManyLabels  = errors.New("name: too many labels")
	ErrNameTooLong    = errors.New("name: wire length exceeds 255 octets")
	ErrLabelTooLong   = errors.New("name: label exceeds 63 octets")
	ErrRelativeName   = errors.New("name: name must be absolute")
	ErrEmptyLabel     = errors.New("name: empty label")
	ErrBadEscape      = errors.New("name: bad escape sequence")
)

var lowercaseTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}
	for i := byte('A'); i <= 'Z'; i++ {
		t[i] = i - 'A' + 'a'
	}
	return t
}()

func lc(b byte) byte { return lowercaseTable[b] }

// Name is an immutable DNS domain name, stored as its canonical wire-format
// encoding: a sequence of length-prefixed labels, terminated by the
// zero-length root label when absolute. Up to the first 7 label start
// offsets are cached for O(1) suffix access; labels beyond that are found by
// walking from the 7th cached offset.
type Name struct {
	data    []byte
	nlabels uint8
	offsets [maxOffsets]uint8
	hash    uint32
}

// Root is the zero-length absolute name ".".
var Root = mustBuild([]byte{0}, 1)

// Wildcard is the single-label name "*" (relative).
var Wildcard = mustBuild([]byte{1, '*'}, 1)

// Empty is the zero-label relative name, used as the unqualified origin.
var Empty = Name{}

func mustBuild(data []byte, nlabels int) Name {
	n, err := buildName(data, nlabels)
	if err != nil {
		panic(err)
	}
	return n
}

// buildName computes the cached offsets and hash for a raw label sequence.
func buildName(data []byte, nlabels int) (Name, error) {
	if len(data) > maxNameWire {
		return Name{}, ErrNameTooLong
	}
	if nlabels > maxLabels {
		return Name{}, ErrTooManyLabels
	}
	n := Name{data: data, nlabels: uint8(nlabels)}
	pos := 0
	for i := 0; i < nlabels && i < maxOffsets; i++ {
		n.offsets[i] = uint8(pos)
		pos += int(data[pos]) + 1
	}
	var h uint32
	for _, b := range data {
		h += (h << 3) + uint32(lc(b))
	}
	n.hash = h
	return n, nil
}

// Labels returns the number of labels in the name, including the terminating
// root label if absolute.
func (n Name) Labels() int { return int(n.nlabels) }

// offset returns the byte position within data of label i.
func (n Name) offset(i int) int {
	if i < maxOffsets {
		return int(n.offsets[i])
	}
	pos := int(n.offsets[maxOffsets-1])
	for j := maxOffsets - 1; j < i; j++ {
		pos += int(n.data[pos]) + 1
	}
	return pos
}

// IsAbsolute reports whether the name ends in the zero-length root label.
func (n Name) IsAbsolute() bool {
	if n.nlabels == 0 {
		return false
	}
	return n.data[n.offset(int(n.nlabels)-1)] == 0
}

// IsWildcard reports whether the first label is the single byte '*'.
func (n Name) IsWildcard() bool {
	if n.nlabels == 0 {
		return false
	}
	return n.data[0] == 1 && n.data[1] == '*'
}

// Length returns the wire length of the name in bytes.
func (n Name) Length() int { return len(n.data) }

// Equal reports whether two names are equal under case-insensitive ASCII
// comparison.
func (n Name) Equal(o Name) bool {
	if n.hash != o.hash || n.nlabels != o.nlabels {
		return false
	}
	if len(n.data) != len(o.data) {
		return false
	}
	for i := range n.data {
		if lc(n.data[i]) != lc(o.data[i]) {
			return false
		}
	}
	return true
}

// Hash returns the case-insensitive hash used for map keys and equality
// short-circuiting. Equal names always produce equal hashes.
func (n Name) Hash() uint32 { return n.hash }

// Compare returns a negative, zero, or positive value as n sorts before,
// equal to, or after o in canonical (right-to-left label) ordering, matching
// DNSSEC canonical name ordering.
func (n Name) Compare(o Name) int {
	nl, ol := int(n.nlabels), int(o.nlabels)
	min := nl
	if ol < min {
		min = ol
	}
	for i := 1; i <= min; i++ {
		np := n.offset(nl - i)
		op := o.offset(ol - i)
		nlen := int(n.data[np])
		olen := int(o.data[op])
		limit := nlen
		if olen < limit {
			limit = olen
		}
		for j := 0; j < limit; j++ {
			d := int(lc(n.data[np+1+j])) - int(lc(o.data[op+1+j]))
			if d != 0 {
				return d
			}
		}
		if nlen != olen {
			return nlen - olen
		}
	}
	return nl - ol
}

// Subdomain reports whether n is equal to or a descendant of other (other's
// labels match n's trailing labels).
func (n Name) Subdomain(other Name) bool {
	nl, ol := int(n.nlabels), int(other.nlabels)
	if ol > nl {
		return false
	}
	if ol == nl {
		return n.Equal(other)
	}
	op := n.offset(nl - ol)
	if len(n.data)-op != len(other.data) {
		return false
	}
	for i := 0; i < len(other.data); i++ {
		if lc(n.data[op+i]) != lc(other.data[i]) {
			return false
		}
	}
	return true
}

// label returns a copy of the nth label, including its length prefix.
func (n Name) label(i int) []byte {
	pos := n.offset(i)
	l := int(n.data[pos]) + 1
	out := make([]byte, l)
	copy(out, n.data[pos:pos+l])
	return out
}

// Canonicalize returns a lowercased copy of n. If n is already canonical, it
// is returned unchanged.
func (n Name) Canonicalize() Name {
	canonical := true
	for _, b := range n.data {
		if lc(b) != b {
			canonical = false
			break
		}
	}
	if canonical {
		return n
	}
	data := make([]byte, len(n.data))
	copy(data, n.data)
	for i, pos := 0, 0; i < int(n.nlabels); i++ {
		l := int(data[pos])
		for j := 1; j <= l; j++ {
			data[pos+j] = lc(data[pos+j])
		}
		pos += l + 1
	}
	out, _ := buildName(data, int(n.nlabels))
	return out
}

// WireLabels exposes the raw label bytes for canonical-signing-input style
// consumers (RRSIG input construction lives outside the core per spec ยง1).
func (n Name) WireLabels() []byte { return n.data }

// Concatenate appends suffix's labels to prefix, which must be relative.
// Returns an error if the result would exceed the wire length limit.
func Concatenate(prefix, suffix Name) (Name, error) {
	if prefix.IsAbsolute() {
		return prefix, nil
	}
	data := make([]byte, 0, len(prefix.data)+len(suffix.data))
	data = append(data, prefix.data...)
	data = append(data, suffix.data...)
	return buildName(data, int(prefix.nlabels)+int(suffix.nlabels))
}

// StripToLabels returns the ancestor of n keeping only its trailing n
// labels (n == n.Labels() returns n itself; n == 1 returns Root for an
// absolute name). Used by the Cache and Zone ancestor walks (spec §4.4.1,
// §4.5).
func (n Name) StripToLabels(keep int) Name {
	if keep >= int(n.nlabels) {
		return n
	}
	if keep <= 0 {
		return Empty
	}
	return n.suffixFrom(int(n.nlabels) - keep)
}

// Wild returns a new name with the first nstrip labels replaced by a single
// wildcard label ("*").
func (n Name) Wild(nstrip int) (Name, error) {
	if nstrip < 1 {
		return Name{}, fmt.Errorf("name: Wild requires stripping at least 1 label")
	}
	if nstrip > int(n.nlabels) {
		return Name{}, fmt.Errorf("name: Wild strip count exceeds label count")
	}
	pos := n.offset(nstrip)
	data := make([]byte, 0, 2+len(n.data)-pos)
	data = append(data, 1, '*')
	data = append(data, n.data[pos:]...)
	return buildName(data, int(n.nlabels)-nstrip+1)
}

// Relativize returns n relative to origin if n is a subdomain of origin;
// otherwise n is returned unchanged.
func (n Name) Relativize(origin Name) Name {
	if !n.Subdomain(origin) || origin.nlabels == 0 {
		return n
	}
	length := len(n.data) - len(origin.data)
	labels := int(n.nlabels) - int(origin.nlabels)
	if length <= 0 || labels <= 0 {
		return Empty
	}
	data := make([]byte, length)
	copy(data, n.data[:length])
	out, _ := buildName(data, labels)
	return out
}

// FromDNAME builds the name that results from substituting the DNAME
// alias: n (which must be a subdomain of dnameOwner) has the dnameOwner
// suffix replaced by dnameTarget.
func (n Name) FromDNAME(dnameOwner, dnameTarget Name) (Name, error) {
	if !n.Subdomain(dnameOwner) {
		return Name{}, fmt.Errorf("name: %s is not a subdomain of %s", n, dnameOwner)
	}
	prefixLabels := int(n.nlabels) - int(dnameOwner.nlabels)
	prefixLen := len(n.data) - len(dnameOwner.data)
	if prefixLen+len(dnameTarget.data) > maxNameWire {
		return Name{}, ErrNameTooLong
	}
	data := make([]byte, 0, prefixLen+len(dnameTarget.data))
	data = append(data, n.data[:prefixLen]...)
	data = append(data, dnameTarget.data...)
	return buildName(data, prefixLabels+int(dnameTarget.nlabels))
}

// String renders the name in presentation format (dot-separated labels,
// trailing dot if absolute, non-printable bytes escaped as \DDD).
func (n Name) String() string {
	if n.nlabels == 0 {
		return "@"
	}
	if n.nlabels == 1 && n.data[0] == 0 {
		return "."
	}
	var sb strings.Builder
	pos := 0
	for i := 0; i < int(n.nlabels); i++ {
		l := int(n.data[pos])
		if l == 0 {
			break
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		writeLabelText(&sb, n.data[pos+1:pos+1+l])
		pos += l + 1
	}
	if n.IsAbsolute() {
		sb.WriteByte('.')
	}
	return sb.String()
}

func writeLabelText(sb *strings.Builder, label []byte) {
	for _, b := range label {
		switch {
		case b <= 0x20 || b >= 0x7f:
			sb.WriteByte('\\')
			sb.WriteString(fmt.Sprintf("%03d", b))
		case strings.IndexByte(`".().;\@$`, b) >= 0:
			sb.WriteByte('\\')
			sb.WriteByte(b)
		default:
			sb.WriteByte(b)
		}
	}
}

// ParseName parses a presentation-format name. If the name is not absolute
// (no trailing dot) and origin is non-nil, origin is appended. "@" resolves
// to origin (or Empty if origin is nil); "." resolves to Root.
func ParseName(s string, origin *Name) (Name, error) {
	if len(s) == 0 {
		return Name{}, fmt.Errorf("%w: empty name", ErrEmptyLabel)
	}
	if s == "@" {
		if origin == nil {
			return Empty, nil
		}
		return *origin, nil
	}
	if s == "." {
		return Root, nil
	}

	var out []byte
	var nlabels int
	label := make([]byte, 0, maxLabelLen)
	labelStarted := false
	absolute := false
	escaped := false
	digits := 0
	intval := 0

	flush := func() error {
		if len(label) > maxLabelLen {
			return ErrLabelTooLong
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
		nlabels++
		label = label[:0]
		return nil
	}

	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case escaped:
			if b >= '0' && b <= '9' && digits < 3 {
				digits++
				intval = intval*10 + int(b-'0')
				if intval > 255 {
					return Name{}, fmt.Errorf("%w: escape value out of range", ErrBadEscape)
				}
				if digits < 3 {
					continue
				}
				b = byte(intval)
			} else if digits > 0 && digits < 3 {
				return Name{}, fmt.Errorf("%w: incomplete decimal escape", ErrBadEscape)
			}
			if len(label) >= maxLabelLen {
				return Name{}, ErrLabelTooLong
			}
			label = append(label, b)
			labelStarted = true
			escaped = false
		case b == '\\':
			escaped = true
			digits = 0
			intval = 0
		case b == '.':
			if !labelStarted {
				return Name{}, fmt.Errorf("%w: empty label before '.'", ErrEmptyLabel)
			}
			if err := flush(); err != nil {
				return Name{}, err
			}
			labelStarted = false
		default:
			if len(label) >= maxLabelLen {
				return Name{}, ErrLabelTooLong
			}
			label = append(label, b)
			labelStarted = true
		}
	}
	if escaped || (digits > 0 && digits < 3) {
		return Name{}, fmt.Errorf("%w: dangling escape", ErrBadEscape)
	}
	if !labelStarted {
		out = append(out, 0)
		nlabels++
		absolute = true
	} else if err := flush(); err != nil {
		return Name{}, err
	}

	if origin != nil && !absolute {
		out = append(out, origin.data...)
		nlabels += int(origin.nlabels)
	}
	return buildName(out, nlabels)
}

// NameFromWire decodes a Name from DNS wire format, following compression
// pointers per RFC 1035 ยง4.1.4.
func NameFromWire(r *wire.Reader) (Name, error) {
	var out []byte
	nlabels := 0
	done := false
	savedJump := false

	for !done {
		start := r.Pos()
		length, err := r.ReadU8()
		if err != nil {
			return Name{}, fmt.Errorf("%w: %v", ErrBadLabelType, err)
		}
		switch length & labelMask {
		case labelNormal:
			if nlabels >= maxLabels {
				return Name{}, ErrTooManyLabels
			}
			if length == 0 {
				out = append(out, 0)
				nlabels++
				done = true
				continue
			}
			lb, err := r.ReadBytes(int(length))
			if err != nil {
				return Name{}, err
			}
			out = append(out, length)
			out = append(out, lb...)
			nlabels++
		case labelPointer:
			lo, err := r.ReadU8()
			if err != nil {
				return Name{}, err
			}
			target := (int(length&^labelMask) << 8) | int(lo)
			if target >= start {
				return Name{}, ErrBadCompression
			}
			r.Save()
			savedJump = true
			r.Jump(target)
		default:
			return Name{}, ErrBadLabelType
		}
	}
	if savedJump {
		r.Restore()
	}
	if len(out) > maxNameWire {
		return Name{}, ErrNameTooLong
	}
	return buildName(out, nlabels)
}

// ToWire emits n in DNS wire format, applying name compression against ct if
// non-nil. n must be absolute.
func (n Name) ToWire(w *wire.Writer, ct *Compression) error {
	if !n.IsAbsolute() {
		return ErrRelativeName
	}
	nl := int(n.nlabels)
	for i := 0; i < nl-1; i++ {
		suffix := n.suffixFrom(i)
		if ct != nil {
			if off, ok := ct.Get(suffix); ok {
				w.WriteU16(uint16(labelPointer)<<8 | uint16(off))
				return nil
			}
			ct.Add(w.Len(), suffix)
		}
		pos := n.offset(i)
		l := int(n.data[pos])
		w.WriteBytes(n.data[pos : pos+l+1])
	}
	w.WriteU8(0)
	return nil
}

// suffixFrom returns the sub-name starting at label i (an absolute suffix of
// n), used as the Compression table lookup key.
func (n Name) suffixFrom(i int) Name {
	pos := n.offset(i)
	data := n.data[pos:]
	out, _ := buildName(data, int(n.nlabels)-i)
	return out
}

// ToWireCanonical renders n in lowercase wire format with no compression,
// used as the input to signing operations (the signer itself lives outside
// the core, per spec ยง1).
func (n Name) ToWireCanonical() []byte {
	return n.Canonicalize().data
}

// NewAbsoluteName constructs a Name from already-absolute wire-format label
// bytes, validating limits. Used by record decoders that receive names from
// elsewhere in the same message.
func NewAbsoluteName(data []byte, nlabels int) (Name, error) {
	n, err := buildName(data, nlabels)
	if err != nil {
		return Name{}, err
	}
	if !n.IsAbsolute() {
		return Name{}, ErrRelativeName
	}
	return n, nil
}
