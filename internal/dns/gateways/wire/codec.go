// Package wire wraps domain.Message's wire codec and names the standard UDP
// and TCP size caps. The transports in gateways/transport do not use it:
// they pass raw request bytes to their Handler and write back its bytes.
package wire

import "github.com/haukened/rr-dns/internal/dns/domain"

// MaxUDPPayload is the default (non-EDNS0) UDP message size limit (RFC
// 1035 §2.3.4).
const MaxUDPPayload = 512

// MaxTCPPayload is the 16-bit length-prefix ceiling for a single TCP DNS
// message (RFC 1035 §4.2.2).
const MaxTCPPayload = 65535

// Decode parses buf as a DNS message.
func Decode(buf []byte) (*domain.Message, error) {
	return domain.Decode(buf)
}

// Encode renders m bounded by maxLength, the transport-appropriate cap.
func Encode(m *domain.Message, maxLength int) ([]byte, error) {
	return m.Encode(maxLength)
}
