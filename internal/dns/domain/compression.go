package domain

// maxCompressionOffset is the largest value a 14-bit compression pointer can
// address (RFC 1035 ยง4.1.4).
const maxCompressionOffset = 0x3FFF

const compressionBuckets = 17

type compressionEntry struct {
	name   Name
	offset int
	next   *compressionEntry
}

// Compression is a request-scoped table mapping previously written names (or
// name suffixes) to the wire offset at which they first appeared, so
// subsequent occurrences can be replaced with a pointer. It is built fresh
// per outgoing message and is not safe for concurrent use.
type Compression struct {
	buckets [compressionBuckets]*compressionEntry
}

// NewCompression returns an empty Compression table.
func NewCompression() *Compression {
	return &Compression{}
}

func (c *Compression) bucket(h uint32) int {
	return int(h % compressionBuckets)
}

// Get returns the previously recorded offset for name, if any.
func (c *Compression) Get(name Name) (int, bool) {
	for e := c.buckets[c.bucket(name.hash)]; e != nil; e = e.next {
		if e.name.Equal(name) {
			return e.offset, true
		}
	}
	return 0, false
}

// Add records that name first appears at offset. Offsets beyond the 14-bit
// pointer range are never stored, since they could not be referenced by a
// compression pointer.
func (c *Compression) Add(offset int, name Name) {
	if offset > maxCompressionOffset {
		return
	}
	if _, ok := c.Get(name); ok {
		return
	}
	b := c.bucket(name.hash)
	c.buckets[b] = &compressionEntry{name: name, offset: offset, next: c.buckets[b]}
}
