// Package cachestore persists dnscache.Cache snapshots to a bbolt database
// so the resolver's warm cache survives process restarts, adapted from the
// teacher's blocklist/bolt key-value store to a new schema.
package cachestore

import (
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-dns/internal/dns/common/wire"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/repos/dnscache"
)

var bucketEntries = []byte("entries")

// Store is a bbolt-backed persister for Cache snapshots.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save overwrites the database with cache's current snapshot.
func (s *Store) Save(cache *dnscache.Cache) error {
	entries := cache.Snapshot()
	return s.db.Update(func(tx *bbolt.Tx) error {
		// Clear the bucket before rewriting, since entries may have been
		// flushed since the last Save.
		if err := tx.DeleteBucket(bucketEntries); err != nil {
			return err
		}
		nb, err := tx.CreateBucket(bucketEntries)
		if err != nil {
			return err
		}
		for _, e := range entries {
			key := entryKey(e.Owner, e.Type)
			val, err := encodeEntry(e)
			if err != nil {
				return err
			}
			if err := nb.Put(key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads every persisted entry and restores it into cache.
func (s *Store) Load(cache *dnscache.Cache) error {
	var entries []dnscache.SnapshotEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			e, err := decodeEntry(v)
			if err != nil {
				return fmt.Errorf("cachestore: decode entry %x: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return err
	}
	cache.Restore(entries)
	return nil
}

func entryKey(owner string, t domain.RRType) []byte {
	return []byte(fmt.Sprintf("%s|%d", owner, t))
}

// encodeEntry serializes a SnapshotEntry as: owner name (wire, length
// prefixed), u8 negative, u16 type, u16 nxtype, u8 cred, i64 expireEpochS,
// u16 class, u16 recordCount, then per record: u32 ttl, u16 rdataLen, rdata
// bytes (owner/type/class are shared across an RRset's members).
func encodeEntry(e dnscache.SnapshotEntry) ([]byte, error) {
	owner, err := domain.ParseName(e.Owner, nil)
	if err != nil {
		return nil, err
	}
	w := wire.NewWriter()
	ownerBytes := owner.ToWireCanonical()
	w.WriteU16(uint16(len(ownerBytes)))
	w.WriteBytes(ownerBytes)
	if e.Negative {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
	w.WriteU16(uint16(e.Type))
	w.WriteU16(uint16(e.NXType))
	w.WriteU8(uint8(e.Cred))
	writeI64(w, e.ExpireEpochS)
	w.WriteU16(uint16(e.RRset.Class))

	w.WriteU16(uint16(len(e.RRset.Records)))
	for _, r := range e.RRset.Records {
		w.WriteU32(r.TTL)
		w.WriteU16(uint16(len(r.RData)))
		w.WriteBytes(r.RData)
	}
	return w.Bytes(), nil
}

func decodeEntry(buf []byte) (dnscache.SnapshotEntry, error) {
	r := wire.NewReader(buf)
	ownerLen, err := r.ReadU16()
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	ownerBytes, err := r.ReadBytes(int(ownerLen))
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	owner, err := domain.NameFromWire(wire.NewReader(ownerBytes))
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	negFlag, err := r.ReadU8()
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	t, err := r.ReadU16()
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	nxtype, err := r.ReadU16()
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	cred, err := r.ReadU8()
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	expire, err := readI64(r)
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	class, err := r.ReadU16()
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}
	count, err := r.ReadU16()
	if err != nil {
		return dnscache.SnapshotEntry{}, err
	}

	var records []domain.Record
	for i := 0; i < int(count); i++ {
		ttl, err := r.ReadU32()
		if err != nil {
			return dnscache.SnapshotEntry{}, err
		}
		rdlen, err := r.ReadU16()
		if err != nil {
			return dnscache.SnapshotEntry{}, err
		}
		rdata, err := r.ReadBytes(int(rdlen))
		if err != nil {
			return dnscache.SnapshotEntry{}, err
		}
		rec, err := domain.NewRecord(owner, domain.RRType(t), domain.RRClass(class), ttl, append([]byte(nil), rdata...))
		if err != nil {
			return dnscache.SnapshotEntry{}, err
		}
		records = append(records, rec)
	}

	se := dnscache.SnapshotEntry{
		Owner:        owner.String(),
		Type:         domain.RRType(t),
		Negative:     negFlag == 1,
		NXType:       domain.RRType(nxtype),
		Cred:         domain.Credibility(cred),
		ExpireEpochS: expire,
	}
	if len(records) > 0 {
		rrset, err := domain.NewRRset(records...)
		if err != nil {
			return dnscache.SnapshotEntry{}, err
		}
		se.RRset = rrset
	}
	return se, nil
}

func writeI64(w *wire.Writer, v int64) {
	w.WriteU32(uint32(v >> 32))
	w.WriteU32(uint32(v))
}

func readI64(r *wire.Reader) (int64, error) {
	hi, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	lo, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return int64(hi)<<32 | int64(lo), nil
}
