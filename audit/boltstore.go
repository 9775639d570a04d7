package audit

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketReceipts  = []byte("receipts_by_room_seq")
	bucketRoomMeta  = []byte("room_records")
	bucketRulesMeta = []byte("rules_meta")
)

var keyCurrentRules = []byte("current")

// Store persists receipts and room records in a local bbolt file. It is
// the durable half of the audit trail; the optional Postgres sink
// mirrors it for offline analysis.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if needed) the audit database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("audit: open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketReceipts, bucketRoomMeta, bucketRulesMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

// receiptKey is room_id | 0x00 | seq, big-endian seq so a prefix cursor
// walks receipts in chain order.
func receiptKey(roomID string, seq uint64) []byte {
	key := make([]byte, 0, len(roomID)+1+8)
	key = append(key, roomID...)
	key = append(key, 0x00)
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

// AppendReceipt persists one receipt under its room and sequence.
func (s *Store) AppendReceipt(roomID string, r *Receipt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)
		key := receiptKey(roomID, r.Seq)
		if b.Get(key) != nil {
			return fmt.Errorf("audit: receipt %d already stored for room %s", r.Seq, roomID)
		}
		return b.Put(key, r.Encode())
	})
}

// Receipts loads every stored receipt for a room, in sequence order.
func (s *Store) Receipts(roomID string) ([]*Receipt, error) {
	var out []*Receipt
	prefix := append(append([]byte(nil), roomID...), 0x00)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketReceipts).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			r, err := DecodeReceipt(v)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RoomRecord is the durable summary of one room's lifetime.
type RoomRecord struct {
	RoomID         string    `json:"room_id"`
	SeedCommitment [32]byte  `json:"seed_commitment"`
	RulesVersion   uint32    `json:"rules_version"`
	ReceiptCount   uint64    `json:"receipt_count"`
	TipHash        [32]byte  `json:"tip_hash"`
	ClosedAt       time.Time `json:"closed_at"`
}

// PutRoomRecord stores or replaces a room summary.
func (s *Store) PutRoomRecord(rec RoomRecord) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encode room record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoomMeta).Put([]byte(rec.RoomID), v)
	})
}

// GetRoomRecord loads a room summary; found reports whether the room
// has one.
func (s *Store) GetRoomRecord(roomID string) (RoomRecord, bool, error) {
	var rec RoomRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRoomMeta).Get([]byte(roomID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(append([]byte(nil), v...), &rec)
	})
	if err != nil {
		return RoomRecord{}, false, fmt.Errorf("audit: load room record: %w", err)
	}
	return rec, found, nil
}

// SaveRules persists the live rules revision.
func (s *Store) SaveRules(r Rules) error {
	v := make([]byte, 0, 32+4)
	v = append(v, r.Hash[:]...)
	v = binary.BigEndian.AppendUint32(v, r.Version)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRulesMeta).Put(keyCurrentRules, v)
	})
}

// LoadRules restores the last persisted rules revision.
func (s *Store) LoadRules() (Rules, bool, error) {
	var r Rules
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRulesMeta).Get(keyCurrentRules)
		if v == nil {
			return nil
		}
		if len(v) != 36 {
			return fmt.Errorf("audit: rules record has %d bytes, want 36", len(v))
		}
		copy(r.Hash[:], v)
		r.Version = binary.BigEndian.Uint32(v[32:])
		found = true
		return nil
	})
	if err != nil {
		return Rules{}, false, err
	}
	return r, found, nil
}
