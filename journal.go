package telegraph

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/KarpelesLab/goupd"
	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

// JournalRecord holds the confirmed inputs of every player for one frame.
// Checksum is the checksum of the snapshot taken at the start of Frame, when
// it was still available.
type JournalRecord struct {
	Session      string        `cbor:"sid"`
	Frame        int           `cbor:"f"`
	Inputs       []InputValues `cbor:"in"`
	Disconnected []bool        `cbor:"dis"`
	Checksum     string        `cbor:"ck,omitempty"`
}

// Journal persists confirmed inputs so a session can be replayed offline.
// Records are stored in a bolt database, one bucket per session, keyed by
// frame.
type Journal struct {
	db *bolt.DB
}

// DefaultJournalPath returns the journal location in the user's
// configuration directory, creating the directory if needed.
func DefaultJournalPath() (string, error) {
	d, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	d = filepath.Join(d, goupd.PROJECT_NAME)
	if err := os.MkdirAll(d, 0700); err != nil {
		return "", err
	}
	return filepath.Join(d, "telegraph-journal.db"), nil
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func frameKey(frame int) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(frame))
	return k[:]
}

// Record stores recs. Records of the same frame are overwritten.
func (j *Journal) Record(recs ...JournalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		for _, rec := range recs {
			b, err := tx.CreateBucketIfNotExists([]byte(rec.Session))
			if err != nil {
				return err
			}
			val, err := cbor.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put(frameKey(rec.Frame), snappy.Encode(nil, val)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sessions lists the sessions present in the journal.
func (j *Journal) Sessions() ([]string, error) {
	var res []string
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			res = append(res, string(name))
			return nil
		})
	})
	return res, err
}

// Frames calls fn for every record of session, in frame order.
func (j *Journal) Frames(session string, fn func(JournalRecord) error) error {
	return j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(session))
		if b == nil {
			return fmt.Errorf("no journal for session %s", session)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			raw, err := snappy.Decode(nil, v)
			if err != nil {
				return fmt.Errorf("corrupted journal record: %w", err)
			}
			var rec JournalRecord
			if err := cbor.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("corrupted journal record: %w", err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Export writes every record of session to w as a zstd compressed CBOR
// sequence, readable with ReadReplay.
func (j *Journal) Export(w io.Writer, session string) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	enc := cbor.NewEncoder(zw)
	err = j.Frames(session, func(rec JournalRecord) error {
		return enc.Encode(rec)
	})
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadReplay calls fn for every record of an exported journal.
func ReadReplay(r io.Reader, fn func(JournalRecord) error) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	dec := cbor.NewDecoder(zr)
	for {
		var rec JournalRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func (j *Journal) Close() error {
	return j.db.Close()
}
