package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"cipherline/internal/domain"
)

var (
	samplesBucket  = []byte("samples")
	alertsBucket   = []byte("alerts")
	eventsBucket   = []byte("events")
	accountsBucket = []byte("accounts")
	usernameBucket = []byte("accounts_by_name")
)

var (
	ErrAlertNotFound = errors.New("store: alert not found")
	ErrAccountExists = errors.New("store: username already registered")
)

// Times are stored as RFC 3339 strings so sub-second precision survives.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// BoltStore is a bbolt-backed EventStore and AccountStore.
type BoltStore struct {
	db   *bolt.DB
	size atomic.Int64
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{samplesBucket, alertsBucket, eventsBucket, accountsBucket, usernameBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &BoltStore{db: db}
	s.refreshSize()
	return s, nil
}

// Close closes the database.
func (s *BoltStore) Close() error { return s.db.Close() }

// nanos clamps t to the range UnixNano can represent; times before the
// epoch (including the zero Time) sort first.
func nanos(t time.Time) uint64 {
	if t.Unix() <= 0 {
		return 0
	}
	if t.Year() >= 2262 {
		return math.MaxInt64
	}
	return uint64(t.UnixNano())
}

// timeKey is big-endian unix nanoseconds followed by a bucket sequence.
func timeKey(t time.Time, seq uint64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], nanos(t))
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}

func timePrefix(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, nanos(t))
	return k
}

func idKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

func (s *BoltStore) appendTimed(bucket []byte, t time.Time, v any) error {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(timeKey(t, seq), raw)
	})
	if err == nil {
		s.refreshSize()
	}
	return err
}

// AppendSample stores one metric sample.
func (s *BoltStore) AppendSample(sample domain.MetricSample) error {
	return s.appendTimed(samplesBucket, sample.Timestamp, sample)
}

// Samples returns samples taken at or after since, oldest first.
func (s *BoltStore) Samples(since time.Time) ([]domain.MetricSample, error) {
	var out []domain.MetricSample
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(samplesBucket).Cursor()
		for k, v := c.Seek(timePrefix(since)); k != nil; k, v = c.Next() {
			var m domain.MetricSample
			if err := cbor.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// AppendAlert stores alert under a fresh id and returns it.
func (s *BoltStore) AppendAlert(alert domain.Alert) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(alertsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = seq
		alert.ID = id
		raw, err := encMode.Marshal(alert)
		if err != nil {
			return err
		}
		return b.Put(idKey(id), raw)
	})
	if err == nil {
		s.refreshSize()
	}
	return id, err
}

// ResolveAlert marks an alert resolved.
func (s *BoltStore) ResolveAlert(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(alertsBucket)
		raw := b.Get(idKey(id))
		if raw == nil {
			return ErrAlertNotFound
		}
		var a domain.Alert
		if err := cbor.Unmarshal(raw, &a); err != nil {
			return err
		}
		a.Resolved = true
		out, err := encMode.Marshal(a)
		if err != nil {
			return err
		}
		return b.Put(idKey(id), out)
	})
}

// Alerts returns stored alerts in creation order.
func (s *BoltStore) Alerts(unresolvedOnly bool) ([]domain.Alert, error) {
	var out []domain.Alert
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(alertsBucket).ForEach(func(_, v []byte) error {
			var a domain.Alert
			if err := cbor.Unmarshal(v, &a); err != nil {
				return err
			}
			if unresolvedOnly && a.Resolved {
				return nil
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

// AppendEvent stores one audit event.
func (s *BoltStore) AppendEvent(event domain.SecurityEvent) error {
	return s.appendTimed(eventsBucket, event.Timestamp, event)
}

// Events returns audit events recorded at or after since, oldest first.
func (s *BoltStore) Events(since time.Time) ([]domain.SecurityEvent, error) {
	var out []domain.SecurityEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Seek(timePrefix(since)); k != nil; k, v = c.Next() {
			var e domain.SecurityEvent
			if err := cbor.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Prune deletes samples and resolved alerts older than before.
func (s *BoltStore) Prune(before time.Time) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		// Collect first; deleting while iterating a cursor skips keys.
		var stale [][]byte
		c := tx.Bucket(samplesBucket).Cursor()
		limit := timePrefix(before)
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := tx.Bucket(samplesBucket).Delete(k); err != nil {
				return err
			}
		}
		n += len(stale)

		stale = stale[:0]
		err := tx.Bucket(alertsBucket).ForEach(func(k, v []byte) error {
			var a domain.Alert
			if err := cbor.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.Resolved && a.Timestamp.Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := tx.Bucket(alertsBucket).Delete(k); err != nil {
				return err
			}
		}
		n += len(stale)
		return nil
	})
	if err == nil {
		s.refreshSize()
	}
	return n, err
}

// Size reports the database size in bytes as of the last write.
func (s *BoltStore) Size() (int64, error) { return s.size.Load(), nil }

func (s *BoltStore) refreshSize() {
	_ = s.db.View(func(tx *bolt.Tx) error {
		s.size.Store(tx.Size())
		return nil
	})
}

// CreateAccount registers a new account; usernames are unique.
func (s *BoltStore) CreateAccount(account domain.Account) error {
	raw, err := encMode.Marshal(account)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(usernameBucket)
		if names.Get([]byte(account.Username)) != nil {
			return ErrAccountExists
		}
		if err := names.Put([]byte(account.Username), []byte(account.ID)); err != nil {
			return err
		}
		return tx.Bucket(accountsBucket).Put([]byte(account.ID), raw)
	})
	if err == nil {
		s.refreshSize()
	}
	return err
}

// AccountByName looks an account up by username.
func (s *BoltStore) AccountByName(username domain.Username) (domain.Account, bool, error) {
	var (
		a  domain.Account
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(usernameBucket).Get([]byte(username))
		if id == nil {
			return nil
		}
		raw := tx.Bucket(accountsBucket).Get(id)
		if raw == nil {
			return nil
		}
		ok = true
		return cbor.Unmarshal(raw, &a)
	})
	return a, ok, err
}

// AccountByID looks an account up by id.
func (s *BoltStore) AccountByID(id domain.UserID) (domain.Account, bool, error) {
	var (
		a  domain.Account
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(accountsBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		ok = true
		return cbor.Unmarshal(raw, &a)
	})
	return a, ok, err
}

// Compile-time assertions.
var (
	_ domain.EventStore   = (*BoltStore)(nil)
	_ domain.AccountStore = (*BoltStore)(nil)
)
