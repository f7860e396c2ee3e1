package cache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/encoding/protowire"
)

const BadgerPrefix = "cache:"

// Persisted envelope fields, protobuf wire format. The expiry is checked
// against the injected clock, the Badger native TTL only lets compaction
// reclaim space.
const (
	fieldValue     protowire.Number = 1
	fieldExpiresAt protowire.Number = 2
)

var errNoExpiry = errors.New("cache entry without expiry")

// Badger is the persistent cache, entries survive a process restart.
type Badger struct {
	db      *badger.DB
	log     *slog.Logger
	metrics Metrics
	now     func() time.Time
}

func encodeEntry(value string, expiresAt time.Time) []byte {
	b := protowire.AppendTag(nil, fieldValue, protowire.BytesType)
	b = protowire.AppendString(b, value)
	b = protowire.AppendTag(b, fieldExpiresAt, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(expiresAt.UnixNano()))
}

// DecodeEntry reads a persisted entry, value first. Unknown fields are skipped.
func DecodeEntry(data []byte) (string, time.Time, error) {
	var (
		value     string
		expiresAt time.Time
		hasExpiry bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", time.Time{}, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == fieldValue && typ == protowire.BytesType:
			value, n = protowire.ConsumeString(data)
		case num == fieldExpiresAt && typ == protowire.VarintType:
			var nanos uint64
			nanos, n = protowire.ConsumeVarint(data)
			expiresAt, hasExpiry = time.Unix(0, int64(nanos)).UTC(), true
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return "", time.Time{}, protowire.ParseError(n)
		}
		data = data[n:]
	}
	if !hasExpiry {
		return "", time.Time{}, errNoExpiry
	}
	return value, expiresAt, nil
}

func NewBadger(db *badger.DB, log *slog.Logger, opts ...Option) *Badger {
	o := buildOptions(opts)
	return &Badger{db: db, log: log, metrics: o.metrics, now: o.now}
}

func (b *Badger) key(key string) []byte {
	return []byte(BadgerPrefix + key)
}

func (b *Badger) Set(key, value string, ttl time.Duration) bool {
	if ttl <= 0 {
		b.log.Warn("Cache set rejected, non positive ttl", "key", key, "ttl", ttl)
		b.metrics.Failure()
		return false
	}
	data := encodeEntry(value, b.now().Add(ttl))
	// Native TTL is rounded up to the second so it never fires before ExpiresAt.
	nativeTTL := ttl.Truncate(time.Second) + time.Second
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(b.key(key), data).WithTTL(nativeTTL))
	})
	if err != nil {
		b.log.Error("Cache write failed", "key", key, "error", err)
		b.metrics.Failure()
		return false
	}
	b.metrics.Write()
	return true
}

// getAttempts bounds retries when a concurrent Set commits between the
// expiry check and the delete of the stale entry.
const getAttempts = 3

func (b *Badger) Get(key string) (string, bool) {
	var err error
	for attempt := 0; attempt < getAttempts; attempt++ {
		var (
			value   string
			found   bool
			expired bool
		)
		err = b.db.Update(func(txn *badger.Txn) error {
			value, found, expired = "", false, false
			item, err := txn.Get(b.key(key))
			if err != nil {
				return err
			}
			var (
				stored    string
				expiresAt time.Time
			)
			if err := item.Value(func(val []byte) error {
				var err error
				stored, expiresAt, err = DecodeEntry(val)
				return err
			}); err != nil {
				return err
			}
			if !b.now().Before(expiresAt) {
				expired = true
				return txn.Delete(b.key(key))
			}
			value, found = stored, true
			return nil
		})
		switch {
		case errors.Is(err, badger.ErrConflict):
			continue
		case errors.Is(err, badger.ErrKeyNotFound):
			b.metrics.Miss()
			return "", false
		case err != nil:
			b.log.Warn("Cache read failed, treated as miss", "key", key, "error", err)
			b.metrics.Miss()
			return "", false
		case expired:
			b.metrics.Expire()
			b.metrics.Miss()
			return "", false
		}
		if found {
			b.metrics.Hit()
		}
		return value, found
	}
	b.log.Warn("Cache read kept conflicting, treated as miss", "key", key, "error", err)
	b.metrics.Miss()
	return "", false
}

func (b *Badger) Delete(key string) bool {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		b.log.Error("Cache delete failed", "key", key, "error", err)
		b.metrics.Failure()
		return false
	}
	return true
}
