// Package store is the persistent store adapter. Every durable record the
// bot keeps goes through the Store interface, which hides whether the
// backing medium is a directory of JSON documents or a relational database.
//
// Records are schemaless JSON objects grouped in collections and addressed
// by string keys such as "guild:user". Writes to a single key are serialized,
// so concurrent increments never lose updates.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/mo"
)

// Collections used by the bot.
const (
	CollectionStats     = "stats"
	CollectionWarnings  = "warnings"
	CollectionReminders = "reminders"
	CollectionPolls     = "polls"
	CollectionSettings  = "settings"
)

// DueField is the record field QueryDue compares against.
const DueField = "due_at"

var (
	// ErrNotFound is returned when deleting a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidName is returned for unusable collection names or keys.
	ErrInvalidName = errors.New("invalid collection or key")
	// ErrNotNumeric is returned when incrementing a non-numeric field.
	ErrNotNumeric = errors.New("field is not numeric")
)

// Record is one stored document.
type Record map[string]interface{}

// Entry is a record together with its key.
type Entry struct {
	Key    string
	Record Record
}

// Store is the narrow contract every backend implements.
type Store interface {
	Get(ctx context.Context, collection, key string) (mo.Option[Record], error)
	Put(ctx context.Context, collection, key string, rec Record) error
	// Increment adds delta to a numeric field, creating record and field as
	// needed, and returns the new value.
	Increment(ctx context.Context, collection, key, field string, delta int64) (int64, error)
	// Update runs fn on the current record and stores its result atomically.
	Update(ctx context.Context, collection, key string, fn func(mo.Option[Record]) (Record, error)) error
	Delete(ctx context.Context, collection, key string) error
	// QueryDue returns records whose DueField is at or before the given time,
	// oldest first.
	QueryDue(ctx context.Context, collection string, before time.Time) ([]Entry, error)
	// Scan returns every record whose key starts with prefix, ordered by key.
	Scan(ctx context.Context, collection, prefix string) ([]Entry, error)
	Close() error
}

// Key joins key parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Encode converts a typed value into a Record.
func Encode(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return rec, nil
}

// Decode fills v from rec.
func Decode(rec Record, v interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// Clone returns a deep copy of rec.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out, err := Encode(r)
	if err != nil {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		return cp
	}
	return out
}

// Int returns a numeric field as int64.
func (r Record) Int(field string) (int64, bool) {
	return toInt64(r[field])
}

// DueAt returns the parsed DueField.
func (r Record) DueAt() (time.Time, bool) {
	s, ok := r[DueField].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTime is the canonical timestamp encoding inside records.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func incrementRecord(cur mo.Option[Record], field string, delta int64) (Record, int64, error) {
	rec := cur.OrElse(Record{})
	if rec == nil {
		rec = Record{}
	}
	n, ok := toInt64(rec[field])
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotNumeric, field)
	}
	n += delta
	rec[field] = n
	return rec, n, nil
}

func validateName(collection, key string) error {
	if collection == "" || strings.ContainsAny(collection, `/\.`) || strings.Contains(collection, "..") {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, collection)
	}
	if key == "" || len(key) > 512 {
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}
	return nil
}

// keyLock serializes writers per (collection, key) with a fixed set of
// striped mutexes.
type keyLock struct {
	stripes [64]sync.Mutex
}

func (l *keyLock) lock(collection, key string) func() {
	h := fnv.New32a()
	h.Write([]byte(collection))
	h.Write([]byte{0})
	h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
