package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/keepmind9/guildbot/internal/logger"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

// DocumentStore keeps each collection as one JSON file in a data directory.
// The whole collection is cached in memory and written through on every
// change with an atomic rename. A lock file prevents two processes from
// sharing the directory.
type DocumentStore struct {
	baseDir string
	lockf   *flock.Flock
	keys    keyLock

	mu          sync.RWMutex
	collections map[string]map[string]Record
}

// OpenDocumentStore opens (creating if needed) a document store in baseDir.
func OpenDocumentStore(baseDir string) (*DocumentStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	lockf := flock.New(filepath.Join(baseDir, ".lock"))
	locked, err := lockf.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data dir %s is in use by another instance", baseDir)
	}

	return &DocumentStore{
		baseDir:     baseDir,
		lockf:       lockf,
		collections: make(map[string]map[string]Record),
	}, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, key string) (mo.Option[Record], error) {
	if err := validateName(collection, key); err != nil {
		return mo.None[Record](), err
	}
	docs, err := s.collection(collection)
	if err != nil {
		return mo.None[Record](), err
	}
	s.mu.RLock()
	rec, ok := docs[key]
	s.mu.RUnlock()
	if !ok {
		return mo.None[Record](), nil
	}
	return mo.Some(rec.Clone()), nil
}

func (s *DocumentStore) Put(ctx context.Context, collection, key string, rec Record) error {
	if err := validateName(collection, key); err != nil {
		return err
	}
	unlock := s.keys.lock(collection, key)
	defer unlock()
	return s.write(collection, key, rec.Clone())
}

func (s *DocumentStore) Increment(ctx context.Context, collection, key, field string, delta int64) (int64, error) {
	var value int64
	err := s.Update(ctx, collection, key, func(cur mo.Option[Record]) (Record, error) {
		rec, n, err := incrementRecord(cur, field, delta)
		value = n
		return rec, err
	})
	return value, err
}

func (s *DocumentStore) Update(ctx context.Context, collection, key string, fn func(mo.Option[Record]) (Record, error)) error {
	if err := validateName(collection, key); err != nil {
		return err
	}
	unlock := s.keys.lock(collection, key)
	defer unlock()

	cur, err := s.Get(ctx, collection, key)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return s.write(collection, key, next.Clone())
}

func (s *DocumentStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateName(collection, key); err != nil {
		return err
	}
	unlock := s.keys.lock(collection, key)
	defer unlock()

	docs, err := s.collection(collection)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := docs[key]
	if !ok {
		return ErrNotFound
	}
	delete(docs, key)
	if err := s.save(collection, docs); err != nil {
		docs[key] = prev
		return err
	}
	return nil
}

func (s *DocumentStore) QueryDue(ctx context.Context, collection string, before time.Time) ([]Entry, error) {
	all, err := s.Scan(ctx, collection, "")
	if err != nil {
		return nil, err
	}
	var due []Entry
	for _, e := range all {
		if at, ok := e.Record.DueAt(); ok && !at.After(before) {
			due = append(due, e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, _ := due[i].Record.DueAt()
		b, _ := due[j].Record.DueAt()
		return a.Before(b)
	})
	return due, nil
}

func (s *DocumentStore) Scan(ctx context.Context, collection, prefix string) ([]Entry, error) {
	docs, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Entry, 0, len(docs))
	for k, rec := range docs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Entry{Key: k, Record: rec.Clone()})
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close releases the directory lock.
func (s *DocumentStore) Close() error {
	if s.lockf == nil {
		return nil
	}
	if err := s.lockf.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock data dir: %w", err)
	}
	return nil
}

func (s *DocumentStore) write(collection, key string, rec Record) error {
	docs, err := s.collection(collection)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := docs[key]
	docs[key] = rec
	if err := s.save(collection, docs); err != nil {
		if had {
			docs[key] = prev
		} else {
			delete(docs, key)
		}
		return err
	}
	return nil
}

// collection returns the cached collection, loading it from disk once.
func (s *DocumentStore) collection(name string) (map[string]Record, error) {
	if err := validateName(name, "_"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	docs, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return docs, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if docs, ok := s.collections[name]; ok {
		return docs, nil
	}
	docs = make(map[string]Record)
	data, err := os.ReadFile(s.path(name))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	default:
		if err := json.Unmarshal(data, &docs); err != nil {
			aside := s.path(name) + ".corrupt"
			if rerr := os.Rename(s.path(name), aside); rerr != nil {
				return nil, fmt.Errorf("collection %s is corrupt and could not be moved aside: %w", name, rerr)
			}
			logger.WithFields(logrus.Fields{
				"collection": name,
				"moved_to":   aside,
				"error":      err,
			}).Warn("corrupt-collection-file-starting-empty")
			docs = make(map[string]Record)
		}
	}
	s.collections[name] = docs
	return docs, nil
}

// save must be called with s.mu held.
func (s *DocumentStore) save(collection string, docs map[string]Record) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal collection %s: %w", collection, err)
	}
	tmp := s.path(collection) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write collection %s: %w", collection, err)
	}
	if err := os.Rename(tmp, s.path(collection)); err != nil {
		return fmt.Errorf("failed to replace collection %s: %w", collection, err)
	}
	return nil
}

func (s *DocumentStore) path(collection string) string {
	return filepath.Join(s.baseDir, collection+".json")
}
