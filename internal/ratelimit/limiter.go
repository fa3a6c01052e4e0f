// Package ratelimit implements per-(subject, action) sliding-window limits.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Limiter tracks consumptions per key in a trailing window. Keys are spread
// over shards so unrelated subjects never share a lock; operations on one key
// are serialized by its shard mutex.
type Limiter struct {
	shards [shardCount]shard
	now    func() time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// bucket is the consumption log of one key, oldest first.
type bucket struct {
	stamps []time.Time
	window time.Duration
}

// New returns an empty Limiter using the wall clock.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock returns a Limiter reading time from now.
func NewWithClock(now func() time.Time) *Limiter {
	l := &Limiter{now: now}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*bucket)
	}
	return l
}

// CheckAndConsume records one consumption for (subject, action) and returns
// true when fewer than max consumptions happened within window. Otherwise it
// records nothing and returns the time until the oldest slot expires.
// A non-positive max or window disables the limit.
func (l *Limiter) CheckAndConsume(subject, action string, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return true, 0
	}
	key := subject + "\x00" + action
	s := l.shardFor(key)
	now := l.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	b.window = window
	b.evict(now)

	if len(b.stamps) >= max {
		oldest := b.stamps[len(b.stamps)-max]
		return false, oldest.Add(window).Sub(now)
	}
	b.stamps = append(b.stamps, now)
	return true, 0
}

// Prune drops buckets whose every slot has expired and returns how many
// were removed.
func (l *Limiter) Prune() int {
	now := l.now()
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			b.evict(now)
			if len(b.stamps) == 0 {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.shards[h.Sum32()%shardCount]
}

func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}
