package engine

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

type shard struct {
	mu sync.RWMutex
	m  map[string]*session
}

// Store maps session ids to sessions. Ids are spread over independently
// locked shards so unrelated sessions never contend; each session carries
// its own mutex for its decision state.
//
// Lock order is entry then shard. Shard locks are never held while
// acquiring an entry lock.
type Store struct {
	shards []*shard
	max    int
	count  atomic.Int64
}

// NewStore returns a store with n shards holding at most max sessions.
// max <= 0 means unlimited.
func NewStore(n, max int) *Store {
	if n < 1 {
		n = DefaultShards
	}
	s := &Store{shards: make([]*shard, n), max: max}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[string]*session)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Len returns the number of live sessions.
func (s *Store) Len() int { return int(s.count.Load()) }

func (s *Store) get(id string) (*session, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.m[id]
	return sess, ok
}

// getOrCreate returns the session for id, building it when absent.
// build runs under the shard lock and must not touch other sessions.
func (s *Store) getOrCreate(id string, build func() *session) (*session, bool, error) {
	if sess, ok := s.get(id); ok {
		return sess, false, nil
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sess, ok := sh.m[id]; ok {
		return sess, false, nil
	}
	if err := s.reserve(); err != nil {
		return nil, false, err
	}
	sess := build()
	sh.m[id] = sess
	return sess, true, nil
}

// create adds a new session and fails if id is taken.
func (s *Store) create(id string, build func() *session) (*session, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.m[id]; ok {
		return nil, ErrSessionExists
	}
	if err := s.reserve(); err != nil {
		return nil, err
	}
	sess := build()
	sh.m[id] = sess
	return sess, nil
}

func (s *Store) reserve() error {
	if n := s.count.Add(1); s.max > 0 && n > int64(s.max) {
		s.count.Add(-1)
		return ErrStoreFull
	}
	return nil
}

// remove deletes id only if it still maps to sess. The caller holds sess.mu.
func (s *Store) remove(id string, sess *session) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[id]; ok && cur == sess {
		delete(sh.m, id)
		s.count.Add(-1)
	}
}

// snapshot returns every live session without locking any of them.
func (s *Store) snapshot() []*session {
	out := make([]*session, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, sess := range sh.m {
			out = append(out, sess)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Sweep closes and removes sessions untouched for longer than ttl, returning
// their final summaries. ttl <= 0 disables eviction.
func (s *Store) Sweep(now time.Time, ttl time.Duration) []FinalSummary {
	if ttl <= 0 {
		return nil
	}
	var evicted []FinalSummary
	for _, sess := range s.snapshot() {
		sess.mu.Lock()
		if !sess.closed && now.Sub(sess.touchedAt) > ttl {
			evicted = append(evicted, sess.close(EndedIdle, now))
			s.remove(sess.id, sess)
		}
		sess.mu.Unlock()
	}
	return evicted
}
