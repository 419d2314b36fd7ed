package auth

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// Policy decides how a nounce compares against the last accepted one.
type Policy uint8

const (
	// PolicyStrict requires every nounce after the first to be strictly greater.
	PolicyStrict Policy = iota
	// PolicyNonDecreasing also accepts a repeat of the last nounce, which lets a
	// sender reuse one signature across calls.
	PolicyNonDecreasing
)

func (p Policy) String() string {
	if p == PolicyNonDecreasing {
		return "non-decreasing"
	}
	return "strict"
}

// ParsePolicy maps a config value onto a Policy. Empty selects PolicyStrict.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "strict":
		return PolicyStrict, true
	case "non-decreasing":
		return PolicyNonDecreasing, true
	default:
		return PolicyStrict, false
	}
}

const nounceShards = 64

type nounceShard struct {
	mu   sync.Mutex
	last map[string]uint64
}

// NounceTable maps a sender public key to the last nounce accepted from it.
//
// Entries only ever move forward. The table lives in memory and is empty after a
// process restart.
type NounceTable struct {
	shards [nounceShards]nounceShard
}

func NewNounceTable() *NounceTable {
	t := &NounceTable{}
	for i := range t.shards {
		t.shards[i].last = make(map[string]uint64)
	}
	return t
}

func (t *NounceTable) shard(key string) *nounceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &t.shards[h.Sum32()%nounceShards]
}

// Last returns the last accepted nounce for key.
func (t *NounceTable) Last(key string) (uint64, bool) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.last[key]
	return n, ok
}

// Advance accepts nounce for key if policy allows it, atomically with respect to
// other calls for the same key. It reports whether the nounce was accepted and
// the last accepted value before the call.
func (t *NounceTable) Advance(key string, nounce uint64, policy Policy) (bool, uint64) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.last[key]
	if seen {
		if nounce < last || (nounce == last && policy == PolicyStrict) {
			return false, last
		}
	}
	s.last[key] = nounce
	return true, last
}

// Len returns the number of identities tracked.
func (t *NounceTable) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.last)
		s.mu.Unlock()
	}
	return n
}

// Counter hands out strictly increasing nounces for one sender.
//
// It starts from the wall clock so a restarted sender stays ahead of the values
// peers accepted from its previous run.
type Counter struct {
	n atomic.Uint64
}

func NewCounter() *Counter {
	c := &Counter{}
	c.n.Store(uint64(time.Now().UnixNano()))
	return c
}

// NewCounterAt starts a counter so that the first Next returns start.
func NewCounterAt(start uint64) *Counter {
	c := &Counter{}
	c.n.Store(start - 1)
	return c
}

func (c *Counter) Next() uint64 { return c.n.Add(1) }
