package services

import (
	"container/heap"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/google/uuid"

	"sponsor-backend/internal/metrics"
	"sponsor-backend/internal/types"
)

// TransactionState per-id state machine:
// BUILT -> SENDER_SIGNED -> SUBMITTING -> {CONFIRMED | FAILED}, with EXPIRED
// absorbing from BUILT or SENDER_SIGNED after TTL.
type TransactionState string

const (
	StateBuilt        TransactionState = "BUILT"
	StateSenderSigned TransactionState = "SENDER_SIGNED"
	StateSubmitting   TransactionState = "SUBMITTING"
	StateConfirmed    TransactionState = "CONFIRMED"
	StateFailed       TransactionState = "FAILED"
	StateExpired      TransactionState = "EXPIRED"
)

// BuiltTransaction immutable once cached. RawTxn and InnerRawTxn reference the
// same transaction; the inner form exists for the manual encoding path.
// SigningMessage holds the exact bytes computed at build time - the pipeline
// recomputes and compares before any reuse.
type BuiltTransaction struct {
	RawTxn          *aptos.RawTransactionWithData
	InnerRawTxn     *aptos.RawTransaction
	FeePayerAddress aptos.AccountAddress
	SigningMessage  []byte
	SponsorAuth     *crypto.AccountAuthenticator
	CreatedAt       time.Time
}

// PendingEntry owned exclusively by the cache. Created on build, consumed
// read-only on submit, deleted after submission or expiry - whichever first.
type PendingEntry struct {
	ID        string
	Txn       *BuiltTransaction
	ExpiresAt time.Time
	State     TransactionState
}

// CacheStats snapshot for the admin API
type CacheStats struct {
	Size         int       `json:"size"`
	TotalInserts uint64    `json:"total_inserts"`
	TotalExpired uint64    `json:"total_expired"`
	OldestExpiry time.Time `json:"oldest_expiry,omitempty"`
}

// expiryItem heap entry; the id is kept so a deleted entry can be skipped when
// its heap item surfaces
type expiryItem struct {
	id        string
	expiresAt time.Time
}

type expiryHeap []expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// StateListener observes state transitions (websocket push, logging)
type StateListener func(id string, state TransactionState)

// PendingTransactionCache a bounded, time-indexed store for built transactions
// awaiting their sender authorization. Mutex-guarded map plus an expiry
// min-heap; TTL is enforced both on access and by SweepExpired.
type PendingTransactionCache struct {
	mu           sync.Mutex
	entries      map[string]*PendingEntry
	expiry       expiryHeap
	ttl          time.Duration
	listeners    []StateListener
	totalInserts uint64
	totalExpired uint64
}

// NewPendingTransactionCache creates the cache with the given TTL
func NewPendingTransactionCache(ttl time.Duration) *PendingTransactionCache {
	c := &PendingTransactionCache{
		entries: make(map[string]*PendingEntry),
		ttl:     ttl,
	}
	heap.Init(&c.expiry)
	return c
}

// OnStateChange registers a transition listener. Must be called before the
// cache is shared across goroutines.
func (c *PendingTransactionCache) OnStateChange(listener StateListener) {
	c.listeners = append(c.listeners, listener)
}

func (c *PendingTransactionCache) notify(id string, state TransactionState) {
	for _, listener := range c.listeners {
		listener(id, state)
	}
}

// Insert stores a built transaction under a fresh opaque id and returns the id
func (c *PendingTransactionCache) Insert(txn *BuiltTransaction) string {
	id := uuid.New().String()

	c.mu.Lock()
	expired := c.sweepLocked(time.Now())
	c.entries[id] = &PendingEntry{
		ID:        id,
		Txn:       txn,
		ExpiresAt: time.Now().Add(c.ttl),
		State:     StateBuilt,
	}
	heap.Push(&c.expiry, expiryItem{id: id, expiresAt: c.entries[id].ExpiresAt})
	c.totalInserts++
	size := len(c.entries)
	c.mu.Unlock()

	metrics.PendingCacheSize.Set(float64(size))
	for _, expiredID := range expired {
		c.notify(expiredID, StateExpired)
	}
	c.notify(id, StateBuilt)
	return id
}

// TakeIfValid returns the entry for id if present and unexpired. The entry is
// read-only for the caller; only the cache deletes.
func (c *PendingTransactionCache) TakeIfValid(id string) (*PendingEntry, error) {
	now := time.Now()

	c.mu.Lock()
	expired := c.sweepLocked(now)
	entry, ok := c.entries[id]
	c.mu.Unlock()

	// Lazy expiry reaches listeners the same way a background sweep does
	for _, expiredID := range expired {
		c.notify(expiredID, StateExpired)
	}

	if !ok || now.After(entry.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", types.ErrTransactionNotFound, id)
	}
	return entry, nil
}

// SetState advances the entry's state and notifies listeners. Unknown ids are
// ignored (the entry may have been deleted concurrently).
func (c *PendingTransactionCache) SetState(id string, state TransactionState) {
	c.mu.Lock()
	entry, ok := c.entries[id]
	if ok {
		entry.State = state
	}
	c.mu.Unlock()

	if ok {
		c.notify(id, state)
	}
}

// Delete removes the entry. Idempotent; a transaction handle is single-use.
func (c *PendingTransactionCache) Delete(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	size := len(c.entries)
	c.mu.Unlock()

	metrics.PendingCacheSize.Set(float64(size))
}

// SweepExpired removes all entries past their TTL and returns how many were
// dropped. Safe to call from a background ticker.
func (c *PendingTransactionCache) SweepExpired(now time.Time) int {
	c.mu.Lock()
	expired := c.sweepLocked(now)
	size := len(c.entries)
	c.mu.Unlock()

	metrics.PendingCacheSize.Set(float64(size))
	for _, id := range expired {
		c.notify(id, StateExpired)
	}
	return len(expired)
}

// sweepLocked pops expired heap items. Caller holds the mutex. Returns ids of
// entries actually removed (stale heap items for deleted entries are skipped).
func (c *PendingTransactionCache) sweepLocked(now time.Time) []string {
	var expired []string
	for c.expiry.Len() > 0 {
		next := c.expiry[0]
		if next.expiresAt.After(now) {
			break
		}
		heap.Pop(&c.expiry)
		entry, ok := c.entries[next.id]
		if !ok || entry.ExpiresAt.After(now) {
			continue
		}
		entry.State = StateExpired
		delete(c.entries, next.id)
		c.totalExpired++
		expired = append(expired, next.id)
		metrics.PendingCacheExpiredTotal.Inc()
		log.Printf("⏳ [Cache] Pending transaction expired: %s", next.id)
	}
	return expired
}

// Stats snapshot for the admin API
func (c *PendingTransactionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:         len(c.entries),
		TotalInserts: c.totalInserts,
		TotalExpired: c.totalExpired,
	}
	if c.expiry.Len() > 0 {
		stats.OldestExpiry = c.expiry[0].expiresAt
	}
	return stats
}
