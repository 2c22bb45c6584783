package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"masterd/internal/logger"
	"masterd/internal/models"
)

// ErrChunkTooLarge is the only hard cache failure: a single chunk bigger
// than the combined tier capacity cannot be stored at all. Ordinary pressure
// is absorbed by demotion and eviction, never reported as an error.
var ErrChunkTooLarge = errors.New("chunk exceeds total cache capacity")

// Tier identifies which cache level currently owns an entry.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
)

func (t Tier) String() string {
	if t == TierHot {
		return "hot"
	}
	return "warm"
}

// entry wraps a chunk with tier membership and recency bookkeeping. An entry
// is owned by exactly one tier at a time; promotion and demotion move it.
type entry struct {
	key        models.ChunkKey
	chunk      *models.Chunk // nil while the payload lives in the warm store
	size       int
	duration   time.Duration
	tier       Tier
	elem       *list.Element
	lastAccess time.Time
}

// Stats is a point-in-time snapshot for cacheStats events.
type Stats struct {
	HotCount   int   `json:"hotCount"`
	HotBytes   int   `json:"hotBytes"`
	WarmCount  int   `json:"warmCount"`
	WarmBytes  int   `json:"warmBytes"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Demotions  int64 `json:"demotions"`
	Evictions  int64 `json:"evictions"`
	DiskBacked bool  `json:"diskBacked"`
}

// MultiTierCache stores original and processed chunks across a small fast
// tier and a larger warm tier. New chunks enter the hot tier; LRU overflow
// demotes to warm, and only the warm boundary evicts outright. The warm tier
// payload may live on disk behind a WarmStore.
//
// The internal mutex guards only O(1) bookkeeping (map and list moves).
// Chunk production and warm store disk I/O never run under it, so concurrent
// lookups never block each other.
type MultiTierCache struct {
	mutex   sync.Mutex
	entries map[models.ChunkKey]*entry

	// Recency lists, front = most recently used.
	hotList  *list.List
	warmList *list.List

	hotBytes   int
	warmBytes  int
	hotBudget  int
	warmBudget int

	warmStore WarmStore
	logger    logger.Logger

	hits, misses, demotions, evictions int64
}

// New creates a cache with the given tier byte budgets. store may be nil for
// a fully memory-resident warm tier; when present, entries recorded in the
// store are re-adopted into the warm tier so chunks survive restarts.
func New(hotBudget, warmBudget int, store WarmStore, log logger.Logger) *MultiTierCache {
	c := &MultiTierCache{
		entries:    make(map[models.ChunkKey]*entry),
		hotList:    list.New(),
		warmList:   list.New(),
		hotBudget:  hotBudget,
		warmBudget: warmBudget,
		warmStore:  store,
		logger:     log,
	}

	if store != nil {
		adopted := 0
		for _, rec := range store.Records() {
			if c.warmBytes+rec.Size > warmBudget {
				break
			}
			e := &entry{
				key:        rec.Key,
				size:       rec.Size,
				duration:   rec.Duration,
				tier:       TierWarm,
				lastAccess: rec.LastAccess,
			}
			e.elem = c.warmList.PushBack(e)
			c.entries[rec.Key] = e
			c.warmBytes += rec.Size
			adopted++
		}
		if adopted > 0 {
			log.Infof("Re-adopted %d chunks (%d bytes) from the warm store", adopted, c.warmBytes)
		}
	}
	return c
}

// Get returns the cached chunk for the key, refreshing its recency in
// whichever tier it resides. A miss returns (nil, false). Disk-resident warm
// payloads are fetched outside the mutex.
func (c *MultiTierCache) Get(key models.ChunkKey) (*models.Chunk, bool) {
	c.mutex.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mutex.Unlock()
		return nil, false
	}

	e.lastAccess = time.Now()
	if e.tier == TierHot {
		c.hotList.MoveToFront(e.elem)
	} else {
		c.warmList.MoveToFront(e.elem)
	}
	chunk := e.chunk
	duration := e.duration
	c.mutex.Unlock()

	if chunk == nil {
		// Warm payload lives on disk.
		payload, err := c.warmStore.Fetch(key)
		if err != nil {
			// Treat a broken disk record as a miss and drop the entry so
			// production can rebuild it.
			c.logger.Warnf("Warm store fetch failed for %s: %v", key, err)
			c.mutex.Lock()
			dropStored := false
			if cur, ok := c.entries[key]; ok && cur == e && cur.chunk == nil {
				dropStored = c.removeLocked(cur, true)
			}
			c.misses++
			c.mutex.Unlock()
			if dropStored {
				c.deleteStored(key)
			}
			return nil, false
		}
		chunk = &models.Chunk{
			TrackID:  key.TrackID,
			Sequence: key.Sequence,
			Kind:     key.Kind,
			Payload:  payload,
			Duration: duration,
		}
	}

	c.mutex.Lock()
	c.hits++
	c.mutex.Unlock()
	return chunk, true
}

// Contains reports whether the key is cached without touching recency.
func (c *MultiTierCache) Contains(key models.ChunkKey) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Put inserts a newly produced chunk into the hot tier, demoting and
// evicting as needed to restore both tier budgets.
func (c *MultiTierCache) Put(key models.ChunkKey, chunk *models.Chunk) error {
	size := chunk.Size()
	if size > c.hotBudget+c.warmBudget {
		return fmt.Errorf("%w: %d bytes for %s", ErrChunkTooLarge, size, key)
	}

	c.mutex.Lock()
	if old, ok := c.entries[key]; ok {
		// Re-production of an existing key is a no-op refresh: chunks are
		// content-deterministic, so the stored payload is equivalent.
		old.lastAccess = time.Now()
		if old.tier == TierHot {
			c.hotList.MoveToFront(old.elem)
		} else {
			c.warmList.MoveToFront(old.elem)
		}
		c.mutex.Unlock()
		return nil
	}

	e := &entry{
		key:        key,
		chunk:      chunk,
		size:       size,
		duration:   chunk.Duration,
		tier:       TierHot,
		lastAccess: time.Now(),
	}
	e.elem = c.hotList.PushFront(e)
	c.entries[key] = e
	c.hotBytes += size

	demoted, dropped := c.rebalanceLocked()
	c.mutex.Unlock()

	c.persistDemoted(demoted)
	for _, k := range dropped {
		c.deleteStored(k)
	}
	return nil
}

// rebalanceLocked restores tier budgets: hot overflow demotes LRU entries to
// warm; warm overflow evicts LRU entries outright. Entries whose payloads
// should move to the warm store, and stored records to delete, are returned
// so the caller can do the disk work after releasing the mutex.
func (c *MultiTierCache) rebalanceLocked() (demoted []*entry, dropped []models.ChunkKey) {
	for c.hotBytes > c.hotBudget && c.hotList.Len() > 1 {
		back := c.hotList.Back()
		e := back.Value.(*entry)
		c.hotList.Remove(back)
		c.hotBytes -= e.size

		e.tier = TierWarm
		e.elem = c.warmList.PushFront(e)
		c.warmBytes += e.size
		c.demotions++

		if c.warmStore != nil && e.chunk != nil {
			demoted = append(demoted, e)
		}
		c.logger.Debugf("Demoted %s to warm tier (%d bytes)", e.key, e.size)
	}

	for c.warmBytes > c.warmBudget && c.warmList.Len() > 0 {
		back := c.warmList.Back()
		e := back.Value.(*entry)
		if c.removeLocked(e, true) {
			dropped = append(dropped, e.key)
		}
		c.evictions++
		c.logger.Debugf("Evicted %s from warm tier (%d bytes)", e.key, e.size)
	}
	return demoted, dropped
}

// persistDemoted writes demoted payloads to the warm store without holding
// the mutex. An entry may have been evicted or touched in the meantime, so
// its identity and tier are re-checked before the in-memory payload is
// released.
func (c *MultiTierCache) persistDemoted(demoted []*entry) {
	for _, e := range demoted {
		c.mutex.Lock()
		cur, ok := c.entries[e.key]
		if !ok || cur != e || e.tier != TierWarm || e.chunk == nil {
			c.mutex.Unlock()
			continue
		}
		payload := e.chunk.Payload
		duration := e.duration
		lastAccess := e.lastAccess
		c.mutex.Unlock()

		if err := c.warmStore.Store(e.key, payload, duration, lastAccess); err != nil {
			c.logger.Warnf("Warm store write failed for %s, keeping payload in memory: %v", e.key, err)
			continue
		}

		c.mutex.Lock()
		if cur, ok := c.entries[e.key]; ok && cur == e && e.tier == TierWarm {
			e.chunk = nil
		}
		c.mutex.Unlock()
	}
}

// removeLocked unlinks the entry and reports whether the caller must also
// delete its record from the warm store once the mutex is released.
func (c *MultiTierCache) removeLocked(e *entry, dropStored bool) bool {
	if e.tier == TierHot {
		c.hotList.Remove(e.elem)
		c.hotBytes -= e.size
	} else {
		c.warmList.Remove(e.elem)
		c.warmBytes -= e.size
		delete(c.entries, e.key)
		return dropStored && c.warmStore != nil && e.chunk == nil
	}
	delete(c.entries, e.key)
	return false
}

func (c *MultiTierCache) deleteStored(key models.ChunkKey) {
	if err := c.warmStore.Delete(key); err != nil {
		c.logger.Warnf("Warm store delete failed for %s: %v", key, err)
	}
}

// TierOf reports the tier currently owning the key, for observability.
func (c *MultiTierCache) TierOf(key models.ChunkKey) (Tier, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return e.tier, true
}

// Stats returns a snapshot of cache occupancy and counters.
func (c *MultiTierCache) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return Stats{
		HotCount:   c.hotList.Len(),
		HotBytes:   c.hotBytes,
		WarmCount:  c.warmList.Len(),
		WarmBytes:  c.warmBytes,
		Hits:       c.hits,
		Misses:     c.misses,
		Demotions:  c.demotions,
		Evictions:  c.evictions,
		DiskBacked: c.warmStore != nil,
	}
}

// Close releases the warm store, if any.
func (c *MultiTierCache) Close() error {
	if c.warmStore != nil {
		return c.warmStore.Close()
	}
	return nil
}
