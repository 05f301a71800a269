package executor

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/internal/posting"
	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/metrics"
)

// CachedSource keeps up to size decoded posting lists from an underlying
// Source, evicting the oldest entry first. Concurrent misses for the same
// term share one load. Cached lists are shared and must not be mutated.
type CachedSource struct {
	src     Source
	size    int
	mu      sync.Mutex
	entries map[int64]*posting.List
	order   []int64
	group   singleflight.Group
	metrics *metrics.Metrics
}

func NewCachedSource(src Source, size int, m *metrics.Metrics) *CachedSource {
	return &CachedSource{
		src:     src,
		size:    size,
		entries: make(map[int64]*posting.List, size),
		metrics: m,
	}
}

func (c *CachedSource) Schema() posting.Schema {
	return c.src.Schema()
}

func (c *CachedSource) PostingList(termID int64) (*posting.List, error) {
	c.mu.Lock()
	l, ok := c.entries[termID]
	c.mu.Unlock()
	if ok {
		if c.metrics != nil {
			c.metrics.PostingCacheHits.Inc()
		}
		return l, nil
	}
	if c.metrics != nil {
		c.metrics.PostingCacheMisses.Inc()
	}

	v, err, _ := c.group.Do(strconv.FormatInt(termID, 10), func() (any, error) {
		l, err := c.src.PostingList(termID)
		if err != nil {
			return nil, err
		}
		c.put(termID, l)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*posting.List), nil
}

// Invalidate drops every cached list, e.g. after the index was flushed.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]*posting.List, c.size)
	c.order = nil
}

// Len is the number of cached lists.
func (c *CachedSource) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachedSource) put(termID int64, l *posting.List) {
	if c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[termID]; ok {
		return
	}
	for len(c.order) >= c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
	c.entries[termID] = l
	c.order = append(c.order, termID)
}
