// In-memory map from operator-group message ids to originating users.
//
// The map is the only routing state for replies, and losing it (restart,
// eviction) only degrades reply routing; operators recover via /history. A
// bounded LRU keeps the worst case at a fixed memory cost.
package relay

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// HeaderMap maps header/copy message ids in the operator group to user ids.
// Safe for concurrent use.
type HeaderMap struct {
	cache *lru.Cache[int, int64]
}

// NewHeaderMap builds a bounded map. cap must be >= 1.
func NewHeaderMap(cap int) (*HeaderMap, error) {
	c, err := lru.New[int, int64](cap)
	if err != nil {
		return nil, err
	}
	return &HeaderMap{cache: c}, nil
}

// Put records messageID → userID.
func (m *HeaderMap) Put(messageID int, userID int64) {
	m.cache.Add(messageID, userID)
}

// Get resolves a group message id to the originating user.
func (m *HeaderMap) Get(messageID int) (int64, bool) {
	return m.cache.Get(messageID)
}

// Len returns the number of live entries.
func (m *HeaderMap) Len() int {
	return m.cache.Len()
}
