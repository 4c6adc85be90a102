// Package fsm holds per-(chat,user) dialog state for multi-step flows.
// Frames are process-local with an idle TTL; losing them on restart aborts
// the flow cleanly and the user starts over. At most one frame exists per
// key at any time.
package fsm

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// State names one step of a dialog flow.
type State string

// Donate flow states.
const (
	StateDonateCurrency State = "donate:choosing_currency"
	StateDonateAmount   State = "donate:entering_amount"
)

// Post-plan flow states.
const (
	StatePlanTarget  State = "postplan:choosing_target"
	StatePlanTime    State = "postplan:waiting_time"
	StatePlanContent State = "postplan:waiting_content"
	StatePlanConfirm State = "postplan:confirm"
)

// Frame is one dialog in progress.
type Frame struct {
	State State
	Data  map[string]string
}

type key struct {
	chatID int64
	userID int64
}

// Store is a bounded, TTL-evicting frame store. Safe for concurrent use;
// read-modify-write cycles on a frame are serialized by the store lock.
type Store struct {
	mu    sync.Mutex
	cache *expirable.LRU[key, Frame]
}

// NewStore builds a Store holding up to cap frames with the given idle TTL.
func NewStore(cap int, ttl time.Duration) *Store {
	return &Store{cache: expirable.NewLRU[key, Frame](cap, nil, ttl)}
}

// Get returns a copy of the frame for (chatID, userID), if any.
func (s *Store) Get(chatID, userID int64) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.cache.Get(key{chatID, userID})
	return f, ok
}

// Active reports whether a frame exists for the key.
func (s *Store) Active(chatID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Contains(key{chatID, userID})
}

// SetState replaces the frame's state, creating the frame if needed.
// Existing data survives the transition.
func (s *Store) SetState(chatID, userID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{chatID, userID}
	f, ok := s.cache.Get(k)
	if !ok {
		f = Frame{Data: map[string]string{}}
	}
	f.State = state
	s.cache.Add(k, f)
}

// UpdateData merges kv into the frame's data. A frame must exist; updates on
// absent frames are dropped, matching the ignore-mismatched-input rule.
func (s *Store) UpdateData(chatID, userID int64, kv map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{chatID, userID}
	f, ok := s.cache.Get(k)
	if !ok {
		return
	}
	if f.Data == nil {
		f.Data = map[string]string{}
	}
	for kk, v := range kv {
		f.Data[kk] = v
	}
	s.cache.Add(k, f)
}

// Clear drops the frame, ending the flow.
func (s *Store) Clear(chatID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(key{chatID, userID})
}
