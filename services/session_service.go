package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionStore keeps per-user state objects in memory. Entries expire after
// ttl without access; each Get extends the lease.
type SessionStore[T any] struct {
	cache *cache.Cache
}

func NewSessionStore[T any](ttl time.Duration) *SessionStore[T] {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionStore[T]{cache: cache.New(ttl, ttl/2)}
}

// Create stores v under a fresh id.
func (s *SessionStore[T]) Create(v T) string {
	id := uuid.NewString()
	s.cache.SetDefault(id, v)
	return id
}

func (s *SessionStore[T]) Get(id string) (T, bool) {
	var zero T
	v, ok := s.cache.Get(id)
	if !ok {
		return zero, false
	}
	s.cache.SetDefault(id, v)
	return v.(T), true
}

func (s *SessionStore[T]) Delete(id string) {
	s.cache.Delete(id)
}

func (s *SessionStore[T]) Len() int {
	return s.cache.ItemCount()
}
