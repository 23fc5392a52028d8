package workflow

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStoreSize bounds the number of sessions kept in memory.
const DefaultStoreSize = 4096

// Store keeps the latest session per user. Least recently used sessions are
// evicted; an evicted user starts again on the landing page.
type Store struct {
	cache *lru.Cache[string, Session]
}

func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultStoreSize
	}
	cache, err := lru.New[string, Session](size)
	if err != nil {
		return nil, fmt.Errorf("workflow: session cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

// Get returns the user's session, or a fresh one in language.
func (s *Store) Get(userID, language string) Session {
	if sess, ok := s.cache.Get(userID); ok {
		return sess
	}
	return NewSession(userID, language)
}

// Put replaces the user's session.
func (s *Store) Put(sess Session) {
	s.cache.Add(sess.UserID, sess)
}

// Len reports how many sessions are cached.
func (s *Store) Len() int {
	return s.cache.Len()
}
