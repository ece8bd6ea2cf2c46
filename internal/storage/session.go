package storage

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

const (
	defaultSessionTTL = 12 * time.Hour
	maxSessions       = 10000
)

// SessionStorage keeps authenticated admin sessions in memory. Sessions are
// lost on restart, operators just log in again.
type SessionStorage struct {
	cache *ristretto.Cache[string, *Session]
	ttl   time.Duration
}

type Session struct {
	AdminID  uint
	Username string
}

func NewSessionStorage(ttl time.Duration) *SessionStorage {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, *Session]{
		NumCounters: maxSessions,
		MaxCost:     maxSessions,
		BufferItems: 64,
	})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session storage")
	}

	return &SessionStorage{
		cache: c,
		ttl:   ttl,
	}
}

func (s *SessionStorage) TTL() time.Duration {
	return s.ttl
}

func (s *SessionStorage) Get(key string) (*Session, bool) {
	return s.cache.Get(key)
}

func (s *SessionStorage) Set(key string, value *Session) {
	s.cache.SetWithTTL(key, value, 1, s.ttl)
	s.cache.Wait()
}

func (s *SessionStorage) Delete(key string) {
	s.cache.Del(key)
	s.cache.Wait()
}
