package editor

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Registry tracks live editing sessions by ID with a sliding idle TTL, so
// abandoned browser tabs don't pin their pixel buffers forever.
type Registry struct {
	cache *gocache.Cache
}

func NewRegistry(idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &Registry{
		cache: gocache.New(idleTTL, idleTTL/2),
	}
}

func (r *Registry) Put(s *Session) {
	r.cache.Set(s.ID, s, gocache.DefaultExpiration)
}

// Get returns the session and refreshes its idle expiry.
func (r *Registry) Get(id string) (*Session, bool) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	r.cache.Set(id, s, gocache.DefaultExpiration)
	return s, true
}

func (r *Registry) Remove(id string) {
	r.cache.Delete(id)
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
