package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/TheOriginalAyaka/discord-package-app/internal/log"
)

const (
	retiredExpiration      = 10 * time.Minute
	retiredCleanupInterval = 30 * time.Minute
)

// RetireReason records why a session id stopped being current.
type RetireReason string

const (
	RetiredCancelled  RetireReason = "cancelled"
	RetiredReset      RetireReason = "reset"
	RetiredSuperseded RetireReason = "superseded"
)

// retiredSessions remembers recently retired session ids so late events can be
// logged with the reason they were dropped. Entries expire; an expired or
// never-seen id is reported as unknown.
type retiredSessions struct {
	cache *gocache.Cache
}

func newRetiredSessions(expiration, cleanupInterval time.Duration) *retiredSessions {
	return &retiredSessions{cache: gocache.New(expiration, cleanupInterval)}
}

func (r *retiredSessions) add(id string, generation uint64, reason RetireReason) {
	if id == "" {
		return
	}
	r.cache.SetDefault(id, retiredEntry{generation: generation, reason: reason})
}

// lookup returns why id was retired.
func (r *retiredSessions) lookup(id string) (retiredEntry, bool) {
	value, found := r.cache.Get(id)
	if !found {
		return retiredEntry{}, false
	}
	entry, ok := value.(retiredEntry)
	if !ok {
		log.Error(log.CatSession, "wrong type in retired session cache", "session", id)
		return retiredEntry{}, false
	}
	return entry, true
}

type retiredEntry struct {
	generation uint64
	reason     RetireReason
}
