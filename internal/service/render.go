package service

import (
	"fmt"

	"github.com/Rubix982/django-photo-edit/internal/effects"
	"github.com/dgraph-io/ristretto/v2"
)

type cacheObserver interface {
	CacheHit()
	CacheMiss()
}

type noopObserver struct{}

func (noopObserver) CacheHit()  {}
func (noopObserver) CacheMiss() {}

// renderCache keeps encoded renders in memory. The cost of an entry is its
// size in bytes.
type renderCache struct {
	cache *ristretto.Cache[string, effects.Output]
}

func newRenderCache(maxKeys, maxBytes int64) *renderCache {
	c, err := ristretto.NewCache(&ristretto.Config[string, effects.Output]{
		NumCounters: maxKeys * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to create render cache: %v", err))
	}

	return &renderCache{cache: c}
}

func renderKey(photoID int64, effect, publicID string) string {
	return fmt.Sprintf("%d/%s/%s", photoID, effect, publicID)
}

func (rc *renderCache) get(photoID int64, effect, publicID string) (effects.Output, bool) {
	return rc.cache.Get(renderKey(photoID, effect, publicID))
}

func (rc *renderCache) put(photoID int64, effect, publicID string, out effects.Output) {
	rc.cache.Set(renderKey(photoID, effect, publicID), out, int64(len(out.Data)))
	rc.cache.Wait()
}

// evict drops every render of one source image.
func (rc *renderCache) evict(photoID int64, publicID string) {
	for _, e := range effects.All() {
		rc.cache.Del(renderKey(photoID, e.Name, publicID))
	}
}

func (rc *renderCache) close() {
	rc.cache.Close()
}
