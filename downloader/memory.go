package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/camsys/onebusaway-application-modules-sub000/cache"
)

// Caches downloaded files in memory. Each distinct CacheTTL gets its
// own cache.
type MemoryDownloader struct {
	mutex  sync.Mutex
	caches map[time.Duration]*cache.TTL[string, []byte]

	TimeNow func() time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		caches:  make(map[time.Duration]*cache.TTL[string, []byte]),
		TimeNow: time.Now,
	}
}

func (d *MemoryDownloader) cacheFor(ttl time.Duration) *cache.TTL[string, []byte] {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	c, ok := d.caches[ttl]
	if !ok {
		c = cache.NewTTL[string, []byte](ttl)
		d.caches[ttl] = c
	}
	c.TimeNow = d.TimeNow
	return c
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	return d.cacheFor(options.CacheTTL).GetOrCreate(url, func() ([]byte, error) {
		return HTTPGet(ctx, url, headers, options)
	})
}
