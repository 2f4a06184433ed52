package cache

import (
	"errors"
	"time"
)

// LayeredCache reads memory first and falls back to disk, promoting hits
type LayeredCache struct {
	memory Cache
	disk   Cache
}

// NewLayered combines two caches. Either may be nil.
func NewLayered(memory, disk Cache) *LayeredCache {
	return &LayeredCache{memory: memory, disk: disk}
}

// NewLayeredCache builds the default memory plus disk layering. An empty
// diskDir leaves the cache memory-only.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	var disk Cache
	if diskDir != "" {
		disk = NewDiskCache(diskDir, diskTTL)
	}
	return NewLayered(NewMemoryCache(memoryTTL, 10*time.Minute), disk)
}

func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if c.memory != nil {
		if val, found := c.memory.Get(key); found {
			return val, true
		}
	}
	if c.disk != nil {
		if val, found := c.disk.Get(key); found {
			if c.memory != nil {
				_ = c.memory.Set(key, val, 0)
			}
			return val, true
		}
	}
	return nil, false
}

func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	var errs []error
	for _, layer := range c.layers() {
		errs = append(errs, layer.Set(key, value, ttl))
	}
	return errors.Join(errs...)
}

func (c *LayeredCache) Delete(key string) error {
	var errs []error
	for _, layer := range c.layers() {
		errs = append(errs, layer.Delete(key))
	}
	return errors.Join(errs...)
}

func (c *LayeredCache) Clear() error {
	var errs []error
	for _, layer := range c.layers() {
		errs = append(errs, layer.Clear())
	}
	return errors.Join(errs...)
}

func (c *LayeredCache) layers() []Cache {
	var out []Cache
	if c.memory != nil {
		out = append(out, c.memory)
	}
	if c.disk != nil {
		out = append(out, c.disk)
	}
	return out
}
