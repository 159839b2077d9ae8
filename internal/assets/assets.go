// Package assets loads 3MF packages into scene geometry with caching and
// duplicate-load suppression.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/mesh3mf/pkg/scene"
)

// ErrNotFound is returned when a fetcher has no data for a source.
var ErrNotFound = errors.New("asset not found")

// Fetcher retrieves raw package bytes for a source name.
type Fetcher interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, source string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, source string) ([]byte, error) {
	return f(ctx, source)
}

// FileFetcher reads packages from the local filesystem. Relative sources are
// resolved against Root.
type FileFetcher struct {
	Root string
}

// Fetch reads the file named by source.
func (f FileFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := source
	if !filepath.IsAbs(p) && f.Root != "" {
		p = filepath.Join(f.Root, p)
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, source)
	}
	return data, err
}

// Manager builds geometry for named sources. Concurrent loads of the same
// source share one fetch and build; finished geometry is kept in a bounded
// cache. Cached geometry is shared between callers and must not be mutated.
type Manager struct {
	pipeline *scene.Pipeline
	fetcher  Fetcher
	cache    *Cache
	group    singleflight.Group
	log      *zap.Logger
}

// NewManager creates a manager. cacheEntries of zero or less disables the
// geometry cache.
func NewManager(p *scene.Pipeline, f Fetcher, cacheEntries int) *Manager {
	return &Manager{
		pipeline: p,
		fetcher:  f,
		cache:    NewCache(cacheEntries),
		log:      zap.NewNop(),
	}
}

// SetLogger sets the logger used for load events.
func (m *Manager) SetLogger(l *zap.Logger) {
	if l != nil {
		m.log = l
	}
}

// Load returns the geometry for source. If ctx ends first Load returns
// ctx.Err(); the shared build keeps running for other callers and still
// populates the cache.
func (m *Manager) Load(ctx context.Context, source string) (*scene.Geometry, error) {
	key := cacheKey(source)
	if g, ok := m.cache.Get(key); ok {
		return g, nil
	}

	ch := m.group.DoChan(key, func() (any, error) {
		return m.build(context.WithoutCancel(ctx), source, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*scene.Geometry), nil
	}
}

func (m *Manager) build(ctx context.Context, source, key string) (*scene.Geometry, error) {
	data, err := m.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source, err)
	}
	g, err := m.pipeline.Build(data)
	if err != nil {
		m.log.Warn("build failed", zap.String("source", source), zap.Error(err))
		return nil, fmt.Errorf("building %s: %w", source, err)
	}
	m.cache.Set(key, g)
	m.log.Debug("loaded",
		zap.String("source", source),
		zap.Int("bytes", len(data)),
		zap.Int("vertices", g.VertexCount()),
		zap.Int("triangles", g.TriangleCount()))
	return g, nil
}

// Invalidate drops source from the cache.
func (m *Manager) Invalidate(source string) {
	m.cache.Remove(cacheKey(source))
}

// Stats returns cache statistics.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

// Close clears the cache.
func (m *Manager) Close() {
	m.cache.Clear()
}

func cacheKey(source string) string {
	return filepath.ToSlash(strings.TrimSpace(source))
}

// Cache is a bounded least-recently-used cache of built geometry.
type Cache struct {
	lru *lru.Cache[string, *scene.Geometry]
	mu  sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a cache holding at most size entries. A size of zero or
// less gives a cache that stores nothing.
func NewCache(size int) *Cache {
	c := &Cache{}
	if size > 0 {
		// lru.New only fails for non-positive sizes.
		c.lru, _ = lru.New[string, *scene.Geometry](size)
	}
	return c
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) (*scene.Geometry, bool) {
	var (
		g  *scene.Geometry
		ok bool
	)
	if c.lru != nil {
		g, ok = c.lru.Get(key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return g, ok
}

// Set stores an item in cache, evicting the least recently used entry when
// full.
func (c *Cache) Set(key string, g *scene.Geometry) {
	if c.lru != nil {
		c.lru.Add(key, g)
	}
}

// Remove drops key from the cache.
func (c *Cache) Remove(key string) {
	if c.lru != nil {
		c.lru.Remove(key)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Clear clears the cache.
func (c *Cache) Clear() {
	if c.lru != nil {
		c.lru.Purge()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
