package assets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Faultbox/mesh3mf/internal/fixture"
	"github.com/Faultbox/mesh3mf/pkg/scene"
)

func cubePackage() []byte {
	return fixture.Package(fixture.Model(fixture.CubeObject("1"), fixture.Item("1", "")))
}

// countingFetcher serves cubePackage for every source, optionally waiting on
// gate before returning.
type countingFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	data  []byte
}

func (f *countingFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if source == "missing" {
		return nil, ErrNotFound
	}
	return f.data, nil
}

func TestManagerLoadCaches(t *testing.T) {
	f := &countingFetcher{data: cubePackage()}
	m := NewManager(scene.NewPipeline(), f, 4)

	a, err := m.Load(context.Background(), "cube.3mf")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	b, err := m.Load(context.Background(), "cube.3mf")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if a != b {
		t.Error("second load should return the cached geometry")
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	if hits, misses := m.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits %d misses, want 1 and 1", hits, misses)
	}

	m.Invalidate("cube.3mf")
	if _, err := m.Load(context.Background(), "cube.3mf"); err != nil {
		t.Fatalf("Load after invalidate failed: %v", err)
	}
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetch calls after invalidate = %d, want 2", n)
	}
}

func TestManagerSharesConcurrentLoads(t *testing.T) {
	f := &countingFetcher{data: cubePackage(), gate: make(chan struct{})}
	m := NewManager(scene.NewPipeline(), f, 0)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*scene.Geometry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := m.Load(context.Background(), "cube.3mf")
			if err != nil {
				t.Errorf("Load failed: %v", err)
				return
			}
			results[i] = g
		}(i)
	}

	// Let every caller join the in-flight load before releasing it.
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	for i, g := range results {
		if g != results[0] {
			t.Errorf("caller %d got different geometry", i)
		}
	}
}

func TestManagerCancelledCaller(t *testing.T) {
	f := &countingFetcher{data: cubePackage(), gate: make(chan struct{})}
	m := NewManager(scene.NewPipeline(), f, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Load(ctx, "cube.3mf")
		done <- err
	}()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The shared build still completes and fills the cache.
	close(f.gate)
	g, err := m.Load(context.Background(), "cube.3mf")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.VertexCount() != 8 {
		t.Errorf("vertex count = %d, want 8", g.VertexCount())
	}
}

func TestManagerErrors(t *testing.T) {
	f := &countingFetcher{data: []byte("not a zip")}
	m := NewManager(scene.NewPipeline(), f, 4)

	if _, err := m.Load(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.Load(context.Background(), "broken.3mf"); !errors.Is(err, scene.ErrCorruptArchive) {
		t.Errorf("expected ErrCorruptArchive, got %v", err)
	}

	// Failures are not cached.
	if _, err := m.Load(context.Background(), "broken.3mf"); err == nil {
		t.Error("expected repeated failure")
	}
	if n := f.calls.Load(); n != 3 {
		t.Errorf("fetch calls = %d, want 3", n)
	}
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cube.3mf"), cubePackage(), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(scene.NewPipeline(), FileFetcher{Root: dir}, 4)
	g, err := m.Load(context.Background(), "cube.3mf")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.TriangleCount() != 12 {
		t.Errorf("triangle count = %d, want 12", g.TriangleCount())
	}

	if _, err := m.Load(context.Background(), "nope.3mf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	g1, g2, g3 := &scene.Geometry{}, &scene.Geometry{}, &scene.Geometry{}

	c.Set("a", g1)
	c.Set("b", g2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Set("c", g3) // evicts b, the least recently used

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if got, ok := c.Get("a"); !ok || got != g1 {
		t.Error("a should still be cached")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("stats = %d hits %d misses, want 2 and 1", hits, misses)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
	if hits, misses := c.Stats(); hits != 0 || misses != 0 {
		t.Errorf("stats after Clear = %d, %d, want zero", hits, misses)
	}
}

func TestCacheDisabled(t *testing.T) {
	c := NewCache(0)
	c.Set("a", &scene.Geometry{})
	if _, ok := c.Get("a"); ok {
		t.Error("disabled cache should not store entries")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}
