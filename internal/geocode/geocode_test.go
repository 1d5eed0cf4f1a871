package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStaticResolve(t *testing.T) {
	g := Static{"1 Main St, Toronto": {Lat: 43.65, Lng: -79.38}}
	loc, err := g.Resolve(context.Background(), "  1 main st,   toronto ")
	if err != nil || loc.Lat != 43.65 {
		t.Fatalf("unexpected %+v %v", loc, err)
	}
	if _, err := g.Resolve(context.Background(), "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := g.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for blank address, got %v", err)
	}
}

func TestHTTPGeocoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "1 Main St":
			if r.URL.Query().Get("format") != "json" {
				t.Errorf("missing format parameter")
			}
			_, _ = w.Write([]byte(`[{"lat":"43.6532","lon":"-79.3832"}]`))
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	g := NewHTTPGeocoder(srv.URL, WithHTTPClient(srv.Client()))
	ctx := context.Background()
	loc, err := g.Resolve(ctx, "1 Main St")
	if err != nil || loc.Lat != 43.6532 || loc.Lng != -79.3832 {
		t.Fatalf("unexpected %+v %v", loc, err)
	}
	if _, err := g.Resolve(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := g.Resolve(ctx, "broken"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	failGet bool
	failSet bool
	sets    int
}

func newFakeCache() *fakeCache { return &fakeCache{values: make(map[string]string)} }

func (c *fakeCache) Get(_ context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := c.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return redis.NewStatusResult("", errors.New("read only replica"))
	}
	c.sets++
	c.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

type countingGeocoder struct {
	calls atomic.Int32
	delay time.Duration
	inner Geocoder
}

func (g *countingGeocoder) Resolve(ctx context.Context, address string) (Location, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.inner.Resolve(ctx, address)
}

type recordingWarn struct {
	mu    sync.Mutex
	count int
}

func (l *recordingWarn) Warn(string, ...any) {
	l.mu.Lock()
	l.count++
	l.mu.Unlock()
}

func TestCachedReusesResults(t *testing.T) {
	upstream := &countingGeocoder{inner: Static{"1 Main St": {Lat: 1, Lng: 2}}}
	cache := newFakeCache()
	g := NewCached(upstream, cache, 0, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		loc, err := g.Resolve(ctx, "1 main st")
		if err != nil || loc != (Location{Lat: 1, Lng: 2}) {
			t.Fatalf("resolve %d: %+v %v", i, loc, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := g.Resolve(ctx, "Atlantis"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if got := upstream.calls.Load(); got != 2 {
		t.Fatalf("expected one upstream call per address, got %d", got)
	}
	if cache.values[cacheKey("ATLANTIS")] != notFoundValue {
		t.Fatalf("expected negative result to be cached")
	}
}

func TestCachedDeduplicatesConcurrentLookups(t *testing.T) {
	upstream := &countingGeocoder{inner: Static{"1 Main St": {Lat: 1, Lng: 2}}, delay: 50 * time.Millisecond}
	g := NewCached(upstream, newFakeCache(), time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Resolve(context.Background(), "1 Main St"); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := upstream.calls.Load(); got >= 8 {
		t.Fatalf("expected concurrent lookups to share upstream calls, got %d", got)
	}
}

func TestCachedDegradesWhenCacheFails(t *testing.T) {
	upstream := &countingGeocoder{inner: Static{"1 Main St": {Lat: 1, Lng: 2}}}
	cache := newFakeCache()
	cache.failGet = true
	cache.failSet = true
	logger := &recordingWarn{}
	g := NewCached(upstream, cache, time.Minute, logger)

	if _, err := g.Resolve(context.Background(), "1 Main St"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if logger.count != 2 {
		t.Fatalf("expected read and write warnings, got %d", logger.count)
	}

	cache.failGet = false
	cache.values[cacheKey("1 Main St")] = "{not json"
	if _, err := g.Resolve(context.Background(), "1 Main St"); err != nil {
		t.Fatalf("corrupt entry must fall through: %v", err)
	}
	if upstream.calls.Load() != 2 {
		t.Fatalf("expected upstream to be consulted twice")
	}
}
