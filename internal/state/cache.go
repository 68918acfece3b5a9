package state

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"feedback-go/internal/models"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Kind names one family of cached values.
type Kind string

const (
	KindDataset        Kind = "dataset"
	KindClassification Kind = "classification"
	KindNames          Kind = "names"
	KindAnalytics      Kind = "analytics"
)

// Key is the typed cache key {kind}:{sourceId}:{filterHash}.
type Key struct {
	Kind       Kind
	SourceID   string
	FilterHash string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Kind, k.SourceID, k.FilterHash)
}

// Loader computes the value of a missing or expiring entry.
type Loader func(ctx context.Context) (any, error)

// Options configures a Cache.
type Options struct {
	// TTL is used when Get is called with a zero ttl.
	TTL time.Duration
	// RefreshBefore starts a background reload once the remaining TTL of a
	// hit falls to or below it.
	RefreshBefore time.Duration
	// MaxStale bounds how long an expired entry is kept around to be served
	// when its reload fails.
	MaxStale time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache holds computed values per data source with a TTL and a
// refresh-before-expiry policy. Concurrent misses for the same key share one
// load.
//
// Every source has a generation that Invalidate bumps. A load that started
// under an older generation still answers its callers but is never stored.
type Cache struct {
	opts   Options
	items  *gocache.Cache
	group  singleflight.Group
	logger *zap.SugaredLogger

	// guards gens and orders stores against Invalidate
	mu   sync.Mutex
	gens map[string]uint64

	refreshing sync.Map
	wg         sync.WaitGroup
}

func NewCache(opts Options, logger *zap.SugaredLogger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.RefreshBefore < 0 {
		opts.RefreshBefore = 0
	}
	if opts.MaxStale < 0 {
		opts.MaxStale = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{
		opts:   opts,
		items:  gocache.New(gocache.NoExpiration, 10*time.Minute),
		gens:   map[string]uint64{},
		logger: logger,
	}
}

// Get returns the cached value for key, loading it when absent or expired.
//
// A hit inside the TTL is returned as is; if it is about to expire a single
// background reload is started. A miss or an expired entry is loaded once
// no matter how many callers wait on it. When that load fails and an expired
// value is still held, the expired value is served instead of the error.
func (c *Cache) Get(ctx context.Context, key Key, ttl time.Duration, load Loader) (any, error) {
	if ttl <= 0 {
		ttl = c.opts.TTL
	}
	now := c.opts.Now()
	if e, ok := c.lookup(key); ok && now.Before(e.expiresAt) {
		if e.expiresAt.Sub(now) <= c.opts.RefreshBefore {
			c.refreshAsync(key, ttl, load)
		}
		return e.value, nil
	}

	k := key.String()
	gen := c.generation(key.SourceID)
	v, err, _ := c.group.Do(flightKey(k, gen), func() (any, error) {
		if e, ok := c.lookup(key); ok && c.opts.Now().Before(e.expiresAt) {
			return e.value, nil
		}
		// Loads run to completion even if the caller goes away.
		val, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(key, val, ttl, gen)
		return val, nil
	})
	if err != nil {
		if e, ok := c.lookup(key); ok {
			c.logger.Warnw("serving stale cache entry", "key", k, "error", err)
			return e.value, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *Cache) refreshAsync(key Key, ttl time.Duration, load Loader) {
	k := key.String()
	if _, busy := c.refreshing.LoadOrStore(k, struct{}{}); busy {
		return
	}
	gen := c.generation(key.SourceID)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.refreshing.Delete(k)
		_, err, _ := c.group.Do(flightKey(k, gen), func() (any, error) {
			val, err := load(context.Background())
			if err != nil {
				return nil, err
			}
			c.store(key, val, ttl, gen)
			return val, nil
		})
		if err != nil {
			c.logger.Warnw("background refresh failed", "key", k, "error", err)
			return
		}
		c.logger.Debugw("background refresh done", "key", k)
	}()
}

func (c *Cache) lookup(key Key) (*entry, bool) {
	raw, ok := c.items.Get(key.String())
	if !ok {
		return nil, false
	}
	e, ok := raw.(*entry)
	return e, ok
}

// store keeps value only if the source was not invalidated since gen was read.
func (c *Cache) store(key Key, value any, ttl time.Duration, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key.SourceID] != gen {
		c.logger.Debugw("dropping load from before invalidation", "key", key.String())
		return
	}
	e := &entry{value: value, expiresAt: c.opts.Now().Add(ttl)}
	c.items.Set(key.String(), e, ttl+c.opts.MaxStale)
}

func (c *Cache) generation(sourceID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[sourceID]
}

// Loads of different generations never share a flight, so a caller that
// arrives after Invalidate does not get a value computed before it.
func flightKey(k string, gen uint64) string {
	return fmt.Sprintf("%s@%d", k, gen)
}

// Peek returns a cached value without loading, even if it has expired.
func (c *Cache) Peek(key Key) (any, bool) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Invalidate drops every entry of a source, or only the given kinds. Loads of
// the source that are still running will not be stored, whatever their kind.
func (c *Cache) Invalidate(sourceID string, kinds ...Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[sourceID]++

	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	dropped := 0
	for k := range c.items.Items() {
		parts := strings.SplitN(k, ":", 3)
		if len(parts) != 3 || parts[1] != sourceID {
			continue
		}
		if len(want) > 0 && !want[Kind(parts[0])] {
			continue
		}
		c.items.Delete(k)
		dropped++
	}
	return dropped
}

// Wait blocks until in-flight background refreshes finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// FilterHash keys a filter state independently of map and selection order.
// Extra parts (for example the caller's overlay owner) are hashed along.
func FilterHash(filters models.FilterState, extra ...string) string {
	type facet struct {
		Category string   `json:"c"`
		Values   []string `json:"v"`
	}
	facets := make([]facet, 0, len(filters))
	for category, values := range filters {
		vs := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				vs = append(vs, v)
			}
		}
		if len(vs) == 0 {
			continue
		}
		sort.Strings(vs)
		facets = append(facets, facet{Category: category, Values: vs})
	}
	if len(facets) == 0 && len(extra) == 0 {
		return "all"
	}
	sort.Slice(facets, func(i, j int) bool { return facets[i].Category < facets[j].Category })
	payload, _ := json.Marshal(struct {
		Facets []facet  `json:"f"`
		Extra  []string `json:"x"`
	}{facets, extra})
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])[:16]
}
