package behavior

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/singleflight"

	"github.com/gnolang/symex/internal/tree"
)

// Resolver finds the body of a callee.
type Resolver interface {
	Resolve(key string) *tree.Procedure
}

// Explorer computes the behavior of a procedure. Calls made while exploring
// must look their callees up in cache with the given context.
type Explorer interface {
	Explore(ctx context.Context, proc *tree.Procedure, cache *Cache) (*Behavior, error)
}

type ExplorerFunc func(ctx context.Context, proc *tree.Procedure, cache *Cache) (*Behavior, error)

func (f ExplorerFunc) Explore(ctx context.Context, proc *tree.Procedure, cache *Cache) (*Behavior, error) {
	return f(ctx, proc, cache)
}

// Procedures is a Resolver over a fixed set of procedures.
type Procedures map[string]*tree.Procedure

func NewProcedures(procs ...*tree.Procedure) Procedures {
	res := make(Procedures, len(procs))
	for _, p := range procs {
		if _, ok := res[p.Key]; !ok && p.Key != "" {
			res[p.Key] = p
		}
	}
	return res
}

func (p Procedures) Resolve(key string) *tree.Procedure { return p[key] }

type store struct {
	mu sync.RWMutex
	// entries maps a key to its behavior. A nil behavior records a callee
	// whose exploration failed; it stays unknown for the run.
	entries map[string]*Behavior
	group   singleflight.Group
}

// Cache holds the behaviors computed during a run. It is safe for concurrent
// use.
type Cache struct {
	*store
	resolver Resolver
	explorer Explorer
	builtins *Registry
	logger   *zap.Logger
}

func NewCache(resolver Resolver, explorer Explorer, builtins *Registry, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:    &store{entries: make(map[string]*Behavior)},
		resolver: resolver,
		explorer: explorer,
		builtins: builtins,
		logger:   logger,
	}
}

type chainKey struct{}

// chain is the list of keys being explored by the current call chain.
type chain struct {
	key  string
	next *chain
}

func onChain(ctx context.Context, key string) bool {
	for ch, _ := ctx.Value(chainKey{}).(*chain); ch != nil; ch = ch.next {
		if ch.key == key {
			return true
		}
	}
	return false
}

// WithinExploration marks key as being explored by the call chain of ctx.
// Get returns no behavior for keys on the chain.
func WithinExploration(ctx context.Context, key string) context.Context {
	next, _ := ctx.Value(chainKey{}).(*chain)
	return context.WithValue(ctx, chainKey{}, &chain{key: key, next: next})
}

// Get returns the behavior of key: the cached one, else the result of
// exploring the resolved body, else the built-in one. It returns nil when
// nothing is known or when key is already being explored on the call chain
// of ctx.
//
// Concurrent requests for the same key wait for a single exploration.
// Callers running in different goroutines must not depend on each other's
// keys recursively; the driver schedules strongly connected procedures on
// one goroutine for that reason.
func (c *Cache) Get(ctx context.Context, key string) *Behavior {
	if key == "" {
		return nil
	}
	if b, ok := c.Lookup(key); ok {
		return c.orBuiltin(key, b)
	}
	if onChain(ctx, key) {
		c.logger.Debug("recursive call, no behavior", zap.String("key", key))
		return nil
	}
	var proc *tree.Procedure
	if c.resolver != nil {
		proc = c.resolver.Resolve(key)
	}
	if proc == nil || c.explorer == nil || proc.Unsupported != "" {
		return c.builtins.Lookup(key)
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if b, ok := c.Lookup(key); ok {
			return b, nil
		}
		b := c.explore(WithinExploration(ctx, key), proc)
		c.Put(key, b)
		b, _ = c.Lookup(key)
		return b, nil
	})
	b, _ := v.(*Behavior)
	return c.orBuiltin(key, b)
}

func (c *Cache) orBuiltin(key string, b *Behavior) *Behavior {
	if b != nil {
		return b
	}
	return c.builtins.Lookup(key)
}

func (c *Cache) explore(ctx context.Context, proc *tree.Procedure) (b *Behavior) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("behavior exploration panicked",
				zap.String("key", proc.Key),
				zap.Error(fmt.Errorf("exploring %s: %v", proc.Key, r)))
			b = nil
		}
	}()
	b, err := c.explorer.Explore(ctx, proc, c)
	if err != nil {
		c.logger.Warn("behavior exploration failed", zap.String("key", proc.Key), zap.Error(err))
		return nil
	}
	return b
}

// Lookup returns the cached entry for key. The entry may be nil for a
// callee whose exploration failed.
func (c *Cache) Lookup(key string) (*Behavior, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[key]
	return b, ok
}

// Put stores b unless key already has an entry. It reports whether b was
// stored.
func (c *Cache) Put(key string, b *Behavior) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = b
	return true
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := maps.Keys(c.entries)
	c.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
