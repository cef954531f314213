package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is the in-process tier in front of a Store.
type Memory[K comparable, V any] interface {
	Load(K) (V, bool)
	Store(K, V)
	Delete(K)
	Clear()
	Len() int
}

// MapMemory never evicts; entries live until deleted or cleared.
type MapMemory[K comparable, V any] struct {
	m *xsync.MapOf[K, V]
}

var _ Memory[string, TileCacheValue] = (*MapMemory[string, TileCacheValue])(nil)

func NewMapMemory[K comparable, V any]() *MapMemory[K, V] {
	return &MapMemory[K, V]{
		m: xsync.NewMapOf[K, V](),
	}
}

func (c *MapMemory[K, V]) Load(k K) (V, bool) {
	return c.m.Load(k)
}

func (c *MapMemory[K, V]) Store(k K, v V) {
	c.m.Store(k, v)
}

func (c *MapMemory[K, V]) Delete(k K) {
	c.m.Delete(k)
}

func (c *MapMemory[K, V]) Clear() {
	c.m.Clear()
}

func (c *MapMemory[K, V]) Len() int {
	return c.m.Size()
}

// LRUMemory holds at most size entries, dropping the least recently used.
type LRUMemory[K comparable, V any] struct {
	c *lru.Cache[K, V]
}

var _ Memory[string, TileCacheValue] = (*LRUMemory[string, TileCacheValue])(nil)

func NewLRUMemory[K comparable, V any](size int) (*LRUMemory[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru memory tier: %w", err)
	}
	return &LRUMemory[K, V]{c: c}, nil
}

func (c *LRUMemory[K, V]) Load(k K) (V, bool) {
	return c.c.Get(k)
}

func (c *LRUMemory[K, V]) Store(k K, v V) {
	c.c.Add(k, v)
}

func (c *LRUMemory[K, V]) Delete(k K) {
	c.c.Remove(k)
}

func (c *LRUMemory[K, V]) Clear() {
	c.c.Purge()
}

func (c *LRUMemory[K, V]) Len() int {
	return c.c.Len()
}

// NewMemory returns an LRU tier when size > 0 and an unbounded map otherwise.
func NewMemory[K comparable, V any](size int) (Memory[K, V], error) {
	if size > 0 {
		m, err := NewLRUMemory[K, V](size)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return NewMapMemory[K, V](), nil
}
