// Package expreval provides the narrow expression-evaluation service
// spec.md §9 calls for: given (source, environment) it yields a value or a
// parse/eval error. It backs guard expressions (internal/router), If/
// Switch conditions, While conditions, and ForEach collection expressions.
package expreval

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr/vm"
)

// programCache is a thread-safe LRU cache of compiled expr programs,
// grounded verbatim (in spirit) on the teacher's pkg/engine.ConditionCache.
type programCache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

func newProgramCache(capacity int) *programCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &programCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

func (c *programCache) get(source string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.cache[source]; found {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*cacheEntry).program, true
	}
	return nil, false
}

func (c *programCache) put(source string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.cache[source]; found {
		c.lruList.MoveToFront(elem)
		elem.Value.(*cacheEntry).program = program
		return
	}

	elem := c.lruList.PushFront(&cacheEntry{key: source, program: program})
	c.cache[source] = elem

	if c.lruList.Len() > c.capacity {
		oldest := c.lruList.Back()
		if oldest != nil {
			c.lruList.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *programCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lruList.Len()
}
