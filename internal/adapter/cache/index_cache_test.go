package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubHandle struct{ n int }

func (h stubHandle) Len() int       { return h.n }
func (h stubHandle) Dimension() int { return 3 }

func TestIndexCache_GetPutEvict(t *testing.T) {
	c := NewIndexCache(0)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put("a", stubHandle{1})
	h, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, h.Len())

	c.Put("a", stubHandle{2})
	h, _ = c.Get("a")
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 1, c.Len())

	c.Evict("a")
	c.Evict("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestIndexCache_LRUEviction(t *testing.T) {
	c := NewIndexCache(2)
	c.Put("a", stubHandle{1})
	c.Put("b", stubHandle{2})

	// touch a so b becomes least recently used
	_, _ = c.Get("a")
	c.Put("c", stubHandle{3})

	assert.Equal(t, []string{"a", "c"}, c.Keys())
}

func TestIndexCache_Unbounded(t *testing.T) {
	c := NewIndexCache(0)
	for _, k := range []string{"d", "b", "a", "c"} {
		c.Put(k, stubHandle{})
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.Keys())
}

func TestIndexCache_PutIfGeneration(t *testing.T) {
	c := NewIndexCache(0)
	gen := c.Generation()
	assert.True(t, c.PutIfGeneration("a", stubHandle{1}, gen))

	gen = c.Generation()
	c.Evict("a")
	assert.False(t, c.PutIfGeneration("a", stubHandle{1}, gen))
	assert.Equal(t, 0, c.Len())
}

func TestIndexCache_Clear(t *testing.T) {
	c := NewIndexCache(4)
	c.Put("a", stubHandle{})
	c.Put("b", stubHandle{})
	c.Clear()
	assert.Empty(t, c.Keys())
}

func TestIndexCache_Concurrent(t *testing.T) {
	c := NewIndexCache(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%10))
			c.Put(key, stubHandle{i})
			c.Get(key)
			if i%3 == 0 {
				c.Evict(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}
