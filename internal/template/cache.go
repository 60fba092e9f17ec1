package template

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when NewCache gets a non-positive size.
const DefaultCacheSize = 256

// Cache memoizes compiled templates by source text. Safe for concurrent use.
type Cache struct {
	lru  *lru.Cache[string, *Template]
	opts []Option
}

// NewCache creates a cache whose templates compile with opts.
func NewCache(size int, opts ...Option) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *Template](size)
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	return &Cache{lru: c, opts: opts}
}

// Get returns the compiled template for src, compiling it on a miss.
// Compile errors are not cached.
func (c *Cache) Get(src string) (*Template, error) {
	if t, ok := c.lru.Get(src); ok {
		return t, nil
	}
	t, err := Compile(src, c.opts...)
	if err != nil {
		return nil, err
	}
	c.lru.Add(src, t)
	return t, nil
}

// Render executes the cached template for src.
func (c *Cache) Render(src string, data any) (string, error) {
	t, err := c.Get(src)
	if err != nil {
		return "", err
	}
	return t.Execute(data)
}

// Len reports the number of cached templates.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached template.
func (c *Cache) Purge() { c.lru.Purge() }
