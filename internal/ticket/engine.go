package ticket

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// Engine memoizes Compute by input tuple. Recomputing on every keystroke
// with unchanged inputs is a cache hit. The cache is bounded and evicts the
// least recently used entry.
type Engine struct {
	cache *lru.Cache[Inputs, cached]
}

type cached struct {
	stats Stats
	err   error
}

func NewEngine(limit int) *Engine {
	if limit <= 0 {
		limit = defaultCacheSize
	}
	cache, err := lru.New[Inputs, cached](limit)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Engine{cache: cache}
}

func (e *Engine) Compute(in Inputs) (Stats, error) {
	if hit, ok := e.cache.Get(in); ok {
		return hit.stats, hit.err
	}
	stats, err := Compute(in)
	e.cache.ContainsOrAdd(in, cached{stats: stats, err: err})
	return stats, err
}

func (e *Engine) Len() int {
	return e.cache.Len()
}
