// Package statecache provides the read-through caching layer (§4.4): an LRU
// block cache keyed by hash, and a CachedReader façade that memoizes account
// and storage reads for the lifetime of one trace request. Grounded on
// core/state/cached_reader.go's wrapper shape and turbo/shards' per-request
// cache idiom.
package statecache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// Block is the subset of decoded block data the cache stores; the concrete
// type lives in internal/chain to avoid an import cycle back into this
// package.
type Block interface{}

// BlockCache is an LRU cache of decoded blocks keyed by hash, with
// single-flight collapsing of concurrent misses for the same hash so a burst
// of trace_block requests for an unindexed block issues one fetch, not N.
type BlockCache struct {
	lru   *lru.Cache[common.Hash, any]
	group singleflight.Group
}

// DefaultBlockCacheSize is the block cache's default entry count, matching
// the teacher's sizing for its own block cache.
const DefaultBlockCacheSize = 1024

// NewBlockCache builds a block cache holding up to size entries.
func NewBlockCache(size int) (*BlockCache, error) {
	if size <= 0 {
		size = DefaultBlockCacheSize
	}
	c, err := lru.New[common.Hash, any](size)
	if err != nil {
		return nil, err
	}
	return &BlockCache{lru: c}, nil
}

// GetOrLoad returns the cached block for hash, loading it via fetch on a
// miss. Concurrent callers racing on the same hash share one fetch.
func (c *BlockCache) GetOrLoad(ctx context.Context, hash common.Hash, fetch func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.lru.Get(hash); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(hash.Hex(), func() (interface{}, error) {
		if v, ok := c.lru.Get(hash); ok {
			return v, nil
		}
		block, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.lru.Add(hash, block)
		return block, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}
