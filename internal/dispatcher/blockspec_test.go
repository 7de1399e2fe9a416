package dispatcher

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tracegateway/internal/chain"
	"github.com/erigontech/tracegateway/internal/statecache"
)

// fakeReader is the same minimal in-memory chain.Reader used in the chain
// package's own tests, reconstructed here to keep dispatcher's tests
// independent of that package's internal test helpers.
type fakeReader struct {
	tables map[string]map[string][]byte
}

func newFakeReader() *fakeReader {
	return &fakeReader{tables: make(map[string]map[string][]byte)}
}

func (r *fakeReader) put(table string, key, value []byte) {
	if r.tables[table] == nil {
		r.tables[table] = make(map[string][]byte)
	}
	r.tables[table][string(key)] = value
}

func (r *fakeReader) GetOne(table string, key []byte) ([]byte, error) {
	return r.tables[table][string(key)], nil
}

func (r *fakeReader) ForPrefix(table string, prefix []byte, visitor func(k, v []byte) (bool, error)) error {
	for _, k := range r.sortedKeys(table) {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if cont, err := visitor([]byte(k), r.tables[table][k]); err != nil || !cont {
			return err
		}
	}
	return nil
}

func (r *fakeReader) Walk(table string, startKey []byte, fixedBits int, visitor func(k, v []byte) (bool, error)) error {
	for _, k := range r.sortedKeys(table) {
		if bytes.Compare([]byte(k), startKey) < 0 {
			continue
		}
		if cont, err := visitor([]byte(k), r.tables[table][k]); err != nil || !cont {
			return err
		}
	}
	return nil
}

func (r *fakeReader) sortedKeys(table string) []string {
	keys := make([]string, 0, len(r.tables[table]))
	for k := range r.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestResolveBlockNumberTagLatestReadsHead(t *testing.T) {
	r := newFakeReader()
	head := common.HexToHash("0xaa")
	r.put("LastHeader", []byte("LastHeader"), head[:])

	got, err := resolveBlockNumberTag(context.Background(), r, rpc.LatestBlockNumber)
	require.NoError(t, err)
	require.Equal(t, head, got)
}

func TestResolveBlockNumberTagPendingAliasesLatest(t *testing.T) {
	r := newFakeReader()
	head := common.HexToHash("0xbb")
	r.put("LastHeader", []byte("LastHeader"), head[:])

	got, err := resolveBlockNumberTag(context.Background(), r, rpc.PendingBlockNumber)
	require.NoError(t, err)
	require.Equal(t, head, got)
}

func TestResolveBlockNumberTagEarliestIsGenesis(t *testing.T) {
	r := newFakeReader()
	genesis := common.HexToHash("0xcc")
	r.put("CanonicalHeader", chain.EncodeBlockNumber(0), genesis[:])

	got, err := resolveBlockNumberTag(context.Background(), r, rpc.EarliestBlockNumber)
	require.NoError(t, err)
	require.Equal(t, genesis, got)
}

func TestResolveBlockNumberTagConcreteHeight(t *testing.T) {
	r := newFakeReader()
	hash := common.HexToHash("0xdd")
	r.put("CanonicalHeader", chain.EncodeBlockNumber(100), hash[:])

	got, err := resolveBlockNumberTag(context.Background(), r, rpc.BlockNumber(100))
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestResolveBlockNumberTagRejectsUnknownNegative(t *testing.T) {
	r := newFakeReader()
	_, err := resolveBlockNumberTag(context.Background(), r, rpc.BlockNumber(-99))
	require.Error(t, err)
}

func TestLoadBlockByNumberReturnsNilOnEmptyHeight(t *testing.T) {
	r := newFakeReader()
	cache, err := statecache.NewBlockCache(4)
	require.NoError(t, err)

	loader := loadBlockByNumber(context.Background(), r, cache)
	block, err := loader(123)
	require.NoError(t, err)
	require.Nil(t, block)
}
