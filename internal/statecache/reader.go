package statecache

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/tracegateway/internal/historystate"
)

type accountEntry struct {
	acc     *historystate.Account
	present bool
}

// CachedReader wraps a historystate.State and memoizes every account,
// storage and code read it serves, scoped to one request (a single
// trace_call/trace_block/... execution touches the same accounts many times
// across internal calls). Grounded on core/state/cached_reader.go.
type CachedReader struct {
	r *historystate.State

	accounts map[common.Address]accountEntry
	storage  map[common.Address]map[common.Hash][]byte
	code     map[common.Hash][]byte
}

// NewCachedReader returns a CachedReader over r. The cache is unbounded
// within one request; its lifetime is the request's, so it is discarded
// afterward rather than evicted from.
func NewCachedReader(r *historystate.State) *CachedReader {
	return &CachedReader{
		r:        r,
		accounts: make(map[common.Address]accountEntry),
		storage:  make(map[common.Address]map[common.Hash][]byte),
		code:     make(map[common.Hash][]byte),
	}
}

func (cr *CachedReader) ReadAccountData(address common.Address) (*historystate.Account, error) {
	if e, ok := cr.accounts[address]; ok {
		if !e.present {
			return nil, nil
		}
		return e.acc, nil
	}
	acc, err := cr.r.ReadAccountData(address)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		cr.accounts[address] = accountEntry{present: false}
		return nil, nil
	}
	cr.accounts[address] = accountEntry{acc: acc, present: true}
	return acc, nil
}

func (cr *CachedReader) ReadAccountStorage(address common.Address, incarnation uint64, slot common.Hash) ([]byte, error) {
	if m, ok := cr.storage[address]; ok {
		if v, ok := m[slot]; ok {
			return v, nil
		}
	}
	v, err := cr.r.ReadAccountStorage(address, incarnation, slot)
	if err != nil {
		return nil, err
	}
	if cr.storage[address] == nil {
		cr.storage[address] = make(map[common.Hash][]byte)
	}
	cr.storage[address][slot] = v
	return v, nil
}

func (cr *CachedReader) ReadAccountCode(codeHash common.Hash) ([]byte, error) {
	if c, ok := cr.code[codeHash]; ok {
		return c, nil
	}
	c, err := cr.r.ReadAccountCode(codeHash)
	if err != nil {
		return nil, err
	}
	if len(c) > 0 {
		cr.code[codeHash] = c
	}
	return c, nil
}

func (cr *CachedReader) ReadAccountCodeSize(codeHash common.Hash) (int, error) {
	c, err := cr.ReadAccountCode(codeHash)
	if err != nil {
		return 0, err
	}
	return len(c), nil
}

func (cr *CachedReader) ReadAccountIncarnation(address common.Address) (uint64, error) {
	acc, err := cr.ReadAccountData(address)
	if err != nil {
		return 0, err
	}
	if acc == nil {
		return 0, nil
	}
	return acc.Incarnation, nil
}
