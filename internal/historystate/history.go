package historystate

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/tracegateway/internal/chain"
)

// GetAsOf returns the value key held immediately after block height,
// preferring the change-set history and falling back to plain state when
// the key has not changed since height. Grounded on historyv2read.GetAsOf,
// adapted from turbo-geth's sharded gocroaring index to a single
// roaring64.Bitmap per key (§9's Open Question resolution: this gateway
// only ever reads, so the sharding scheme that bounds write-amplification
// has no counterpart here).
func GetAsOf(r Reader, storage bool, key []byte, height uint64) ([]byte, error) {
	v, ok, err := findByHistory(r, storage, key, height)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	return r.GetOne(tablePlainState, key)
}

func findByHistory(r Reader, storage bool, key []byte, height uint64) ([]byte, bool, error) {
	indexTable := tableE2AccountHistory
	changeSetTable := tableAccountChangeSet
	if storage {
		indexTable = tableE2StorageHistory
		changeSetTable = tableStorageChangeSet
	}

	k, v, err := r.Seek(indexTable, key)
	if err != nil {
		return nil, false, err
	}
	if k == nil || !bytes.HasPrefix(k, key) {
		return nil, false, nil
	}

	bm := roaring64.New()
	if _, err := bm.ReadFrom(bytes.NewReader(v)); err != nil {
		return nil, false, fmt.Errorf("historystate: decoding history index for %x: %w", key, err)
	}

	changeBlock, ok := seekInBitmap64(bm, height+1)
	if !ok {
		return nil, false, nil
	}

	data, found, err := findInChangeSet(r, changeSetTable, changeBlock, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return data, true, nil
}

// seekInBitmap64 returns the smallest element of bm that is >= from, mirroring
// erigon-lib/kv/bitmapdb.SeekInBitmap64's contract.
func seekInBitmap64(bm *roaring64.Bitmap, from uint64) (uint64, bool) {
	it := bm.Iterator()
	it.AdvanceIfNeeded(from)
	if !it.HasNext() {
		return 0, false
	}
	return it.Next(), true
}

// findInChangeSet looks up key's recorded value in the change-set written
// for changeBlock. Change-sets are stored as blockNumber(8, BE) || key ->
// value, one entry per changed key per block.
func findInChangeSet(r Reader, table string, changeBlock uint64, key []byte) ([]byte, bool, error) {
	csKey := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(csKey, changeBlock)
	copy(csKey[8:], key)

	k, v, err := r.Seek(table, csKey)
	if err != nil {
		return nil, false, err
	}
	if k == nil || !bytes.Equal(k, csKey) {
		return nil, false, nil
	}
	return v, true, nil
}

func plainStorageKey(address common.Address, incarnation uint64, slot common.Hash) []byte {
	return chain.PlainCompositeStorageKey(address, incarnation, slot)
}
