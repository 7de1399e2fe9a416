package historystate

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// fakeReader is an in-memory stand-in for remotekv.Tx, keyed per table.
type fakeReader struct {
	tables map[string]map[string][]byte
}

func newFakeReader() *fakeReader {
	return &fakeReader{tables: map[string]map[string][]byte{}}
}

func (f *fakeReader) put(table string, key, value []byte) {
	if f.tables[table] == nil {
		f.tables[table] = map[string][]byte{}
	}
	f.tables[table][string(key)] = value
}

func (f *fakeReader) GetOne(table string, key []byte) ([]byte, error) {
	return f.tables[table][string(key)], nil
}

func (f *fakeReader) Seek(table string, seekKey []byte) ([]byte, []byte, error) {
	var bestK, bestV []byte
	for k, v := range f.tables[table] {
		if []byte(k) == nil {
			continue
		}
		if bytes.Compare([]byte(k), seekKey) >= 0 {
			if bestK == nil || bytes.Compare([]byte(k), bestK) < 0 {
				bestK, bestV = []byte(k), v
			}
		}
	}
	return bestK, bestV, nil
}

func TestGetAsOfFallsBackToPlainState(t *testing.T) {
	r := newFakeReader()
	addr := common.HexToAddress("0x79a4d418f7887dd4d5123a41b6c8c186686e8cb")
	acc := &Account{Balance: big.NewInt(100)}
	r.put(tablePlainState, addr[:], encodeAccountForTest(acc))

	v, err := GetAsOf(r, false, addr[:], 10)
	require.NoError(t, err)
	decoded, err := DecodeAccount(v)
	require.NoError(t, err)
	require.Equal(t, uint64(100), decoded.Balance.Uint64())
}

func TestGetAsOfUsesHistoryWhenKeyChangedAfterHeight(t *testing.T) {
	r := newFakeReader()
	addr := common.HexToAddress("0x79a4d418f7887dd4d5123a41b6c8c186686e8cb")

	bm := roaring64.New()
	bm.Add(50)
	var buf bytes.Buffer
	_, err := bm.WriteTo(&buf)
	require.NoError(t, err)
	r.put(tableE2AccountHistory, addr[:], buf.Bytes())

	csKey := make([]byte, 8+len(addr[:]))
	binary.BigEndian.PutUint64(csKey, 50)
	copy(csKey[8:], addr[:])
	oldAcc := &Account{Balance: big.NewInt(7)}
	r.put(tableAccountChangeSet, csKey, encodeAccountForTest(oldAcc))

	// Plain state reflects a later balance; history should win for height 10.
	r.put(tablePlainState, addr[:], encodeAccountForTest(&Account{Balance: big.NewInt(999)}))

	v, err := GetAsOf(r, false, addr[:], 10)
	require.NoError(t, err)
	decoded, err := DecodeAccount(v)
	require.NoError(t, err)
	require.Equal(t, uint64(7), decoded.Balance.Uint64())
}

func TestPlainCompositeStorageKeyLength(t *testing.T) {
	addr := common.HexToAddress("0x79a4d418f7887dd4d5123a41b6c8c186686e8cb")
	slot := common.HexToHash("0xb10e0000000000000000000000000000000000000000000000000000000cf6")
	key := plainStorageKey(addr, 37, slot)
	require.Len(t, key, 60)
}

func encodeAccountForTest(a *Account) []byte {
	fieldSet := byte(fieldBalance)
	balanceBytes := a.Balance.Bytes()
	out := []byte{fieldSet, byte(len(balanceBytes))}
	out = append(out, balanceBytes...)
	return out
}

