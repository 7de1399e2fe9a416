package evmstate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tracegateway/internal/historystate"
	"github.com/erigontech/tracegateway/internal/statecache"
)

// fakeHistoryReader is a minimal historystate.Reader: Seek always reports no
// history index entries, so historystate.State falls back to a bare
// PlainState lookup for every read.
type fakeHistoryReader struct {
	plainState map[string][]byte
}

func newFakeHistoryReader() *fakeHistoryReader {
	return &fakeHistoryReader{plainState: make(map[string][]byte)}
}

func (r *fakeHistoryReader) GetOne(table string, key []byte) ([]byte, error) {
	if table != "PlainState" {
		return nil, nil
	}
	return r.plainState[string(key)], nil
}

func (r *fakeHistoryReader) Seek(table string, seekKey []byte) (k, v []byte, err error) {
	return nil, nil, nil
}

// encodeBalanceAccount builds a plain-state account record carrying only a
// balance, matching historystate.DecodeAccount's field-set encoding (bit 1
// is the balance field).
func encodeBalanceAccount(balance uint64) []byte {
	balBytes := new(big.Int).SetUint64(balance).Bytes()
	enc := make([]byte, 0, 2+len(balBytes))
	enc = append(enc, 0x02)
	enc = append(enc, byte(len(balBytes)))
	enc = append(enc, balBytes...)
	return enc
}

func newTestStateDB() (*StateDB, *fakeHistoryReader) {
	r := newFakeHistoryReader()
	hs := historystate.New(r, 100)
	cr := statecache.NewCachedReader(hs)
	return New(cr, nil), r
}

func TestBeginEndAccountDiffBackfillsFirstTouchedAccount(t *testing.T) {
	sdb, r := newTestStateDB()
	addr := common.HexToAddress("0xbb")
	r.plainState[string(addr.Bytes())] = encodeBalanceAccount(5)

	sdb.BeginAccountDiff()
	sdb.AddBalance(addr, uint256.NewInt(3), tracing.BalanceChangeUnspecified)
	before, after := sdb.EndAccountDiff()

	require.Contains(t, before, addr, "a callee touched only during the call must still land on the before side")
	require.Equal(t, big.NewInt(5), before[addr].Balance, "before must be the account's real historical balance, not a bare creation")
	require.Equal(t, big.NewInt(8), after[addr].Balance)
}

func TestBeginEndAccountDiffBackfillsFirstTouchedStorage(t *testing.T) {
	sdb, _ := newTestStateDB()
	addr := common.HexToAddress("0xaa")
	key := common.HexToHash("0x01")

	sdb.BeginAccountDiff()
	sdb.SetState(addr, key, common.HexToHash("0x02"))
	before, after := sdb.EndAccountDiff()

	require.Contains(t, before, addr)
	require.Contains(t, before[addr].Storage, key, "a slot written for the first time must still diff against its committed value")
	require.Equal(t, common.Hash{}, before[addr].Storage[key])
	require.Equal(t, common.HexToHash("0x02"), after[addr].Storage[key])
}

func TestBeginEndAccountDiffKeepsBaselineForAlreadyMaterialisedAccounts(t *testing.T) {
	sdb, _ := newTestStateDB()
	addr := common.HexToAddress("0xcc")

	sdb.SetNonce(addr, 1)

	sdb.BeginAccountDiff()
	sdb.SetNonce(addr, 2)
	before, after := sdb.EndAccountDiff()

	require.EqualValues(t, 1, before[addr].Nonce, "an account materialised by an earlier call in the batch keeps its call-start value")
	require.EqualValues(t, 2, after[addr].Nonce)
}

func TestBeginEndAccountDiffOmitsUntouchedAccounts(t *testing.T) {
	sdb, _ := newTestStateDB()
	touched := common.HexToAddress("0xdd")
	untouched := common.HexToAddress("0xee")

	sdb.BeginAccountDiff()
	sdb.SetNonce(touched, 1)
	before, after := sdb.EndAccountDiff()

	require.NotContains(t, before, untouched)
	require.NotContains(t, after, untouched)
}
