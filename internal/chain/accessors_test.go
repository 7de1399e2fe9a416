package chain

import (
	"bytes"
	"math/big"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

// fakeReader is an in-memory Reader over a set of tables, each a flat
// key/value map, sufficient to drive the accessor functions without a real
// remote KV store.
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
		cont, err := visitor([]byte(k), r.tables[table][k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (r *fakeReader) Walk(table string, startKey []byte, fixedBits int, visitor func(k, v []byte) (bool, error)) error {
	for _, k := range r.sortedKeys(table) {
		if bytes.Compare([]byte(k), startKey) < 0 {
			continue
		}
		cont, err := visitor([]byte(k), r.tables[table][k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
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

func TestReadCanonicalHashMissingReturnsErrEmptyValue(t *testing.T) {
	r := newFakeReader()
	_, err := ReadCanonicalHash(r, 5)
	require.ErrorIs(t, err, ErrEmptyValue)
}

func TestReadCanonicalHashRoundTrip(t *testing.T) {
	r := newFakeReader()
	hash := common.HexToHash("0xaa")
	r.put(tableHeaderCanonical, EncodeBlockNumber(42), hash[:])

	got, err := ReadCanonicalHash(r, 42)
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestReadHeadHeaderHash(t *testing.T) {
	r := newFakeReader()
	hash := common.HexToHash("0xbb")
	r.put(tableHeadHeaderKey, []byte(tableHeadHeaderKey), hash[:])

	got, err := ReadHeadHeaderHash(r)
	require.NoError(t, err)
	require.Equal(t, hash, got)
}

func TestReadHeadHeaderHashMissing(t *testing.T) {
	r := newFakeReader()
	_, err := ReadHeadHeaderHash(r)
	require.ErrorIs(t, err, ErrEmptyValue)
}

func TestReadHeaderNumber(t *testing.T) {
	r := newFakeReader()
	hash := common.HexToHash("0xcc")
	r.put(tableHeaderNumber, hash[:], EncodeBlockNumber(17))

	n, err := ReadHeaderNumber(r, hash)
	require.NoError(t, err)
	require.Equal(t, uint64(17), n)
}

func putHeader(t *testing.T, r *fakeReader, h *types.Header) common.Hash {
	t.Helper()
	enc, err := rlp.EncodeToBytes(h)
	require.NoError(t, err)
	hash := h.Hash()
	r.put(tableHeaders, HeaderKey(h.Number.Uint64(), hash), enc)
	return hash
}

func TestReadBodyAttachesSendersWhenCountMatches(t *testing.T) {
	r := newFakeReader()

	tx := types.NewTransaction(0, common.HexToAddress("0x01"), big.NewInt(0), 21000, big.NewInt(1), nil)
	txEnc, err := tx.MarshalBinary()
	require.NoError(t, err)
	r.put(tableEthTx, EncodeBlockNumber(100), txEnc)

	header := &types.Header{Number: big.NewInt(9)}
	hash := putHeader(t, r, header)

	rb := rawBody{BaseTxID: 100, TxAmount: 1}
	rbEnc, err := rlp.EncodeToBytes(&rb)
	require.NoError(t, err)
	r.put(tableBlockBody, BlockBodyKey(9, hash), rbEnc)

	sender := common.HexToAddress("0x02")
	r.put(tableSenders, BlockBodyKey(9, hash), sender[:])

	block, err := ReadBody(r, hash, 9)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.Len(t, block.Transactions, 1)
	require.Equal(t, []common.Address{sender}, block.Senders)
}

func TestReadBodySendersFallBackToZeroOnCountMismatch(t *testing.T) {
	r := newFakeReader()

	tx := types.NewTransaction(0, common.HexToAddress("0x01"), big.NewInt(0), 21000, big.NewInt(1), nil)
	txEnc, err := tx.MarshalBinary()
	require.NoError(t, err)
	r.put(tableEthTx, EncodeBlockNumber(200), txEnc)

	header := &types.Header{Number: big.NewInt(3)}
	hash := putHeader(t, r, header)

	rb := rawBody{BaseTxID: 200, TxAmount: 1}
	rbEnc, err := rlp.EncodeToBytes(&rb)
	require.NoError(t, err)
	r.put(tableBlockBody, BlockBodyKey(3, hash), rbEnc)
	// Senders table left empty: length 0 is a multiple of 20, so ReadSenders
	// itself returns an empty (not nil) slice, and ReadBody must still pad it.

	block, err := ReadBody(r, hash, 3)
	require.NoError(t, err)
	require.Len(t, block.Senders, 1)
	require.Equal(t, common.Address{}, block.Senders[0])
}

func TestReadSendersMisalignedLengthYieldsNil(t *testing.T) {
	r := newFakeReader()
	hash := common.HexToHash("0xdd")
	r.put(tableSenders, BlockBodyKey(1, hash), []byte{1, 2, 3})

	senders, err := ReadSenders(r, hash, 1)
	require.NoError(t, err)
	require.Nil(t, senders)
}

func TestReadChainConfigMissingIsError(t *testing.T) {
	r := newFakeReader()
	_, err := ReadChainConfig(r, common.Hash{})
	require.Error(t, err)
}

func TestReadChainIDMissingField(t *testing.T) {
	_, err := ReadChainID(&params.ChainConfig{})
	require.Error(t, err)
}

func TestReadChainIDPresent(t *testing.T) {
	id, err := ReadChainID(&params.ChainConfig{ChainID: big.NewInt(5)})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), id)
}

func TestReadTransactionByHashAbsentNeverErrors(t *testing.T) {
	r := newFakeReader()
	txn, block, err := ReadTransactionByHash(r, common.HexToHash("0xee"))
	require.NoError(t, err)
	require.Nil(t, txn)
	require.Nil(t, block)
}

func TestReadTransactionByHashFound(t *testing.T) {
	r := newFakeReader()

	tx := types.NewTransaction(0, common.HexToAddress("0x01"), big.NewInt(0), 21000, big.NewInt(1), nil)
	txEnc, err := tx.MarshalBinary()
	require.NoError(t, err)
	r.put(tableEthTx, EncodeBlockNumber(300), txEnc)

	header := &types.Header{Number: big.NewInt(4)}
	hash := putHeader(t, r, header)
	r.put(tableHeaderCanonical, EncodeBlockNumber(4), hash[:])

	rb := rawBody{BaseTxID: 300, TxAmount: 1}
	rbEnc, err := rlp.EncodeToBytes(&rb)
	require.NoError(t, err)
	r.put(tableBlockBody, BlockBodyKey(4, hash), rbEnc)

	r.put(tableTxLookup, tx.Hash()[:], big.NewInt(4).Bytes())

	got, block, err := ReadTransactionByHash(r, tx.Hash())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, tx.Hash(), got.Hash())
	require.NotNil(t, block)
	require.Equal(t, uint64(4), block.Number())
}
