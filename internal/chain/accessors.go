package chain

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rlp"
)

// BlockWithHash bundles a decoded header, its body, and the header's hash.
// It is immutable after construction (per the data model's lifecycle
// contract) and is the unit the block cache stores.
type BlockWithHash struct {
	Header       *types.Header
	Transactions types.Transactions
	Uncles       []*types.Header
	Senders      []common.Address // parallel to Transactions; zero address when absent
	Hash         common.Hash
}

func (b *BlockWithHash) Number() uint64 { return b.Header.Number.Uint64() }

// ReadCanonicalHash returns the canonical hash at height, or ErrEmptyValue
// when the chain has no canonical block there.
func ReadCanonicalHash(r Reader, number uint64) (common.Hash, error) {
	v, err := r.GetOne(tableHeaderCanonical, EncodeBlockNumber(number))
	if err != nil {
		return common.Hash{}, err
	}
	if len(v) == 0 {
		return common.Hash{}, ErrEmptyValue
	}
	if len(v) != hashLength {
		return common.Hash{}, fmt.Errorf("chain: canonical hash at %d has length %d, want %d", number, len(v), hashLength)
	}
	return common.BytesToHash(v), nil
}

// ReadHeadHeaderHash returns the hash of the chain head as tracked by the
// node this gateway reads from, used to resolve the "latest" block tag.
func ReadHeadHeaderHash(r Reader) (common.Hash, error) {
	v, err := r.GetOne(tableHeadHeaderKey, []byte(tableHeadHeaderKey))
	if err != nil {
		return common.Hash{}, err
	}
	if len(v) != hashLength {
		return common.Hash{}, ErrEmptyValue
	}
	return common.BytesToHash(v), nil
}

// ReadHeaderNumber returns the height at which hash was sealed.
func ReadHeaderNumber(r Reader, hash common.Hash) (uint64, error) {
	v, err := r.GetOne(tableHeaderNumber, hash[:])
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: header number for %x", ErrEmptyValue, hash)
	}
	return DecodeBlockNumber(v), nil
}

// ReadHeader decodes the header at (hash, number). RLP errors are fatal.
func ReadHeader(r Reader, hash common.Hash, number uint64) (*types.Header, error) {
	v, err := r.GetOne(tableHeaders, HeaderKey(number, hash))
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	header := new(types.Header)
	if err := rlp.DecodeBytes(v, header); err != nil {
		return nil, fmt.Errorf("decoding header %d/%x: %w", number, hash, err)
	}
	return header, nil
}

func ReadHeaderByHash(r Reader, hash common.Hash) (*types.Header, error) {
	number, err := ReadHeaderNumber(r, hash)
	if err != nil {
		return nil, err
	}
	return ReadHeader(r, hash, number)
}

func ReadHeaderByNumber(r Reader, number uint64) (*types.Header, error) {
	hash, err := ReadCanonicalHash(r, number)
	if err != nil {
		return nil, err
	}
	return ReadHeader(r, hash, number)
}

// rawBody is the on-disk shape of the BlockBody table: the body carries a
// base transaction id into the EthTx table plus a count, rather than the
// transactions themselves (grounded on accessors_chain.go's bodyForStorage).
type rawBody struct {
	BaseTxID    uint64
	TxAmount    uint32
	Uncles      []*types.Header
}

// ReadBody decodes the body at (hash, number), drawing transactions from
// the EthTx table and attaching senders from the Senders table when their
// count matches; otherwise leaves every sender zero (absent), per the
// invariant in §3.
func ReadBody(r Reader, hash common.Hash, number uint64) (*BlockWithHash, error) {
	v, err := r.GetOne(tableBlockBody, BlockBodyKey(number, hash))
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	var rb rawBody
	if err := rlp.DecodeBytes(v, &rb); err != nil {
		return nil, fmt.Errorf("decoding body %d/%x: %w", number, hash, err)
	}

	header, err := ReadHeader(r, hash, number)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, fmt.Errorf("%w: header for body %d/%x", ErrEmptyValue, number, hash)
	}

	txs, err := ReadCanonicalTransactions(r, rb.BaseTxID, rb.TxAmount)
	if err != nil {
		return nil, err
	}

	senders, err := ReadSenders(r, hash, number)
	if err != nil {
		return nil, err
	}
	if len(senders) != len(txs) {
		senders = make([]common.Address, len(txs))
	}

	return &BlockWithHash{Header: header, Transactions: txs, Uncles: rb.Uncles, Senders: senders, Hash: hash}, nil
}

// ReadSenders returns the flat list of recovered sender addresses for a
// body. A table whose byte length is not a multiple of 20 yields an empty
// slice (boundary behaviour in §8), never a partial or misaligned one.
func ReadSenders(r Reader, hash common.Hash, number uint64) ([]common.Address, error) {
	v, err := r.GetOne(tableSenders, BlockBodyKey(number, hash))
	if err != nil {
		return nil, err
	}
	if len(v)%common.AddressLength != 0 {
		return nil, nil
	}
	senders := make([]common.Address, len(v)/common.AddressLength)
	for i := range senders {
		copy(senders[i][:], v[i*common.AddressLength:(i+1)*common.AddressLength])
	}
	return senders, nil
}

// ReadCanonicalTransactions walks the EthTx table from baseID for count
// entries, RLP-decoding each. Any decode failure yields an empty list, never
// a partial one (§4.3's decoding policy).
func ReadCanonicalTransactions(r Reader, baseID uint64, count uint32) (types.Transactions, error) {
	return walkTransactions(r, tableEthTx, baseID, count)
}

// ReadNonCanonicalTransactions is identical in shape, over the
// non-canonical table (re-orged bodies retained for historical lookups).
func ReadNonCanonicalTransactions(r Reader, baseID uint64, count uint32) (types.Transactions, error) {
	return walkTransactions(r, tableNonCanonicalTxs, baseID, count)
}

func walkTransactions(r Reader, table string, baseID uint64, count uint32) (types.Transactions, error) {
	if count == 0 {
		return types.Transactions{}, nil
	}
	out := make(types.Transactions, 0, count)
	n := uint32(0)
	failed := false
	err := r.Walk(table, EncodeBlockNumber(baseID), 0, func(k, v []byte) (bool, error) {
		if n >= count {
			return false, nil
		}
		txn := new(types.Transaction)
		if err := txn.UnmarshalBinary(v); err != nil {
			failed = true
			return false, nil
		}
		out = append(out, txn)
		n++
		return n < count, nil
	})
	if err != nil {
		return types.Transactions{}, nil
	}
	if failed || n != count {
		return types.Transactions{}, nil
	}
	return out, nil
}

// ReadChainConfig parses the chain configuration JSON stored under the
// genesis hash key.
func ReadChainConfig(r Reader, genesisHash common.Hash) (*params.ChainConfig, error) {
	v, err := r.GetOne(tableConfig, genesisHash[:])
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: chain config for genesis %x", ErrEmptyValue, genesisHash)
	}
	cfg := new(params.ChainConfig)
	if err := json.Unmarshal(v, cfg); err != nil {
		return nil, fmt.Errorf("decoding chain config: %w", err)
	}
	return cfg, nil
}

// ReadChainID extracts the integer chain id from a parsed chain config,
// failing descriptively when the field is missing (scenario 8).
func ReadChainID(cfg *params.ChainConfig) (*big.Int, error) {
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("chain config has no chainId field")
	}
	return cfg.ChainID, nil
}

// ReadTotalDifficulty decodes the RLP big.Int stored for (hash, number).
func ReadTotalDifficulty(r Reader, hash common.Hash, number uint64) (*big.Int, error) {
	key := append(HeaderKey(number, hash), []byte("t")...)
	v, err := r.GetOne(tableTD, key)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: total difficulty for %d/%x", ErrEmptyValue, number, hash)
	}
	td := new(big.Int)
	if err := rlp.DecodeBytes(v, td); err != nil {
		return nil, fmt.Errorf("decoding total difficulty %d/%x: %w", number, hash, err)
	}
	return td, nil
}

// ReadRawReceipts attaches logs to the receipts blob stored for a block by
// prefix-walking the logs table with an 8-byte big-endian block-number
// prefix, matching logs to receipts by the embedded transaction index.
func ReadRawReceipts(r Reader, hash common.Hash, number uint64) (types.Receipts, error) {
	v, err := r.GetOne(tableReceipts, EncodeBlockNumber(number))
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return types.Receipts{}, nil
	}
	var stored []storedReceipt
	if err := cborLikeUnmarshal(v, &stored); err != nil {
		return nil, fmt.Errorf("decoding receipts for block %d: %w", number, err)
	}

	logsByTx := make(map[uint32][]*types.Log)
	prefix := EncodeBlockNumber(number)
	if err := r.ForPrefix(tableLog, prefix, func(k, v []byte) (bool, error) {
		if len(k) != 12 {
			return true, nil
		}
		txIndex := uint32(k[8])<<24 | uint32(k[9])<<16 | uint32(k[10])<<8 | uint32(k[11])
		var logs []*types.Log
		if err := cborLikeUnmarshal(v, &logs); err != nil {
			return false, fmt.Errorf("decoding logs for block %d tx %d: %w", number, txIndex, err)
		}
		logsByTx[txIndex] = logs
		return true, nil
	}); err != nil {
		return nil, err
	}

	receipts := make(types.Receipts, len(stored))
	for i, s := range stored {
		receipts[i] = &types.Receipt{
			Type:              s.Type,
			PostState:         s.PostState,
			Status:            s.Status,
			CumulativeGasUsed: s.CumulativeGasUsed,
			Logs:              logsByTx[uint32(i)],
		}
	}
	return receipts, nil
}

// ReadReceipts reads the raw receipts for block and fills in each one's
// transaction hash, contract address (for creations), block hash, block
// number and transaction index, failing hard on a transaction/receipt count
// mismatch (§3's invariant). Cumulative gas used is kept as stored.
func ReadReceipts(r Reader, block *BlockWithHash) (types.Receipts, error) {
	receipts, err := ReadRawReceipts(r, block.Hash, block.Number())
	if err != nil {
		return nil, err
	}
	if len(receipts) != len(block.Transactions) {
		return nil, fmt.Errorf("%w: block %d has %d transactions but %d receipts",
			ErrTxCountMismatch, block.Number(), len(block.Transactions), len(receipts))
	}
	for i, txn := range block.Transactions {
		receipts[i].TxHash = txn.Hash()
		if txn.To() == nil {
			from := block.Senders[i]
			receipts[i].ContractAddress = contractAddress(from, txn.Nonce())
		}
		receipts[i].BlockHash = block.Hash
		receipts[i].BlockNumber = block.Header.Number
		receipts[i].TransactionIndex = uint(i)
	}
	return receipts, nil
}

// ReadBlockNumberByTxHash resolves a transaction hash to its enclosing
// block's height via the variable-length big-endian lookup entry.
func ReadBlockNumberByTxHash(r Reader, txHash common.Hash) (*uint64, error) {
	v, err := r.GetOne(tableTxLookup, txHash[:])
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	n := new(big.Int).SetBytes(v).Uint64()
	return &n, nil
}

// ReadTransactionByHash returns the transaction and its enclosing block.
// Absence returns (nil, nil, nil), never an error.
func ReadTransactionByHash(r Reader, txHash common.Hash) (*types.Transaction, *BlockWithHash, error) {
	number, err := ReadBlockNumberByTxHash(r, txHash)
	if err != nil {
		return nil, nil, err
	}
	if number == nil {
		return nil, nil, nil
	}
	hash, err := ReadCanonicalHash(r, *number)
	if err != nil {
		if errIsEmptyValue(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	block, err := ReadBody(r, hash, *number)
	if err != nil || block == nil {
		return nil, nil, err
	}
	for _, txn := range block.Transactions {
		if txn.Hash() == txHash {
			return txn, block, nil
		}
	}
	return nil, nil, nil
}

func errIsEmptyValue(err error) bool {
	return err == ErrEmptyValue
}

func contractAddress(from common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(from, nonce)
}

// storedReceipt is the subset of receipt fields actually persisted; the rest
// (logs, tx hash, contract address, ...) is derived at read time.
type storedReceipt struct {
	Type              uint8
	PostState         []byte
	Status            uint64
	CumulativeGasUsed uint64
}

// cborLikeUnmarshal decodes the CBOR-framed receipt/log blobs the chain
// tables store. The RLP/CBOR boundary is an external wire-format detail the
// Chain Accessors component treats as a plain byte-oriented unmarshal, not a
// concern of its own.
func cborLikeUnmarshal(data []byte, v interface{}) error {
	return rlp.DecodeBytes(data, v)
}
