// Package chain implements the typed chain-data accessors (§4.3): canonical
// hashes, headers, bodies, transactions, senders, receipts and total
// difficulty, built over a remotekv.Tx. Key encodings are grounded on the
// teacher's common/dbutils/composite_keys.go.
package chain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

const (
	addrLength   = common.AddressLength // 20
	incarnationLength = 8
	hashLength   = common.HashLength // 32
)

// EncodeBlockNumber encodes height as an 8-byte big-endian key component,
// the sort-preserving prefix used throughout the chain tables.
func EncodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

// DecodeBlockNumber is the inverse of EncodeBlockNumber.
func DecodeBlockNumber(enc []byte) uint64 {
	return binary.BigEndian.Uint64(enc)
}

// HeaderKey builds the Headers/BlockBody/total-difficulty key: number(8) || hash(32).
func HeaderKey(number uint64, hash common.Hash) []byte {
	k := make([]byte, 8+hashLength)
	binary.BigEndian.PutUint64(k, number)
	copy(k[8:], hash[:])
	return k
}

// BlockBodyKey is identical in shape to HeaderKey.
func BlockBodyKey(number uint64, hash common.Hash) []byte {
	return HeaderKey(number, hash)
}

// LogKey builds the per-block/per-transaction-index key the logs table is
// addressed by: blockNumber(8, BE) || txIndex(4, BE).
func LogKey(blockNumber uint64, txIndex uint32) []byte {
	k := make([]byte, 8+4)
	binary.BigEndian.PutUint64(k, blockNumber)
	binary.BigEndian.PutUint32(k[8:], txIndex)
	return k
}

// PlainCompositeStorageKey builds the plain-state / change-set storage key:
// address(20) || incarnation(8, BE) || slot(32) = 60 bytes, matching
// scenario 7 of the testable properties.
func PlainCompositeStorageKey(address common.Address, incarnation uint64, slot common.Hash) []byte {
	k := make([]byte, addrLength+incarnationLength+hashLength)
	copy(k, address[:])
	binary.BigEndian.PutUint64(k[addrLength:], incarnation)
	copy(k[addrLength+incarnationLength:], slot[:])
	return k
}

// ParsePlainCompositeStorageKey splits a key produced by
// PlainCompositeStorageKey back into its components.
func ParsePlainCompositeStorageKey(k []byte) (address common.Address, incarnation uint64, slot common.Hash) {
	copy(address[:], k[:addrLength])
	incarnation = binary.BigEndian.Uint64(k[addrLength : addrLength+incarnationLength])
	copy(slot[:], k[addrLength+incarnationLength:])
	return
}

// PlainStoragePrefix is the address+incarnation prefix shared by every slot
// of one account incarnation, used to seek into change-sets.
func PlainStoragePrefix(address common.Address, incarnation uint64) []byte {
	k := make([]byte, addrLength+incarnationLength)
	copy(k, address[:])
	binary.BigEndian.PutUint64(k[addrLength:], incarnation)
	return k
}
