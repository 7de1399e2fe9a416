package historystate

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account is the plain-state encoding of an account: a field-set byte
// followed by length-prefixed nonce, balance and incarnation, then a fixed
// 32-byte code hash when the account has code. It is the gateway's own
// account record, independent of go-ethereum's trie-oriented state.Account,
// since no prover root is ever needed for replay.
type Account struct {
	Nonce       uint64
	Balance     *big.Int
	Incarnation uint64
	CodeHash    common.Hash
}

const (
	fieldNonce       = 1 << 0
	fieldBalance     = 1 << 1
	fieldCodeHash    = 1 << 2
	fieldIncarnation = 1 << 3
)

func (a *Account) IsEmptyCodeHash() bool {
	return a.CodeHash == (common.Hash{}) || a.CodeHash == emptyCodeHash
}

var emptyCodeHash = common.Hash{0xc5, 0xd2, 0x46, 0x01, 0x86, 0xf7, 0x23, 0x3c, 0x92, 0x7e, 0x7d, 0xb2, 0xdc, 0xc7, 0x03, 0xc0,
	0xe5, 0x00, 0xb6, 0x53, 0xca, 0x82, 0x27, 0x3b, 0x7b, 0xfa, 0xd8, 0x04, 0x5d, 0x85, 0xa4, 0x70}

// DecodeAccount parses a plain-state value into an Account. An empty input
// decodes to a fully zero account (the EIP-161 "non-existent" shape the
// history reader falls back to), never an error.
func DecodeAccount(enc []byte) (*Account, error) {
	a := &Account{Balance: new(big.Int)}
	if len(enc) == 0 {
		return a, nil
	}
	fieldSet := enc[0]
	pos := 1

	readVarint := func() (uint64, error) {
		if pos >= len(enc) {
			return 0, fmt.Errorf("historystate: truncated account encoding")
		}
		n := int(enc[pos])
		pos++
		if n == 0 {
			return 0, nil
		}
		if pos+n > len(enc) {
			return 0, fmt.Errorf("historystate: truncated account encoding")
		}
		v := new(big.Int).SetBytes(enc[pos : pos+n]).Uint64()
		pos += n
		return v, nil
	}

	if fieldSet&fieldNonce != 0 {
		v, err := readVarint()
		if err != nil {
			return nil, err
		}
		a.Nonce = v
	}
	if fieldSet&fieldBalance != 0 {
		if pos >= len(enc) {
			return nil, fmt.Errorf("historystate: truncated account encoding")
		}
		n := int(enc[pos])
		pos++
		if pos+n > len(enc) {
			return nil, fmt.Errorf("historystate: truncated account encoding")
		}
		a.Balance.SetBytes(enc[pos : pos+n])
		pos += n
	}
	if fieldSet&fieldIncarnation != 0 {
		v, err := readVarint()
		if err != nil {
			return nil, err
		}
		a.Incarnation = v
	}
	if fieldSet&fieldCodeHash != 0 {
		if pos+32 > len(enc) {
			return nil, fmt.Errorf("historystate: truncated account encoding")
		}
		copy(a.CodeHash[:], enc[pos:pos+32])
		pos += 32
	}
	return a, nil
}
