// Package historystate reconstructs account and storage values as of a
// target block height, over the same remote read transaction the chain
// accessors use. It is grounded on core/state/historyv2read's GetAsOf and
// core/state/history_reader_nostate.go's reader-shaped contract, adapted to
// the gateway's own plain-state encoding.
package historystate

import "github.com/ethereum/go-ethereum/common"

// Reader is the subset of remotekv.Tx the history reconstruction needs: a
// point lookup plus a single-cursor seek, against plain state, change-sets
// and the per-key history index.
type Reader interface {
	GetOne(table string, key []byte) ([]byte, error)
	Seek(table string, seekKey []byte) (k, v []byte, err error)
}

// State is a history-aware StateReader, satisfying the same
// ReadAccountData/ReadAccountStorage/ReadAccountCode/ReadAccountCodeSize/
// ReadAccountIncarnation contract core/state/history_reader_nostate.go
// exposes, but reading an arbitrary past height instead of "now".
type State struct {
	r      Reader
	height uint64
}

// New returns a State that reconstructs values as of height: every read
// reflects the chain exactly as it stood immediately after that block.
func New(r Reader, height uint64) *State {
	return &State{r: r, height: height}
}

func (s *State) ReadAccountData(address common.Address) (*Account, error) {
	enc, err := GetAsOf(s.r, false, address[:], s.height)
	if err != nil {
		return nil, err
	}
	return DecodeAccount(enc)
}

func (s *State) ReadAccountStorage(address common.Address, incarnation uint64, slot common.Hash) ([]byte, error) {
	key := plainStorageKey(address, incarnation, slot)
	return GetAsOf(s.r, true, key, s.height)
}

func (s *State) ReadAccountCode(codeHash common.Hash) ([]byte, error) {
	if codeHash == emptyCodeHash {
		return nil, nil
	}
	v, err := s.r.GetOne(tableCode, codeHash[:])
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *State) ReadAccountCodeSize(codeHash common.Hash) (int, error) {
	code, err := s.ReadAccountCode(codeHash)
	if err != nil {
		return 0, err
	}
	return len(code), nil
}

// ReadAccountIncarnation returns address's incarnation as of height, read
// straight off the account record rather than tracked separately (unlike
// history_reader_nostate.go's always-zero stub, §4.5 requires the real
// value to address a deleted-and-recreated contract's storage correctly).
func (s *State) ReadAccountIncarnation(address common.Address) (uint64, error) {
	acc, err := s.ReadAccountData(address)
	if err != nil {
		return 0, err
	}
	return acc.Incarnation, nil
}
