package tracers

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DiffValue is one field's before/after state, classified the way Parity's
// trace_call stateDiff renders it: "=" unchanged, "+" created, "-" deleted,
// "*" changed.
type DiffValue struct {
	Kind string      `json:"-"`
	From interface{} `json:"from,omitempty"`
	To   interface{} `json:"to,omitempty"`
}

// MarshalJSON renders DiffValue the way Parity does: the bare string "="
// when unchanged, or {"+": to} / {"-": from} / {"*": {from, to}}.
func (d DiffValue) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case "=":
		return []byte(`"="`), nil
	case "+":
		return json.Marshal(map[string]interface{}{"+": d.To})
	case "-":
		return json.Marshal(map[string]interface{}{"-": d.From})
	default:
		return json.Marshal(map[string]interface{}{"*": map[string]interface{}{"from": d.From, "to": d.To}})
	}
}

// AccountDiff is the per-account stateDiff entry.
type AccountDiff struct {
	Balance DiffValue                       `json:"balance"`
	Nonce   DiffValue                       `json:"nonce"`
	Code    DiffValue                       `json:"code"`
	Storage map[common.Hash]DiffValue       `json:"storage"`
}

// AccountSnapshot is the pre- or post-execution state of one touched
// account, captured by the executor around a traced call.
type AccountSnapshot struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// BuildAccountDiff classifies before/after snapshots into an AccountDiff.
// A nil before with a non-nil after is "+"; the reverse is "-"; differing
// non-nil values are "*"; equal values are "=".
func BuildAccountDiff(before, after *AccountSnapshot) *AccountDiff {
	diff := &AccountDiff{Storage: make(map[common.Hash]DiffValue)}

	diff.Balance = diffBig(balanceOf(before), balanceOf(after))
	diff.Nonce = diffNonce(before, after)
	diff.Code = diffBytes(codeOf(before), codeOf(after))

	keys := map[common.Hash]struct{}{}
	if before != nil {
		for k := range before.Storage {
			keys[k] = struct{}{}
		}
	}
	if after != nil {
		for k := range after.Storage {
			keys[k] = struct{}{}
		}
	}
	for k := range keys {
		var from, to common.Hash
		hasFrom, hasTo := false, false
		if before != nil {
			if v, ok := before.Storage[k]; ok {
				from, hasFrom = v, true
			}
		}
		if after != nil {
			if v, ok := after.Storage[k]; ok {
				to, hasTo = v, true
			}
		}
		diff.Storage[k] = diffHash(from, hasFrom, to, hasTo)
	}
	return diff
}

func balanceOf(a *AccountSnapshot) *big.Int {
	if a == nil {
		return nil
	}
	return a.Balance
}
func diffNonce(before, after *AccountSnapshot) DiffValue {
	switch {
	case before == nil && after == nil:
		return DiffValue{Kind: "="}
	case before == nil:
		return DiffValue{Kind: "+", To: hexutil.Uint64(after.Nonce)}
	case after == nil:
		return DiffValue{Kind: "-", From: hexutil.Uint64(before.Nonce)}
	case before.Nonce == after.Nonce:
		return DiffValue{Kind: "="}
	default:
		return DiffValue{Kind: "*", From: hexutil.Uint64(before.Nonce), To: hexutil.Uint64(after.Nonce)}
	}
}

func codeOf(a *AccountSnapshot) []byte {
	if a == nil {
		return nil
	}
	return a.Code
}

func diffBig(from, to *big.Int) DiffValue {
	switch {
	case from == nil && to == nil:
		return DiffValue{Kind: "="}
	case from == nil:
		return DiffValue{Kind: "+", To: (*hexutil.Big)(to)}
	case to == nil:
		return DiffValue{Kind: "-", From: (*hexutil.Big)(from)}
	case from.Cmp(to) == 0:
		return DiffValue{Kind: "="}
	default:
		return DiffValue{Kind: "*", From: (*hexutil.Big)(from), To: (*hexutil.Big)(to)}
	}
}

func diffBytes(from, to []byte) DiffValue {
	switch {
	case len(from) == 0 && len(to) == 0:
		return DiffValue{Kind: "="}
	case len(from) == 0:
		return DiffValue{Kind: "+", To: hexutil.Bytes(to)}
	case len(to) == 0:
		return DiffValue{Kind: "-", From: hexutil.Bytes(from)}
	case string(from) == string(to):
		return DiffValue{Kind: "="}
	default:
		return DiffValue{Kind: "*", From: hexutil.Bytes(from), To: hexutil.Bytes(to)}
	}
}

func diffHash(from common.Hash, hasFrom bool, to common.Hash, hasTo bool) DiffValue {
	switch {
	case !hasFrom && !hasTo:
		return DiffValue{Kind: "="}
	case !hasFrom:
		return DiffValue{Kind: "+", To: to}
	case !hasTo:
		return DiffValue{Kind: "-", From: from}
	case from == to:
		return DiffValue{Kind: "="}
	default:
		return DiffValue{Kind: "*", From: from, To: to}
	}
}
