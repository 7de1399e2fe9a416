package traceexec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
)

// defaultCallGas is the gas limit a call assigns when the caller names none;
// chosen as the teacher's doCall default, one block's worth of gas.
const defaultCallGas = 50_000_000

// messageFromCall builds a core.Message for trace_call/trace_callMany's
// synthesized call, filling in the sender's nonce from state when absent and
// defaulting gas price fields the way internal/ethapi's doCall does.
func messageFromCall(call CallParams, nonce uint64) *core.Message {
	var from common.Address
	if call.From != nil {
		from = *call.From
	}

	gas := uint64(defaultCallGas)
	if call.Gas != nil {
		gas = *call.Gas
	}

	value := big.NewInt(0)
	if call.Value != nil {
		value = call.Value
	}

	n := nonce
	if call.Nonce != nil {
		n = *call.Nonce
	}

	msg := &core.Message{
		From:              from,
		To:                call.To,
		Nonce:             n,
		Value:             value,
		GasLimit:          gas,
		Data:              call.Data,
		AccessList:        call.AccessList,
		SkipAccountChecks: call.GasBailout,
	}

	switch {
	case call.GasFeeCapSet():
		msg.GasFeeCap = call.MaxFeePerGas
		msg.GasTipCap = call.MaxPriorityFeePerGas
		if msg.GasTipCap == nil {
			msg.GasTipCap = msg.GasFeeCap
		}
		msg.GasPrice = msg.GasFeeCap
	case call.GasPrice != nil:
		msg.GasPrice = call.GasPrice
		msg.GasFeeCap = call.GasPrice
		msg.GasTipCap = call.GasPrice
	default:
		msg.GasPrice = big.NewInt(0)
		msg.GasFeeCap = big.NewInt(0)
		msg.GasTipCap = big.NewInt(0)
	}

	return msg
}

// GasFeeCapSet reports whether the call declared EIP-1559 fee fields.
func (c CallParams) GasFeeCapSet() bool { return c.MaxFeePerGas != nil }

// messageFromTransaction adapts a signed, decoded transaction into a
// core.Message, the shape core.ApplyMessage expects, via go-ethereum's own
// TransactionToMessage helper.
func messageFromTransaction(tx *types.Transaction, signer types.Signer, baseFee *big.Int) (*core.Message, error) {
	return core.TransactionToMessage(tx, signer, baseFee)
}
