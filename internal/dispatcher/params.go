package dispatcher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/erigontech/tracegateway/internal/traceexec"
)

// CallArgs is trace_call/trace_callMany's call object, mirroring
// go-ethereum's internal/ethapi.TransactionArgs field set and JSON tags.
type CallArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                *hexutil.Uint64 `json:"nonce"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
	AccessList           *types.AccessList `json:"accessList"`
}

// toCallParams adapts the wire object into the executor's own call shape.
func (c CallArgs) toCallParams() traceexec.CallParams {
	p := traceexec.CallParams{
		From:                 c.From,
		To:                   c.To,
		GasPrice:             bigOf(c.GasPrice),
		MaxFeePerGas:         bigOf(c.MaxFeePerGas),
		MaxPriorityFeePerGas: bigOf(c.MaxPriorityFeePerGas),
		Value:                bigOf(c.Value),
	}
	if c.Gas != nil {
		g := uint64(*c.Gas)
		p.Gas = &g
	}
	if c.Nonce != nil {
		n := uint64(*c.Nonce)
		p.Nonce = &n
	}
	switch {
	case c.Input != nil:
		p.Data = *c.Input
	case c.Data != nil:
		p.Data = *c.Data
	}
	if c.AccessList != nil {
		p.AccessList = *c.AccessList
	}
	return p
}

func bigOf(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return (*big.Int)(v)
}

// TraceFilterRequest is trace_filter's query object.
type TraceFilterRequest struct {
	FromBlock   *hexutil.Uint64  `json:"fromBlock"`
	ToBlock     *hexutil.Uint64  `json:"toBlock"`
	FromAddress []common.Address `json:"fromAddress"`
	ToAddress   []common.Address `json:"toAddress"`
	After       *hexutil.Uint64  `json:"after"`
	Count       *hexutil.Uint64  `json:"count"`
}

func (r TraceFilterRequest) toFilter() traceexec.Filter {
	f := traceexec.Filter{
		FromAddress: r.FromAddress,
		ToAddress:   r.ToAddress,
	}
	if r.FromBlock != nil {
		f.FromBlock = uint64(*r.FromBlock)
	}
	if r.ToBlock != nil {
		f.ToBlock = uint64(*r.ToBlock)
	}
	if r.After != nil {
		f.After = int(*r.After)
	}
	if r.Count != nil {
		f.Count = int(*r.Count)
	}
	return f
}
