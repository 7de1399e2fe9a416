// Package tracers implements the Parity-style trace output (§4.6): the
// call-tree, access-list, state-diff and opcode tracers the EVM executor
// drives through go-ethereum's core/tracing.Hooks, and the ParityTrace
// family their results are rendered into. Grounded on
// cmd/rpcdaemon22/commands/trace_filtering.go's usage of OeTracer and
// cmd/rpctest/rpctest/type.go's JSON shapes; the concrete struct bodies
// are this gateway's own, since the teacher's trace_adhoc.go that defines
// them was not part of the retrieved snapshot.
package tracers

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Trace type names accepted by trace_call/trace_replayTransaction's second
// parameter.
const (
	TraceTypeTrace     = "trace"
	TraceTypeStateDiff = "stateDiff"
	TraceTypeVmTrace   = "vmTrace"
)

// ParityTrace is one entry of a trace_* response: a call, create, suicide
// or synthetic reward action together with its result and its position in
// the call tree.
type ParityTrace struct {
	Action              interface{}    `json:"action"`
	BlockHash           *common.Hash   `json:"blockHash,omitempty"`
	BlockNumber         *uint64        `json:"blockNumber,omitempty"`
	Result              interface{}    `json:"result"`
	Subtraces           int            `json:"subtraces"`
	TraceAddress        []int          `json:"traceAddress"`
	TransactionHash     *common.Hash   `json:"transactionHash,omitempty"`
	TransactionPosition *uint64        `json:"transactionPosition,omitempty"`
	Type                string         `json:"type"`
	Error               string         `json:"error,omitempty"`
}

type ParityTraces []*ParityTrace

// CallTraceAction is the action payload for "call" entries.
type CallTraceAction struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Value    *hexutil.Big   `json:"value"`
	Gas      hexutil.Uint64 `json:"gas"`
	Input    hexutil.Bytes  `json:"input"`
	CallType string         `json:"callType"`
}

// CreateTraceAction is the action payload for "create" entries.
type CreateTraceAction struct {
	From  common.Address `json:"from"`
	Value *hexutil.Big   `json:"value"`
	Gas   hexutil.Uint64 `json:"gas"`
	Init  hexutil.Bytes  `json:"init"`
}

// CreateTraceResult is the result payload for a successful "create".
type CreateTraceResult struct {
	Address *common.Address `json:"address,omitempty"`
	Code    hexutil.Bytes   `json:"code"`
	GasUsed hexutil.Uint64  `json:"gasUsed"`
}

// CallTraceResult is the result payload for a successful "call".
type CallTraceResult struct {
	GasUsed hexutil.Uint64 `json:"gasUsed"`
	Output  hexutil.Bytes  `json:"output"`
}

// SuicideTraceAction is the action payload for "suicide" entries.
type SuicideTraceAction struct {
	Address       common.Address `json:"address"`
	RefundAddress common.Address `json:"refundAddress"`
	Balance       *hexutil.Big   `json:"balance"`
}

// RewardTraceAction is the action payload for the synthetic block/uncle
// reward entries trace_block synthesizes (not produced by the EVM itself).
type RewardTraceAction struct {
	Author     common.Address `json:"author"`
	RewardType string         `json:"rewardType"`
	Value      *hexutil.Big   `json:"value"`
}

const (
	RewardTypeBlock = "block"
	RewardTypeUncle = "uncle"
)

// TraceCallResult is trace_call/trace_rawTransaction's response envelope.
type TraceCallResult struct {
	Output      hexutil.Bytes                                   `json:"output"`
	StateDiff   map[common.Address]*AccountDiff                  `json:"stateDiff"`
	Trace       []*ParityTrace                                   `json:"trace"`
	VmTrace     *VMTrace                                         `json:"vmTrace"`
	TransactionHash *common.Hash                                 `json:"transactionHash,omitempty"`
}

func newHexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	b := hexutil.Big(*v)
	return &b
}

func hexutilUint64(v uint64) hexutil.Uint64 { return hexutil.Uint64(v) }
