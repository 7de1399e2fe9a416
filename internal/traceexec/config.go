// Package traceexec implements the Trace Executor: given a historical block
// and one or more calls or transactions, it materialises state, runs the EVM
// with the requested tracer set, and assembles the resulting trace records.
// Grounded on cmd/rpcdaemon22/commands/trace_filtering.go's callManyTransactions
// and cmd/rpcdaemon/commands/trace_api.go's entry points, reimplemented
// against go-ethereum's core/vm and core packages rather than the teacher's
// own fork of them.
package traceexec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/erigontech/tracegateway/internal/tracers"
)

// TraceConfig selects which tracer outputs a call or transaction produces.
type TraceConfig struct {
	Trace        bool
	StateDiff    bool
	VmTrace      bool
	DecodeRevert bool
}

// ConfigFromStrings parses the ["trace", "stateDiff", "vmTrace"] string list
// accepted by trace_call's second positional parameter.
func ConfigFromStrings(types []string) TraceConfig {
	var cfg TraceConfig
	for _, t := range types {
		switch t {
		case "trace":
			cfg.Trace = true
		case "stateDiff":
			cfg.StateDiff = true
		case "vmTrace":
			cfg.VmTrace = true
		}
	}
	return cfg
}

// CallParams is the user-supplied call object for trace_call/trace_callMany,
// every field optional except To or input data implying a contract creation.
type CallParams struct {
	From                 *common.Address
	To                   *common.Address
	Gas                  *uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Value                *big.Int
	Data                 []byte
	Nonce                *uint64
	AccessList           types.AccessList
	GasBailout           bool
}

// Result is one call's or transaction's trace output, shaped to feed directly
// into TraceCallResult JSON-RPC responses.
type Result struct {
	Output    []byte
	GasUsed   uint64
	Trace     []*tracers.ParityTrace
	StateDiff map[common.Address]*tracers.AccountDiff
	VmTrace   *tracers.VMTrace
	Err       *PreCheckError
}

// PreCheckError is a pre-execution rejection; it is surfaced to JSON-RPC as
// an application error (-32000), never a thrown Go error, per §4.7.
type PreCheckError struct {
	Message string
	Code    int
}

func (e *PreCheckError) Error() string { return e.Message }

// NewPreCheckError builds a PreCheckError with code 1000, the code every
// pre-check in this package uses.
func NewPreCheckError(message string) *PreCheckError {
	return &PreCheckError{Message: message, Code: 1000}
}
