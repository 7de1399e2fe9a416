package tracers

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
)

// callFrame is one open call in the tree being built; traceAddr is the path
// from the root call to this frame, matching the JSON-RPC trace_address
// field.
type callFrame struct {
	trace      *ParityTrace
	traceAddr  []int
	childCount int
	to         common.Address
}

// OeTracer builds the Parity-style call tree (§4.6's call tracer), driven
// by core/tracing.Hooks' OnEnter/OnExit. Grounded on the OeTracer value
// seen constructed in trace_filtering.go (fields compat, r, idx, traceAddr),
// reimplemented against the struct-of-callbacks tracer protocol rather than
// the retrieved snapshot's CaptureStart/CaptureEnd-era interface.
type OeTracer struct {
	DecodeRevert bool

	stack []*callFrame
	out   []*ParityTrace
}

// NewOeTracer returns a fresh call-tree tracer.
func NewOeTracer(decodeRevert bool) *OeTracer {
	return &OeTracer{DecodeRevert: decodeRevert}
}

// Hooks returns the tracing.Hooks bound to this tracer's call-tree logic.
func (ot *OeTracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter: ot.onEnter,
		OnExit:  ot.onExit,
	}
}

// Traces returns the flattened call tree once execution has finished.
func (ot *OeTracer) Traces() []*ParityTrace { return ot.out }

func (ot *OeTracer) onEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	var traceAddr []int
	if len(ot.stack) > 0 {
		parent := ot.stack[len(ot.stack)-1]
		traceAddr = append(append([]int{}, parent.traceAddr...), parent.childCount)
		parent.childCount++
	} else {
		traceAddr = []int{}
	}

	pt := &ParityTrace{TraceAddress: traceAddr}

	switch vm.OpCode(typ) {
	case vm.CREATE, vm.CREATE2:
		pt.Type = "create"
		pt.Action = &CreateTraceAction{From: from, Value: newHexBig(value), Gas: hexutilUint64(gas), Init: input}
	case vm.SELFDESTRUCT:
		pt.Type = "suicide"
		pt.Action = &SuicideTraceAction{Address: from, RefundAddress: to, Balance: newHexBig(value)}
	default:
		pt.Type = "call"
		pt.Action = &CallTraceAction{From: from, To: to, Value: newHexBig(value), Gas: hexutilUint64(gas), Input: input, CallType: callTypeName(vm.OpCode(typ))}
	}

	frame := &callFrame{trace: pt, traceAddr: traceAddr, to: to}
	ot.stack = append(ot.stack, frame)
	ot.out = append(ot.out, pt)
}

func (ot *OeTracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if len(ot.stack) == 0 {
		return
	}
	frame := ot.stack[len(ot.stack)-1]
	ot.stack = ot.stack[:len(ot.stack)-1]

	pt := frame.trace
	pt.Subtraces = frame.childCount

	if err != nil {
		status := StatusFromVMError(err)
		pt.Error = status.Message(output, ot.DecodeRevert)
		pt.Result = nil
		return
	}

	switch pt.Type {
	case "create":
		result := &CreateTraceResult{Code: output, GasUsed: hexutilUint64(gasUsed)}
		if !reverted {
			addr := frame.to
			result.Address = &addr
		}
		pt.Result = result
	case "suicide":
		pt.Result = nil
	default:
		pt.Result = &CallTraceResult{GasUsed: hexutilUint64(gasUsed), Output: output}
	}
}

func callTypeName(op vm.OpCode) string {
	switch op {
	case vm.CALL:
		return "call"
	case vm.CALLCODE:
		return "callcode"
	case vm.DELEGATECALL:
		return "delegatecall"
	case vm.STATICCALL:
		return "staticcall"
	default:
		return "call"
	}
}
