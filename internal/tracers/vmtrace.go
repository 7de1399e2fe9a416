package tracers

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/holiman/uint256"
)

// VMOperation is one instruction of a VMTrace: its pc, gas cost,
// post-execution effect (Ex) and any nested sub-call trace. The opcode
// itself and memory changes are not recorded.
type VMOperation struct {
	Pc   uint64        `json:"pc"`
	Cost hexutil.Uint64 `json:"cost"`
	Ex   *VMExecResult `json:"ex,omitempty"`
	Sub  *VMTrace      `json:"sub,omitempty"`
}

// VMExecResult is the post-instruction effect: gas remaining and the
// top-of-stack push, if any.
type VMExecResult struct {
	Used  hexutil.Uint64 `json:"used"`
	Push  []hexutil.Big  `json:"push"`
	Store *VMStoreOp     `json:"store,omitempty"`
}

// VMStoreOp records an SSTORE's key/value when the instruction was one.
type VMStoreOp struct {
	Key hexutil.Bytes `json:"key"`
	Val hexutil.Bytes `json:"val"`
}

// VMTrace is one call frame's worth of opcode trace, nested under Sub for
// CALL/CREATE sub-calls the way Parity's vmTrace does.
type VMTrace struct {
	Code hexutil.Bytes  `json:"code"`
	Ops  []*VMOperation `json:"ops"`
}

// vmFrame is one open call frame's worth of in-progress bookkeeping: the
// trace being built, the last op appended to it (awaiting its Ex.Push, filled
// in once the next opcode in this same frame reveals the post-execution
// stack), and the stack as of that last op so the push can be computed by
// diffing against it.
type vmFrame struct {
	trace     *VMTrace
	lastOp    *VMOperation
	lastStack []uint256.Int
	codeKnown bool
}

// VMTracer builds a VMTrace tree across the current call and every nested
// CALL/CREATE it makes, driven by core/tracing.Hooks the way OeTracer builds
// its call tree: OnEnter/OnExit push and pop frames, and a CALL/CREATE op's
// Sub is spliced onto it at the moment its callee's frame opens.
type VMTracer struct {
	frames []*vmFrame
}

// NewVMTracer starts a VMTrace for the outermost call, whose code is already
// known (the target's deployed code, or the init code for a contract
// creation).
func NewVMTracer(code []byte) *VMTracer {
	return &VMTracer{frames: []*vmFrame{{trace: &VMTrace{Code: code}, codeKnown: true}}}
}

func (t *VMTracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnOpcode:        t.onOpcode,
		OnEnter:         t.onEnter,
		OnExit:          t.onExit,
		OnStorageChange: t.onStorageChange,
	}
}

// Trace returns the root call frame's VMTrace; nested calls hang off their
// triggering instruction's Sub field.
func (t *VMTracer) Trace() *VMTrace { return t.frames[0].trace }

func (t *VMTracer) top() *vmFrame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// onOpcode fires just before each instruction executes. Filling in the
// previous instruction's Ex.Push has to wait until here: OnOpcode hands us
// the pre-execution stack, which is exactly the post-execution stack of
// whatever ran last in this frame.
func (t *VMTracer) onOpcode(pc uint64, opcode byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	f := t.top()
	if f == nil {
		return
	}
	if !f.codeKnown {
		f.trace.Code = scope.ContractCode()
		f.codeKnown = true
	}

	stack := scope.StackData()
	if f.lastOp != nil && len(stack) > len(f.lastStack) {
		pushed := make([]hexutil.Big, len(stack)-len(f.lastStack))
		for i, v := range stack[len(f.lastStack):] {
			pushed[i] = hexutil.Big(*v.ToBig())
		}
		f.lastOp.Ex.Push = pushed
	}

	var used uint64
	if gas > cost {
		used = gas - cost
	}
	op := &VMOperation{Pc: pc, Cost: hexutil.Uint64(cost), Ex: &VMExecResult{Used: hexutil.Uint64(used)}}
	f.trace.Ops = append(f.trace.Ops, op)
	f.lastOp = op
	f.lastStack = append(f.lastStack[:0:0], stack...)
}

// onEnter opens a new frame for a CALL/CREATE and splices it onto the Sub
// field of the instruction that triggered it — the parent frame's lastOp at
// this instant, since no other opcode can have run in the parent between the
// call instruction's own OnOpcode and this hook. The outermost call's own
// OnEnter (depth 0) opens nothing: NewVMTracer already holds its frame.
func (t *VMTracer) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	if depth == 0 {
		return
	}
	child := &vmFrame{trace: &VMTrace{}}
	if parent := t.top(); parent != nil && parent.lastOp != nil {
		parent.lastOp.Sub = child.trace
	}
	t.frames = append(t.frames, child)
}

// onExit closes the innermost frame. The calling instruction's Ex.Push (the
// CALL's success/failure flag) is left to the normal onOpcode diff once
// control resumes in the parent frame.
func (t *VMTracer) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if len(t.frames) <= 1 {
		return
	}
	t.frames = t.frames[:len(t.frames)-1]
}

// onStorageChange fires synchronously during SSTORE's own execution, after
// that instruction's own onOpcode call already made it the current frame's
// lastOp, so it's always the right one to attach the store to.
func (t *VMTracer) onStorageChange(addr common.Address, slot, prev, new common.Hash) {
	f := t.top()
	if f == nil || f.lastOp == nil {
		return
	}
	f.lastOp.Ex.Store = &VMStoreOp{Key: slot.Bytes(), Val: new.Bytes()}
}
