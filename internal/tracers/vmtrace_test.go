package tracers

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u256(v uint64) uint256.Int { return *uint256.NewInt(v) }

func TestVMTracerFillsUsedImmediately(t *testing.T) {
	tr := NewVMTracer([]byte{byte(vm.PUSH1), 1})
	tr.onOpcode(0, byte(vm.PUSH1), 100, 3, &fakeOpContext{}, nil, 1, nil)

	ops := tr.Trace().Ops
	require.Len(t, ops, 1)
	require.EqualValues(t, 97, ops[0].Ex.Used)
}

func TestVMTracerFillsPushFromNextOpcodesStack(t *testing.T) {
	tr := NewVMTracer(nil)

	// PUSH1 1 runs with an empty stack...
	tr.onOpcode(0, byte(vm.PUSH1), 100, 3, &fakeOpContext{stack: nil}, nil, 1, nil)
	// ...and by the time the next instruction fires, the stack holds what it pushed.
	tr.onOpcode(2, byte(vm.ADD), 97, 3, &fakeOpContext{stack: []uint256.Int{u256(1)}}, nil, 1, nil)

	ops := tr.Trace().Ops
	require.Len(t, ops, 2)
	require.Len(t, ops[0].Ex.Push, 1)
	require.Equal(t, big.NewInt(1), (*big.Int)(&ops[0].Ex.Push[0]))
	// The last op's own push is never known without a further instruction.
	require.Empty(t, ops[1].Ex.Push)
}

func TestVMTracerNoPushRecordedWhenStackShrinks(t *testing.T) {
	tr := NewVMTracer(nil)

	tr.onOpcode(0, byte(vm.ADD), 100, 3, &fakeOpContext{stack: []uint256.Int{u256(1), u256(2)}}, nil, 1, nil)
	tr.onOpcode(1, byte(vm.STOP), 97, 0, &fakeOpContext{stack: []uint256.Int{u256(3)}}, nil, 1, nil)

	require.Empty(t, tr.Trace().Ops[0].Ex.Push)
}

func TestVMTracerSplicesSubOnEnterAndPopsOnExit(t *testing.T) {
	tr := NewVMTracer([]byte{byte(vm.CALL)})

	tr.onOpcode(0, byte(vm.CALL), 1000, 100, &fakeOpContext{}, nil, 1, nil)
	callerOp := tr.Trace().Ops[0]
	require.Nil(t, callerOp.Sub)

	hooks := tr.Hooks()
	hooks.OnEnter(2, byte(vm.CALL), common.Address{}, common.HexToAddress("0xcc"), nil, 900, big.NewInt(0))
	require.NotNil(t, callerOp.Sub, "Sub must be spliced onto the call instruction the instant the callee's frame opens")

	// Opcodes while inside the callee's frame land on the child trace, not the root.
	tr.onOpcode(0, byte(vm.STOP), 900, 0, &fakeOpContext{}, nil, 2, nil)
	require.Len(t, callerOp.Sub.Ops, 1)
	require.Len(t, tr.Trace().Ops, 1, "the root frame must not gain the callee's ops")

	hooks.OnExit(2, nil, 0, nil, false)

	// Control resumes in the root frame; the CALL's own push (its success flag)
	// is filled in by the next opcode there, not by OnExit.
	tr.onOpcode(1, byte(vm.POP), 900, 2, &fakeOpContext{stack: []uint256.Int{u256(1)}}, nil, 1, nil)
	require.Len(t, callerOp.Ex.Push, 1)
}

func TestVMTracerRecordsSSTOREOnStorageChange(t *testing.T) {
	tr := NewVMTracer(nil)
	contract := common.HexToAddress("0xdd")

	tr.onOpcode(0, byte(vm.SSTORE), 1000, 20000, &fakeOpContext{address: contract}, nil, 1, nil)

	key := common.HexToHash("0x01")
	val := common.HexToHash("0x02")
	tr.Hooks().OnStorageChange(contract, key, common.Hash{}, val)

	store := tr.Trace().Ops[0].Ex.Store
	require.NotNil(t, store)
	require.Equal(t, key.Bytes(), []byte(store.Key))
	require.Equal(t, val.Bytes(), []byte(store.Val))
}

func TestVMTracerCapturesContractCodeOnFirstOpcodeOfFrame(t *testing.T) {
	tr := NewVMTracer([]byte{0x60})

	tr.onOpcode(0, byte(vm.CALL), 1000, 100, &fakeOpContext{}, nil, 1, nil)
	callOp := tr.Trace().Ops[0]

	tr.Hooks().OnEnter(2, byte(vm.CALL), common.Address{}, common.HexToAddress("0xcc"), nil, 900, big.NewInt(0))
	code := []byte{byte(vm.PUSH1), 0x02}
	tr.onOpcode(0, byte(vm.PUSH1), 900, 3, &fakeOpContext{codeBytes: code}, nil, 2, nil)

	require.Equal(t, code, []byte(callOp.Sub.Code))
}
