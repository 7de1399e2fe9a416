package tracers

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// fakeOpContext is a minimal stand-in for core/tracing.OpContext, exposing
// only the stack and the currently executing contract's address, which is
// all AccessListTracer.onOpcode reads.
type fakeOpContext struct {
	stack     []uint256.Int
	address   common.Address
	codeBytes []byte
}

func (f *fakeOpContext) MemoryData() []byte       { return nil }
func (f *fakeOpContext) StackData() []uint256.Int { return f.stack }
func (f *fakeOpContext) Caller() common.Address    { return common.Address{} }
func (f *fakeOpContext) Address() common.Address   { return f.address }
func (f *fakeOpContext) CallValue() *uint256.Int    { return uint256.NewInt(0) }
func (f *fakeOpContext) CallInput() []byte          { return nil }
func (f *fakeOpContext) ContractCode() []byte       { return f.codeBytes }

func addrToUint256(addr common.Address) uint256.Int {
	var u uint256.Int
	u.SetBytes(addr.Bytes())
	return u
}

func TestAccessListTracerExcludesFromAndTo(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")

	tr := NewAccessListTracer(from, to)

	// BALANCE(addr) reads the target address off stack top.
	tr.onOpcode(0, byte(vm.BALANCE), 0, 0, &fakeOpContext{stack: []uint256.Int{addrToUint256(from)}}, nil, 1, nil)
	tr.onOpcode(0, byte(vm.BALANCE), 0, 0, &fakeOpContext{stack: []uint256.Int{addrToUint256(to)}}, nil, 1, nil)
	tr.onOpcode(0, byte(vm.BALANCE), 0, 0, &fakeOpContext{stack: []uint256.Int{addrToUint256(other)}}, nil, 1, nil)

	list := tr.AccessList()
	require.Len(t, list, 1)
	require.Equal(t, other, list[0].Address)
	for _, tup := range list {
		require.NotEqual(t, from, tup.Address)
		require.NotEqual(t, to, tup.Address)
	}
}

func TestAccessListTracerExcludesPrecompiles(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tr := NewAccessListTracer(from, to)

	precompile := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tr.onOpcode(0, byte(vm.BALANCE), 0, 0, &fakeOpContext{stack: []uint256.Int{addrToUint256(precompile)}}, nil, 1, nil)
	require.Empty(t, tr.AccessList())
}

func TestAccessListTracerRecordsStorageSlots(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	contract := common.HexToAddress("0x4444444444444444444444444444444444444444")
	tr := NewAccessListTracer(from, to)

	slot := uint256.NewInt(7)
	tr.onOpcode(0, byte(vm.SLOAD), 0, 0, &fakeOpContext{stack: []uint256.Int{*slot}, address: contract}, nil, 1, nil)

	list := tr.AccessList()
	require.Len(t, list, 1)
	require.Equal(t, contract, list[0].Address)
	require.Len(t, list[0].StorageKeys, 1)
	require.Equal(t, common.Hash(slot.Bytes32()), list[0].StorageKeys[0])
}

func TestAccessListTracerCallOpcodeReadsStackMinus2(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	target := common.HexToAddress("0x5555555555555555555555555555555555555555")
	tr := NewAccessListTracer(from, to)

	// StackData's last element is the stack top. CALL pops [gas, addr, value,
	// argsOffset, argsLength, ...] so with gas at n-1, addr sits at n-2.
	stack := []uint256.Int{{}, {}, {}, addrToUint256(target), {}}
	tr.onOpcode(0, byte(vm.CALL), 0, 0, &fakeOpContext{stack: stack}, nil, 1, nil)

	list := tr.AccessList()
	require.Len(t, list, 1)
	require.Equal(t, target, list[0].Address)
}
