package tracers

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
)

// AccessListTracer reconstructs the EIP-2930 access list a call would
// touch, grounded directly on evm_access_list_tracer.cpp's opcode
// classification and stack-slot reads, adapted from evmone's
// on_instruction_start callback to core/tracing.Hooks' OnOpcode.
type AccessListTracer struct {
	from, to common.Address

	order     []common.Address
	index     map[common.Address]int
	storage   map[common.Address]map[common.Hash]struct{}
	storageOrder map[common.Address][]common.Hash
}

// NewAccessListTracer seeds the exclusion set with the transaction's own
// sender and recipient, matching exclude()'s from_/to_ check.
func NewAccessListTracer(from, to common.Address) *AccessListTracer {
	return &AccessListTracer{
		from:         from,
		to:           to,
		index:        make(map[common.Address]int),
		storage:      make(map[common.Address]map[common.Hash]struct{}),
		storageOrder: make(map[common.Address][]common.Hash),
	}
}

func (t *AccessListTracer) Hooks() *tracing.Hooks {
	return &tracing.Hooks{OnOpcode: t.onOpcode}
}

func (t *AccessListTracer) onOpcode(pc uint64, opcode byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	op := vm.OpCode(opcode)
	stack := scope.StackData()
	n := len(stack)

	switch {
	case isStorageOp(op):
		if n < 1 {
			return
		}
		addr := scope.Address()
		if t.exclude(addr) {
			return
		}
		slot := common.Hash(stack[n-1].Bytes32())
		t.addStorage(addr, slot)
	case isContractOp(op):
		if n < 1 {
			return
		}
		addr := common.Address(stack[n-1].Bytes20())
		if !t.exclude(addr) {
			t.addAddress(addr)
		}
	case isCallOp(op):
		if n < 5 {
			return
		}
		addr := common.Address(stack[n-2].Bytes20())
		if !t.exclude(addr) {
			t.addAddress(addr)
		}
	}
}

func isStorageOp(op vm.OpCode) bool {
	return op == vm.SLOAD || op == vm.SSTORE
}

func isContractOp(op vm.OpCode) bool {
	switch op {
	case vm.EXTCODECOPY, vm.EXTCODEHASH, vm.EXTCODESIZE, vm.BALANCE, vm.SELFDESTRUCT:
		return true
	}
	return false
}

func isCallOp(op vm.OpCode) bool {
	switch op {
	case vm.DELEGATECALL, vm.CALL, vm.STATICCALL, vm.CALLCODE:
		return true
	}
	return false
}

// exclude mirrors evm_access_list_tracer.cpp's exclude(): the sender,
// the top-level recipient, and the closed precompile set are never added.
func (t *AccessListTracer) exclude(addr common.Address) bool {
	return addr == t.from || addr == t.to || IsPrecompile(addr)
}

func (t *AccessListTracer) addAddress(addr common.Address) {
	if _, ok := t.index[addr]; ok {
		return
	}
	t.index[addr] = len(t.order)
	t.order = append(t.order, addr)
}

func (t *AccessListTracer) addStorage(addr common.Address, slot common.Hash) {
	t.addAddress(addr)
	if t.storage[addr] == nil {
		t.storage[addr] = make(map[common.Hash]struct{})
	}
	if _, ok := t.storage[addr][slot]; ok {
		return
	}
	t.storage[addr][slot] = struct{}{}
	t.storageOrder[addr] = append(t.storageOrder[addr], slot)
}

// AccessList returns the reconstructed list in first-touched order.
func (t *AccessListTracer) AccessList() types.AccessList {
	out := make(types.AccessList, 0, len(t.order))
	for _, addr := range t.order {
		out = append(out, types.AccessTuple{Address: addr, StorageKeys: t.storageOrder[addr]})
	}
	return out
}
