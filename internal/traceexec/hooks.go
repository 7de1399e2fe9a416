package traceexec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
)

// combineHooks fans a single EVM execution out to every non-nil tracer's
// hooks, so trace_call can run the call tracer and the opcode tracer over
// the same execution without the EVM knowing more than one tracer exists.
func combineHooks(all ...*tracing.Hooks) *tracing.Hooks {
	live := make([]*tracing.Hooks, 0, len(all))
	for _, h := range all {
		if h != nil {
			live = append(live, h)
		}
	}
	if len(live) == 0 {
		return nil
	}
	if len(live) == 1 {
		return live[0]
	}

	combined := &tracing.Hooks{}

	combined.OnEnter = func(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
		for _, h := range live {
			if h.OnEnter != nil {
				h.OnEnter(depth, typ, from, to, input, gas, value)
			}
		}
	}
	combined.OnExit = func(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
		for _, h := range live {
			if h.OnExit != nil {
				h.OnExit(depth, output, gasUsed, err, reverted)
			}
		}
	}
	combined.OnOpcode = func(pc uint64, opcode byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
		for _, h := range live {
			if h.OnOpcode != nil {
				h.OnOpcode(pc, opcode, gas, cost, scope, rData, depth, err)
			}
		}
	}
	combined.OnBalanceChange = func(addr common.Address, prev, new *big.Int, reason tracing.BalanceChangeReason) {
		for _, h := range live {
			if h.OnBalanceChange != nil {
				h.OnBalanceChange(addr, prev, new, reason)
			}
		}
	}
	combined.OnStorageChange = func(addr common.Address, slot, prev, new common.Hash) {
		for _, h := range live {
			if h.OnStorageChange != nil {
				h.OnStorageChange(addr, slot, prev, new)
			}
		}
	}
	return combined
}
