package traceexec

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/tracegateway/internal/chain"
	"github.com/erigontech/tracegateway/internal/tracers"
)

// traceGetIndexOffset is trace_get's literal off-by-one: Parity's own
// implementation treats the single accepted index as one-based, so the
// zero-th requested index actually selects the flat trace list's second
// entry. Kept exactly as found rather than "fixed", since clients compose
// against the reference behaviour.
const traceGetIndexOffset = 1

// Get implements trace_get: txHash's flat trace list, selecting the single
// entry at indices[0]+traceGetIndexOffset. More than one index, or an index
// past the end of the list, both yield (nil, nil) rather than an error,
// matching Parity's own odd contract here.
func (e *Executor) Get(ctx context.Context, block *chain.BlockWithHash, txHash common.Hash, indices []uint64) (*tracers.ParityTrace, error) {
	if len(indices) == 0 || len(indices) > 1 {
		return nil, nil
	}

	traces, err := e.TraceTransaction(ctx, block, txHash)
	if err != nil {
		return nil, err
	}

	firstIndex := int(indices[0]) + traceGetIndexOffset
	if firstIndex < 0 || firstIndex >= len(traces) {
		return nil, nil
	}
	return traces[firstIndex], nil
}
