package traceexec

import (
	"bytes"
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/ethereum/go-ethereum/common"

	"github.com/erigontech/tracegateway/internal/chain"
	"github.com/erigontech/tracegateway/internal/tracers"
)

// Filter is trace_filter's query object: the block-height range intersected
// with the from/to address sets, plus the after/count pagination pair.
type Filter struct {
	FromBlock   uint64
	ToBlock     uint64
	FromAddress []common.Address
	ToAddress   []common.Address
	After       int
	Count       int
}

// TraceFilter iterates [FromBlock, ToBlock], consulting the call-address
// bitmap indexes to skip blocks that cannot match, tracing each candidate
// block and keeping only frames whose action touches a requested address,
// honouring After (skip) and Count (limit). Grounded on
// otterscan_search_forward.go's roaring64 iterator usage, adapted from a
// per-topic index to the call-trace from/to indexes.
func (e *Executor) TraceFilter(ctx context.Context, loadBlock func(number uint64) (*chain.BlockWithHash, error), filter Filter) ([]*tracers.ParityTrace, error) {
	candidates, err := e.candidateBlocks(filter)
	if err != nil {
		return nil, err
	}

	var out []*tracers.ParityTrace
	skipped := 0
	for _, number := range candidates {
		block, err := loadBlock(number)
		if err != nil {
			return nil, err
		}
		if block == nil {
			continue
		}

		frames, err := e.TraceBlock(ctx, block)
		if err != nil {
			return nil, err
		}

		for _, pt := range frames {
			if !frameMatchesFilter(pt, filter) {
				continue
			}
			if skipped < filter.After {
				skipped++
				continue
			}
			out = append(out, pt)
			if filter.Count > 0 && len(out) >= filter.Count {
				return out, nil
			}
		}
	}
	return out, nil
}

// candidateBlocks returns, in ascending order, every height in
// [FromBlock, ToBlock] whose call-trace indexes suggest it may match. When
// neither FromAddress nor ToAddress is given, every height in range is a
// candidate.
func (e *Executor) candidateBlocks(filter Filter) ([]uint64, error) {
	if len(filter.FromAddress) == 0 && len(filter.ToAddress) == 0 {
		out := make([]uint64, 0, filter.ToBlock-filter.FromBlock+1)
		for n := filter.FromBlock; n <= filter.ToBlock; n++ {
			out = append(out, n)
		}
		return out, nil
	}

	union := roaring64.New()
	for _, addr := range filter.FromAddress {
		bm, err := e.readAddressBitmap(chain.CallFromIndexTable, addr)
		if err != nil {
			return nil, err
		}
		if bm != nil {
			union.Or(bm)
		}
	}
	for _, addr := range filter.ToAddress {
		bm, err := e.readAddressBitmap(chain.CallToIndexTable, addr)
		if err != nil {
			return nil, err
		}
		if bm != nil {
			union.Or(bm)
		}
	}

	out := make([]uint64, 0, union.GetCardinality())
	it := union.Iterator()
	it.AdvanceIfNeeded(filter.FromBlock)
	for it.HasNext() {
		n := it.Next()
		if n > filter.ToBlock {
			break
		}
		out = append(out, n)
	}
	return out, nil
}

func (e *Executor) readAddressBitmap(table string, addr common.Address) (*roaring64.Bitmap, error) {
	v, err := e.r.GetOne(table, addr[:])
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, nil
	}
	bm := roaring64.New()
	if _, err := bm.ReadFrom(bytes.NewReader(v)); err != nil {
		return nil, err
	}
	return bm, nil
}

func frameMatchesFilter(pt *tracers.ParityTrace, filter Filter) bool {
	from, to, ok := frameAddresses(pt)
	if !ok {
		return false
	}
	if len(filter.FromAddress) > 0 && !addressIn(from, filter.FromAddress) {
		return false
	}
	if len(filter.ToAddress) > 0 && !addressIn(to, filter.ToAddress) {
		return false
	}
	return true
}

func frameAddresses(pt *tracers.ParityTrace) (from, to common.Address, ok bool) {
	switch a := pt.Action.(type) {
	case *tracers.CallTraceAction:
		return a.From, a.To, true
	case *tracers.CreateTraceAction:
		return a.From, common.Address{}, true
	case *tracers.SuicideTraceAction:
		return a.Address, a.RefundAddress, true
	case *tracers.RewardTraceAction:
		return a.Author, common.Address{}, true
	}
	return common.Address{}, common.Address{}, false
}

func addressIn(addr common.Address, set []common.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}
