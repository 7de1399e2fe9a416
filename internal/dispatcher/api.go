package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/erigontech/tracegateway/internal/chain"
	"github.com/erigontech/tracegateway/internal/historystate"
	"github.com/erigontech/tracegateway/internal/remotekv"
	"github.com/erigontech/tracegateway/internal/statecache"
	"github.com/erigontech/tracegateway/internal/tracers"
	"github.com/erigontech/tracegateway/internal/traceexec"
)

// TraceAPI is the "trace" RPC namespace's receiver: every exported method
// becomes trace_<lowerFirst(method)> once registered via rpc.Server's
// reflection-based RegisterName, matching trace_api.go's TraceAPIImpl shape.
type TraceAPI struct {
	db         *remotekv.DB
	blockCache *statecache.BlockCache
	logger     log.Logger
}

// NewTraceAPI builds the trace namespace receiver over db, sharing
// blockCache with whatever else in the process reads blocks.
func NewTraceAPI(db *remotekv.DB, blockCache *statecache.BlockCache, logger log.Logger) *TraceAPI {
	return &TraceAPI{db: db, blockCache: blockCache, logger: logger}
}

// requestContext is the per-request bundle every method assembles: a read
// transaction and the executor built over it.
type requestContext struct {
	tx *remotekv.Tx
	ex *traceexec.Executor
}

func (api *TraceAPI) begin(ctx context.Context) (*requestContext, error) {
	tx, err := api.db.BeginRo(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: beginning read transaction: %w", err)
	}
	genesisHash, err := chain.ReadCanonicalHash(tx, 0)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("dispatcher: resolving genesis hash: %w", err)
	}
	ex := traceexec.New(tx, historystate.Reader(tx), genesisHash)
	return &requestContext{tx: tx, ex: ex}, nil
}

func (rc *requestContext) close() { rc.tx.Rollback() }

// Call implements trace_call.
func (api *TraceAPI) Call(ctx context.Context, call CallArgs, traceTypes []string, blockNrOrHash rpc.BlockNumberOrHash) (*tracers.TraceCallResult, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	block, err := resolveBlock(ctx, rc.tx, api.blockCache, blockNrOrHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}

	cfg := traceexec.ConfigFromStrings(traceTypes)
	res, err := rc.ex.TraceCall(ctx, block, call.toCallParams(), cfg)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	if res.Err != nil {
		return nil, wrapPreCheckError(res.Err)
	}
	return renderResult(res), nil
}

// callManyEntry is one [call, traceTypes] tuple of trace_callMany's array
// parameter, Parity's own wire shape for per-call tracer selection.
type callManyEntry struct {
	Call       CallArgs
	TraceTypes []string
}

func (e *callManyEntry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("dispatcher: decoding callMany entry: %w", err)
	}
	if err := json.Unmarshal(raw[0], &e.Call); err != nil {
		return fmt.Errorf("dispatcher: decoding callMany call object: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.TraceTypes); err != nil {
		return fmt.Errorf("dispatcher: decoding callMany trace types: %w", err)
	}
	return nil
}

// CallMany implements trace_callMany: a sequence of calls applied against
// one block's state, mutations from one call carrying into the next.
func (api *TraceAPI) CallMany(ctx context.Context, calls []callManyEntry, blockNrOrHash rpc.BlockNumberOrHash) ([]*tracers.TraceCallResult, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	block, err := resolveBlock(ctx, rc.tx, api.blockCache, blockNrOrHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}

	params := make([]traceexec.CallParams, len(calls))
	cfgs := make([]traceexec.TraceConfig, len(calls))
	for i, c := range calls {
		params[i] = c.Call.toCallParams()
		cfgs[i] = traceexec.ConfigFromStrings(c.TraceTypes)
	}

	results, err := rc.ex.TraceCallMany(ctx, block, params, cfgs)
	if err != nil {
		return nil, newFaultError(err.Error())
	}

	out := make([]*tracers.TraceCallResult, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, wrapPreCheckError(res.Err)
		}
		out[i] = renderResult(res)
	}
	return out, nil
}

// RawTransaction implements trace_rawTransaction: traces a not-yet-mined
// signed transaction against the chain head.
func (api *TraceAPI) RawTransaction(ctx context.Context, rawTx hexutil.Bytes, traceTypes []string) (*tracers.TraceCallResult, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	head, err := resolveBlock(ctx, rc.tx, api.blockCache, rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber))
	if err != nil {
		return nil, newFaultError(err.Error())
	}

	cfg := traceexec.ConfigFromStrings(traceTypes)
	res, err := rc.ex.TraceRawTransaction(ctx, head, rawTx, cfg)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	if res.Err != nil {
		return nil, wrapPreCheckError(res.Err)
	}
	return renderResult(res), nil
}

// ReplayTransaction implements trace_replayTransaction.
func (api *TraceAPI) ReplayTransaction(ctx context.Context, txHash common.Hash, traceTypes []string) (*tracers.TraceCallResult, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	_, block, err := chain.ReadTransactionByHash(rc.tx, txHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	if block == nil {
		return nil, nil
	}

	cfg := traceexec.ConfigFromStrings(traceTypes)
	res, err := rc.ex.TraceReplayTransaction(ctx, block, txHash, cfg)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	if res == nil {
		return nil, nil
	}
	if res.Err != nil {
		return nil, wrapPreCheckError(res.Err)
	}
	return renderResult(res), nil
}

// ReplayBlockTransactions implements trace_replayBlockTransactions.
func (api *TraceAPI) ReplayBlockTransactions(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash, traceTypes []string) ([]*tracers.TraceCallResult, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	block, err := resolveBlock(ctx, rc.tx, api.blockCache, blockNrOrHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}

	cfg := traceexec.ConfigFromStrings(traceTypes)
	results, err := rc.ex.TraceReplayBlockTransactions(ctx, block, cfg)
	if err != nil {
		return nil, newFaultError(err.Error())
	}

	out := make([]*tracers.TraceCallResult, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, wrapPreCheckError(res.Err)
		}
		out[i] = renderResult(res)
	}
	return out, nil
}

// Block implements trace_block: the flat action list for every transaction
// in blockNrOrHash plus the synthesized block/uncle rewards.
func (api *TraceAPI) Block(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) (tracers.ParityTraces, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	block, err := resolveBlock(ctx, rc.tx, api.blockCache, blockNrOrHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}

	traces, err := rc.ex.TraceBlock(ctx, block)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	return traces, nil
}

// Filter implements trace_filter.
func (api *TraceAPI) Filter(ctx context.Context, req TraceFilterRequest) (tracers.ParityTraces, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	traces, err := rc.ex.TraceFilter(ctx, loadBlockByNumber(ctx, rc.tx, api.blockCache), req.toFilter())
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	return traces, nil
}

// Get implements trace_get.
func (api *TraceAPI) Get(ctx context.Context, txHash common.Hash, indices []hexutil.Uint64) (*tracers.ParityTrace, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	_, block, err := chain.ReadTransactionByHash(rc.tx, txHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	if block == nil {
		return nil, nil
	}

	raw := make([]uint64, len(indices))
	for i, v := range indices {
		raw[i] = uint64(v)
	}

	trace, err := rc.ex.Get(ctx, block, txHash, raw)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	return trace, nil
}

// Transaction implements trace_transaction.
func (api *TraceAPI) Transaction(ctx context.Context, txHash common.Hash) (tracers.ParityTraces, error) {
	rc, err := api.begin(ctx)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	defer rc.close()

	_, block, err := chain.ReadTransactionByHash(rc.tx, txHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	if block == nil {
		return nil, nil
	}

	traces, err := rc.ex.TraceTransaction(ctx, block, txHash)
	if err != nil {
		return nil, newFaultError(err.Error())
	}
	return traces, nil
}

// renderResult adapts one executor Result into the wire envelope.
func renderResult(res *traceexec.Result) *tracers.TraceCallResult {
	return &tracers.TraceCallResult{
		Output:    res.Output,
		StateDiff: res.StateDiff,
		Trace:     res.Trace,
		VmTrace:   res.VmTrace,
	}
}
