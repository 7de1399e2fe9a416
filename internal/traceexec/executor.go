package traceexec

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/erigontech/tracegateway/internal/chain"
	"github.com/erigontech/tracegateway/internal/evmstate"
	"github.com/erigontech/tracegateway/internal/historystate"
	"github.com/erigontech/tracegateway/internal/statecache"
	"github.com/erigontech/tracegateway/internal/tracers"
)

// Executor is the Trace Executor of §4.7: given a read transaction over the
// remote KV store, it materialises historical state and drives the EVM with
// the requested tracer set for each call site the dispatcher hands it.
//
// One Executor is constructed per RPC request and discarded afterward; it
// carries no state beyond the read transaction's lifetime.
type Executor struct {
	r       chain.Reader
	histR   historystate.Reader
	genesis common.Hash
}

// New builds an Executor reading chain and history data through r (the same
// underlying transaction serves both roles; remotekv.Tx satisfies both
// chain.Reader and historystate.Reader).
func New(r chain.Reader, histR historystate.Reader, genesisHash common.Hash) *Executor {
	return &Executor{r: r, histR: histR, genesis: genesisHash}
}

func (e *Executor) chainConfig() (*params.ChainConfig, error) {
	return chain.ReadChainConfig(e.r, e.genesis)
}

// newStateDB materialises historical state at height behind a fresh,
// per-request overlay.
func (e *Executor) newStateDB(height uint64) *evmstate.StateDB {
	reader := statecache.NewCachedReader(historystate.New(e.histR, height))
	return evmstate.New(reader, nil)
}

// TraceCall materialises state at block, applies call once with no preceding
// transactions, and returns the requested trace outputs.
func (e *Executor) TraceCall(ctx context.Context, block *chain.BlockWithHash, call CallParams, cfg TraceConfig) (*Result, error) {
	chainCfg, err := e.chainConfig()
	if err != nil {
		return nil, err
	}
	sdb := e.newStateDB(block.Number())
	return e.runCall(chainCfg, block.Header, sdb, call, cfg)
}

// TraceCallMany applies a sequence of calls against block's state, carrying
// mutations from one call into the next within the same request.
func (e *Executor) TraceCallMany(ctx context.Context, block *chain.BlockWithHash, calls []CallParams, cfgs []TraceConfig) ([]*Result, error) {
	chainCfg, err := e.chainConfig()
	if err != nil {
		return nil, err
	}
	sdb := e.newStateDB(block.Number())

	out := make([]*Result, len(calls))
	for i, call := range calls {
		cfg := TraceConfig{}
		if i < len(cfgs) {
			cfg = cfgs[i]
		}
		res, err := e.runCall(chainCfg, block.Header, sdb, call, cfg)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

func (e *Executor) runCall(chainCfg *params.ChainConfig, header *types.Header, sdb *evmstate.StateDB, call CallParams, cfg TraceConfig) (*Result, error) {
	var from common.Address
	if call.From != nil {
		from = *call.From
	}
	msg := messageFromCall(call, sdb.GetNonce(from))

	balance := sdb.GetBalance(from).ToBig()
	if pcErr := preCheck(msg, header, balance, DefaultFeeCapCeiling); pcErr != nil {
		return &Result{Err: pcErr}, nil
	}

	return e.runOne(chainCfg, header, sdb, msg, cfg)
}

// TraceRawTransaction decodes a raw signed transaction and runs it against
// head's state (the only sensible block for a speculative, not-yet-mined
// transaction), enforcing replay protection.
func (e *Executor) TraceRawTransaction(ctx context.Context, head *chain.BlockWithHash, rawTx []byte, cfg TraceConfig) (*Result, error) {
	chainCfg, err := e.chainConfig()
	if err != nil {
		return nil, err
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return nil, fmt.Errorf("traceexec: decoding raw transaction: %w", err)
	}

	signer := types.MakeSigner(chainCfg, head.Header.Number, head.Header.Time)
	if pcErr := checkReplayProtection(tx, chainCfg.ChainID); pcErr != nil {
		return &Result{Err: pcErr}, nil
	}

	msg, err := messageFromTransaction(tx, signer, head.Header.BaseFee)
	if err != nil {
		return &Result{Err: NewPreCheckError(err.Error())}, nil
	}

	sdb := e.newStateDB(head.Number())
	balance := sdb.GetBalance(msg.From).ToBig()
	if pcErr := preCheck(msg, head.Header, balance, DefaultFeeCapCeiling); pcErr != nil {
		return &Result{Err: pcErr}, nil
	}

	return e.runOne(chainCfg, head.Header, sdb, msg, cfg)
}

// TraceReplayTransaction replays txHash's transaction in its enclosing
// block, applying every preceding transaction first so state reflects the
// point immediately before it executed.
func (e *Executor) TraceReplayTransaction(ctx context.Context, block *chain.BlockWithHash, txHash common.Hash, cfg TraceConfig) (*Result, error) {
	chainCfg, err := e.chainConfig()
	if err != nil {
		return nil, err
	}
	// Start from the state at the end of the parent block, before any of
	// block's own transactions.
	height := block.Number()
	if height > 0 {
		height--
	}
	sdb := e.newStateDB(height)
	signer := types.MakeSigner(chainCfg, block.Header.Number, block.Header.Time)

	var target *Result
	for i, txn := range block.Transactions {
		msg, err := messageFromTransaction(txn, signer, block.Header.BaseFee)
		if err != nil {
			return nil, err
		}
		if len(block.Senders) > i && block.Senders[i] != (common.Address{}) {
			msg.From = block.Senders[i]
		}

		isTarget := txn.Hash() == txHash
		runCfg := TraceConfig{}
		if isTarget {
			runCfg = cfg
		}
		res, err := e.runOne(chainCfg, block.Header, sdb, msg, runCfg)
		if err != nil {
			return nil, err
		}
		if isTarget {
			target = res
		}
	}
	return target, nil
}

// TraceReplayBlockTransactions applies and traces every transaction in
// block, in order, returning one Result per transaction.
func (e *Executor) TraceReplayBlockTransactions(ctx context.Context, block *chain.BlockWithHash, cfg TraceConfig) ([]*Result, error) {
	chainCfg, err := e.chainConfig()
	if err != nil {
		return nil, err
	}
	// Start from the state at the end of the parent block, before any of
	// block's own transactions.
	height := block.Number()
	if height > 0 {
		height--
	}
	sdb := e.newStateDB(height)
	signer := types.MakeSigner(chainCfg, block.Header.Number, block.Header.Time)

	out := make([]*Result, len(block.Transactions))
	for i, txn := range block.Transactions {
		msg, err := messageFromTransaction(txn, signer, block.Header.BaseFee)
		if err != nil {
			return nil, err
		}
		if len(block.Senders) > i && block.Senders[i] != (common.Address{}) {
			msg.From = block.Senders[i]
		}
		res, err := e.runOne(chainCfg, block.Header, sdb, msg, cfg)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// TraceBlock produces the flat frame list across every transaction plus the
// synthetic block/uncle reward entries, in execution order.
func (e *Executor) TraceBlock(ctx context.Context, block *chain.BlockWithHash) ([]*tracers.ParityTrace, error) {
	results, err := e.TraceReplayBlockTransactions(ctx, block, TraceConfig{Trace: true})
	if err != nil {
		return nil, err
	}

	hash := block.Hash
	number := block.Number()
	var out []*tracers.ParityTrace
	for i, res := range results {
		if res == nil || res.Err != nil {
			continue
		}
		txHash := block.Transactions[i].Hash()
		txIdx := uint64(i)
		for _, pt := range res.Trace {
			pt.BlockHash = &hash
			pt.BlockNumber = &number
			pt.TransactionHash = &txHash
			pt.TransactionPosition = &txIdx
			out = append(out, pt)
		}
	}

	chainCfg, err := e.chainConfig()
	if err != nil {
		return nil, err
	}
	for _, rw := range blockAndUncleRewards(chainCfg, block.Header, block.Uncles) {
		rw.BlockHash = &hash
		rw.BlockNumber = &number
		out = append(out, rw)
	}
	return out, nil
}

// TraceTransaction returns the flat-list trace for a single transaction
// within its enclosing block, used by trace_transaction and trace_get.
func (e *Executor) TraceTransaction(ctx context.Context, block *chain.BlockWithHash, txHash common.Hash) ([]*tracers.ParityTrace, error) {
	res, err := e.TraceReplayTransaction(ctx, block, txHash, TraceConfig{Trace: true})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Err != nil {
		return nil, nil
	}

	hash := block.Hash
	number := block.Number()
	var txIdx uint64
	for i, txn := range block.Transactions {
		if txn.Hash() == txHash {
			txIdx = uint64(i)
			break
		}
	}

	out := make([]*tracers.ParityTrace, 0, len(res.Trace))
	for _, pt := range res.Trace {
		pt.BlockHash = &hash
		pt.BlockNumber = &number
		pt.TransactionHash = &txHash
		pt.TransactionPosition = &txIdx
		out = append(out, pt)
	}
	return out, nil
}

// runOne runs msg against header's state through sdb, driving whichever
// tracers cfg selects, and assembles a Result from their accumulated state.
func (e *Executor) runOne(chainCfg *params.ChainConfig, header *types.Header, sdb *evmstate.StateDB, msg *core.Message, cfg TraceConfig) (*Result, error) {
	var oe *tracers.OeTracer
	var vmt *tracers.VMTracer

	if cfg.Trace {
		oe = tracers.NewOeTracer(cfg.DecodeRevert)
	}
	if cfg.VmTrace {
		var code []byte
		if msg.To != nil {
			code = sdb.GetCode(*msg.To)
		} else {
			code = msg.Data
		}
		vmt = tracers.NewVMTracer(code)
	}

	var hooks []*tracing.Hooks
	if oe != nil {
		hooks = append(hooks, oe.Hooks())
	}
	if vmt != nil {
		hooks = append(hooks, vmt.Hooks())
	}
	combined := combineHooks(hooks...)
	sdb.SetHooks(combined)

	if cfg.StateDiff {
		sdb.BeginAccountDiff()
	}

	rr, err := applyMessage(chainCfg, header, e.r, sdb, msg, combined)
	if err != nil {
		return nil, err
	}

	res := &Result{Output: rr.ReturnData, GasUsed: rr.GasUsed}
	if cfg.Trace && oe != nil {
		res.Trace = oe.Traces()
	}
	if cfg.VmTrace && vmt != nil {
		res.VmTrace = vmt.Trace()
	}
	if cfg.StateDiff {
		preAccounts, postAccounts := sdb.EndAccountDiff()
		diffs := make(map[common.Address]*tracers.AccountDiff)
		for addr := range preAccounts {
			diffs[addr] = tracers.BuildAccountDiff(preAccounts[addr], postAccounts[addr])
		}
		for addr := range postAccounts {
			if _, ok := diffs[addr]; !ok {
				diffs[addr] = tracers.BuildAccountDiff(preAccounts[addr], postAccounts[addr])
			}
		}
		res.StateDiff = diffs
	}
	return res, nil
}
