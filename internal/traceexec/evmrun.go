package traceexec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/erigontech/tracegateway/internal/chain"
	"github.com/erigontech/tracegateway/internal/evmstate"
)

// getHashFn resolves BLOCKHASH lookups against the canonical-hash table,
// the manual replacement for core.NewEVMBlockContext's chain-context
// argument (which this gateway has no consensus.Engine to supply).
func getHashFn(r chain.Reader) vm.GetHashFunc {
	return func(n uint64) common.Hash {
		h, err := chain.ReadCanonicalHash(r, n)
		if err != nil {
			return common.Hash{}
		}
		return h
	}
}

// newBlockContext builds the vm.BlockContext for header by hand, the way a
// tool with no consensus.Engine of its own must: see core/evm.go's
// NewEVMBlockContext for the fields this mirrors.
func newBlockContext(header *types.Header, getHash vm.GetHashFunc) vm.BlockContext {
	var baseFee *big.Int
	if header.BaseFee != nil {
		baseFee = new(big.Int).Set(header.BaseFee)
	}
	var random *common.Hash
	if header.Difficulty != nil && header.Difficulty.Sign() == 0 {
		r := header.MixDigest
		random = &r
	}
	difficulty := header.Difficulty
	if difficulty == nil {
		difficulty = new(big.Int)
	}
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     getHash,
		Coinbase:    header.Coinbase,
		GasLimit:    header.GasLimit,
		BlockNumber: new(big.Int).Set(header.Number),
		Time:        header.Time,
		Difficulty:  new(big.Int).Set(difficulty),
		BaseFee:     baseFee,
		Random:      random,
	}
}

// runResult is one applied message's raw outcome, before it is rendered
// into the caller's requested trace shapes.
type runResult struct {
	ReturnData []byte
	GasUsed    uint64
	Err        error
	Reverted   bool
	StateDB    *evmstate.StateDB
}

// applyMessage runs msg against header's historical state through reader,
// driving hooks if non-nil, and returns the raw execution outcome. The
// caller owns interpreting hooks' accumulated tracer state afterward.
func applyMessage(cfg *params.ChainConfig, header *types.Header, r chain.Reader, sdb *evmstate.StateDB, msg *core.Message, hooks *tracing.Hooks) (*runResult, error) {
	blockCtx := newBlockContext(header, getHashFn(r))
	vmCfg := vm.Config{Tracer: hooks}

	evm := vm.NewEVM(blockCtx, sdb, cfg, vmCfg)
	evm.SetTxContext(core.NewEVMTxContext(msg))

	gp := new(core.GasPool).AddGas(msg.GasLimit)
	result, err := core.ApplyMessage(evm, msg, gp)
	if err != nil {
		return nil, err
	}

	return &runResult{
		ReturnData: result.ReturnData,
		GasUsed:    result.UsedGas,
		Err:        result.Err,
		Reverted:   result.Err != nil,
		StateDB:    sdb,
	}, nil
}
