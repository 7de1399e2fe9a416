package traceexec

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/erigontech/tracegateway/internal/tracers"
)

func newHexBigReward(v *big.Int) *hexutil.Big {
	b := hexutil.Big(*v)
	return &b
}

// blockReward matches ethash.AccumulateRewards' fork schedule: 5 ether pre
// Byzantium, 3 ether from Byzantium, 2 ether from Constantinople onward.
func blockReward(cfg *params.ChainConfig, number *big.Int) *big.Int {
	reward := new(big.Int).Mul(big.NewInt(5), big.NewInt(params.Ether))
	if cfg.IsByzantium(number) {
		reward = new(big.Int).Mul(big.NewInt(3), big.NewInt(params.Ether))
	}
	if cfg.IsConstantinople(number) {
		reward = new(big.Int).Mul(big.NewInt(2), big.NewInt(params.Ether))
	}
	return reward
}

// blockAndUncleRewards synthesizes the reward actions trace_block appends
// after a block's transaction traces: one per uncle plus the miner's own,
// grounded on ethash.AccumulateRewards' formula (uncle reward scaled by its
// height delta from the block, miner reward bumped 1/32 per included uncle).
func blockAndUncleRewards(cfg *params.ChainConfig, header *types.Header, uncles []*types.Header) []*tracers.ParityTrace {
	base := blockReward(cfg, header.Number)
	minerReward := new(big.Int).Set(base)

	out := make([]*tracers.ParityTrace, 0, len(uncles)+1)

	eight := big.NewInt(8)
	for _, uncle := range uncles {
		uncleReward := new(big.Int).Add(uncle.Number, eight)
		uncleReward.Sub(uncleReward, header.Number)
		uncleReward.Mul(uncleReward, base)
		uncleReward.Div(uncleReward, eight)

		out = append(out, &tracers.ParityTrace{
			Type:         "reward",
			TraceAddress: []int{},
			Action: &tracers.RewardTraceAction{
				Author:     uncle.Coinbase,
				RewardType: tracers.RewardTypeUncle,
				Value:      newHexBigReward(uncleReward),
			},
		})

		extra := new(big.Int).Div(base, big.NewInt(32))
		minerReward.Add(minerReward, extra)
	}

	out = append(out, &tracers.ParityTrace{
		Type:         "reward",
		TraceAddress: []int{},
		Action: &tracers.RewardTraceAction{
			Author:     header.Coinbase,
			RewardType: tracers.RewardTypeBlock,
			Value:      newHexBigReward(minerReward),
		},
	})

	return out
}
