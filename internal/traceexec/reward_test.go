package traceexec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/erigontech/tracegateway/internal/tracers"
	"github.com/stretchr/testify/require"
)

func constantinopleConfig() *params.ChainConfig {
	cfg := *params.MainnetChainConfig
	cfg.ByzantiumBlock = big.NewInt(0)
	cfg.ConstantinopleBlock = big.NewInt(0)
	return &cfg
}

func TestBlockRewardForkSchedule(t *testing.T) {
	cfg := &params.ChainConfig{}
	require.Equal(t, new(big.Int).Mul(big.NewInt(5), big.NewInt(params.Ether)), blockReward(cfg, big.NewInt(1)))

	byz := &params.ChainConfig{ByzantiumBlock: big.NewInt(0)}
	require.Equal(t, new(big.Int).Mul(big.NewInt(3), big.NewInt(params.Ether)), blockReward(byz, big.NewInt(1)))

	con := constantinopleConfig()
	require.Equal(t, new(big.Int).Mul(big.NewInt(2), big.NewInt(params.Ether)), blockReward(con, big.NewInt(100)))
}

func TestBlockAndUncleRewards(t *testing.T) {
	cfg := constantinopleConfig()
	header := &types.Header{
		Number:   big.NewInt(100),
		Coinbase: common.HexToAddress("0xminer"),
	}
	uncle := &types.Header{
		Number:   big.NewInt(99),
		Coinbase: common.HexToAddress("0xuncle"),
	}

	traces := blockAndUncleRewards(cfg, header, []*types.Header{uncle})
	require.Len(t, traces, 2)

	uncleAction, ok := traces[0].Action.(*tracers.RewardTraceAction)
	require.True(t, ok)
	require.Equal(t, tracers.RewardTypeUncle, uncleAction.RewardType)

	base := blockReward(cfg, header.Number)
	wantUncle := new(big.Int).Add(uncle.Number, big.NewInt(8))
	wantUncle.Sub(wantUncle, header.Number)
	wantUncle.Mul(wantUncle, base)
	wantUncle.Div(wantUncle, big.NewInt(8))
	require.Equal(t, wantUncle, (*big.Int)(uncleAction.Value))

	minerAction, ok := traces[1].Action.(*tracers.RewardTraceAction)
	require.True(t, ok)
	require.Equal(t, tracers.RewardTypeBlock, minerAction.RewardType)

	wantMiner := new(big.Int).Add(base, new(big.Int).Div(base, big.NewInt(32)))
	require.Equal(t, wantMiner, (*big.Int)(minerAction.Value))
}

func TestBlockRewardsWithNoUncles(t *testing.T) {
	cfg := constantinopleConfig()
	header := &types.Header{Number: big.NewInt(1), Coinbase: common.HexToAddress("0xminer")}
	traces := blockAndUncleRewards(cfg, header, nil)
	require.Len(t, traces, 1)
	require.Equal(t, []int{}, traces[0].TraceAddress)
}
