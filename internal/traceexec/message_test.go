package traceexec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestConfigFromStrings(t *testing.T) {
	cfg := ConfigFromStrings([]string{"trace", "vmTrace"})
	require.True(t, cfg.Trace)
	require.True(t, cfg.VmTrace)
	require.False(t, cfg.StateDiff)
}

func TestMessageFromCallDefaults(t *testing.T) {
	msg := messageFromCall(CallParams{}, 7)
	require.Equal(t, uint64(defaultCallGas), msg.GasLimit)
	require.Equal(t, uint64(7), msg.Nonce)
	require.Equal(t, big.NewInt(0), msg.Value)
	require.Equal(t, big.NewInt(0), msg.GasPrice)
}

func TestMessageFromCallLegacyGasPrice(t *testing.T) {
	call := CallParams{GasPrice: big.NewInt(42)}
	msg := messageFromCall(call, 0)
	require.Equal(t, big.NewInt(42), msg.GasPrice)
	require.Equal(t, big.NewInt(42), msg.GasFeeCap)
	require.Equal(t, big.NewInt(42), msg.GasTipCap)
}

func TestMessageFromCallEIP1559(t *testing.T) {
	call := CallParams{
		MaxFeePerGas:         big.NewInt(100),
		MaxPriorityFeePerGas: big.NewInt(10),
	}
	msg := messageFromCall(call, 0)
	require.Equal(t, big.NewInt(100), msg.GasFeeCap)
	require.Equal(t, big.NewInt(10), msg.GasTipCap)
	require.Equal(t, big.NewInt(100), msg.GasPrice)
}

func TestMessageFromCallExplicitTo(t *testing.T) {
	to := common.HexToAddress("0xbeef")
	call := CallParams{To: &to}
	msg := messageFromCall(call, 0)
	require.Equal(t, &to, msg.To)
}
