package tracers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pad32(n int) []byte {
	b := make([]byte, 32)
	b[31] = byte(n)
	return b
}

func TestDecodeRevertReason(t *testing.T) {
	reason := "Ownable: caller is not the owner"
	var data []byte
	data = append(data, revertSelector[:]...)
	data = append(data, pad32(32)...)
	data = append(data, pad32(len(reason))...)
	data = append(data, []byte(reason)...)
	// pad to a multiple of 32
	for len(data)%32 != 0 {
		data = append(data, 0)
	}

	got, err := DecodeRevertReason(data)
	require.NoError(t, err)
	require.Equal(t, reason, got)

	require.Equal(t, "execution failed: "+reason, FormatExecutionFailure(data, true))
	require.Equal(t, "execution failed", FormatExecutionFailure(data, false))
}

func TestDecodeRevertReasonTruncated(t *testing.T) {
	_, err := DecodeRevertReason([]byte{0x08, 0xc3, 0x79, 0xa0})
	require.ErrorIs(t, err, ErrNotRevertReason)
}

func TestStatusMessageRevertWithDecode(t *testing.T) {
	reason := "Ownable: caller is not the owner"
	var data []byte
	data = append(data, revertSelector[:]...)
	data = append(data, pad32(32)...)
	data = append(data, pad32(len(reason))...)
	data = append(data, []byte(reason)...)
	for len(data)%32 != 0 {
		data = append(data, 0)
	}

	require.Equal(t, "execution reverted: "+reason, StatusRevert.Message(data, true))
	require.Equal(t, "execution reverted", StatusRevert.Message(data, false))
}
