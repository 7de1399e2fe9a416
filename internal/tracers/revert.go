package tracers

import (
	"encoding/binary"
	"errors"
)

// revertSelector is the 4-byte selector of Error(string), the ABI shape
// Solidity's require()/revert("msg") compiles down to.
var revertSelector = [4]byte{0x08, 0xc3, 0x79, 0xa0}

// ErrNotRevertReason is returned by DecodeRevertReason when the return data
// does not carry the standard Error(string) encoding.
var ErrNotRevertReason = errors.New("tracers: return data is not an Error(string) revert reason")

// DecodeRevertReason decodes EVM revert return data encoded as
// Error(string): 4-byte selector, 32-byte offset, 32-byte length, then the
// UTF-8 message padded to a multiple of 32 bytes.
func DecodeRevertReason(data []byte) (string, error) {
	if len(data) < 4 || data[0] != revertSelector[0] || data[1] != revertSelector[1] ||
		data[2] != revertSelector[2] || data[3] != revertSelector[3] {
		return "", ErrNotRevertReason
	}
	payload := data[4:]
	if len(payload) < 64 {
		return "", ErrNotRevertReason
	}
	offset := binary.BigEndian.Uint64(payload[24:32])
	if offset != 32 {
		return "", ErrNotRevertReason
	}
	length := binary.BigEndian.Uint64(payload[56:64])
	start := uint64(64)
	if start+length > uint64(len(payload)) {
		return "", ErrNotRevertReason
	}
	return string(payload[start : start+length]), nil
}

// FormatExecutionFailure renders the "other failure" message for a reverted
// or otherwise-failed call: "execution failed", with the decoded revert
// reason appended after a colon when decode is requested and the return
// data parses as Error(string).
func FormatExecutionFailure(returnData []byte, decode bool) string {
	const base = "execution failed"
	if !decode {
		return base
	}
	reason, err := DecodeRevertReason(returnData)
	if err != nil {
		return base
	}
	return base + ": " + reason
}
