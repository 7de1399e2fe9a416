package dispatcher

import (
	"github.com/erigontech/tracegateway/internal/traceexec"
)

// rpcError implements rpc.Error (Error() string, ErrorCode() int), the
// interface the rpc package's handler consults to pick a JSON-RPC error
// code instead of falling back to its generic internal-error code.
type rpcError struct {
	message string
	code    int
}

func (e *rpcError) Error() string  { return e.message }
func (e *rpcError) ErrorCode() int { return e.code }

// faultCode is the code the dispatcher reports read-transaction,
// block-resolution, chain-read and executor failures under, distinct from
// -32602 and the executor's own -32000 pre-check code. No method in this
// package checks parameter arity or recovers a panic.
const faultCode = 100

// preCheckErrorCode is the JSON-RPC application error code the executor's
// in-band pre-check rejections are surfaced under.
const preCheckErrorCode = -32000

func newFaultError(message string) *rpcError {
	return &rpcError{message: message, code: faultCode}
}

// wrapPreCheckError converts the executor's in-band rejection into the
// dispatcher's wire error type.
func wrapPreCheckError(pc *traceexec.PreCheckError) *rpcError {
	return &rpcError{message: pc.Message, code: preCheckErrorCode}
}
