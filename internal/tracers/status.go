package tracers

// Status is the closed set of EVM execution outcomes the trace executor
// maps to a user-visible message, mirroring the teacher's vm.ErrXxx
// sentinel set translated for Parity-compatible output.
type Status int

const (
	StatusSuccess Status = iota
	StatusRevert
	StatusOutOfGas
	StatusInvalidInstruction
	StatusUndefinedInstruction
	StatusStackOverflow
	StatusStackUnderflow
	StatusBadJumpDestination
	StatusInvalidMemoryAccess
	StatusCallDepthExceeded
	StatusStaticModeViolation
	StatusPrecompileFailure
	StatusContractValidationFailure
	StatusArgumentOutOfRange
	StatusWasmUnreachable
	StatusWasmTrap
	StatusOtherFailure
	StatusUnknown
)

// statusMessages is the closed status -> message mapping of §4.6.
var statusMessages = map[Status]string{
	StatusSuccess:                    "",
	StatusRevert:                     "execution reverted",
	StatusOutOfGas:                   "out of gas",
	StatusInvalidInstruction:         "invalid instruction",
	StatusUndefinedInstruction:       "invalid opcode",
	StatusStackOverflow:              "stack overflow",
	StatusStackUnderflow:             "stack underflow",
	StatusBadJumpDestination:         "invalid jump destination",
	StatusInvalidMemoryAccess:        "invalid memory access",
	StatusCallDepthExceeded:          "call depth exceeded",
	StatusStaticModeViolation:        "static mode violation",
	StatusPrecompileFailure:          "precompile failure",
	StatusContractValidationFailure:  "contract validation failure",
	StatusArgumentOutOfRange:         "argument out of range",
	StatusWasmUnreachable:            "wasm unreachable instruction",
	StatusWasmTrap:                   "wasm trap",
	StatusOtherFailure:               "execution failed",
	StatusUnknown:                    "unknown error code",
}

// Message returns status's mapped string, optionally with a decoded revert
// reason appended for StatusRevert.
func (s Status) Message(returnData []byte, decodeReason bool) string {
	msg, ok := statusMessages[s]
	if !ok {
		msg = statusMessages[StatusUnknown]
	}
	if s == StatusRevert && decodeReason {
		if reason, err := DecodeRevertReason(returnData); err == nil {
			return msg + ": " + reason
		}
	}
	return msg
}

// StatusFromVMError classifies a go-ethereum vm.ErrXxx sentinel into the
// closed Status set. Unrecognized errors map to StatusOtherFailure rather
// than StatusUnknown, since they are real EVM errors this gateway simply
// has not named yet.
func StatusFromVMError(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	if msg, ok := vmErrorMessages[err.Error()]; ok {
		return msg
	}
	return StatusOtherFailure
}

// vmErrorMessages maps the exact Error() text of core/vm's errors to the
// closed Status set; an error whose text is not one of these keys (including
// one that appends detail such as an operand or stack size) matches nothing.
var vmErrorMessages = map[string]Status{
	"execution reverted":                  StatusRevert,
	"out of gas":                          StatusOutOfGas,
	"invalid instruction":                 StatusInvalidInstruction,
	"invalid opcode":                      StatusUndefinedInstruction,
	"stack overflow":                      StatusStackOverflow,
	"stack underflow":                     StatusStackUnderflow,
	"invalid jump destination":            StatusBadJumpDestination,
	"invalid memory access":               StatusInvalidMemoryAccess,
	"max call depth exceeded":             StatusCallDepthExceeded,
	"write protection":                    StatusStaticModeViolation,
	"contract creation code storage out of gas": StatusContractValidationFailure,
}
