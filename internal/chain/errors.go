package chain

import "errors"

// ErrEmptyValue is returned by accessors that require a value and found
// none, where the caller needs to distinguish "missing" from a decode
// failure.
var ErrEmptyValue = errors.New("chain: empty value")

// ErrTxCountMismatch is returned by ReadReceipts when the number of
// receipts disagrees with the number of transactions in the block; §7
// classifies this as data corruption, a hard error, never a partial result.
var ErrTxCountMismatch = errors.New("chain: transaction count does not match receipt count")
