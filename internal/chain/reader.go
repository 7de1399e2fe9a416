package chain

// Reader is the subset of remotekv.Tx the chain accessors need (§4.2's
// Database Reader capabilities). Accessors are written against this
// interface, not the concrete remote client, so tests can supply an
// in-memory fake transaction instead of a live gRPC peer.
type Reader interface {
	GetOne(table string, key []byte) ([]byte, error)
	ForPrefix(table string, prefix []byte, visitor func(k, v []byte) (bool, error)) error
	Walk(table string, startKey []byte, fixedBits int, visitor func(k, v []byte) (bool, error)) error
}
