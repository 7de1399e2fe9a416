package tracers

import "github.com/ethereum/go-ethereum/common"

// precompileAddresses is the closed set of precompile addresses excluded
// from the access-list tracer's output. evm_access_list_tracer.cpp leaves
// this unresolved ("ADD check on precompiled when available from
// silkworm"); resolved here as the Istanbul-and-later set 0x01-0x09, the
// addresses live on every chain this gateway replays against.
var precompileAddresses = func() map[common.Address]struct{} {
	m := make(map[common.Address]struct{}, 9)
	for i := byte(1); i <= 9; i++ {
		m[common.BytesToAddress([]byte{i})] = struct{}{}
	}
	return m
}()

// IsPrecompile reports whether addr is one of the well-known precompiles.
func IsPrecompile(addr common.Address) bool {
	_, ok := precompileAddresses[addr]
	return ok
}
