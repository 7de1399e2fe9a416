// Package evmstate adapts the history-aware CachedReader to go-ethereum's
// vm.StateDB, the interface core/vm's interpreter drives a running EVM
// through. Where core/state's IntraBlockState journals individual field
// changes for O(1) revert, StateDB here snapshots the whole dirty overlay on
// Snapshot and restores it wholesale on RevertToSnapshot: this gateway never
// commits a mutation back to storage, so the overlay only ever needs to
// survive one transaction's nested calls, not a block's worth of journal
// entries (see DESIGN.md).
package evmstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/erigontech/tracegateway/internal/statecache"
	"github.com/erigontech/tracegateway/internal/tracers"
)

type accountState struct {
	balance     *uint256.Int
	nonce       uint64
	codeHash    common.Hash
	code        []byte
	incarnation uint64
	exists      bool
	selfDestruct bool
	newlyCreated bool
}

// StateDB implements go-ethereum's vm.StateDB against a point-in-time
// historical view, read through a CachedReader and overlaid with the
// in-flight mutations of the transaction(s) currently executing.
type StateDB struct {
	reader *statecache.CachedReader

	accounts map[common.Address]*accountState
	storage  map[common.Address]map[common.Hash]common.Hash
	transient map[common.Address]map[common.Hash]common.Hash

	refund uint64
	logs   []*types.Log
	txHash common.Hash
	txIndex int

	accessListAddrs map[common.Address]struct{}
	accessListSlots map[common.Address]map[common.Hash]struct{}

	snapshots []snapshot
	hooks     *tracing.Hooks

	diffBase          map[common.Address]*tracers.AccountSnapshot
	diffTrackedAccounts map[common.Address]*accountState
	diffTrackedStorage  map[common.Address]map[common.Hash]common.Hash
	diffStorageSeen     map[common.Address]map[common.Hash]struct{}
}

type snapshot struct {
	accounts  map[common.Address]*accountState
	storage   map[common.Address]map[common.Hash]common.Hash
	transient map[common.Address]map[common.Hash]common.Hash
	refund    uint64
	logsLen   int
	accessListAddrs map[common.Address]struct{}
	accessListSlots map[common.Address]map[common.Hash]struct{}
}

// New builds a StateDB reading through reader. hooks may be nil when no
// tracer is attached to this execution.
func New(reader *statecache.CachedReader, hooks *tracing.Hooks) *StateDB {
	return &StateDB{
		reader:          reader,
		accounts:        make(map[common.Address]*accountState),
		storage:         make(map[common.Address]map[common.Hash]common.Hash),
		transient:       make(map[common.Address]map[common.Hash]common.Hash),
		accessListAddrs: make(map[common.Address]struct{}),
		accessListSlots: make(map[common.Address]map[common.Hash]struct{}),
		hooks:           hooks,
	}
}

func cloneAccounts(m map[common.Address]*accountState) map[common.Address]*accountState {
	out := make(map[common.Address]*accountState, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneStorage(m map[common.Address]map[common.Hash]common.Hash) map[common.Address]map[common.Hash]common.Hash {
	out := make(map[common.Address]map[common.Hash]common.Hash, len(m))
	for addr, slots := range m {
		s := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			s[k] = v
		}
		out[addr] = s
	}
	return out
}

func cloneAddrSet(m map[common.Address]struct{}) map[common.Address]struct{} {
	out := make(map[common.Address]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func cloneSlotSet(m map[common.Address]map[common.Hash]struct{}) map[common.Address]map[common.Hash]struct{} {
	out := make(map[common.Address]map[common.Hash]struct{}, len(m))
	for addr, slots := range m {
		s := make(map[common.Hash]struct{}, len(slots))
		for k := range slots {
			s[k] = struct{}{}
		}
		out[addr] = s
	}
	return out
}

// Snapshot records the full overlay and returns a handle RevertToSnapshot
// can later restore.
func (s *StateDB) Snapshot() int {
	s.snapshots = append(s.snapshots, snapshot{
		accounts:        cloneAccounts(s.accounts),
		storage:         cloneStorage(s.storage),
		transient:       cloneStorage(s.transient),
		refund:          s.refund,
		logsLen:         len(s.logs),
		accessListAddrs: cloneAddrSet(s.accessListAddrs),
		accessListSlots: cloneSlotSet(s.accessListSlots),
	})
	return len(s.snapshots) - 1
}

func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	snap := s.snapshots[id]
	s.accounts = snap.accounts
	s.storage = snap.storage
	s.transient = snap.transient
	s.refund = snap.refund
	s.logs = s.logs[:snap.logsLen]
	s.accessListAddrs = snap.accessListAddrs
	s.accessListSlots = snap.accessListSlots
	s.snapshots = s.snapshots[:id]
}

// SetTxContext primes per-transaction bookkeeping (log indexing) the way
// IntraBlockState's SetTxContext does before a transaction executes.
func (s *StateDB) SetTxContext(hash common.Hash, index int) {
	s.txHash = hash
	s.txIndex = index
}

// SetHooks swaps the active tracer hooks, letting the executor attach a
// fresh tracer per call while the overlay itself is carried forward across
// the calls of one trace_callMany/trace_replayBlockTransactions request.
func (s *StateDB) SetHooks(hooks *tracing.Hooks) { s.hooks = hooks }

// Accounts returns a snapshot of every address currently materialised in
// the overlay, keyed for the state-diff tracer's before/after comparison.
// Only storage slots already written are included (reads are not kept in
// the overlay); slots the EVM never wrote carry no comparison value,
// matching Parity's stateDiff, which only ever reports touched keys.
func (s *StateDB) Accounts() map[common.Address]*tracers.AccountSnapshot {
	out := make(map[common.Address]*tracers.AccountSnapshot, len(s.accounts))
	for addr, a := range s.accounts {
		if !a.exists {
			continue
		}
		slots := s.storage[addr]
		storage := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			storage[k] = v
		}
		out[addr] = &tracers.AccountSnapshot{
			Balance: a.balance.ToBig(),
			Nonce:   a.nonce,
			Code:    a.code,
			Storage: storage,
		}
	}
	return out
}

// BeginAccountDiff snapshots the overlay as the "before" baseline for the
// call about to run and starts tracking, for the duration of that call, the
// pre-call value of every account materialised for the first time — a
// callee, a freshly created contract, an address whose storage an SLOAD
// reads — and of every storage slot written for the first time. Without
// this, such accounts and slots would have no baseline entry at all and
// BuildAccountDiff would render them as bare creations instead of diffing
// them against their real pre-call value.
func (s *StateDB) BeginAccountDiff() {
	s.diffBase = s.Accounts()
	s.diffTrackedAccounts = make(map[common.Address]*accountState)
	s.diffTrackedStorage = make(map[common.Address]map[common.Hash]common.Hash)
	s.diffStorageSeen = make(map[common.Address]map[common.Hash]struct{})
}

// EndAccountDiff returns the before/after AccountSnapshot maps for the call
// bracketed by the matching BeginAccountDiff, backfilling "before" with the
// first-touch pre-images BeginAccountDiff started tracking.
func (s *StateDB) EndAccountDiff() (before, after map[common.Address]*tracers.AccountSnapshot) {
	after = s.Accounts()

	before = make(map[common.Address]*tracers.AccountSnapshot, len(s.diffBase))
	for addr, snap := range s.diffBase {
		before[addr] = snap
	}

	for addr, a := range s.diffTrackedAccounts {
		if _, ok := before[addr]; ok || !a.exists {
			continue
		}
		before[addr] = &tracers.AccountSnapshot{
			Balance: a.balance.ToBig(),
			Nonce:   a.nonce,
			Code:    a.code,
			Storage: make(map[common.Hash]common.Hash),
		}
	}

	for addr, slots := range s.diffTrackedStorage {
		snap, ok := before[addr]
		if !ok {
			continue
		}
		if snap.Storage == nil {
			snap.Storage = make(map[common.Hash]common.Hash)
		}
		for key, val := range slots {
			if _, already := snap.Storage[key]; !already {
				snap.Storage[key] = val
			}
		}
	}

	s.diffBase = nil
	s.diffTrackedAccounts = nil
	s.diffTrackedStorage = nil
	s.diffStorageSeen = nil
	return before, after
}

func (s *StateDB) getOrLoad(addr common.Address) *accountState {
	if a, ok := s.accounts[addr]; ok {
		return a
	}
	acc, err := s.reader.ReadAccountData(addr)
	a := &accountState{balance: uint256.NewInt(0)}
	if err == nil && acc != nil {
		a.exists = true
		a.nonce = acc.Nonce
		a.incarnation = acc.Incarnation
		a.codeHash = acc.CodeHash
		bal, overflow := uint256.FromBig(acc.Balance)
		if !overflow {
			a.balance = bal
		}
	}
	s.accounts[addr] = a
	if s.diffTrackedAccounts != nil {
		if _, seen := s.diffTrackedAccounts[addr]; !seen {
			cp := *a
			s.diffTrackedAccounts[addr] = &cp
		}
	}
	return a
}

func (s *StateDB) CreateAccount(addr common.Address) {
	a := s.getOrLoad(addr)
	balance := a.balance
	s.accounts[addr] = &accountState{balance: balance, exists: true, newlyCreated: true}
}

func (s *StateDB) CreateContract(addr common.Address) {
	a := s.getOrLoad(addr)
	a.newlyCreated = true
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	a := s.getOrLoad(addr)
	prev := a.balance.Clone()
	a.balance = new(uint256.Int).Sub(a.balance, amount)
	if s.hooks != nil && s.hooks.OnBalanceChange != nil {
		s.hooks.OnBalanceChange(addr, prev.ToBig(), a.balance.ToBig(), reason)
	}
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	a := s.getOrLoad(addr)
	a.exists = true
	prev := a.balance.Clone()
	a.balance = new(uint256.Int).Add(a.balance, amount)
	if s.hooks != nil && s.hooks.OnBalanceChange != nil {
		s.hooks.OnBalanceChange(addr, prev.ToBig(), a.balance.ToBig(), reason)
	}
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	return s.getOrLoad(addr).balance
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.getOrLoad(addr).nonce
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	a := s.getOrLoad(addr)
	a.nonce = nonce
	a.exists = true
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	return s.getOrLoad(addr).codeHash
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	a := s.getOrLoad(addr)
	if a.code != nil {
		return a.code
	}
	if a.codeHash == (common.Hash{}) {
		return nil
	}
	code, err := s.reader.ReadAccountCode(a.codeHash)
	if err != nil {
		return nil
	}
	return code
}

func (s *StateDB) SetCode(addr common.Address, code []byte) {
	a := s.getOrLoad(addr)
	a.code = code
	a.codeHash = crypto.Keccak256Hash(code)
	a.exists = true
}

func (s *StateDB) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *StateDB) AddRefund(v uint64) { s.refund += v }
func (s *StateDB) SubRefund(v uint64) {
	if v > s.refund {
		s.refund = 0
		return
	}
	s.refund -= v
}
func (s *StateDB) GetRefund() uint64 { return s.refund }

func (s *StateDB) getStorageSlots(addr common.Address) map[common.Hash]common.Hash {
	m := s.storage[addr]
	if m == nil {
		m = make(map[common.Hash]common.Hash)
		s.storage[addr] = m
	}
	return m
}

func (s *StateDB) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	incarnation := s.getOrLoad(addr).incarnation
	v, err := s.reader.ReadAccountStorage(addr, incarnation, key)
	if err != nil || len(v) == 0 {
		return common.Hash{}
	}
	return common.BytesToHash(v)
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	if v, ok := s.getStorageSlots(addr)[key]; ok {
		return v
	}
	return s.GetCommittedState(addr, key)
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	prev := s.GetState(addr, key)
	if s.diffTrackedStorage != nil {
		seen := s.diffStorageSeen[addr]
		if seen == nil {
			seen = make(map[common.Hash]struct{})
			s.diffStorageSeen[addr] = seen
		}
		if _, touched := seen[key]; !touched {
			seen[key] = struct{}{}
			slots := s.diffTrackedStorage[addr]
			if slots == nil {
				slots = make(map[common.Hash]common.Hash)
				s.diffTrackedStorage[addr] = slots
			}
			slots[key] = prev
		}
	}
	s.getStorageSlots(addr)[key] = value
	if s.hooks != nil && s.hooks.OnStorageChange != nil {
		s.hooks.OnStorageChange(addr, key, prev, value)
	}
	return prev
}

func (s *StateDB) GetStorageRoot(addr common.Address) common.Hash { return common.Hash{} }

func (s *StateDB) getTransientSlots(addr common.Address) map[common.Hash]common.Hash {
	m := s.transient[addr]
	if m == nil {
		m = make(map[common.Hash]common.Hash)
		s.transient[addr] = m
	}
	return m
}

func (s *StateDB) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.getTransientSlots(addr)[key]
}

func (s *StateDB) SetTransientState(addr common.Address, key, value common.Hash) {
	s.getTransientSlots(addr)[key] = value
}

func (s *StateDB) SelfDestruct(addr common.Address) uint256.Int {
	a := s.getOrLoad(addr)
	prev := *a.balance
	a.selfDestruct = true
	a.balance = uint256.NewInt(0)
	return prev
}

func (s *StateDB) HasSelfDestructed(addr common.Address) bool {
	return s.getOrLoad(addr).selfDestruct
}

func (s *StateDB) SelfDestruct6780(addr common.Address) (uint256.Int, bool) {
	a := s.getOrLoad(addr)
	if !a.newlyCreated {
		return *uint256.NewInt(0), false
	}
	return s.SelfDestruct(addr), true
}

func (s *StateDB) Exist(addr common.Address) bool {
	return s.getOrLoad(addr).exists
}

func (s *StateDB) Empty(addr common.Address) bool {
	a := s.getOrLoad(addr)
	return !a.exists || (a.nonce == 0 && a.balance.IsZero() && (a.codeHash == common.Hash{}))
}

func (s *StateDB) AddressInAccessList(addr common.Address) bool {
	_, ok := s.accessListAddrs[addr]
	return ok
}

func (s *StateDB) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	addrOk := s.AddressInAccessList(addr)
	if !addrOk {
		return false, false
	}
	slots, ok := s.accessListSlots[addr]
	if !ok {
		return true, false
	}
	_, slotOk := slots[slot]
	return true, slotOk
}

func (s *StateDB) AddAddressToAccessList(addr common.Address) {
	s.accessListAddrs[addr] = struct{}{}
}

func (s *StateDB) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.accessListAddrs[addr] = struct{}{}
	if s.accessListSlots[addr] == nil {
		s.accessListSlots[addr] = make(map[common.Hash]struct{})
	}
	s.accessListSlots[addr][slot] = struct{}{}
}

// Prepare resets the per-transaction access list to EIP-2929/2930's rule:
// sender, recipient, precompiles and the declared access list are always
// warm.
func (s *StateDB) Prepare(rules params.Rules, sender, coinbase common.Address, dst *common.Address, precompiles []common.Address, list types.AccessList) {
	s.accessListAddrs = make(map[common.Address]struct{})
	s.accessListSlots = make(map[common.Address]map[common.Hash]struct{})
	s.AddAddressToAccessList(sender)
	if dst != nil {
		s.AddAddressToAccessList(*dst)
	}
	for _, p := range precompiles {
		s.AddAddressToAccessList(p)
	}
	for _, entry := range list {
		s.AddAddressToAccessList(entry.Address)
		for _, key := range entry.StorageKeys {
			s.AddSlotToAccessList(entry.Address, key)
		}
	}
	if rules.IsShanghai {
		s.AddAddressToAccessList(coinbase)
	}
}

func (s *StateDB) AddLog(log *types.Log) {
	log.TxHash = s.txHash
	log.TxIndex = uint(s.txIndex)
	log.Index = uint(len(s.logs))
	s.logs = append(s.logs, log)
}

func (s *StateDB) Logs() []*types.Log { return s.logs }

func (s *StateDB) AddPreimage(hash common.Hash, preimage []byte) {}

// ResolveIncarnation returns addr's current incarnation, used by the call
// tracer's CREATE2/SELFDESTRUCT bookkeeping.
func (s *StateDB) ResolveIncarnation(addr common.Address) uint64 {
	return s.getOrLoad(addr).incarnation
}
