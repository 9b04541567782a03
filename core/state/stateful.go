// Package state implements spec §4.B: Stateful, the component that
// presents the world as accounts and per-account storage tries rooted at
// one state hash, and mediates every VM interaction through the
// require/commit protocol.
package state

import (
	"fmt"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/types"
	"github.com/evmdev/node/vm"

	evmtrie "github.com/evmdev/node/trie"
)

// Stateful owns one working state root and the shared hash store behind
// it. It has no notion of "the chain" — chain.Chain is the sole owner of
// which root is "current" (spec §9's anti-singleton note).
type Stateful struct {
	store *evmtrie.HashStore
	root  common.Hash
}

// New creates a Stateful with an empty initial state rooted at the
// canonical empty-trie root.
func New(store *evmtrie.HashStore) *Stateful {
	return &Stateful{store: store, root: store.EmptyRoot()}
}

// NewAt creates a Stateful rooted at an already-known state root, for
// historical queries ("state at block N") and trace replay (spec §4.E
// group 5).
func NewAt(store *evmtrie.HashStore, root common.Hash) *Stateful {
	return &Stateful{store: store, root: root}
}

// Root returns the current working state root.
func (s *Stateful) Root() common.Hash { return s.root }

// Store exposes the shared hash store, e.g. for RPC code reads.
func (s *Stateful) Store() *evmtrie.HashStore { return s.store }

func (s *Stateful) accountsView() *evmtrie.View {
	v, err := s.store.View(s.root, common.Hash{})
	if err != nil {
		panic(fmt.Sprintf("state: open accounts view at %s: %v", s.root, err))
	}
	return v
}

// AccountView is a typed read view over the account trie rooted at a
// specific hash (spec §4.B's state_of(root)).
type AccountView struct{ v *evmtrie.View }

// StateOf opens an AccountView at an arbitrary root (not necessarily the
// current working root), for historical reads.
func (s *Stateful) StateOf(root common.Hash) *AccountView {
	v, err := s.store.View(root, common.Hash{})
	if err != nil {
		panic(err)
	}
	return &AccountView{v: v}
}

// Get returns the account at addr, or nil if the address is nonexistent.
func (a *AccountView) Get(addr common.Address) *types.Account {
	raw, ok, err := a.v.Get(addr.Bytes())
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil
	}
	acc := new(types.Account)
	if err := decodeAccountRLP(raw, acc); err != nil {
		panic(err)
	}
	return acc
}

// StorageView is a typed read view over one account's storage trie,
// defaulting unset slots to zero (spec §4.B's storage_state_of(root)).
type StorageView struct {
	store *evmtrie.HashStore
	owner common.Address
	root  common.Hash
}

// StorageStateOf opens a StorageView for addr's storage, rooted at the
// storage root found in the account trie at accountRoot. Storage of a
// nonexistent account is always zero.
func (s *Stateful) StorageStateOf(accountRoot common.Hash, addr common.Address) *StorageView {
	acc := s.StateOf(accountRoot).Get(addr)
	root := s.store.EmptyRoot()
	if acc != nil {
		root = common.Hash(acc.Root)
	}
	return &StorageView{store: s.store, owner: addr, root: root}
}

// Get returns the value at slot, defaulting to the zero U256 if unset.
func (v *StorageView) Get(slot common.Hash) common.Hash {
	view, err := v.store.View(v.root, common.Hash(gethcommon.BytesToHash(v.owner.Bytes())))
	if err != nil {
		panic(err)
	}
	raw, ok, err := view.Get(slot.Bytes())
	if err != nil {
		panic(err)
	}
	if !ok {
		return common.Hash{}
	}
	return gethcommon.BytesToHash(raw)
}

// Code returns the code blob for a code hash, or false if absent (the
// empty code hash always resolves to an empty, present blob).
func (s *Stateful) Code(codeHash common.Hash) ([]byte, bool) {
	if codeHash == common.EmptyCodeHash {
		return nil, true
	}
	return s.store.Get(codeHash)
}

// ValidTransaction is the output of ToValid: a transaction that has
// passed signature, nonce, balance and intrinsic-gas checks and is ready
// to run.
type ValidTransaction struct {
	From common.Address
	Tx   *types.Transaction
}

// ToValid implements spec §4.B's to_valid: checks signature, nonce,
// balance >= value + gas_price*gas_limit, intrinsic gas, and that
// gas_limit fits within the block limit.
func (s *Stateful) ToValid(tx *types.Transaction, blockGasLimit uint64, patch *vm.Patch) (*ValidTransaction, error) {
	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	from, err := gethtypes.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	fromAddr := common.Address(from)

	if tx.Gas() > blockGasLimit {
		return nil, fmt.Errorf("call failed: gas limit %d exceeds block limit %d", tx.Gas(), blockGasLimit)
	}

	av := s.StateOf(s.root)
	acc := av.Get(fromAddr)
	nonce := uint64(0)
	balance := new(uint256.Int)
	if acc != nil {
		nonce = acc.Nonce
		balance = acc.Balance
	}
	if tx.Nonce() != nonce {
		return nil, fmt.Errorf("call failed: nonce mismatch, have %d want %d", tx.Nonce(), nonce)
	}

	cost, overflow := new(uint256.Int).MulOverflow(
		uint256.NewInt(tx.Gas()), uint256.MustFromBig(tx.GasPrice()))
	if overflow {
		return nil, fmt.Errorf("call failed: gas cost overflow")
	}
	value, overflow := uint256.FromBig(tx.Value())
	if overflow {
		return nil, fmt.Errorf("call failed: value overflow")
	}
	total, overflow := new(uint256.Int).AddOverflow(cost, value)
	if overflow || balance.Lt(total) {
		return nil, fmt.Errorf("call failed: insufficient funds for gas * price + value")
	}

	intrinsic, err := gethcore.IntrinsicGas(tx.Data(), tx.AccessList(), tx.To() == nil, true, true, false)
	if err != nil {
		return nil, fmt.Errorf("call failed: %w", err)
	}
	if tx.Gas() < intrinsic {
		return nil, fmt.Errorf("call failed: intrinsic gas %d exceeds gas limit %d", intrinsic, tx.Gas())
	}

	return &ValidTransaction{From: fromAddr, Tx: tx}, nil
}

// Call runs a transaction against the current state and returns the
// completed VM without committing (spec §4.B). The caller inspects
// accounts/logs/gas, then calls Transit. An error here means the
// transaction failed to even buy gas or pay its intrinsic cost — every
// caller is expected to have already run it through ToValid, so this
// should only happen if state moved between the two calls.
func (s *Stateful) Call(valid *ValidTransaction, p vm.Params, patch *vm.Patch) (*vm.VM, error) {
	accounts := s.accountsView()
	var to *common.Address
	if valid.Tx.To() != nil {
		t := common.Address(*valid.Tx.To())
		to = &t
	}
	return vm.Run(accounts, s.store, patch, p, vm.Call{
		From:       valid.From,
		To:         to,
		Nonce:      valid.Tx.Nonce(),
		GasPrice:   valid.Tx.GasPrice(),
		GasLimit:   valid.Tx.Gas(),
		Value:      valid.Tx.Value(),
		Input:      valid.Tx.Data(),
		AccessList: valid.Tx.AccessList(),
	})
}

// Execute runs and commits in one step.
func (s *Stateful) Execute(valid *ValidTransaction, p vm.Params, patch *vm.Patch) (*vm.VM, error) {
	result, err := s.Call(valid, p, patch)
	if err != nil {
		return nil, err
	}
	s.Transit(result.Accounts())
	return result, nil
}

// Transit applies a set of VM-produced AccountChange records to the
// trie, updating Root() (spec §4.B).
func (s *Stateful) Transit(changes []types.AccountChange) {
	accounts := s.accountsView()
	for _, c := range changes {
		switch c.Kind {
		case types.ChangeFull:
			accounts = s.applyFull(accounts, c)
		case types.ChangeIncreaseBalance:
			accounts = s.applyBalanceDelta(accounts, c.Address, c.Value, true)
		case types.ChangeDecreaseBalance:
			accounts = s.applyBalanceDelta(accounts, c.Address, c.Value, false)
		case types.ChangeCreate:
			accounts = s.applyCreate(accounts, c)
		}
	}
	s.root = accounts.Root()
}

func (s *Stateful) applyFull(accounts *evmtrie.View, c types.AccountChange) *evmtrie.View {
	raw, ok, err := accounts.Get(c.Address.Bytes())
	if err != nil {
		panic(err)
	}
	acc := types.NewEmptyAccount()
	if ok {
		if err := decodeAccountRLP(raw, acc); err != nil {
			panic(err)
		}
	}
	acc.Nonce = c.Nonce
	acc.Balance = c.Balance

	storageRoot := acc.Root
	if storageRoot == (gethcommon.Hash{}) {
		storageRoot = gethcommon.Hash(s.store.EmptyRoot())
	}
	if len(c.ChangingStorage) > 0 {
		sv, err := s.store.View(common.Hash(storageRoot), common.Hash(gethcommon.BytesToHash(c.Address.Bytes())))
		if err != nil {
			panic(err)
		}
		for slot, value := range c.ChangingStorage {
			zero := value == (common.Hash{})
			var v []byte
			if !zero {
				v = value.Bytes()
			}
			sv, err = sv.Insert(slot.Bytes(), v) // empty value removes, per spec §4.A
			if err != nil {
				panic(err)
			}
		}
		storageRoot = gethcommon.Hash(sv.Root())
	}
	acc.Root = storageRoot

	if len(c.Code) > 0 {
		h := s.store.Put(c.Code)
		acc.CodeHash = h.Bytes()
	}

	next, err := accounts.Insert(c.Address.Bytes(), encodeAccountRLP(acc))
	if err != nil {
		panic(err)
	}
	return next
}

func (s *Stateful) applyBalanceDelta(accounts *evmtrie.View, addr common.Address, delta *uint256.Int, increase bool) *evmtrie.View {
	raw, ok, err := accounts.Get(addr.Bytes())
	if err != nil {
		panic(err)
	}
	acc := types.NewEmptyAccount()
	if ok {
		if err := decodeAccountRLP(raw, acc); err != nil {
			panic(err)
		}
	}
	if increase {
		acc.Balance = new(uint256.Int).Add(acc.Balance, delta)
	} else {
		if acc.Balance.Lt(delta) {
			panic(fmt.Sprintf("state: balance underflow for %s", addr))
		}
		acc.Balance = new(uint256.Int).Sub(acc.Balance, delta)
	}
	next, err := accounts.Insert(addr.Bytes(), encodeAccountRLP(acc))
	if err != nil {
		panic(err)
	}
	return next
}

func (s *Stateful) applyCreate(accounts *evmtrie.View, c types.AccountChange) *evmtrie.View {
	if !c.Exists {
		next, err := accounts.Remove(c.Address.Bytes())
		if err != nil {
			panic(err)
		}
		return next
	}
	acc := types.NewEmptyAccount()
	acc.Nonce = c.Nonce
	acc.Balance = c.Balance

	storageRoot := s.store.EmptyRoot()
	if len(c.Storage) > 0 {
		sv, err := s.store.View(storageRoot, common.Hash(gethcommon.BytesToHash(c.Address.Bytes())))
		if err != nil {
			panic(err)
		}
		for slot, value := range c.Storage {
			if value == (common.Hash{}) {
				continue // zero-valued storage writes never materialize (spec §4.B)
			}
			sv, err = sv.Insert(slot.Bytes(), value.Bytes())
			if err != nil {
				panic(err)
			}
		}
		storageRoot = sv.Root()
	}
	acc.Root = gethcommon.Hash(storageRoot)

	codeHash := common.EmptyCodeHash
	if len(c.Code) > 0 {
		codeHash = s.store.Put(c.Code)
	}
	acc.CodeHash = codeHash.Bytes()

	next, err := accounts.Insert(c.Address.Bytes(), encodeAccountRLP(acc))
	if err != nil {
		panic(err)
	}
	return next
}

// InjectBalance is the genesis-time "synthetic Call(address) transaction
// with caller=None" of spec §4.D: a direct balance credit with no sender,
// used only to seed pre-funded accounts before the first real block.
func (s *Stateful) InjectBalance(addr common.Address, amount *uint256.Int) {
	accounts := s.accountsView()
	s.root = s.applyBalanceDelta(accounts, addr, amount, true).Root()
}
