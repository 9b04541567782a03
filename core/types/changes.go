package types

import (
	"github.com/evmdev/node/common"
	"github.com/holiman/uint256"
)

// AccountChangeKind discriminates the AccountChange variants of spec
// §4.B: Full, IncreaseBalance, DecreaseBalance and Create.
type AccountChangeKind int

const (
	ChangeFull AccountChangeKind = iota
	ChangeIncreaseBalance
	ChangeDecreaseBalance
	ChangeCreate
)

// AccountChange is a single VM-produced mutation, collected by vm.VM and
// consumed by Stateful.transit. Only the fields relevant to Kind are set.
type AccountChange struct {
	Kind    AccountChangeKind
	Address common.Address

	// Full
	Nonce           uint64
	Balance         *uint256.Int
	ChangingStorage map[common.Hash]common.Hash
	Code            []byte

	// IncreaseBalance / DecreaseBalance
	Value *uint256.Int

	// Create
	Storage map[common.Hash]common.Hash
	Exists  bool
}

// TotalHeader pairs a header with its cumulative difficulty, computed
// incrementally on append (spec §3).
type TotalHeader struct {
	Header           *Header
	TotalDifficulty  *uint256.Int
}
