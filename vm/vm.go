package vm

import (
	"fmt"
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/types"
	evmtrie "github.com/evmdev/node/trie"
)

// ExitStatus mirrors spec §6's VM.status(): {ExitedOk, Reverted, ...}.
type ExitStatus int

const (
	ExitedOk ExitStatus = iota
	Reverted
	ExitedErr
)

// Params bundles everything call/execute need to build a BlockContext for
// the underlying EVM: the header fields of the block being built plus the
// last-256 ancestor hashes (spec §4.B's header_params/last_hashes).
type Params struct {
	Coinbase    common.Address
	BlockNumber uint64
	Time        uint64
	GasLimit    uint64
	Difficulty  *big.Int
	BaseFee     *big.Int
	LastHashes  LastHashes

	// Tracer, when set, is wired into the interpreter's hook set for
	// debug_traceTransaction-style replay (spec §4.E group 5). nil for
	// ordinary mining/call/estimateGas execution.
	Tracer *tracing.Hooks
}

// Call is a fully-specified transaction ready to run: the output of
// Stateful.to_valid.
type Call struct {
	From       common.Address
	To         *common.Address // nil for Create
	Nonce      uint64
	GasPrice   *big.Int
	GasLimit   uint64
	Value      *big.Int
	Input      []byte
	AccessList gethtypes.AccessList
}

// VM is the completed result of running one transaction through the
// interpreter: spec §6's VM contract (accounts/logs/gas/out/status),
// produced without yet committing to the trie (Stateful.call) or with
// commit folded in (Stateful.execute).
type VM struct {
	db      *stateDB
	usedGas uint64
	out     []byte
	status  ExitStatus
	created *common.Address
	realGas uint64
}

// Run drives one transaction through go-ethereum's interpreter against a
// stateDB bound to the given trie views. This is the require/commit loop
// of spec §4.B collapsed into direct synchronous reads (see statedb.go's
// doc comment) rather than an externally steppable coroutine (spec §9).
//
// It wraps the interpreter the way go-ethereum's own core.StateTransition
// wraps evm.Call/evm.Create: buy gas up front, bump the sender's nonce
// before running (evm.Create bumps it itself as a side effect of address
// derivation; a plain Call never touches it, so Run bumps it explicitly),
// then apply the gas refund and repay whatever gas went unused.
func Run(accounts *evmtrie.View, store *evmtrie.HashStore, patch *Patch, p Params, call Call) (*VM, error) {
	db := newStateDB(accounts, store, patch, p.LastHashes)

	blockNumber := new(big.Int).SetUint64(p.BlockNumber)
	blockCtx := gethvm.BlockContext{
		CanTransfer: gethvm.CanTransfer,
		Transfer:    gethvm.Transfer,
		GetHash:     db.blockhashFunc(p.BlockNumber),
		Coinbase:    gethcommon.Address(p.Coinbase),
		BlockNumber: blockNumber,
		Time:        p.Time,
		Difficulty:  p.Difficulty,
		GasLimit:    p.GasLimit,
		BaseFee:     p.BaseFee,
	}
	txCtx := gethvm.TxContext{
		Origin:   gethcommon.Address(call.From),
		GasPrice: call.GasPrice,
	}
	evm := gethvm.NewEVM(blockCtx, txCtx, db, patch.Config, gethvm.Config{Tracer: p.Tracer})

	from := gethcommon.Address(call.From)
	db.AddAddressToAccessList(from)
	if call.To != nil {
		db.AddAddressToAccessList(gethcommon.Address(*call.To))
	}
	for _, tuple := range call.AccessList {
		db.AddAddressToAccessList(tuple.Address)
		for _, key := range tuple.StorageKeys {
			db.AddSlotToAccessList(tuple.Address, key)
		}
	}

	isCreate := call.To == nil
	intrinsic, err := gethcore.IntrinsicGas(call.Input, call.AccessList, isCreate, true, true, false)
	if err != nil {
		return nil, fmt.Errorf("vm: intrinsic gas: %w", err)
	}
	if call.GasLimit < intrinsic {
		return nil, fmt.Errorf("vm: intrinsic gas %d exceeds gas limit %d", intrinsic, call.GasLimit)
	}

	gasPrice, overflow := uint256.FromBig(call.GasPrice)
	if overflow {
		return nil, fmt.Errorf("vm: gas price overflow")
	}
	gasCost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(call.GasLimit), gasPrice)
	if overflow {
		return nil, fmt.Errorf("vm: gas cost overflow")
	}
	if db.GetBalance(from).Lt(gasCost) {
		return nil, fmt.Errorf("vm: insufficient balance to buy gas: have %s want %s", db.GetBalance(from), gasCost)
	}
	db.SubBalance(from, gasCost)

	// A Call never advances the sender's nonce on its own; Create does, as
	// part of deriving the new contract's address (see go-ethereum's
	// core/vm.EVM.create). Bumping it here for calls only keeps every kind
	// of transaction able to progress past its first nonce.
	if !isCreate {
		db.SetNonce(from, call.Nonce+1)
	}

	value, _ := uint256.FromBig(call.Value)
	gasRemaining := call.GasLimit - intrinsic

	var (
		ret     []byte
		leftErr error
		created *common.Address
	)
	if isCreate {
		var addr gethcommon.Address
		ret, addr, gasRemaining, leftErr = evm.Create(gethvm.AccountRef(call.From), call.Input, gasRemaining, value)
		a := common.Address(addr)
		created = &a
	} else {
		ret, gasRemaining, leftErr = evm.Call(gethvm.AccountRef(call.From), gethcommon.Address(*call.To), call.Input, gasRemaining, value)
	}

	status := ExitedOk
	switch {
	case leftErr == gethvm.ErrExecutionReverted:
		status = Reverted
	case leftErr != nil:
		status = ExitedErr
	}

	usedGas := call.GasLimit - gasRemaining
	realGas := usedGas

	refund := db.GetRefund()
	maxRefund := usedGas / 2
	if patch.Config.IsLondon(blockNumber) {
		maxRefund = usedGas / 5
	}
	if refund > maxRefund {
		refund = maxRefund
	}
	usedGas -= refund

	if remaining := call.GasLimit - usedGas; remaining > 0 {
		repay := new(uint256.Int).Mul(uint256.NewInt(remaining), gasPrice)
		db.AddBalance(from, repay)
	}
	if usedGas > 0 {
		payment := new(uint256.Int).Mul(uint256.NewInt(usedGas), gasPrice)
		db.AddBalance(gethcommon.Address(p.Coinbase), payment)
	}

	return &VM{
		db:      db,
		usedGas: usedGas,
		realGas: realGas,
		out:     ret,
		status:  status,
		created: created,
	}, nil
}

// Accounts returns the AccountChange stream Stateful.transit consumes.
func (v *VM) Accounts() []types.AccountChange {
	var out []types.AccountChange
	for _, addr := range v.db.order {
		if v.db.destructed[addr] {
			out = append(out, types.AccountChange{Kind: types.ChangeCreate, Address: addr, Exists: false})
			continue
		}
		_, created := v.db.created[addr]
		nonce, hasNonce := v.db.dirtyNonce[addr]
		balance, hasBalance := v.db.dirtyBalance[addr]
		code, hasCode := v.db.dirtyCode[addr]
		storage := v.db.dirtyStorage[addr]

		if created {
			out = append(out, types.AccountChange{
				Kind:    types.ChangeCreate,
				Address: addr,
				Nonce:   valueOrZero(hasNonce, nonce),
				Balance: valueOrZeroBal(hasBalance, balance),
				Storage: storage,
				Code:    code,
				Exists:  true,
			})
			continue
		}
		out = append(out, types.AccountChange{
			Kind:            types.ChangeFull,
			Address:         addr,
			Nonce:           valueOrCurrentNonce(v.db, addr, hasNonce, nonce),
			Balance:         valueOrCurrentBalance(v.db, addr, hasBalance, balance),
			ChangingStorage: storage,
			Code:            orCurrentCode(v.db, addr, hasCode, code),
		})
	}
	return out
}

func valueOrZero(has bool, v uint64) uint64 {
	if has {
		return v
	}
	return 0
}
func valueOrZeroBal(has bool, v *uint256.Int) *uint256.Int {
	if has {
		return v
	}
	return new(uint256.Int)
}
func valueOrCurrentNonce(db *stateDB, addr common.Address, has bool, v uint64) uint64 {
	if has {
		return v
	}
	return db.GetNonce(gethcommon.Address(addr))
}
func valueOrCurrentBalance(db *stateDB, addr common.Address, has bool, v *uint256.Int) *uint256.Int {
	if has {
		return v
	}
	return db.GetBalance(gethcommon.Address(addr))
}
func orCurrentCode(db *stateDB, addr common.Address, has bool, v []byte) []byte {
	if has {
		return v
	}
	return db.GetCode(gethcommon.Address(addr))
}

func (v *VM) Logs() []*types.Log          { return v.db.Logs() }
func (v *VM) UsedGas() uint64             { return v.usedGas }
func (v *VM) RealUsedGas() uint64         { return v.realGas }
func (v *VM) Out() []byte                 { return v.out }
func (v *VM) Status() ExitStatus          { return v.status }
func (v *VM) ExitedOk() bool              { return v.status == ExitedOk }
func (v *VM) CreatedAddress() *common.Address { return v.created }
