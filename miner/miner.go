// Package miner implements spec §4.D: the cooperative block producer that
// drains (or peeks) the pending queue every round and assembles a block,
// sleeping between rounds on a timer/wake race exactly like a real
// consensus engine's "produce on demand" dev mode.
package miner

import (
	"context"
	"math/big"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	gethtrie "github.com/ethereum/go-ethereum/trie"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/constants"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/core/state"
	"github.com/evmdev/node/core/types"
	"github.com/evmdev/node/vm"
)

// Mode selects the draining strategy (spec §4.D / §6's --minemode).
type Mode int

const (
	AllPending Mode = iota
	OnePerBlock
)

func ModeByName(name string) Mode {
	if name == "OnePerBlock" {
		return OnePerBlock
	}
	return AllPending
}

// GasLimit is the fixed per-block gas limit this dev node assembles
// blocks with; spec §4.D leaves it a "configured constant".
const GasLimit = 30_000_000

// Loop runs until ctx is cancelled, producing one block per round. It is
// meant to run on its own goroutine, with c shared with the RPC server.
func Loop(ctx context.Context, c *chain.Chain, mode Mode) {
	ticker := time.NewTicker(constants.MiningTickSeconds * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.WakeChan():
		}
		mineRound(c, mode)
	}
}

// mineRound executes spec §4.D's per-round algorithm while holding the
// chain's single coarse lock (spec §5) for the whole round, making block
// assembly atomic with respect to every RPC handler.
func mineRound(c *chain.Chain, mode Mode) {
	c.Lock()
	defer c.Unlock()

	parent, ok := c.BlockByNumber(c.Height())
	if !ok {
		log.Error("miner: no parent block at current height", "height", c.Height())
		return
	}
	lastHashes := c.Last256HashesLocked(parent.NumberU64() + 1)

	var pending []*types.Transaction
	switch mode {
	case OnePerBlock:
		pending = c.TakeOnePendingLocked()
	default:
		pending = c.DrainPendingLocked()
	}

	st := c.Stateful()
	patch := c.Patch()
	header := vm.Params{
		Coinbase:    common.Address{},
		BlockNumber: parent.NumberU64() + 1,
		Time:        uint64(time.Now().Unix()),
		GasLimit:    GasLimit,
		Difficulty:  big.NewInt(0),
		BaseFee:     big.NewInt(0),
		LastHashes:  lastHashes,
	}

	var (
		receipts   types.Receipts
		cumulative uint64
		included   []*types.Transaction
	)
	for _, tx := range pending {
		receipt, _ := runOne(c, st, patch, header, tx, cumulative)
		cumulative = receipt.CumulativeGasUsed
		receipts = append(receipts, receipt)
		included = append(included, tx)
	}

	body := &gethtypes.Body{Transactions: included}
	h := &gethtypes.Header{
		ParentHash:  parent.Hash(),
		Root:        st.Root(),
		TxHash:      gethtypes.DeriveSha(gethtypes.Transactions(included), gethtrie.NewStackTrie(nil)),
		ReceiptHash: gethtypes.DeriveSha(receipts, gethtrie.NewStackTrie(nil)),
		Bloom:       types.MergeBloom(toReceiptPtrs(receipts)),
		Difficulty:  big.NewInt(0),
		Number:      new(big.Int).SetUint64(header.BlockNumber),
		GasLimit:    header.GasLimit,
		GasUsed:     cumulative,
		Time:        header.Time,
		Coinbase:    common.Address{},
	}
	block := gethtypes.NewBlock(h, body, toReceiptPtrs(receipts), gethtrie.NewStackTrie(nil))

	blockHash := c.AppendBlockLocked(block)
	for i, tx := range included {
		c.InsertReceiptLocked(common.Hash(tx.Hash()), receipts[i])
		c.SetReceiptStatusLocked(common.Hash(tx.Hash()), receipts[i].Status == gethtypes.ReceiptStatusSuccessful)
	}
	log.Info("miner: appended block", "number", h.Number, "hash", blockHash, "txs", len(included))
}

// runOne validates, executes and produces a receipt for one transaction,
// never letting a bad transaction stall the chain (spec §4.D step 3.a).
func runOne(c *chain.Chain, st *state.Stateful, patch *vm.Patch, p vm.Params, tx *types.Transaction, cumulative uint64) (*types.Receipt, bool) {
	valid, err := st.ToValid(tx, p.GasLimit, patch)
	if err != nil {
		log.Warn("miner: rejected pending transaction", "hash", tx.Hash(), "err", err)
		r := types.NewReceipt(nil, true, cumulative+tx.Gas())
		r.TxHash = tx.Hash()
		r.GasUsed = tx.Gas()
		r.CumulativeGasUsed = cumulative + tx.Gas()
		r.Bloom = types.CreateBloom(types.Receipts{r})
		return r, false
	}

	result, err := st.Execute(valid, p, patch)
	if err != nil {
		log.Warn("miner: execution failed after validation", "hash", tx.Hash(), "err", err)
		r := types.NewReceipt(nil, true, cumulative+tx.Gas())
		r.TxHash = tx.Hash()
		r.GasUsed = tx.Gas()
		r.CumulativeGasUsed = cumulative + tx.Gas()
		r.Bloom = types.CreateBloom(types.Receipts{r})
		return r, false
	}
	used := result.UsedGas()
	r := types.NewReceipt(nil, !result.ExitedOk(), cumulative+used)
	r.TxHash = tx.Hash()
	r.GasUsed = used
	r.CumulativeGasUsed = cumulative + used
	r.Logs = result.Logs()
	r.Bloom = types.CreateBloom(types.Receipts{r})
	if addr := result.CreatedAddress(); addr != nil {
		a := common.Address(*addr)
		r.ContractAddress = a
	}
	return r, true
}

func toReceiptPtrs(rs types.Receipts) types.Receipts { return rs }
