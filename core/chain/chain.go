// Package chain implements spec §4.C: the single owner of chain state
// (blocks, transactions, receipts, the pending queue and the filter
// registry) and spec §5's single coarse mutex protecting all of it,
// including the Stateful's current root.
package chain

import (
	"crypto/ecdsa"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/state"
	"github.com/evmdev/node/core/types"
	evmtrie "github.com/evmdev/node/trie"
	"github.com/evmdev/node/vm"
)

// Chain is the instance spec §9's "Global singletons" note asks for in
// place of ambient module state: owned by main, threaded into the miner
// task and the RPC handler by a shared handle under one mutex.
type Chain struct {
	mu sync.Mutex

	patch    *vm.Patch
	store    *evmtrie.HashStore
	stateful *state.Stateful

	blocksByHash   map[common.Hash]*types.Block
	blocksByNumber map[uint64]*types.Block
	totalHeaders   map[common.Hash]*types.TotalHeader
	height         uint64

	txByHash      map[common.Hash]*types.Transaction
	txToBlockHash map[common.Hash]common.Hash
	receipts      map[common.Hash]*types.Receipt
	receiptStatus map[common.Hash]bool

	pending    []*types.Transaction
	pendingSet mapset.Set[common.Hash]

	accounts []*ecdsa.PrivateKey

	filters *FilterSet
	metrics *chainMetrics

	// wake has capacity 1: exactly one wake is sufficient to trigger the
	// next mining round, extra wakes coalesce (spec §4.D).
	wake chan struct{}
}

// New creates an empty Chain (no genesis block yet — call genesis.Build
// to seed pre-funded accounts and append block 0).
func New(patch *vm.Patch) *Chain {
	store := evmtrie.NewHashStore()
	m := newChainMetrics()
	return &Chain{
		patch:          patch,
		store:          store,
		stateful:       state.New(store),
		blocksByHash:   make(map[common.Hash]*types.Block),
		blocksByNumber: make(map[uint64]*types.Block),
		totalHeaders:   make(map[common.Hash]*types.TotalHeader),
		txByHash:       make(map[common.Hash]*types.Transaction),
		txToBlockHash:  make(map[common.Hash]common.Hash),
		receipts:       make(map[common.Hash]*types.Receipt),
		receiptStatus:  make(map[common.Hash]bool),
		pendingSet:     mapset.NewSet[common.Hash](),
		filters:        newFilterSet(m.filtersInstalled),
		metrics:        m,
		wake:           make(chan struct{}, 1),
	}
}

// Lock/Unlock let a caller (miner.Loop, an RPC handler) hold the single
// coarse lock for the duration of a multi-step operation, per spec §5.
func (c *Chain) Lock()   { c.mu.Lock() }
func (c *Chain) Unlock() { c.mu.Unlock() }

// Patch returns the active rule set.
func (c *Chain) Patch() *vm.Patch { return c.patch }

// Store exposes the shared hash store for read-only RPC code lookups.
func (c *Chain) Store() *evmtrie.HashStore { return c.store }

// Stateful returns the Stateful tracking the current working root. Callers
// that mutate it (Transit) must hold the Chain lock.
func (c *Chain) Stateful() *state.Stateful { return c.stateful }

// WakeChan is the non-blocking wake channel miner.Loop selects on.
func (c *Chain) WakeChan() <-chan struct{} { return c.wake }

// Wake performs a non-blocking send: if the miner has already exited or
// its buffer is full, the send is dropped silently (spec §9 — intentional
// for this dev-node profile).
func (c *Chain) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// AppendPending pushes tx onto the pending queue and returns its hash
// (spec §4.C). Callers must not also be holding the lock.
func (c *Chain) AppendPending(tx *types.Transaction) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AppendPendingLocked(tx)
}

// AppendPendingLocked is AppendPending without its own locking, for
// callers (internal/ethapi's tx submission handlers) that already hold
// the lock for the handler's full duration per spec §5.
func (c *Chain) AppendPendingLocked(tx *types.Transaction) common.Hash {
	h := common.Hash(tx.Hash())
	c.pending = append(c.pending, tx)
	c.pendingSet.Add(h)
	c.txByHash[h] = tx
	c.filters.notifyPendingTx(h)
	c.metrics.pendingDepth.Set(float64(len(c.pending)))
	return h
}

// DrainPendingLocked atomically takes the whole queue. Caller must hold
// the lock.
func (c *Chain) DrainPendingLocked() []*types.Transaction {
	txs := c.pending
	c.pending = nil
	for _, tx := range txs {
		c.pendingSet.Remove(common.Hash(tx.Hash()))
	}
	c.metrics.pendingDepth.Set(0)
	return txs
}

// TakeOnePendingLocked removes and returns at most the first pending
// transaction (miner.OnePerBlock mode). Caller must hold the lock.
func (c *Chain) TakeOnePendingLocked() []*types.Transaction {
	if len(c.pending) == 0 {
		return nil
	}
	tx := c.pending[0]
	c.pending = c.pending[1:]
	c.pendingSet.Remove(common.Hash(tx.Hash()))
	c.metrics.pendingDepth.Set(float64(len(c.pending)))
	return []*types.Transaction{tx}
}

// PendingCountLocked reports how many transactions are queued.
func (c *Chain) PendingCountLocked() int { return len(c.pending) }

// AppendBlockLocked indexes block by hash and by number, records each
// tx's block hash, and computes its TotalHeader from the parent. Caller
// must hold the lock.
func (c *Chain) AppendBlockLocked(b *types.Block) common.Hash {
	h := common.Hash(b.Hash())
	c.blocksByHash[h] = b
	c.blocksByNumber[b.NumberU64()] = b
	if b.NumberU64() > c.height || len(c.blocksByNumber) == 1 {
		c.height = b.NumberU64()
	}

	parentDifficulty := new(uint256.Int)
	if parent, ok := c.totalHeaders[common.Hash(b.ParentHash())]; ok {
		parentDifficulty = parent.TotalDifficulty
	}
	difficulty, _ := uint256.FromBig(b.Difficulty())
	c.totalHeaders[h] = &types.TotalHeader{
		Header:          b.Header(),
		TotalDifficulty: new(uint256.Int).Add(parentDifficulty, difficulty),
	}

	for _, tx := range b.Transactions() {
		th := common.Hash(tx.Hash())
		c.txToBlockHash[th] = h
		c.txByHash[th] = tx
	}
	c.filters.notifyBlock(h)
	c.metrics.blocksMined.Inc()
	return h
}

// BlockByHash, BlockByNumber, TxByHash, ReceiptByTxHash, TotalHeaderByHash
// are the read side of spec §4.C. They take no lock of their own and read
// the same maps AppendBlockLocked writes, so a read is synchronized with a
// mining round only when the caller holds the lock, as the RPC handlers
// do while serving a consistent snapshot.
func (c *Chain) BlockByHash(h common.Hash) (*types.Block, bool) {
	b, ok := c.blocksByHash[h]
	return b, ok
}
func (c *Chain) BlockByNumber(n uint64) (*types.Block, bool) {
	b, ok := c.blocksByNumber[n]
	return b, ok
}
func (c *Chain) TxByHash(h common.Hash) (*types.Transaction, bool) {
	tx, ok := c.txByHash[h]
	return tx, ok
}
func (c *Chain) TxBlockHash(h common.Hash) (common.Hash, bool) {
	bh, ok := c.txToBlockHash[h]
	return bh, ok
}
func (c *Chain) ReceiptByTxHash(h common.Hash) (*types.Receipt, bool) {
	r, ok := c.receipts[h]
	return r, ok
}
func (c *Chain) TotalHeaderByHash(h common.Hash) (*types.TotalHeader, bool) {
	th, ok := c.totalHeaders[h]
	return th, ok
}
func (c *Chain) Height() uint64 { return c.height }

// InsertReceiptLocked keys a receipt by tx hash before the block
// containing it necessarily exists; it becomes visible to
// eth_getTransactionReceipt once the enclosing block is appended (spec
// §4.C's tie-break note).
func (c *Chain) InsertReceiptLocked(txHash common.Hash, r *types.Receipt) {
	c.receipts[txHash] = r
}
func (c *Chain) SetReceiptStatusLocked(txHash common.Hash, ok bool) {
	c.receiptStatus[txHash] = ok
}
func (c *Chain) ReceiptStatus(txHash common.Hash) (bool, bool) {
	ok, known := c.receiptStatus[txHash]
	return ok, known
}

// Last256HashesLocked returns the hashes of blocks [n-256, n-1] in
// descending order (index 0 = n-1, the parent), possibly shorter near
// genesis — spec §4.C.
func (c *Chain) Last256HashesLocked(n uint64) vm.LastHashes {
	var out vm.LastHashes
	for i := uint64(1); i <= 256 && i <= n; i++ {
		b, ok := c.blocksByNumber[n-i]
		if !ok {
			break
		}
		out = append(out, common.Hash(b.Hash()))
	}
	return out
}

// AppendAccount registers a new genesis/funded account's secret key. Safe
// to call without already holding the lock.
func (c *Chain) AppendAccount(key *ecdsa.PrivateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AppendAccountLocked(key)
}

// AppendAccountLocked is AppendAccount without its own locking, for
// callers (genesis.Build) that already hold the lock.
func (c *Chain) AppendAccountLocked(key *ecdsa.PrivateKey) {
	c.accounts = append(c.accounts, key)
}

// Accounts returns every known secret key, in insertion order. Safe to
// call without already holding the lock.
func (c *Chain) Accounts() []*ecdsa.PrivateKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AccountsLocked()
}

// AccountsLocked is Accounts without its own locking, for callers (e.g.
// internal/ethapi's SendTransaction/Sign) that already hold the lock.
func (c *Chain) AccountsLocked() []*ecdsa.PrivateKey {
	out := make([]*ecdsa.PrivateKey, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// AddressOf is a small convenience used by both genesis construction and
// eth_accounts.
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return common.Address(gethcrypto.PubkeyToAddress(key.PublicKey))
}

// Filters exposes the filter registry (spec §4.E group 4).
func (c *Chain) Filters() *FilterSet { return c.filters }
