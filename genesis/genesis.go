// Package genesis builds the dev node's block 0: a fixed set of
// pre-funded accounts seeded by the synthetic "balance injection"
// transactions of spec §4.D, with the resulting state root persisted into
// the genesis header before it is appended to an empty chain.
package genesis

import (
	"crypto/ecdsa"
	"math/big"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/core/types"
	"github.com/evmdev/node/miner"
)

// Config mirrors the CLI flags of spec §6, threaded explicitly rather
// than read back out of ambient globals (spec §9).
type Config struct {
	PrivateKey  *ecdsa.PrivateKey
	Balance     *big.Int
	AccountSeed []*ecdsa.PrivateKey // additional funded accounts
}

// Build seeds c's Stateful with one balance-injection per configured
// account and appends block 0. It must run before the miner loop starts
// and before any RPC request is served.
func Build(c *chain.Chain, cfg Config) common.Hash {
	c.Lock()
	defer c.Unlock()

	accounts := append([]*ecdsa.PrivateKey{cfg.PrivateKey}, cfg.AccountSeed...)
	balance, overflow := uint256.FromBig(cfg.Balance)
	if overflow {
		panic("genesis: balance does not fit in 256 bits")
	}

	st := c.Stateful()
	for _, key := range accounts {
		addr := chain.AddressOf(key)
		st.InjectBalance(addr, balance)
		c.AppendAccountLocked(key)
	}

	header := &gethtypes.Header{
		ParentHash: common.Hash{},
		Root:       st.Root(),
		TxHash:     gethtypes.DeriveSha(gethtypes.Transactions(nil), gethtrie.NewStackTrie(nil)),
		ReceiptHash: gethtypes.DeriveSha(gethtypes.Receipts(nil), gethtrie.NewStackTrie(nil)),
		Bloom:      types.Bloom{},
		Difficulty: big.NewInt(0),
		Number:     big.NewInt(0),
		GasLimit:   miner.GasLimit,
		GasUsed:    0,
		Time:       0,
		Coinbase:   common.Address{},
	}
	block := gethtypes.NewBlock(header, &gethtypes.Body{}, nil, gethtrie.NewStackTrie(nil))
	return c.AppendBlockLocked(block)
}

// RandomAccount generates a fresh secp256k1 keypair for --accounts
// entries that have no explicit private key (spec §6).
func RandomAccount() *ecdsa.PrivateKey {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return key
}
