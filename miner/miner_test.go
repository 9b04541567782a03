package miner

import (
	"context"
	"math/big"
	"testing"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/genesis"
	"github.com/evmdev/node/vm"
)

func TestModeByName(t *testing.T) {
	r := require.New(t)
	r.Equal(OnePerBlock, ModeByName("OnePerBlock"))
	r.Equal(AllPending, ModeByName("AllPending"))
	r.Equal(AllPending, ModeByName("anything-else"))
}

func TestMineRoundAppendsBlockAndClearsPending(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1_000_000_000_000_000_000)})

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000077")
	tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	r.NoError(err)
	c.AppendPending(tx)

	mineRound(c, AllPending)

	r.Equal(uint64(1), c.Height())
	block, ok := c.BlockByNumber(1)
	r.True(ok)
	r.Len(block.Transactions(), 1)

	c.Lock()
	remaining := c.PendingCountLocked()
	c.Unlock()
	r.Equal(0, remaining)

	receipt, ok := c.ReceiptByTxHash(common.Hash(tx.Hash()))
	r.True(ok)
	r.Equal(uint64(21000), receipt.GasUsed)
}

func TestMineRoundOnePerBlockLeavesRemainderQueued(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1_000_000_000_000_000_000)})

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000077")
	for nonce := uint64(0); nonce < 2; nonce++ {
		tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    big.NewInt(1),
			Gas:      21000,
			GasPrice: big.NewInt(1),
		})
		r.NoError(err)
		c.AppendPending(tx)
	}

	mineRound(c, OnePerBlock)

	block, ok := c.BlockByNumber(1)
	r.True(ok)
	r.Len(block.Transactions(), 1)

	c.Lock()
	remaining := c.PendingCountLocked()
	c.Unlock()
	r.Equal(1, remaining)
}

func TestLoopProducesBlockOnWake(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Loop(ctx, c, AllPending)

	c.Wake()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Height() == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.Equal(uint64(1), c.Height())
}
