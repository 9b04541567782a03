package ethapi

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/miner"
)

// minedChainWithTransfer submits one value-transfer transaction and runs
// miner.Loop in the background until it is mined into block 1.
func minedChainWithTransfer(t *testing.T) (*chain.Chain, *DebugService, common.Hash) {
	t.Helper()
	c, from := newTestChainWithFunds(t, 1_000_000_000_000)
	txSvc := NewTxService(c)
	debugSvc := NewDebugService(c)

	to := common.HexToAddress("0x00000000000000000000000000000000000088")
	value := (*hexutil.Big)(big.NewInt(1))
	h, err := txSvc.SendTransaction(SendArgs{From: from, To: &to, Value: value})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go miner.Loop(ctx, c, miner.AllPending)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.Height() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, uint64(1), c.Height())

	return c, debugSvc, h
}

func TestGetBlockRlpReturnsEncodedGenesis(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewDebugService(c)

	raw, err := svc.GetBlockRlp(0)
	r.NoError(err)
	r.NotEmpty(raw)
}

func TestGetBlockRlpUnknownBlockErrors(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewDebugService(c)

	_, err := svc.GetBlockRlp(42)
	r.Error(err)
}

func TestDumpBlockListsGenesisAccount(t *testing.T) {
	r := require.New(t)
	c, addr := newTestChainWithFunds(t, 555)
	svc := NewDebugService(c)

	dump, err := svc.DumpBlock(0)
	r.NoError(err)
	accounts, ok := dump["accounts"].(map[string]interface{})
	r.True(ok)
	r.Contains(accounts, addr.Hex())
}

func TestTraceTransactionUnminedErrors(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewDebugService(c)

	_, err := svc.TraceTransaction(common.HexToHash("0x01"))
	r.Error(err)
}

func TestTraceBlockByNumberUnknownBlockErrors(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewDebugService(c)

	_, err := svc.TraceBlockByNumber(7)
	r.Error(err)
}

func TestTraceTransactionMinedProducesResult(t *testing.T) {
	r := require.New(t)
	_, svc, h := minedChainWithTransfer(t)

	result, err := svc.TraceTransaction(h)
	r.NoError(err)
	r.NotNil(result)
	r.False(result.Failed)
}

func TestTraceBlockByNumberCoversEveryTx(t *testing.T) {
	r := require.New(t)
	c, svc, h := minedChainWithTransfer(t)

	results, err := svc.TraceBlockByNumber(c.Height())
	r.NoError(err)
	r.Contains(results, h)
}
