package chain_test

import (
	"math/big"
	"testing"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/genesis"
	"github.com/evmdev/node/vm"
)

// gatherMetric finds one of c's families by name and returns its metrics;
// fails the test (via require) if the family was never registered. There is
// exactly one label-less series per family in this package, so callers
// index [0] directly.
func gatherMetric(t *testing.T, c *chain.Chain, name string) *dto.Metric {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0]
		}
	}
	require.Failf(t, "metric not found", "name=%s", name)
	return nil
}

func TestGenesisBlockIsAppended(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	hash := genesis.Build(c, genesis.Config{
		PrivateKey: key,
		Balance:    big.NewInt(500),
	})

	b, ok := c.BlockByHash(hash)
	r.True(ok)
	r.Equal(uint64(0), b.NumberU64())

	byNumber, ok := c.BlockByNumber(0)
	r.True(ok)
	r.Equal(hash, common.Hash(byNumber.Hash()))

	r.Equal(uint64(0), c.Height())
	r.Len(c.Accounts(), 1)
}

func TestAppendPendingAndDrain(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1)})

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000099")
	tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	r.NoError(err)

	h := c.AppendPending(tx)
	r.Equal(common.Hash(tx.Hash()), h)

	c.Lock()
	r.Equal(1, c.PendingCountLocked())
	drained := c.DrainPendingLocked()
	r.Equal(0, c.PendingCountLocked())
	c.Unlock()

	r.Len(drained, 1)
	r.Equal(tx.Hash(), drained[0].Hash())

	got, ok := c.TxByHash(h)
	r.True(ok)
	r.Equal(tx.Hash(), got.Hash())
}

func TestTakeOnePendingLeavesRestQueued(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1)})

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000099")
	for nonce := uint64(0); nonce < 3; nonce++ {
		tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    big.NewInt(0),
			Gas:      21000,
			GasPrice: big.NewInt(1),
		})
		r.NoError(err)
		c.AppendPending(tx)
	}

	c.Lock()
	taken := c.TakeOnePendingLocked()
	remaining := c.PendingCountLocked()
	c.Unlock()

	r.Len(taken, 1)
	r.Equal(2, remaining)
}

func TestLast256HashesStopsNearGenesis(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1)})

	c.Lock()
	hashes := c.Last256HashesLocked(1)
	c.Unlock()

	r.Len(hashes, 1)
	genesisBlock, ok := c.BlockByNumber(0)
	r.True(ok)
	r.Equal(common.Hash(genesisBlock.Hash()), hashes[0])
}

func TestMetricsTrackPendingDepthAndBlocksMined(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1)})

	// genesis.Build already appended block 0.
	r.Equal(float64(1), gatherMetric(t, c, "evmdev_chain_blocks_mined_total").GetCounter().GetValue())

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000099")
	tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	r.NoError(err)
	c.AppendPending(tx)

	r.Equal(float64(1), gatherMetric(t, c, "evmdev_chain_pending_depth").GetGauge().GetValue())

	c.Lock()
	c.DrainPendingLocked()
	c.Unlock()

	r.Equal(float64(0), gatherMetric(t, c, "evmdev_chain_pending_depth").GetGauge().GetValue())
}

func TestMetricsTrackFiltersInstalled(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)

	c.Lock()
	c.Filters().InstallBlockFilter(c.Height())
	c.Filters().InstallPendingTxFilter(c.PendingCountLocked())
	c.Unlock()

	r.Equal(float64(2), gatherMetric(t, c, "evmdev_chain_filters_installed_total").GetCounter().GetValue())
}

func TestWakeIsNonBlocking(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)

	c.Wake()
	c.Wake()
	c.Wake()

	select {
	case <-c.WakeChan():
	default:
		r.Fail("expected a coalesced wake signal")
	}
}
