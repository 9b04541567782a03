package ethapi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/genesis"
	"github.com/evmdev/node/vm"
)

func newTestChainWithFunds(t *testing.T, balance int64) (*chain.Chain, common.Address) {
	t.Helper()
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(balance)})
	return c, chain.AddressOf(key)
}

func TestGetBalanceKnownAccount(t *testing.T) {
	r := require.New(t)
	c, addr := newTestChainWithFunds(t, 12345)
	svc := NewStateService(c)

	bal, err := svc.GetBalance(addr, rpc.LatestBlockNumber)
	r.NoError(err)
	r.Equal(big.NewInt(12345), bal.ToInt())
}

func TestGetBalanceUnknownAccountIsZero(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewStateService(c)

	bal, err := svc.GetBalance(common.HexToAddress("0xabc"), rpc.LatestBlockNumber)
	r.NoError(err)
	r.Equal(big.NewInt(0), bal.ToInt())
}

func TestGetTransactionCountStartsAtZero(t *testing.T) {
	r := require.New(t)
	c, addr := newTestChainWithFunds(t, 1)
	svc := NewStateService(c)

	n, err := svc.GetTransactionCount(addr, rpc.LatestBlockNumber)
	r.NoError(err)
	r.Equal(uint64(0), uint64(n))
}

func TestGetCodeOfEOAIsEmpty(t *testing.T) {
	r := require.New(t)
	c, addr := newTestChainWithFunds(t, 1)
	svc := NewStateService(c)

	code, err := svc.GetCode(addr, rpc.LatestBlockNumber)
	r.NoError(err)
	r.Empty(code)
}

func TestBlockNumberReportsGenesisHeight(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewStateService(c)

	r.Equal(uint64(0), uint64(svc.BlockNumber()))
}

func TestGetBlockByNumberLatest(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewStateService(c)

	block, err := svc.GetBlockByNumber(rpc.LatestBlockNumber, false)
	r.NoError(err)
	r.NotNil(block)
	r.Equal(hexutil.Uint64(0), block["number"])
}

func TestGetBlockByNumberBeyondHeightErrors(t *testing.T) {
	r := require.New(t)
	c, _ := newTestChainWithFunds(t, 1)
	svc := NewStateService(c)

	_, err := svc.GetBlockByNumber(rpc.BlockNumber(99), false)
	r.Error(err)
}

func TestAccountsListsFundedKeys(t *testing.T) {
	r := require.New(t)
	c, addr := newTestChainWithFunds(t, 1)
	svc := NewStateService(c)

	accs := svc.Accounts()
	r.Contains(accs, addr)
}
