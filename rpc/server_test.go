package rpc

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/genesis"
	"github.com/evmdev/node/vm"
)

func TestNewRegistersEveryNamespaceWithoutPanicking(t *testing.T) {
	r := require.New(t)
	patch := vm.DefaultPatch()
	c := chain.New(patch)
	key := genesis.RandomAccount()
	genesis.Build(c, genesis.Config{PrivateKey: key, Balance: big.NewInt(1)})

	r.NotPanics(func() {
		srv := New("127.0.0.1:0", c, patch.ChainID.Uint64())
		r.NotNil(srv)
	})
}
