package state

import (
	"math/big"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/evmdev/node/common"
	evmtrie "github.com/evmdev/node/trie"
	"github.com/evmdev/node/vm"
)

func TestInjectBalanceSeedsAccount(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)

	addr := common.HexToAddress("0x00000000000000000000000000000000000001")
	amount := uint256.NewInt(1_000_000)
	st.InjectBalance(addr, amount)

	acc := st.StateOf(st.Root()).Get(addr)
	r.NotNil(acc)
	r.True(acc.Balance.Eq(amount))
	r.Equal(uint64(0), acc.Nonce)
}

func TestInjectBalanceAccumulates(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)

	addr := common.HexToAddress("0x00000000000000000000000000000000000002")
	st.InjectBalance(addr, uint256.NewInt(100))
	st.InjectBalance(addr, uint256.NewInt(50))

	acc := st.StateOf(st.Root()).Get(addr)
	r.NotNil(acc)
	r.True(acc.Balance.Eq(uint256.NewInt(150)))
}

func TestGetNonexistentAccountIsNil(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)

	addr := common.HexToAddress("0x00000000000000000000000000000000000099")
	r.Nil(st.StateOf(st.Root()).Get(addr))
}

func TestStorageOfNonexistentAccountIsZero(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)

	addr := common.HexToAddress("0x00000000000000000000000000000000000003")
	slot := common.HexToHash("0x01")
	sv := st.StorageStateOf(st.Root(), addr)
	r.Equal(common.Hash{}, sv.Get(slot))
}

func TestNewAtReopensHistoricalRoot(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)

	addr := common.HexToAddress("0x00000000000000000000000000000000000004")
	emptyRoot := st.Root()
	st.InjectBalance(addr, uint256.NewInt(7))
	fundedRoot := st.Root()

	r.NotEqual(emptyRoot, fundedRoot)

	historical := NewAt(store, emptyRoot)
	r.Nil(historical.StateOf(emptyRoot).Get(addr))

	current := NewAt(store, fundedRoot)
	acc := current.StateOf(fundedRoot).Get(addr)
	r.NotNil(acc)
	r.True(acc.Balance.Eq(uint256.NewInt(7)))
}

func TestToValidRejectsNonceMismatch(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)
	patch := vm.DefaultPatch()

	key, err := gethcrypto.GenerateKey()
	r.NoError(err)
	from := common.Address(gethcrypto.PubkeyToAddress(key.PublicKey))
	st.InjectBalance(from, uint256.NewInt(0).SetUint64(1_000_000_000_000))

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    5,
		To:       new(common.Address),
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	r.NoError(err)

	_, err = st.ToValid(tx, 8_000_000, patch)
	r.Error(err)
}

func TestToValidAcceptsMatchingNonce(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)
	patch := vm.DefaultPatch()

	key, err := gethcrypto.GenerateKey()
	r.NoError(err)
	from := common.Address(gethcrypto.PubkeyToAddress(key.PublicKey))
	st.InjectBalance(from, uint256.NewInt(0).SetUint64(1_000_000_000_000))

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	r.NoError(err)

	valid, err := st.ToValid(tx, 8_000_000, patch)
	r.NoError(err)
	r.NotNil(valid)
}

func TestExecuteAdvancesSenderNonce(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)
	patch := vm.DefaultPatch()

	key, err := gethcrypto.GenerateKey()
	r.NoError(err)
	from := common.Address(gethcrypto.PubkeyToAddress(key.PublicKey))
	st.InjectBalance(from, uint256.NewInt(0).SetUint64(1_000_000_000_000))

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	r.NoError(err)

	valid, err := st.ToValid(tx, 8_000_000, patch)
	r.NoError(err)

	p := vm.Params{BlockNumber: 1, GasLimit: 8_000_000, Difficulty: big.NewInt(0), BaseFee: big.NewInt(0)}
	result, err := st.Execute(valid, p, patch)
	r.NoError(err)
	r.True(result.ExitedOk())

	acc := st.StateOf(st.Root()).Get(from)
	r.NotNil(acc)
	r.Equal(uint64(1), acc.Nonce)

	// The nonce having advanced means a second transaction at nonce 0 is
	// now rejected and nonce 1 is accepted — an account can progress past
	// its first transaction.
	_, err = st.ToValid(tx, 8_000_000, patch)
	r.Error(err)

	tx2, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    1,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	r.NoError(err)
	_, err = st.ToValid(tx2, 8_000_000, patch)
	r.NoError(err)
}

func TestExecuteBuysGasAndRefundsUnused(t *testing.T) {
	r := require.New(t)
	store := evmtrie.NewHashStore()
	st := New(store)
	patch := vm.DefaultPatch()

	key, err := gethcrypto.GenerateKey()
	r.NoError(err)
	from := common.Address(gethcrypto.PubkeyToAddress(key.PublicKey))
	st.InjectBalance(from, uint256.NewInt(0).SetUint64(1_000_000_000_000))

	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	to := common.HexToAddress("0x00000000000000000000000000000000000042")
	tx, err := gethtypes.SignNewTx(key, signer, &gethtypes.LegacyTx{
		Nonce:    0,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      100_000,
		GasPrice: big.NewInt(2),
	})
	r.NoError(err)

	valid, err := st.ToValid(tx, 8_000_000, patch)
	r.NoError(err)

	p := vm.Params{BlockNumber: 1, GasLimit: 8_000_000, Difficulty: big.NewInt(0), BaseFee: big.NewInt(0)}
	result, err := st.Execute(valid, p, patch)
	r.NoError(err)
	r.Equal(uint64(21000), result.UsedGas())

	acc := st.StateOf(st.Root()).Get(from)
	r.NotNil(acc)
	// started with 1e12, spent 1 wei of value and 21000*2 wei of gas; the
	// other 79000 gas units worth of the up-front buy were repaid.
	want := new(uint256.Int).SetUint64(1_000_000_000_000)
	want.Sub(want, uint256.NewInt(1))
	want.Sub(want, uint256.NewInt(21000*2))
	r.True(acc.Balance.Eq(want))
}
