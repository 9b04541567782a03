package ethapi

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/constants"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/core/state"
	"github.com/evmdev/node/core/types"
	"github.com/evmdev/node/miner"
	"github.com/evmdev/node/rpcerr"
	"github.com/evmdev/node/vm"
)

// TxService backs spec §4.E group 3: transaction submission, signing,
// and the read-only eth_call/eth_estimateGas simulation paths.
type TxService struct {
	chain *chain.Chain
}

func NewTxService(c *chain.Chain) *TxService { return &TxService{chain: c} }

// SendArgs mirrors the JSON shape of eth_sendTransaction/eth_call params.
type SendArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Gas      *hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Data     *hexutil.Bytes  `json:"data"`
	Nonce    *hexutil.Uint64 `json:"nonce"`
}

// SendTransaction signs args with the matching held account's key
// (spec §6's node-held accounts) and enqueues it.
func (s *TxService) SendTransaction(args SendArgs) (common.Hash, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	key := findKey(s.chain, args.From)
	patch := s.chain.Patch()
	st := s.chain.Stateful()

	if key == nil {
		return common.Hash{}, rpcerr.New(rpcerr.InvalidParams, "unknown account %s", args.From)
	}

	tx, err := buildTx(st, args)
	if err != nil {
		return common.Hash{}, err
	}
	signer := gethtypes.LatestSignerForChainID(patch.ChainID)
	signed, err := gethtypes.SignTx(tx, signer, key)
	if err != nil {
		return common.Hash{}, rpcerr.New(rpcerr.Signature, "%v", err)
	}

	if _, err := st.ToValid(signed, miner.GasLimit, patch); err != nil {
		return common.Hash{}, rpcerr.New(rpcerr.CallFailed, "%v", err)
	}

	h := s.chain.AppendPendingLocked(signed)
	s.chain.Wake()
	return h, nil
}

// SendRawTransaction decodes an already-signed RLP transaction and
// enqueues it without touching any held key.
func (s *TxService) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	tx := new(gethtypes.Transaction)
	if err := rlp.DecodeBytes(raw, tx); err != nil {
		return common.Hash{}, rpcerr.New(rpcerr.RlpDecode, "%v", err)
	}

	s.chain.Lock()
	defer s.chain.Unlock()
	patch := s.chain.Patch()
	st := s.chain.Stateful()

	if _, err := st.ToValid(tx, miner.GasLimit, patch); err != nil {
		return common.Hash{}, rpcerr.New(rpcerr.CallFailed, "%v", err)
	}

	h := s.chain.AppendPendingLocked(tx)
	s.chain.Wake()
	return h, nil
}

// Sign produces an eth_sign signature over the EIP-191 personal-message
// digest using the held key matching addr.
func (s *TxService) Sign(addr common.Address, data hexutil.Bytes) (hexutil.Bytes, error) {
	s.chain.Lock()
	key := findKey(s.chain, addr)
	s.chain.Unlock()
	if key == nil {
		return nil, rpcerr.New(rpcerr.InvalidParams, "unknown account %s", addr)
	}
	digest := accounts191Digest(data)
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, rpcerr.New(rpcerr.Signature, "%v", err)
	}
	return hexutil.Bytes(sig), nil
}

// Call builds a ValidTransaction from args (filling missing nonce/gas per
// spec §4.E group 3), runs it against bn's state, and discards the
// post-state, returning the output bytes.
func (s *TxService) Call(args SendArgs, bn rpc.BlockNumber) (hexutil.Bytes, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	result, err := s.simulate(args, bn)
	if err != nil {
		return nil, err
	}
	if !result.ExitedOk() {
		return nil, rpcerr.New(rpcerr.CallFailed, "reverted")
	}
	return hexutil.Bytes(result.Out()), nil
}

// EstimateGas is Call's sibling, returning real_used_gas instead of the
// output.
func (s *TxService) EstimateGas(args SendArgs, bn rpc.BlockNumber) (hexutil.Uint64, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	result, err := s.simulate(args, bn)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(result.RealUsedGas()), nil
}

// simulate is shared by Call/EstimateGas. Caller must hold the lock.
func (s *TxService) simulate(args SendArgs, bn rpc.BlockNumber) (*vm.VM, error) {
	st, b, err := stateAt(s.chain, bn)
	if err != nil {
		return nil, err
	}
	patch := s.chain.Patch()
	lastHashes := s.chain.Last256HashesLocked(b.NumberU64())

	to := args.To
	gas := uint64(constants.DefaultCallGas)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	gasPrice := big.NewInt(0)
	if args.GasPrice != nil {
		gasPrice = (*big.Int)(args.GasPrice)
	}
	value := big.NewInt(0)
	if args.Value != nil {
		value = (*big.Int)(args.Value)
	}
	var data []byte
	if args.Data != nil {
		data = *args.Data
	}

	p := vm.Params{
		Coinbase:    common.Address{},
		BlockNumber: b.NumberU64(),
		Time:        b.Time(),
		GasLimit:    miner.GasLimit,
		Difficulty:  big.NewInt(0),
		BaseFee:     big.NewInt(0),
		LastHashes:  lastHashes,
	}
	valid := &state.ValidTransaction{
		From: args.From,
		Tx:   gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: accountNonce(st, common.Hash(b.Root()), args), GasPrice: gasPrice, Gas: gas, To: to, Value: value, Data: data}),
	}
	result, err := st.Call(valid, p, patch)
	if err != nil {
		return nil, rpcerr.New(rpcerr.CallFailed, "%v", err)
	}
	return result, nil
}

// accountNonce fills a request's missing nonce from the account's current
// nonce at root, per spec §4.E group 3.
func accountNonce(st *state.Stateful, root common.Hash, args SendArgs) uint64 {
	if args.Nonce != nil {
		return uint64(*args.Nonce)
	}
	acc := st.StateOf(root).Get(args.From)
	if acc == nil {
		return 0
	}
	return acc.Nonce
}

func buildTx(st *state.Stateful, args SendArgs) (*gethtypes.Transaction, error) {
	gas := uint64(constants.DefaultCallGas)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	gasPrice := big.NewInt(0)
	if args.GasPrice != nil {
		gasPrice = (*big.Int)(args.GasPrice)
	}
	value := big.NewInt(0)
	if args.Value != nil {
		value = (*big.Int)(args.Value)
	}
	var data []byte
	if args.Data != nil {
		data = *args.Data
	}
	nonce := accountNonce(st, st.Root(), args)
	return gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       args.To,
		Value:    value,
		Data:     data,
	}), nil
}

func accounts191Digest(data []byte) []byte {
	msg := append([]byte(nil), []byte("\x19Ethereum Signed Message:\n")...)
	msg = append(msg, []byte(strconv.Itoa(len(data)))...)
	msg = append(msg, data...)
	return crypto.Keccak256(msg)
}
