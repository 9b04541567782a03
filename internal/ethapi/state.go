package ethapi

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/rpcerr"
)

// StateService backs spec §4.E group 2: balance/storage/nonce/code reads
// and block/transaction/receipt lookups, all resolved through the
// block-tag rules of resolveBlock.
type StateService struct {
	chain *chain.Chain
}

func NewStateService(c *chain.Chain) *StateService { return &StateService{chain: c} }

func (s *StateService) GetBalance(addr common.Address, bn rpc.BlockNumber) (*hexutil.Big, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	st, b, err := stateAt(s.chain, bn)
	if err != nil {
		return nil, err
	}
	acc := st.StateOf(common.Hash(b.Root())).Get(addr)
	if acc == nil {
		return (*hexutil.Big)(hexutil.MustDecodeBig("0x0")), nil
	}
	return (*hexutil.Big)(acc.Balance.ToBig()), nil
}

func (s *StateService) GetTransactionCount(addr common.Address, bn rpc.BlockNumber) (hexutil.Uint64, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	st, b, err := stateAt(s.chain, bn)
	if err != nil {
		return 0, err
	}
	acc := st.StateOf(common.Hash(b.Root())).Get(addr)
	if acc == nil {
		return 0, nil
	}
	return hexutil.Uint64(acc.Nonce), nil
}

func (s *StateService) GetCode(addr common.Address, bn rpc.BlockNumber) (hexutil.Bytes, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	st, b, err := stateAt(s.chain, bn)
	if err != nil {
		return nil, err
	}
	acc := st.StateOf(common.Hash(b.Root())).Get(addr)
	if acc == nil {
		return hexutil.Bytes{}, nil
	}
	code, ok := st.Code(common.Hash(acc.CodeHash))
	if !ok {
		return hexutil.Bytes{}, nil
	}
	return hexutil.Bytes(code), nil
}

func (s *StateService) GetStorageAt(addr common.Address, slot common.Hash, bn rpc.BlockNumber) (common.Hash, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	st, b, err := stateAt(s.chain, bn)
	if err != nil {
		return common.Hash{}, err
	}
	sv := st.StorageStateOf(common.Hash(b.Root()), addr)
	return sv.Get(slot), nil
}

func (s *StateService) Accounts() []common.Address {
	s.chain.Lock()
	defer s.chain.Unlock()
	keys := s.chain.AccountsLocked()
	out := make([]common.Address, len(keys))
	for i, k := range keys {
		out[i] = chain.AddressOf(k)
	}
	return out
}

func (s *StateService) BlockNumber() hexutil.Uint64 {
	s.chain.Lock()
	defer s.chain.Unlock()
	return hexutil.Uint64(s.chain.Height())
}

func (s *StateService) GetBlockByNumber(bn rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	b, err := resolveBlock(s.chain, bn)
	if err != nil {
		if rpcerr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return RPCBlock(b, fullTx), nil
}

func (s *StateService) GetBlockByHash(h common.Hash, fullTx bool) (map[string]interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	b, ok := s.chain.BlockByHash(h)
	if !ok {
		return nil, nil
	}
	return RPCBlock(b, fullTx), nil
}

func (s *StateService) GetTransactionByHash(h common.Hash) (map[string]interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	tx, ok := s.chain.TxByHash(h)
	if !ok {
		return nil, nil
	}
	blockHash, inBlock := s.chain.TxBlockHash(h)
	if !inBlock {
		return RPCTransaction(tx, common.Hash{}, nil), nil
	}
	block, ok := s.chain.BlockByHash(blockHash)
	if !ok {
		return RPCTransaction(tx, blockHash, nil), nil
	}
	number := block.NumberU64()
	return RPCTransaction(tx, blockHash, &number), nil
}

func (s *StateService) GetTransactionReceipt(h common.Hash) (map[string]interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	r, ok := s.chain.ReceiptByTxHash(h)
	if !ok {
		return nil, nil
	}
	blockHash, inBlock := s.chain.TxBlockHash(h)
	if !inBlock {
		return nil, nil
	}
	status, _ := s.chain.ReceiptStatus(h)
	return RPCReceipt(r, blockHash, status), nil
}

func (s *StateService) GetUncleCountByBlockNumber(bn rpc.BlockNumber) (hexutil.Uint, error) {
	return 0, nil
}
func (s *StateService) GetUncleCountByBlockHash(h common.Hash) hexutil.Uint { return 0 }
func (s *StateService) GetUncleByBlockNumberAndIndex(bn rpc.BlockNumber, idx hexutil.Uint) (map[string]interface{}, error) {
	return nil, nil
}
func (s *StateService) GetUncleByBlockHashAndIndex(h common.Hash, idx hexutil.Uint) (map[string]interface{}, error) {
	return nil, nil
}

func (s *StateService) GetBlockTransactionCountByNumber(bn rpc.BlockNumber) (hexutil.Uint, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	b, err := resolveBlock(s.chain, bn)
	if err != nil {
		return 0, err
	}
	return hexutil.Uint(len(b.Transactions())), nil
}

func (s *StateService) GetBlockTransactionCountByHash(h common.Hash) hexutil.Uint {
	s.chain.Lock()
	defer s.chain.Unlock()
	b, ok := s.chain.BlockByHash(h)
	if !ok {
		return 0
	}
	return hexutil.Uint(len(b.Transactions()))
}
