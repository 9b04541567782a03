package ethapi

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/eth/tracers/logger"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/core/state"
	"github.com/evmdev/node/core/types"
	"github.com/evmdev/node/rpcerr"
	"github.com/evmdev/node/vm"
)

// DebugService backs spec §4.E group 5: replay-based tracing and the raw
// block/dump introspection endpoints.
type DebugService struct {
	chain *chain.Chain
}

func NewDebugService(c *chain.Chain) *DebugService { return &DebugService{chain: c} }

func (s *DebugService) GetBlockRlp(number uint64) (hexutil.Bytes, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	b, ok := s.chain.BlockByNumber(number)
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "block %d not found", number)
	}
	raw, err := rlp.EncodeToBytes(b)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// TraceTransaction replays every transaction in the target's block up to
// and including it, against a Stateful rooted at the parent's post-state,
// recording a structured per-opcode log for only the target (spec §4.E
// group 5).
func (s *DebugService) TraceTransaction(h common.Hash) (*logger.ExecutionResult, error) {
	s.chain.Lock()
	defer s.chain.Unlock()

	blockHash, ok := s.chain.TxBlockHash(h)
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "transaction %s not mined", h)
	}
	block, ok := s.chain.BlockByHash(blockHash)
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "block %s not found", blockHash)
	}
	parent, ok := s.chain.BlockByNumber(block.NumberU64() - 1)
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "parent of block %d not found", block.NumberU64())
	}

	st := state.NewAt(s.chain.Store(), common.Hash(parent.Root()))
	patch := s.chain.Patch()
	lastHashes := s.chain.Last256HashesLocked(block.NumberU64())
	p := headerParams(block, lastHashes)

	var target *logger.StructLogger
	for _, tx := range block.Transactions() {
		valid, err := st.ToValid(tx, p.GasLimit, patch)
		if err != nil {
			if tx.Hash() == h {
				return nil, rpcerr.New(rpcerr.CallFailed, "%v", err)
			}
			continue
		}
		step := p
		if tx.Hash() == h {
			target = logger.NewStructLogger(&logger.Config{})
			step.Tracer = target.Hooks()
		}
		if _, err := st.Execute(valid, step, patch); err != nil {
			if tx.Hash() == h {
				return nil, rpcerr.New(rpcerr.CallFailed, "%v", err)
			}
			continue
		}
		if tx.Hash() == h {
			break
		}
	}
	if target == nil {
		return nil, rpcerr.New(rpcerr.NotFound, "transaction %s not found in block", h)
	}
	return decodeResult(target)
}

func (s *DebugService) TraceBlockByNumber(number uint64) (map[common.Hash]*logger.ExecutionResult, error) {
	s.chain.Lock()
	block, ok := s.chain.BlockByNumber(number)
	s.chain.Unlock()
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "block %d not found", number)
	}
	return s.traceBlock(block)
}

func (s *DebugService) TraceBlockByHash(h common.Hash) (map[common.Hash]*logger.ExecutionResult, error) {
	s.chain.Lock()
	block, ok := s.chain.BlockByHash(h)
	s.chain.Unlock()
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "block %s not found", h)
	}
	return s.traceBlock(block)
}

func (s *DebugService) traceBlock(block *types.Block) (map[common.Hash]*logger.ExecutionResult, error) {
	s.chain.Lock()
	defer s.chain.Unlock()

	parent, ok := s.chain.BlockByNumber(block.NumberU64() - 1)
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "parent of block %d not found", block.NumberU64())
	}
	st := state.NewAt(s.chain.Store(), common.Hash(parent.Root()))
	patch := s.chain.Patch()
	lastHashes := s.chain.Last256HashesLocked(block.NumberU64())
	p := headerParams(block, lastHashes)

	out := make(map[common.Hash]*logger.ExecutionResult)
	for _, tx := range block.Transactions() {
		valid, err := st.ToValid(tx, p.GasLimit, patch)
		if err != nil {
			continue
		}
		sl := logger.NewStructLogger(&logger.Config{})
		traced := p
		traced.Tracer = sl.Hooks()
		if _, err := st.Execute(valid, traced, patch); err != nil {
			continue
		}
		result, err := decodeResult(sl)
		if err != nil {
			continue
		}
		out[common.Hash(tx.Hash())] = result
	}
	return out, nil
}

// decodeResult unwraps a StructLogger's GetResult, whose return shape
// changed from a typed StructLogs() accessor to a json.RawMessage in the
// pinned go-ethereum release this system builds against.
func decodeResult(sl *logger.StructLogger) (*logger.ExecutionResult, error) {
	raw, err := sl.GetResult()
	if err != nil {
		return nil, rpcerr.New(rpcerr.CallFailed, "%v", err)
	}
	result := new(logger.ExecutionResult)
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, err
	}
	return result, nil
}

// DumpBlock walks the account trie rooted at number's state and emits
// every account with full storage enumeration (spec §4.E group 5).
func (s *DebugService) DumpBlock(number uint64) (map[string]interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	b, ok := s.chain.BlockByNumber(number)
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "block %d not found", number)
	}
	st := state.NewAt(s.chain.Store(), common.Hash(b.Root()))
	accountsView, err := s.chain.Store().View(common.Hash(b.Root()), common.Hash{})
	if err != nil {
		return nil, err
	}
	entries, err := accountsView.Iterate()
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]interface{})
	for _, e := range entries {
		preimage, ok := s.chain.Store().Preimage(e.KeyHash)
		if !ok {
			continue
		}
		addr := common.BytesToAddress(preimage)
		acc := new(types.Account)
		if err := rlp.DecodeBytes(e.Value, acc); err != nil {
			continue
		}
		code, _ := st.Code(common.BytesToHash(acc.CodeHash))
		storage := make(map[string]string)
		if acc.Root != (common.Hash{}) {
			sv, err := s.chain.Store().View(acc.Root, common.BytesToHash(addr.Bytes()))
			if err == nil {
				slots, _ := sv.Iterate()
				for _, slot := range slots {
					slotPreimage, ok := s.chain.Store().Preimage(slot.KeyHash)
					if !ok {
						continue
					}
					storage[common.BytesToHash(slotPreimage).Hex()] = common.BytesToHash(slot.Value).Hex()
				}
			}
		}
		accounts[addr.Hex()] = map[string]interface{}{
			"balance":  acc.Balance.ToBig().String(),
			"nonce":    acc.Nonce,
			"root":     acc.Root,
			"codeHash": common.BytesToHash(acc.CodeHash),
			"code":     hexutil.Bytes(code),
			"storage":  storage,
		}
	}
	return map[string]interface{}{"root": b.Root(), "accounts": accounts}, nil
}

func headerParams(b *types.Block, lastHashes vm.LastHashes) vm.Params {
	return vm.Params{
		Coinbase:    b.Coinbase(),
		BlockNumber: b.NumberU64(),
		Time:        b.Time(),
		GasLimit:    b.GasLimit(),
		Difficulty:  new(big.Int).Set(b.Difficulty()),
		BaseFee:     big.NewInt(0),
		LastHashes:  lastHashes,
	}
}
