package ethapi

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/core/types"
	"github.com/evmdev/node/rpcerr"
)

// FilterService backs spec §4.E group 4: installing/querying/uninstalling
// log, block, and pending-tx filters.
type FilterService struct {
	chain *chain.Chain
}

func NewFilterService(c *chain.Chain) *FilterService { return &FilterService{chain: c} }

// LogFilterArgs is eth_newFilter's parameter shape.
type LogFilterArgs struct {
	FromBlock *rpc.BlockNumber  `json:"fromBlock"`
	ToBlock   *rpc.BlockNumber  `json:"toBlock"`
	Address   *common.Address   `json:"address"`
	Topics    []interface{}     `json:"topics"`
}

func (s *FilterService) NewFilter(args LogFilterArgs) (hexutil.Uint64, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	spec, err := s.toSpec(args)
	if err != nil {
		return 0, err
	}
	id := s.chain.Filters().InstallLogFilter(spec)
	return hexutil.Uint64(id), nil
}

func (s *FilterService) NewBlockFilter() hexutil.Uint64 {
	s.chain.Lock()
	defer s.chain.Unlock()
	return hexutil.Uint64(s.chain.Filters().InstallBlockFilter(s.chain.Height()))
}

func (s *FilterService) NewPendingTransactionFilter() hexutil.Uint64 {
	s.chain.Lock()
	defer s.chain.Unlock()
	return hexutil.Uint64(s.chain.Filters().InstallPendingTxFilter(s.chain.PendingCountLocked()))
}

func (s *FilterService) UninstallFilter(id hexutil.Uint64) bool {
	s.chain.Lock()
	defer s.chain.Unlock()
	return s.chain.Filters().Uninstall(uint64(id))
}

func (s *FilterService) GetFilterChanges(id hexutil.Uint64) (interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	fs := s.chain.Filters()
	kind, ok := fs.Kind(uint64(id))
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "no such filter %d", id)
	}
	switch kind {
	case chain.FilterKindBlock:
		hashes, _ := fs.GetChangesBlocks(uint64(id))
		return hashes, nil
	case chain.FilterKindPendingTx:
		hashes, _ := fs.GetChangesPendingTx(uint64(id))
		return hashes, nil
	default:
		spec, _ := fs.Spec(uint64(id))
		return s.matchingLogs(spec), nil
	}
}

func (s *FilterService) GetFilterLogs(id hexutil.Uint64) (interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	fs := s.chain.Filters()
	spec, ok := fs.Spec(uint64(id))
	if !ok {
		return nil, rpcerr.New(rpcerr.NotFound, "no such filter %d", id)
	}
	return s.matchingLogs(spec), nil
}

func (s *FilterService) GetLogs(args LogFilterArgs) (interface{}, error) {
	s.chain.Lock()
	defer s.chain.Unlock()
	spec, err := s.toSpec(args)
	if err != nil {
		return nil, err
	}
	return s.matchingLogs(spec), nil
}

// matchingLogs re-reads the configured block range's receipts and
// returns every log matching spec (spec §4.E group 4's get_logs).
// Caller must hold the lock.
func (s *FilterService) matchingLogs(spec chain.LogFilterSpec) []*types.Log {
	from := s.chain.Height()
	if spec.FromBlock != nil {
		from = *spec.FromBlock
	}
	to := s.chain.Height()
	if spec.ToBlock != nil {
		to = *spec.ToBlock
	}
	var out []*types.Log
	for n := from; n <= to; n++ {
		b, ok := s.chain.BlockByNumber(n)
		if !ok {
			continue
		}
		for _, tx := range b.Transactions() {
			r, ok := s.chain.ReceiptByTxHash(common.Hash(tx.Hash()))
			if !ok {
				continue
			}
			for _, log := range r.Logs {
				if spec.Matches(log) {
					out = append(out, log)
				}
			}
		}
	}
	return out
}

// toSpec resolves eth_newFilter/eth_getLogs params into a chain.LogFilterSpec.
// An omitted fromBlock/toBlock, or an explicit "latest", resolves to the
// chain's current height, matching every other block-tag-accepting RPC
// method in this package (see resolveBlock). Caller must hold the lock.
func (s *FilterService) toSpec(args LogFilterArgs) (chain.LogFilterSpec, error) {
	var spec chain.LogFilterSpec
	height := s.chain.Height()

	from := height
	if args.FromBlock != nil {
		from = resolveFilterBlockNumber(*args.FromBlock, height)
	}
	spec.FromBlock = &from

	to := height
	if args.ToBlock != nil {
		to = resolveFilterBlockNumber(*args.ToBlock, height)
	}
	spec.ToBlock = &to

	if to < from {
		return spec, rpcerr.New(rpcerr.InvalidParams, "toBlock %d before fromBlock %d", to, from)
	}

	spec.Address = args.Address

	for i := 0; i < 4; i++ {
		if i >= len(args.Topics) || args.Topics[i] == nil {
			spec.Topics[i] = chain.AnyTopic()
			continue
		}
		set := mapset.NewSet[common.Hash]()
		switch v := args.Topics[i].(type) {
		case string:
			h, err := decodeTopic(v)
			if err != nil {
				return spec, err
			}
			set.Add(h)
		case []interface{}:
			for _, item := range v {
				str, ok := item.(string)
				if !ok {
					return spec, rpcerr.New(rpcerr.InvalidParams, "topic %d: not a hex string", i)
				}
				h, err := decodeTopic(str)
				if err != nil {
					return spec, err
				}
				set.Add(h)
			}
		default:
			return spec, rpcerr.New(rpcerr.InvalidParams, "topic %d: unsupported shape", i)
		}
		spec.Topics[i] = chain.TopicFilter{OneOf: set}
	}
	return spec, nil
}

// resolveFilterBlockNumber turns a JSON-RPC block tag into a concrete
// height: "earliest" is genesis, "latest"/"pending" (and any other
// negative sentinel) is the chain's current height, otherwise the literal
// block number.
func resolveFilterBlockNumber(bn rpc.BlockNumber, currentHeight uint64) uint64 {
	if bn == rpc.EarliestBlockNumber {
		return 0
	}
	if bn < 0 {
		return currentHeight
	}
	return uint64(bn)
}

func decodeTopic(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, rpcerr.New(rpcerr.HexDecode, "%v", err)
	}
	return common.BytesToHash(b), nil
}
