package ethapi

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/chain"
)

// Web3Service backs the web3_* namespace (spec §4.E group 1).
type Web3Service struct{}

func (Web3Service) ClientVersion() string { return "evmdev/v0" }

// NetService backs the net_* namespace.
type NetService struct {
	chainID uint64
}

func NewNetService(chainID uint64) *NetService { return &NetService{chainID: chainID} }

func (s *NetService) Version() string           { return strconv.FormatUint(s.chainID, 10) }
func (s *NetService) Listening() bool           { return true }
func (s *NetService) PeerCount() hexutil.Uint64 { return 0 }

// IdentityService backs the fixed-constant slice of eth_* (spec §4.E
// group 1): protocol version, syncing status, coinbase, mining status,
// hashrate, gas price and the legacy getCompilers stub.
type IdentityService struct {
	chain *chain.Chain
}

func NewIdentityService(c *chain.Chain) *IdentityService { return &IdentityService{chain: c} }

func (s *IdentityService) ProtocolVersion() string  { return "0x41" }
func (s *IdentityService) Syncing() bool            { return false }
func (s *IdentityService) Coinbase() common.Address { return common.Address{} }
func (s *IdentityService) Mining() bool             { return true }
func (s *IdentityService) Hashrate() hexutil.Uint64 { return 0 }
func (s *IdentityService) GasPrice() *hexutil.Big   { return (*hexutil.Big)(hexutil.MustDecodeBig("0x4a817c800")) }
func (s *IdentityService) GetCompilers() []string   { return []string{} }

// GetWork/SubmitWork/SubmitHashrate round out the miner-facing RPC surface
// real clients poll against; this node mines on a timer instead of real
// proof-of-work (spec §4.D), so there is never any work to hand out and
// nothing submitted back is ever accepted.
func (s *IdentityService) GetWork() ([4]string, error) {
	zero := common.Hash{}.Hex()
	return [4]string{zero, zero, zero, "0x0"}, nil
}

func (s *IdentityService) SubmitWork(nonce gethtypes.BlockNonce, hash, digest common.Hash) bool {
	return false
}

func (s *IdentityService) SubmitHashrate(rate hexutil.Uint64, id common.Hash) bool {
	return false
}
