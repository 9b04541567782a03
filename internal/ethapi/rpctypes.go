package ethapi

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/evmdev/node/common"
	"github.com/evmdev/node/core/types"
)

// recoverSender derives a transaction's sender from its own chain ID,
// needed only for cosmetic RPC display ("from" field) — the
// authoritative recovery used for validation lives in
// core/state.Stateful.ToValid, which is handed the active Patch instead.
func recoverSender(tx *types.Transaction) (common.Address, error) {
	signer := gethtypes.LatestSignerForChainID(tx.ChainId())
	from, err := gethtypes.Sender(signer, tx)
	return common.Address(from), err
}

// RPCBlock renders a block in the camelCase shape spec §6 requires
// ("RPCBlock ... match the established Ethereum JSON-RPC schema").
func RPCBlock(b *types.Block, fullTx bool) map[string]interface{} {
	txs := b.Transactions()
	var txField interface{}
	if fullTx {
		number := b.NumberU64()
		list := make([]map[string]interface{}, len(txs))
		for i, tx := range txs {
			list[i] = RPCTransaction(tx, common.Hash(b.Hash()), &number)
		}
		txField = list
	} else {
		hashes := make([]common.Hash, len(txs))
		for i, tx := range txs {
			hashes[i] = common.Hash(tx.Hash())
		}
		txField = hashes
	}
	return map[string]interface{}{
		"number":           hexutil.Uint64(b.NumberU64()),
		"hash":             common.Hash(b.Hash()),
		"parentHash":       common.Hash(b.ParentHash()),
		"nonce":             b.Header().Nonce,
		"mixHash":          common.Hash(b.MixDigest()),
		"sha3Uncles":       common.Hash(b.UncleHash()),
		"logsBloom":        b.Bloom(),
		"stateRoot":        common.Hash(b.Root()),
		"transactionsRoot": common.Hash(b.TxHash()),
		"receiptsRoot":     common.Hash(b.ReceiptHash()),
		"miner":            b.Coinbase(),
		"difficulty":       (*hexutil.Big)(b.Difficulty()),
		"extraData":        hexutil.Bytes(b.Extra()),
		"gasLimit":         hexutil.Uint64(b.GasLimit()),
		"gasUsed":          hexutil.Uint64(b.GasUsed()),
		"timestamp":        hexutil.Uint64(b.Time()),
		"transactions":     txField,
		"uncles":           []common.Hash{},
	}
}

// RPCTransaction renders a transaction, optionally including the
// enclosing block's hash/number once it has been mined. blockNumber is
// nil for a still-pending transaction.
func RPCTransaction(tx *types.Transaction, blockHash common.Hash, blockNumber *uint64) map[string]interface{} {
	v, r, s := tx.RawSignatureValues()
	out := map[string]interface{}{
		"hash":     common.Hash(tx.Hash()),
		"nonce":    hexutil.Uint64(tx.Nonce()),
		"from":     senderOrZero(tx),
		"to":       tx.To(),
		"value":    (*hexutil.Big)(tx.Value()),
		"gas":      hexutil.Uint64(tx.Gas()),
		"gasPrice": (*hexutil.Big)(tx.GasPrice()),
		"input":    hexutil.Bytes(tx.Data()),
		"v":        (*hexutil.Big)(v),
		"r":        (*hexutil.Big)(r),
		"s":        (*hexutil.Big)(s),
	}
	if blockNumber != nil {
		out["blockHash"] = blockHash
		out["blockNumber"] = hexutil.Uint64(*blockNumber)
	} else {
		out["blockHash"] = nil
		out["blockNumber"] = nil
	}
	return out
}

// RPCReceipt renders a transaction receipt.
func RPCReceipt(r *types.Receipt, blockHash common.Hash, status bool) map[string]interface{} {
	logs := r.Logs
	if logs == nil {
		logs = []*types.Log{}
	}
	statusHex := hexutil.Uint64(0)
	if status {
		statusHex = 1
	}
	return map[string]interface{}{
		"transactionHash":   common.Hash(r.TxHash),
		"blockHash":         blockHash,
		"cumulativeGasUsed": hexutil.Uint64(r.CumulativeGasUsed),
		"gasUsed":           hexutil.Uint64(r.GasUsed),
		"contractAddress":   contractAddressOrNil(r),
		"logs":              logs,
		"logsBloom":         r.Bloom,
		"status":            statusHex,
	}
}

func contractAddressOrNil(r *types.Receipt) interface{} {
	if r.ContractAddress == (common.Address{}) {
		return nil
	}
	return r.ContractAddress
}

// senderOrZero recovers the sender for display purposes; RPC reads never
// fail a whole response over a display-only field.
func senderOrZero(tx *types.Transaction) common.Address {
	from, err := recoverSender(tx)
	if err != nil {
		return common.Address{}
	}
	return from
}
