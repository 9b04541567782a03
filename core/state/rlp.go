package state

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/evmdev/node/core/types"
)

// decodeAccountRLP and encodeAccountRLP give Account its RLP shape: the
// account trie's values are RLP-encoded types.Account blobs, exactly like
// a real Ethereum state trie's leaves.
func decodeAccountRLP(data []byte, acc *types.Account) error {
	return rlp.DecodeBytes(data, acc)
}

func encodeAccountRLP(acc *types.Account) []byte {
	data, err := rlp.EncodeToBytes(acc)
	if err != nil {
		panic(err)
	}
	return data
}
