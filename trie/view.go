package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/evmdev/node/common"
)

// View is a read/write handle on one Merkle-Patricia trie rooted at a
// specific hash. It never mutates in place: Insert/Remove return a new
// View with a new root, matching spec §4.A's "insertion of an empty value
// is equivalent to removal" and the append-only node store underneath.
type View struct {
	trie  *trie.StateTrie
	store *HashStore
}

// Root returns the current root hash of this view.
func (v *View) Root() common.Hash {
	return v.trie.Hash()
}

// Get returns the value stored at key, or (nil, false) if unset. Per spec
// §3, an unset storage slot defaults to zero / absence, never an error.
func (v *View) Get(key []byte) ([]byte, bool, error) {
	val, err := v.trie.GetStorage(common.Address{}, key)
	if err != nil {
		return nil, false, fmt.Errorf("trie: get corrupted (missing child reference): %w", err)
	}
	if len(val) == 0 {
		return nil, false, nil
	}
	return val, true, nil
}

// GetAccount is Get under another name: it returns the account trie's
// stored value, the RLP-encoded account (GetStorage's generic []byte path
// applies because StateTrie keys are Keccak(address) either way).
func (v *View) GetAccount(key []byte) ([]byte, bool, error) {
	return v.Get(key)
}

// Insert writes value at key and returns the resulting view. An empty
// value is a remove, per spec §4.A.
func (v *View) Insert(key, value []byte) (*View, error) {
	if len(value) == 0 {
		return v.Remove(key)
	}
	if err := v.trie.UpdateStorage(common.Address{}, key, value); err != nil {
		return nil, fmt.Errorf("trie: insert: %w", err)
	}
	return v.commit()
}

// Remove deletes key and returns the resulting view.
func (v *View) Remove(key []byte) (*View, error) {
	if err := v.trie.DeleteStorage(common.Address{}, key); err != nil {
		return nil, fmt.Errorf("trie: remove: %w", err)
	}
	return v.commit()
}

// Entry is one (secure-key, value) pair surfaced by Iterate; Value is the
// stored value in the same form Get returns it.
type Entry struct {
	KeyHash common.Hash
	Value   []byte
}

// Iterate walks every leaf of the trie in key order, for debug_dumpBlock
// (spec §4.E group 5). Keys are secure-trie key hashes; resolve the
// original address/slot via HashStore.Preimage.
func (v *View) Iterate() ([]Entry, error) {
	it := v.trie.NodeIterator(nil)
	leafs := trie.NewIterator(it)
	var out []Entry
	for leafs.Next() {
		// UpdateStorage stores every value RLP-wrapped; strip that layer
		// the way GetStorage does on the Get path.
		_, content, _, err := rlp.Split(leafs.Value)
		if err != nil {
			return nil, fmt.Errorf("trie: iterate: %w", err)
		}
		out = append(out, Entry{
			KeyHash: common.BytesToHash(leafs.Key),
			Value:   append([]byte(nil), content...),
		})
	}
	if leafs.Err != nil {
		return nil, fmt.Errorf("trie: iterate: %w", leafs.Err)
	}
	return out, nil
}

// commit flushes the in-memory trie mutations to the HashStore's node
// database and opens a fresh View at the new root. Nodes already present
// under the same hash are never rewritten (spec §3's immutable-by-hash
// policy), so repeated commits of the same content are idempotent.
func (v *View) commit() (*View, error) {
	root, nodes, err := v.trie.Commit(false)
	if err != nil {
		return nil, fmt.Errorf("trie: commit: %w", err)
	}
	if nodes != nil {
		merged := trienode.NewWithNodeSet(nodes)
		if err := v.store.ndb.Update(root, v.trie.Hash(), 0, merged, nil); err != nil {
			return nil, fmt.Errorf("trie: persist nodes: %w", err)
		}
	}
	next, err := v.store.View(root, common.Hash{})
	if err != nil {
		return nil, err
	}
	return next, nil
}
