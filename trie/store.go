// Package trie implements spec §4.A: a content-addressed blob store and a
// Merkle-Patricia trie view over it. Node encoding and hashing are
// delegated to go-ethereum/trie and go-ethereum/triedb, which already
// reproduce the canonical Ethereum MPT layout bit-for-bit — this system
// never hand-rolls branch/extension/leaf RLP encoding.
package trie

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/evmdev/node/common"
)

// blobCacheBytes sizes the read-through cache in front of Get: account
// code blobs are small and re-read constantly (every eth_call,
// every mined block touching the same accounts), so a modest in-memory
// cache removes most of the KV round trips without needing an LRU with
// eviction bookkeeping of its own.
const blobCacheBytes = 32 * 1024 * 1024

// HashStore is the append-only, content-addressed blob database shared by
// every trie node and every account's code. Nodes are added, never
// mutated or removed (spec §3's "Ownership and lifecycle").
type HashStore struct {
	kv    ethdb.Database
	ndb   *triedb.Database
	cache *fastcache.Cache
}

// NewHashStore builds an empty in-memory hash store.
func NewHashStore() *HashStore {
	kv := rawdb.NewMemoryDatabase()
	ndb := triedb.NewDatabase(kv, &triedb.Config{Preimages: true})
	return &HashStore{kv: kv, ndb: ndb, cache: fastcache.New(blobCacheBytes)}
}

// Put hashes data with Keccak-256, stores hash -> data if absent, and
// returns the hash. Writing the same hash twice is a no-op: the store is
// append-only and each hash is written at most once to the same value, so
// concurrent Put calls on distinct goroutines are safe (spec §5).
func (s *HashStore) Put(data []byte) common.Hash {
	h := common.Hash(crypto.Keccak256Hash(data))
	if has, _ := s.kv.Has(h.Bytes()); !has {
		_ = s.kv.Put(h.Bytes(), data)
	}
	s.cache.Set(h.Bytes(), data)
	return h
}

// Get returns the stored blob for hash, or false if absent. Content is
// content-addressed and immutable, so a cache hit never needs
// invalidation — the value behind a given hash never changes.
func (s *HashStore) Get(h common.Hash) ([]byte, bool) {
	if cached, ok := s.cache.HasGet(nil, h.Bytes()); ok {
		return cached, true
	}
	data, err := s.kv.Get(h.Bytes())
	if err != nil {
		return nil, false
	}
	s.cache.Set(h.Bytes(), data)
	return data, true
}

// EmptyRoot is the canonical empty-trie root: Keccak(RLP("")), RLP("")
// being the single byte 0x80.
func (s *HashStore) EmptyRoot() common.Hash {
	return common.Hash(crypto.Keccak256Hash([]byte{0x80}))
}

// NodeDB exposes the underlying trie node database for View construction.
func (s *HashStore) NodeDB() *triedb.Database { return s.ndb }

// KV exposes the raw key-value database backing code blob storage.
func (s *HashStore) KV() ethdb.Database { return s.kv }

// Preimage recovers the original key behind a secure-trie key hash, used
// by debug_dumpBlock to walk the account trie by address rather than by
// Keccak(address). Preimages are retained because this store always
// opens tries with triedb.Config{Preimages: true}; they are read through
// the trie database, which holds them in memory until it is committed.
func (s *HashStore) Preimage(h common.Hash) ([]byte, bool) {
	data := s.ndb.Preimage(h)
	return data, data != nil
}

// View opens a secure-trie view rooted at root. Missing child references
// during a later Get indicate corruption in this content-addressed store
// and are fatal per spec §4.A.
func (s *HashStore) View(root common.Hash, owner common.Hash) (*View, error) {
	id := trie.StateTrieID(root)
	if owner != (common.Hash{}) {
		id = trie.StorageTrieID(root, owner, root)
	}
	t, err := trie.NewStateTrie(id, s.ndb)
	if err != nil {
		return nil, fmt.Errorf("trie: open view at %s: %w", root, err)
	}
	return &View{trie: t, store: s}, nil
}
