package trie

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmdev/node/common"
)

func TestPutIsContentAddressedAndIdempotent(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()

	data := []byte("hello world")
	h1 := s.Put(data)
	h2 := s.Put(data)
	r.Equal(h1, h2)

	got, ok := s.Get(h1)
	r.True(ok)
	r.Equal(data, got)
}

func TestGetMissingHashIsAbsent(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()
	_, ok := s.Get(common.HexToHash("0xdeadbeef"))
	r.False(ok)
}

func TestGetHitsCacheAfterFirstRead(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()
	data := []byte("cached blob")
	h := s.Put(data)

	got1, ok := s.Get(h)
	r.True(ok)
	r.True(s.cache.Has(h.Bytes()))
	got2, ok := s.Get(h)
	r.True(ok)
	r.Equal(got1, got2)
}

func TestEmptyRootIsStable(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()
	r.Equal(s.EmptyRoot(), s.EmptyRoot())
}

func TestViewInsertGetRoundTrip(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()
	v, err := s.View(s.EmptyRoot(), common.Hash{})
	r.NoError(err)

	key := []byte("account-key-0000000000000000001")
	value := []byte{0x01, 0x02, 0x03}

	next, err := v.Insert(key, value)
	r.NoError(err)
	r.NotEqual(s.EmptyRoot(), next.Root())

	got, ok, err := next.Get(key)
	r.NoError(err)
	r.True(ok)
	r.Equal(value, got)
}

func TestViewEmptyValueInsertIsRemove(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()
	v, err := s.View(s.EmptyRoot(), common.Hash{})
	r.NoError(err)

	key := []byte("account-key-0000000000000000002")
	withValue, err := v.Insert(key, []byte{0x42})
	r.NoError(err)

	removed, err := withValue.Insert(key, nil)
	r.NoError(err)

	_, ok, err := removed.Get(key)
	r.NoError(err)
	r.False(ok)
	r.Equal(s.EmptyRoot(), removed.Root())
}

func TestViewIterateWalksInsertedLeaves(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()
	v, err := s.View(s.EmptyRoot(), common.Hash{})
	r.NoError(err)

	keys := [][]byte{
		[]byte("key-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		[]byte("key-bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
	}
	cur := v
	for _, k := range keys {
		cur, err = cur.Insert(k, []byte{0x01})
		r.NoError(err)
	}

	entries, err := cur.Iterate()
	r.NoError(err)
	r.Len(entries, len(keys))
}

func TestPreimageRecoversOriginalKey(t *testing.T) {
	r := require.New(t)
	s := NewHashStore()
	v, err := s.View(s.EmptyRoot(), common.Hash{})
	r.NoError(err)

	key := []byte("preimage-recoverable-key-00000001")
	next, err := v.Insert(key, []byte{0x09})
	r.NoError(err)

	entries, err := next.Iterate()
	r.NoError(err)
	r.Len(entries, 1)

	preimage, ok := s.Preimage(entries[0].KeyHash)
	r.True(ok)
	r.Equal(key, preimage)
}
