// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// memStorage is a minimal in-memory Storage for exercising Ref without
// pulling in the storage package. Offsets start at 1, since address 0
// means "never stored".
type memStorage struct {
	records [][]byte
}

func (s *memStorage) Read(offset uint64) ([]byte, error) {
	return s.records[offset-1], nil
}

func (s *memStorage) Write(payload []byte) (uint64, error) {
	s.records = append(s.records, payload)
	return uint64(len(s.records)), nil
}

type bytesCodec struct{}

func (bytesCodec) Marshal(v []byte) ([]byte, error)  { return v, nil }
func (bytesCodec) Unmarshal(d []byte) ([]byte, error) { return d, nil }
func (bytesCodec) PrepareToStore(Storage, []byte) error { return nil }

func TestEmptyRefGetReturnsZeroValue(t *testing.T) {
	var r Ref[[]byte]
	value, err := r.Get(&memStorage{}, bytesCodec{})
	require.NoError(t, err)
	require.Nil(t, value)
	require.Zero(t, r.Address())
}

func TestFromValueCachesWithoutStoring(t *testing.T) {
	r := FromValue([]byte("hello"))
	value, ok := r.Cached()
	require.True(t, ok)
	require.Equal(t, []byte("hello"), value)
	require.Zero(t, r.Address())
}

func TestStoreIsIdempotent(t *testing.T) {
	s := &memStorage{}
	r := FromValue([]byte("hello"))

	require.NoError(t, r.Store(s, bytesCodec{}))
	addr := r.Address()
	require.NotZero(t, addr)

	require.NoError(t, r.Store(s, bytesCodec{}))
	require.Equal(t, addr, r.Address())
	require.Len(t, s.records, 1)
}

func TestFromAddressLoadsLazily(t *testing.T) {
	s := &memStorage{}
	stored := FromValue([]byte("hello"))
	require.NoError(t, stored.Store(s, bytesCodec{}))

	r := FromAddress[[]byte](stored.Address())
	_, ok := r.Cached()
	require.False(t, ok)

	value, err := r.Get(s, bytesCodec{})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), value)

	value, ok = r.Cached()
	require.True(t, ok)
	require.Equal(t, []byte("hello"), value)
}
