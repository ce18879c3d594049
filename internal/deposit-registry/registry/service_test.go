package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/chain"
)

type memStore struct {
	byUser map[string]Record
	byAddr map[string]Record
}

func newMemStore() *memStore {
	return &memStore{byUser: make(map[string]Record), byAddr: make(map[string]Record)}
}

func (m *memStore) GetByUser(_ context.Context, userID string) (Record, error) {
	if rec, ok := m.byUser[userID]; ok {
		return rec, nil
	}
	return Record{}, ErrNotFound
}

func (m *memStore) GetByAddress(_ context.Context, address string) (Record, error) {
	if rec, ok := m.byAddr[address]; ok {
		return rec, nil
	}
	return Record{}, ErrNotFound
}

func (m *memStore) Insert(_ context.Context, rec Record) error {
	// Imutável: primeira gravação do usuário vence
	if _, ok := m.byUser[rec.UserID]; ok {
		return nil
	}
	m.byUser[rec.UserID] = rec
	m.byAddr[rec.Address] = rec
	return nil
}

type fakeAllocator struct {
	calls int
	err   error
}

func (f *fakeAllocator) CreateAddress(context.Context) (chain.Address, error) {
	f.calls++
	if f.err != nil {
		return chain.Address{}, f.err
	}
	return chain.Address{Address: "ltc1qallocated", Private: "priv-1"}, nil
}

func TestAssignIsIdempotentPerUser(t *testing.T) {
	store := newMemStore()
	alloc := &fakeAllocator{}
	svc := NewService(store, alloc, zap.NewNop())

	addr1, err := svc.Assign(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ltc1qallocated", addr1)

	// Segunda chamada devolve o mesmo endereço sem tocar no indexador
	addr2, err := svc.Assign(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, addr1, addr2)
	assert.Equal(t, 1, alloc.calls)
}

func TestAssignSurfacesAllocationFailure(t *testing.T) {
	svc := NewService(newMemStore(), &fakeAllocator{err: errors.New("indexer down")}, zap.NewNop())

	_, err := svc.Assign(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrAllocationFailed)
}

func TestResolveOwner(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeAllocator{}, zap.NewNop())

	_, err := svc.Assign(context.Background(), "u1")
	require.NoError(t, err)

	owner, err := svc.Resolve(context.Background(), "ltc1qallocated")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	_, err = svc.Resolve(context.Background(), "unknown-address")
	assert.ErrorIs(t, err, ErrNotFound)
}
