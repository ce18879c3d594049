package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/crypto-casino-poc/internal/chain"
)

// AddressAllocator é o subconjunto do cliente do indexador usado na atribuição
type AddressAllocator interface {
	CreateAddress(ctx context.Context) (chain.Address, error)
}

// Store é a persistência do registro usada pelo serviço
type Store interface {
	GetByUser(ctx context.Context, userID string) (Record, error)
	GetByAddress(ctx context.Context, address string) (Record, error)
	Insert(ctx context.Context, rec Record) error
}

// Service implementa a atribuição idempotente de endereço de depósito:
// um endereço por usuário, imutável depois de criado.
type Service struct {
	store Store
	chain AddressAllocator
	log   *zap.Logger
}

func NewService(store Store, allocator AddressAllocator, log *zap.Logger) *Service {
	return &Service{store: store, chain: allocator, log: log}
}

// Assign retorna o endereço existente do usuário ou aloca um novo no indexador.
// Sem retry interno: falha externa vira ErrAllocationFailed e o caller re-invoca.
func (s *Service) Assign(ctx context.Context, userID string) (string, error) {
	rec, err := s.store.GetByUser(ctx, userID)
	if err == nil {
		return rec.Address, nil
	}
	if err != ErrNotFound {
		return "", err
	}

	addr, err := s.chain.CreateAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}

	if err := s.store.Insert(ctx, Record{Address: addr.Address, UserID: userID, CustodyKey: addr.Private}); err != nil {
		return "", err
	}

	// Relê para honrar a imutabilidade caso outra atribuição tenha vencido a corrida
	rec, err = s.store.GetByUser(ctx, userID)
	if err != nil {
		return "", err
	}

	s.log.Info("deposit address assigned",
		zap.String("userId", userID), zap.String("address", rec.Address))
	return rec.Address, nil
}

// Resolve devolve o dono de um endereço observado on-chain
func (s *Service) Resolve(ctx context.Context, address string) (string, error) {
	rec, err := s.store.GetByAddress(ctx, address)
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}
