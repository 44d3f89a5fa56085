package memory

import (
	"context"
	"sync"
	"time"

	"github.com/omni/bridge-orchestrator/entity"
)

type walletKey struct {
	userID string
	chain  string
}

type walletsRepo struct {
	mu      sync.Mutex
	wallets map[walletKey]entity.Wallet
}

func NewWalletsRepo() entity.WalletsRepo {
	return &walletsRepo{
		wallets: make(map[walletKey]entity.Wallet),
	}
}

func (r *walletsRepo) Ensure(_ context.Context, wallet *entity.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	key := walletKey{wallet.UserID, wallet.Chain}
	w := *wallet
	if prev, ok := r.wallets[key]; ok {
		w.CreatedAt = prev.CreatedAt
	} else {
		w.CreatedAt = &now
	}
	w.UpdatedAt = &now
	r.wallets[key] = w
	return nil
}

func (r *walletsRepo) FindByUserAndChain(_ context.Context, userID, chain string) (*entity.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[walletKey{userID, chain}]
	if !ok {
		return nil, nil
	}
	return &w, nil
}
