package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is a custodial wallet held by the signing service on behalf of a user.
type Wallet struct {
	UserID    string         `db:"user_id"`
	Chain     string         `db:"chain"`
	WalletID  string         `db:"wallet_id"`
	Address   common.Address `db:"address"`
	CreatedAt *time.Time     `db:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at"`
}

type WalletsRepo interface {
	Ensure(ctx context.Context, wallet *Wallet) error
	FindByUserAndChain(ctx context.Context, userID, chain string) (*Wallet, error)
}
