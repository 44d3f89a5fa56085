package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/bridge-orchestrator/db"
	"github.com/omni/bridge-orchestrator/entity"
)

type walletsRepo basePostgresRepo

func NewWalletsRepo(table string, db *db.DB) entity.WalletsRepo {
	return (*walletsRepo)(newBasePostgresRepo(table, db))
}

func (r *walletsRepo) Ensure(ctx context.Context, wallet *entity.Wallet) error {
	q, args, err := psql.Insert(r.table).
		Columns("user_id", "chain", "wallet_id", "address").
		Values(wallet.UserID, wallet.Chain, wallet.WalletID, wallet.Address).
		Suffix("ON CONFLICT (user_id, chain) DO UPDATE SET updated_at = NOW(), wallet_id = EXCLUDED.wallet_id, address = EXCLUDED.address").
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert wallet: %w", err)
	}
	return nil
}

func (r *walletsRepo) FindByUserAndChain(ctx context.Context, userID, chain string) (*entity.Wallet, error) {
	q, args, err := psql.Select("*").
		From(r.table).
		Where(sq.Eq{"user_id": userID, "chain": chain}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	wallet := new(entity.Wallet)
	err = r.db.GetContext(ctx, wallet, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't get wallet by user and chain: %w", err)
	}
	return wallet, nil
}
