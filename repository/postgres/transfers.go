package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/db"
	"github.com/omni/bridge-orchestrator/entity"
)

type transfersRepo basePostgresRepo

func NewTransfersRepo(table string, db *db.DB) entity.TransfersRepo {
	return (*transfersRepo)(newBasePostgresRepo(table, db))
}

func (r *transfersRepo) Create(ctx context.Context, t *entity.Transfer) (*entity.Transfer, error) {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	q, args, err := psql.Insert(r.table).
		Columns("id", "user_id", "source_chain", "destination_chain", "amount", "recipient_address", "fee_units", "status").
		Values(id, t.UserID, t.SourceChain, t.DestinationChain, t.Amount, t.RecipientAddress, t.FeeUnits, entity.TransferStatusPending).
		Suffix("ON CONFLICT (id) DO NOTHING RETURNING *").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.Transfer)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("transfer %s already exists: %w", id, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("can't insert transfer: %w", err)
	}
	return res, nil
}

func (r *transfersRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Transfer, error) {
	q, args, err := psql.Select("*").
		From(r.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.Transfer)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't get transfer by id: %w", err)
	}
	return res, nil
}

func (r *transfersRepo) Update(ctx context.Context, id uuid.UUID, patch *entity.TransferPatch) (*entity.Transfer, error) {
	return r.update(ctx, sq.Eq{"id": id}, patch)
}

func (r *transfersRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from entity.TransferStatus, patch *entity.TransferPatch) (*entity.Transfer, error) {
	if patch.Status == nil {
		return nil, fmt.Errorf("status transition without target status: %w", apperr.ErrValidation)
	}
	return r.update(ctx, sq.Eq{"id": id, "status": from}, patch)
}

func (r *transfersRepo) update(ctx context.Context, where sq.Eq, patch *entity.TransferPatch) (*entity.Transfer, error) {
	b := psql.Update(r.table).Set("updated_at", sq.Expr("NOW()"))
	if patch.Status != nil {
		b = b.Set("status", *patch.Status)
	}
	if patch.FeeUnits != nil {
		b = b.Set("fee_units", *patch.FeeUnits)
	}
	if patch.BurnTransactionID != nil {
		b = b.Set("burn_transaction_id", sq.Expr("COALESCE(burn_transaction_id, ?)", *patch.BurnTransactionID))
	}
	if patch.BurnTxHash != nil {
		b = b.Set("burn_tx_hash", sq.Expr("COALESCE(burn_tx_hash, ?)", *patch.BurnTxHash))
	}
	if patch.MintTransactionID != nil {
		b = b.Set("mint_transaction_id", sq.Expr("COALESCE(mint_transaction_id, ?)", *patch.MintTransactionID))
	}
	if patch.MintTxHash != nil {
		b = b.Set("mint_tx_hash", sq.Expr("COALESCE(mint_tx_hash, ?)", *patch.MintTxHash))
	}
	if patch.Message != nil {
		b = b.Set("message", patch.Message)
	}
	if patch.Attestation != nil {
		b = b.Set("attestation", patch.Attestation)
	}
	if patch.ErrorMessage != nil {
		b = b.Set("error_message", *patch.ErrorMessage)
	}
	q, args, err := b.Where(where).Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := new(entity.Transfer)
	err = r.db.GetContext(ctx, res, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("can't update transfer: %w", err)
	}
	return res, nil
}

func (r *transfersRepo) ListByUser(ctx context.Context, userID string, statuses []entity.TransferStatus) ([]*entity.Transfer, error) {
	b := psql.Select("*").
		From(r.table).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id")
	if len(statuses) > 0 {
		b = b.Where("status = ANY(?)", pq.Array(statusStrings(statuses)))
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]*entity.Transfer, 0, 10)
	err = r.db.SelectContext(ctx, &res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't list transfers by user: %w", err)
	}
	return res, nil
}

func (r *transfersRepo) ListByStatus(ctx context.Context, statuses []entity.TransferStatus, updatedBefore time.Time, limit uint64) ([]*entity.Transfer, error) {
	b := psql.Select("*").
		From(r.table).
		Where("status = ANY(?)", pq.Array(statusStrings(statuses))).
		Where(sq.Lt{"updated_at": updatedBefore}).
		OrderBy("updated_at")
	if limit > 0 {
		b = b.Limit(limit)
	}
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]*entity.Transfer, 0, 10)
	err = r.db.SelectContext(ctx, &res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't list transfers by status: %w", err)
	}
	return res, nil
}

func (r *transfersRepo) CountByStatus(ctx context.Context) (map[entity.TransferStatus]uint, error) {
	q, args, err := psql.Select("status", "COUNT(*) AS count").
		From(r.table).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	var rows []struct {
		Status entity.TransferStatus `db:"status"`
		Count  uint                  `db:"count"`
	}
	err = r.db.SelectContext(ctx, &rows, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't count transfers by status: %w", err)
	}
	res := make(map[entity.TransferStatus]uint, len(rows))
	for _, row := range rows {
		res[row.Status] = row.Count
	}
	return res, nil
}

func statusStrings(statuses []entity.TransferStatus) []string {
	res := make([]string, len(statuses))
	for i, s := range statuses {
		res[i] = string(s)
	}
	return res
}
