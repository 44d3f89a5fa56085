package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/entity"
)

type transfersRepo struct {
	mu        sync.Mutex
	now       func() time.Time
	transfers map[uuid.UUID]*entity.Transfer
}

func NewTransfersRepo() entity.TransfersRepo {
	return NewTransfersRepoWithClock(time.Now)
}

// NewTransfersRepoWithClock is NewTransfersRepo with a custom timestamp source.
func NewTransfersRepoWithClock(now func() time.Time) entity.TransfersRepo {
	return &transfersRepo{
		now:       now,
		transfers: make(map[uuid.UUID]*entity.Transfer),
	}
}

func (r *transfersRepo) Create(_ context.Context, t *entity.Transfer) (*entity.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := clone(t)
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if _, ok := r.transfers[res.ID]; ok {
		return nil, fmt.Errorf("transfer %s already exists: %w", res.ID, apperr.ErrConflict)
	}
	now := r.now()
	res.Status = entity.TransferStatusPending
	res.CreatedAt = now
	res.UpdatedAt = now
	r.transfers[res.ID] = res
	return clone(res), nil
}

func (r *transfersRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[id]
	if !ok {
		return nil, nil
	}
	return clone(t), nil
}

func (r *transfersRepo) Update(_ context.Context, id uuid.UUID, patch *entity.TransferPatch) (*entity.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[id]
	if !ok {
		return nil, nil
	}
	patch.Apply(t, r.now())
	return clone(t), nil
}

func (r *transfersRepo) TransitionStatus(_ context.Context, id uuid.UUID, from entity.TransferStatus, patch *entity.TransferPatch) (*entity.Transfer, error) {
	if patch.Status == nil {
		return nil, fmt.Errorf("status transition without target status: %w", apperr.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[id]
	if !ok || t.Status != from {
		return nil, nil
	}
	patch.Apply(t, r.now())
	return clone(t), nil
}

func (r *transfersRepo) ListByUser(_ context.Context, userID string, statuses []entity.TransferStatus) ([]*entity.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*entity.Transfer, 0, 10)
	for _, t := range r.transfers {
		if t.UserID == userID && matchStatus(t.Status, statuses) {
			res = append(res, clone(t))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID.String() < res[j].ID.String()
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (r *transfersRepo) ListByStatus(_ context.Context, statuses []entity.TransferStatus, updatedBefore time.Time, limit uint64) ([]*entity.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]*entity.Transfer, 0, 10)
	for _, t := range r.transfers {
		if len(statuses) > 0 && matchStatus(t.Status, statuses) && t.UpdatedAt.Before(updatedBefore) {
			res = append(res, clone(t))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].UpdatedAt.Before(res[j].UpdatedAt)
	})
	if limit > 0 && uint64(len(res)) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *transfersRepo) CountByStatus(_ context.Context) (map[entity.TransferStatus]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make(map[entity.TransferStatus]uint)
	for _, t := range r.transfers {
		res[t.Status]++
	}
	return res, nil
}

func matchStatus(status entity.TransferStatus, statuses []entity.TransferStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func clone(t *entity.Transfer) *entity.Transfer {
	res := *t
	if t.BurnTransactionID != nil {
		v := *t.BurnTransactionID
		res.BurnTransactionID = &v
	}
	if t.BurnTxHash != nil {
		v := *t.BurnTxHash
		res.BurnTxHash = &v
	}
	if t.MintTransactionID != nil {
		v := *t.MintTransactionID
		res.MintTransactionID = &v
	}
	if t.MintTxHash != nil {
		v := *t.MintTxHash
		res.MintTxHash = &v
	}
	if t.ErrorMessage != nil {
		v := *t.ErrorMessage
		res.ErrorMessage = &v
	}
	if t.Message != nil {
		res.Message = append([]byte(nil), t.Message...)
	}
	if t.Attestation != nil {
		res.Attestation = append([]byte(nil), t.Attestation...)
	}
	return &res
}
