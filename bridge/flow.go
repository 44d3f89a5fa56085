package bridge

import (
	"context"
	"fmt"

	"github.com/omni/bridge-orchestrator/entity"
)

// ExecuteBridgeFlow runs a transfer end to end: burn, wait for attestation, mint.
// onProgress is optional and is notified in addition to the orchestrator observer.
// An attestation timeout leaves the transfer waiting_attestation for a later resume.
func (o *Orchestrator) ExecuteBridgeFlow(ctx context.Context, req *InitiateRequest, onProgress Observer) (*entity.Transfer, error) {
	t, err := o.executeBridgeFlow(ctx, req, o.observers(onProgress))
	o.observeError("execute_bridge_flow", err)
	return t, err
}

func (o *Orchestrator) executeBridgeFlow(ctx context.Context, req *InitiateRequest, observers []Observer) (*entity.Transfer, error) {
	_, t, err := o.initiate(ctx, req, observers)
	if err != nil {
		return o.reload(ctx, t), err
	}
	src, err := o.registry.Get(t.SourceChain)
	if err != nil {
		return t, err
	}
	att, err := o.WaitForAttestation(ctx, *t.BurnTxHash, src.DomainID)
	if err != nil {
		return o.reload(ctx, t), err
	}
	t, err = o.markReadyToMint(ctx, t, att, observers)
	if err != nil {
		return o.reload(ctx, t), err
	}
	if _, err = o.completeBridge(ctx, t.ID, t.UserID, att.Message, att.Attestation, observers); err != nil {
		return o.reload(ctx, t), err
	}
	t, err = o.getTransfer(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("can't reload completed transfer: %w", err)
	}
	return t, nil
}

// reload returns the latest stored version of t, or t itself when it can't be read.
func (o *Orchestrator) reload(ctx context.Context, t *entity.Transfer) *entity.Transfer {
	if t == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	latest, err := o.getTransfer(ctx, t.ID)
	if err != nil {
		return t
	}
	return latest
}
