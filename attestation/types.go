package attestation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/omni/bridge-orchestrator/apperr"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
)

// Message is one burn message observed by the oracle. Message and Attestation
// are only set once Status is complete.
type Message struct {
	Message     []byte
	Attestation []byte
	Status      Status
	EventNonce  string
}

type messagesResponse struct {
	Messages []struct {
		Message     string `json:"message"`
		Attestation string `json:"attestation"`
		Status      string `json:"status"`
		EventNonce  string `json:"eventNonce"`
	} `json:"messages"`
}

func (r *messagesResponse) toMessages() ([]*Message, error) {
	res := make([]*Message, 0, len(r.Messages))
	for i, m := range r.Messages {
		msg := &Message{
			Status:     StatusPending,
			EventNonce: m.EventNonce,
		}
		if !strings.EqualFold(m.Status, string(StatusComplete)) {
			res = append(res, msg)
			continue
		}
		var err error
		msg.Status = StatusComplete
		if msg.Message, err = hexutil.Decode(m.Message); err != nil || len(msg.Message) == 0 {
			return nil, fmt.Errorf("invalid message #%d in attestation response: %w", i, apperr.ErrExternalService)
		}
		if msg.Attestation, err = hexutil.Decode(m.Attestation); err != nil || len(msg.Attestation) == 0 {
			return nil, fmt.Errorf("invalid attestation #%d in attestation response: %w", i, apperr.ErrExternalService)
		}
		res = append(res, msg)
	}
	return res, nil
}
