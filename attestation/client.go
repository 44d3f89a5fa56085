// Package attestation queries the oracle that signs off burn messages
// before they can be received on the destination chain.
package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/logging"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	verifier   *Verifier
	logger     logging.Logger
}

func NewClient(cfg *config.AttestationConfig, logger logging.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.WithField("service", "attestation"),
	}
	if len(cfg.Attesters) > 0 {
		c.verifier = NewVerifier(cfg.Attesters)
	}
	return c
}

// GetMessages returns the messages emitted by the burn transaction.
// A nil slice with nil error means the oracle has not seen the transaction yet.
func (c *Client) GetMessages(ctx context.Context, sourceDomain uint32, txHash common.Hash) ([]*Message, error) {
	domain := strconv.FormatUint(uint64(sourceDomain), 10)
	defer ObserveDuration(domain)()

	u := fmt.Sprintf("%s/v2/messages/%s?transactionHash=%s", c.baseURL, domain, url.QueryEscape(txHash.Hex()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("can't build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		ObserveResult(domain, "", err)
		return nil, fmt.Errorf("can't query attestation for %s: %w: %w", txHash, apperr.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		ObserveResult(domain, "not_found", nil)
		return nil, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		ObserveResult(domain, "", err)
		return nil, fmt.Errorf("can't read attestation response: %w: %w", apperr.ErrExternalService, err)
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("attestation oracle returned status %d for %s: %w", resp.StatusCode, txHash, apperr.ErrExternalService)
		ObserveResult(domain, "", err)
		return nil, err
	}

	var body messagesResponse
	if err = json.Unmarshal(raw, &body); err != nil {
		ObserveResult(domain, "", err)
		return nil, fmt.Errorf("can't decode attestation response: %v: %w", err, apperr.ErrExternalService)
	}
	msgs, err := body.toMessages()
	if err != nil {
		ObserveResult(domain, "", err)
		return nil, err
	}
	if c.verifier != nil {
		for _, m := range msgs {
			if m.Status != StatusComplete {
				continue
			}
			if err = c.verifier.Verify(m.Message, m.Attestation); err != nil {
				ObserveResult(domain, "", err)
				return nil, fmt.Errorf("attestation for %s rejected: %v: %w", txHash, err, apperr.ErrExternalService)
			}
		}
	}

	status := "pending"
	if len(msgs) > 0 && msgs[0].Status == StatusComplete {
		status = "complete"
	}
	ObserveResult(domain, status, nil)
	c.logger.WithFields(logrus.Fields{
		"source_domain": sourceDomain,
		"tx_hash":       txHash,
		"messages":      len(msgs),
		"status":        status,
	}).Debug("queried attestation oracle")
	return msgs, nil
}
