// Package execution talks to the custodial signing service that holds the
// operator wallets and broadcasts contract calls on their behalf.
package execution

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/config"
	"github.com/omni/bridge-orchestrator/contract"
	"github.com/omni/bridge-orchestrator/logging"
	"github.com/omni/bridge-orchestrator/retry"
)

const (
	publicKeyPath         = "/v1/w3s/config/entity/publicKey"
	contractExecutionPath = "/v1/w3s/developer/transactions/contractExecution"
	transactionPath       = "/v1/w3s/transactions/"
)

type Client struct {
	baseURL      string
	apiKey       string
	entitySecret []byte
	feeLevel     string
	httpClient   *http.Client
	poll         retry.Policy
	clock        retry.Clock
	logger       logging.Logger

	mu        sync.Mutex
	publicKey *rsa.PublicKey
}

func NewClient(cfg *config.SigningServiceConfig, logger logging.Logger) (*Client, error) {
	secret, err := hex.DecodeString(strings.TrimPrefix(cfg.EntitySecret, "0x"))
	if err != nil {
		return nil, fmt.Errorf("can't decode entity secret: %w", err)
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		entitySecret: secret,
		feeLevel:     cfg.FeeLevel,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		poll:         cfg.Poll,
		clock:        retry.RealClock,
		logger:       logger.WithField("service", "signing_service"),
	}, nil
}

// WithClock replaces the clock used between transaction status polls.
func (c *Client) WithClock(clock retry.Clock) *Client {
	c.clock = clock
	return c
}

// Execute submits call from the given custodial wallet. Every request carries
// a freshly encrypted entity secret and a new idempotency key.
func (c *Client) Execute(ctx context.Context, walletID string, call *contract.Call) (*Transaction, error) {
	ciphertext, err := c.entitySecretCiphertext(ctx)
	if err != nil {
		return nil, err
	}
	req := &contractExecutionRequest{
		IdempotencyKey:         uuid.NewString(),
		WalletID:               walletID,
		ContractAddress:        call.Contract.Hex(),
		AbiFunctionSignature:   call.Signature,
		AbiParameters:          call.Params,
		FeeLevel:               c.feeLevel,
		EntitySecretCiphertext: ciphertext,
	}
	var res submissionResponse
	if err = c.do(ctx, "contract_execution", http.MethodPost, contractExecutionPath, req, &res); err != nil {
		return nil, fmt.Errorf("can't execute %s on %s: %w", call.Signature, call.Contract, err)
	}
	tx, err := res.toTransaction()
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"wallet_id":      walletID,
		"contract":       call.Contract.Hex(),
		"function":       call.Signature,
		"state":          tx.State,
	}).Info("submitted contract execution")
	return tx, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var res lookupResponse
	if err := c.do(ctx, "get_transaction", http.MethodGet, transactionPath+url.PathEscape(id), nil, &res); err != nil {
		return nil, fmt.Errorf("can't get transaction %s: %w", id, err)
	}
	return res.toTransaction()
}

// WaitForTransaction polls the transaction until it reaches a final state.
// Lookup errors are retried within the poll budget.
func (c *Client) WaitForTransaction(ctx context.Context, id string) (*Transaction, error) {
	logger := c.logger.WithField("transaction_id", id)
	var tx *Transaction
	var lastErr error
	err := retry.Poll(ctx, c.poll, c.clock, func(ctx context.Context, attempt int) (bool, error) {
		res, err := c.GetTransaction(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			lastErr = err
			logger.WithError(err).WithField("attempt", attempt).Warn("can't get transaction state, retrying")
			return false, nil
		}
		tx = res
		switch {
		case res.State.IsSuccess():
			TransactionOutcomes.WithLabelValues(string(res.State)).Inc()
			return true, nil
		case res.State.IsFailure():
			TransactionOutcomes.WithLabelValues(string(res.State)).Inc()
			return false, fmt.Errorf("transaction %s ended in state %s: %s: %w", id, res.State, res.ErrorReason, apperr.ErrExternalService)
		default:
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"state":   res.State,
			}).Debug("transaction is not final yet")
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, apperr.ErrTimeout) {
			TransactionOutcomes.WithLabelValues("TIMEOUT").Inc()
			if lastErr != nil {
				return tx, fmt.Errorf("transaction %s is not final (last error: %v): %w", id, lastErr, err)
			}
		}
		return tx, fmt.Errorf("transaction %s is not final: %w", id, err)
	}
	logger.WithField("state", tx.State).Info("transaction is final")
	return tx, nil
}

func (c *Client) entitySecretCiphertext(ctx context.Context) (string, error) {
	key, err := c.getPublicKey(ctx)
	if err != nil {
		return "", err
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, c.entitySecret, nil)
	if err != nil {
		return "", fmt.Errorf("can't encrypt entity secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// getPublicKey fetches the entity public key once per client.
func (c *Client) getPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publicKey != nil {
		return c.publicKey, nil
	}
	var res publicKeyResponse
	if err := c.do(ctx, "public_key", http.MethodGet, publicKeyPath, nil, &res); err != nil {
		return nil, fmt.Errorf("can't get entity public key: %w", err)
	}
	key, err := parsePublicKey(res.Data.PublicKey)
	if err != nil {
		return nil, err
	}
	c.publicKey = key
	return key, nil
}

func parsePublicKey(raw string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, fmt.Errorf("entity public key is not PEM encoded: %w", apperr.ErrExternalService)
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("entity public key is %T, not RSA: %w", key, apperr.ErrExternalService)
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("can't parse entity public key: %v: %w", err, apperr.ErrExternalService)
	}
	return key, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out interface{}) (err error) {
	defer ObserveDuration(endpoint)()
	defer func() {
		ObserveError(endpoint, err)
	}()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("can't encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("can't build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w: %w", apperr.ErrExternalService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("can't read response: %w: %w", apperr.ErrExternalService, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("status %d, code %d: %s: %w", resp.StatusCode, apiErr.Code, apiErr.Message, apperr.ErrExternalService)
		}
		return fmt.Errorf("status %d: %w", resp.StatusCode, apperr.ErrExternalService)
	}
	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("can't decode response: %v: %w", err, apperr.ErrExternalService)
	}
	return nil
}
