package attestation_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/bridge-orchestrator/apperr"
	"github.com/omni/bridge-orchestrator/attestation"
	"github.com/omni/bridge-orchestrator/config"
)

var burnTxHash = common.HexToHash("0x9a7c0d2b6f5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a")

func newClient(t *testing.T, handler http.HandlerFunc, attesters ...common.Address) *attestation.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return attestation.NewClient(&config.AttestationConfig{
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
		Attesters: attesters,
	}, logger)
}

func writeMessages(w http.ResponseWriter, messages ...map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"messages": messages})
}

func TestClient_GetMessagesNotFound(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/messages/0", r.URL.Path)
		require.Equal(t, burnTxHash.Hex(), r.URL.Query().Get("transactionHash"))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Message hash not found"}`))
	})

	msgs, err := client.GetMessages(context.Background(), 0, burnTxHash)
	require.NoError(t, err)
	require.Nil(t, msgs)
}

func TestClient_GetMessagesPending(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeMessages(w, map[string]string{"message": "0x", "attestation": "PENDING", "status": "pending_confirmations"})
	})

	msgs, err := client.GetMessages(context.Background(), 6, burnTxHash)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, attestation.StatusPending, msgs[0].Status)
	require.Nil(t, msgs[0].Message)
}

func TestClient_GetMessagesComplete(t *testing.T) {
	t.Parallel()

	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeMessages(w, map[string]string{"message": "0x0102", "attestation": "0xaabb", "status": "complete", "eventNonce": "42"})
	})

	msgs, err := client.GetMessages(context.Background(), 6, burnTxHash)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, attestation.StatusComplete, msgs[0].Status)
	require.Equal(t, []byte{0x01, 0x02}, msgs[0].Message)
	require.Equal(t, []byte{0xaa, 0xbb}, msgs[0].Attestation)
	require.Equal(t, "42", msgs[0].EventNonce)
}

func TestClient_GetMessagesFailures(t *testing.T) {
	t.Parallel()

	for name, handler := range map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{"))
		},
		"bad hex": func(w http.ResponseWriter, r *http.Request) {
			writeMessages(w, map[string]string{"message": "zz", "attestation": "0x01", "status": "complete"})
		},
	} {
		handler := handler
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := newClient(t, handler).GetMessages(context.Background(), 0, burnTxHash)
			require.ErrorIs(t, err, apperr.ErrExternalService)
		})
	}
}

func TestClient_GetMessagesVerifiesAttesters(t *testing.T) {
	t.Parallel()

	message := []byte("burn message")
	keys := sortedKeys(t, 2)
	attestationBlob := sign(t, message, keys...)
	handler := func(w http.ResponseWriter, r *http.Request) {
		writeMessages(w, map[string]string{
			"message":     hexutil.Encode(message),
			"attestation": hexutil.Encode(attestationBlob),
			"status":      "complete",
		})
	}

	trusted := newClient(t, handler, addr(keys[0]), addr(keys[1]))
	msgs, err := trusted.GetMessages(context.Background(), 0, burnTxHash)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	untrusted := newClient(t, handler, addr(keys[0]))
	_, err = untrusted.GetMessages(context.Background(), 0, burnTxHash)
	require.ErrorIs(t, err, apperr.ErrExternalService)
}

func addr(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
