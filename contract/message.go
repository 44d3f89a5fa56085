package contract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrMalformedMessage = errors.New("malformed bridge message")

const (
	messageV1HeaderSize = 116
	messageV2HeaderSize = 148

	// feeExecuted and expirationBlock of a version 1 burn message body.
	burnBodyV2AttesterFieldsStart = 164
	burnBodyV2AttesterFieldsEnd   = 228
)

// MessageHeader is the fixed-size prefix of a burn message emitted by the
// source chain transmitter. Version 0 messages carry a 64-bit sequential nonce,
// version 1 messages a 32-byte nonce and finality fields.
type MessageHeader struct {
	Version                   uint32
	SourceDomain              uint32
	DestinationDomain         uint32
	Nonce                     common.Hash
	Sender                    common.Hash
	Recipient                 common.Hash
	DestinationCaller         common.Hash
	MinFinalityThreshold      uint32
	FinalityThresholdExecuted uint32
	Body                      []byte
}

func ParseMessageHeader(msg []byte) (*MessageHeader, error) {
	if len(msg) < 12 {
		return nil, fmt.Errorf("message of %d bytes is too short: %w", len(msg), ErrMalformedMessage)
	}
	h := &MessageHeader{
		Version:           binary.BigEndian.Uint32(msg[0:4]),
		SourceDomain:      binary.BigEndian.Uint32(msg[4:8]),
		DestinationDomain: binary.BigEndian.Uint32(msg[8:12]),
	}
	switch h.Version {
	case 0:
		if len(msg) < messageV1HeaderSize {
			return nil, fmt.Errorf("v1 message of %d bytes is too short: %w", len(msg), ErrMalformedMessage)
		}
		h.Nonce = common.BytesToHash(msg[12:20])
		h.Sender = common.BytesToHash(msg[20:52])
		h.Recipient = common.BytesToHash(msg[52:84])
		h.DestinationCaller = common.BytesToHash(msg[84:116])
		h.Body = msg[messageV1HeaderSize:]
	case 1:
		if len(msg) < messageV2HeaderSize {
			return nil, fmt.Errorf("v2 message of %d bytes is too short: %w", len(msg), ErrMalformedMessage)
		}
		h.Nonce = common.BytesToHash(msg[12:44])
		h.Sender = common.BytesToHash(msg[44:76])
		h.Recipient = common.BytesToHash(msg[76:108])
		h.DestinationCaller = common.BytesToHash(msg[108:140])
		h.MinFinalityThreshold = binary.BigEndian.Uint32(msg[140:144])
		h.FinalityThresholdExecuted = binary.BigEndian.Uint32(msg[144:148])
		h.Body = msg[messageV2HeaderSize:]
	default:
		return nil, fmt.Errorf("unsupported message version %d: %w", h.Version, ErrMalformedMessage)
	}
	return h, nil
}

// NonceKey is the usedNonces key of the destination transmitter.
func (h *MessageHeader) NonceKey() common.Hash {
	if h.Version == 0 {
		buf := make([]byte, 12)
		binary.BigEndian.PutUint32(buf[0:4], h.SourceDomain)
		copy(buf[4:12], h.Nonce[24:])
		return crypto.Keccak256Hash(buf)
	}
	return h.Nonce
}

// SameBurn reports whether an attested message describes the burn that emitted
// sent. The attester fills in the nonce and executed finality of version 1
// messages, and the executed fee and expiration block of their burn body, so
// those fields are not compared.
func SameBurn(attested, sent []byte) bool {
	if bytes.Equal(attested, sent) {
		return true
	}
	a, err := ParseMessageHeader(attested)
	if err != nil {
		return false
	}
	b, err := ParseMessageHeader(sent)
	if err != nil {
		return false
	}
	if a.Version == 0 && a.Nonce != b.Nonce {
		return false
	}
	return a.Version == b.Version &&
		a.SourceDomain == b.SourceDomain &&
		a.DestinationDomain == b.DestinationDomain &&
		a.Sender == b.Sender &&
		a.Recipient == b.Recipient &&
		a.DestinationCaller == b.DestinationCaller &&
		a.MinFinalityThreshold == b.MinFinalityThreshold &&
		bytes.Equal(comparableBody(a), comparableBody(b))
}

func comparableBody(h *MessageHeader) []byte {
	if h.Version == 0 || len(h.Body) < burnBodyV2AttesterFieldsEnd {
		return h.Body
	}
	body := bytes.Clone(h.Body)
	for i := burnBodyV2AttesterFieldsStart; i < burnBodyV2AttesterFieldsEnd; i++ {
		body[i] = 0
	}
	return body
}
