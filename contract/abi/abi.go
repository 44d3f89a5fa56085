package abi

//nolint:golint
import (
	_ "embed"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed erc20.json
var erc20JSONABI string

//go:embed token_messenger_v1.json
var tokenMessengerV1JSONABI string

//go:embed token_messenger_v2.json
var tokenMessengerV2JSONABI string

//go:embed message_transmitter.json
var messageTransmitterJSONABI string

const (
	Approve          = "approve(address,uint256)"
	DepositForBurnV1 = "depositForBurn(uint256,uint32,bytes32,address)"
	DepositForBurnV2 = "depositForBurn(uint256,uint32,bytes32,address,bytes32,uint256,uint32)"
	ReceiveMessage   = "receiveMessage(bytes,bytes)"

	MessageSent = "event MessageSent(bytes message)"
)

var (
	ERC20ABI              = MustReadABI(erc20JSONABI)
	TokenMessengerV1ABI   = MustReadABI(tokenMessengerV1JSONABI)
	TokenMessengerV2ABI   = MustReadABI(tokenMessengerV2JSONABI)
	MessageTransmitterABI = MustReadABI(messageTransmitterJSONABI)

	MessageSentEventSignature = MessageTransmitterABI.Events["MessageSent"].ID
)

func MustReadABI(rawJSON string) abi.ABI {
	res, err := abi.JSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(err)
	}
	return res
}

// TokenMessengerABI returns the messenger ABI for the given protocol version.
func TokenMessengerABI(version uint8) abi.ABI {
	if version < 2 {
		return TokenMessengerV1ABI
	}
	return TokenMessengerV2ABI
}
