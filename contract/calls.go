package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	bridgeabi "github.com/omni/bridge-orchestrator/contract/abi"
)

// Call is a contract invocation in the form the signing service accepts:
// a canonical function signature plus positional parameters rendered as strings.
// Data holds the equivalent ABI calldata.
type Call struct {
	Contract  common.Address
	Signature string
	Params    []interface{}
	Data      []byte
}

// BurnArgs are the depositForBurn inputs. DestinationCaller, MaxFee and
// MinFinalityThreshold are only sent to v2 messengers.
type BurnArgs struct {
	Messenger            common.Address
	Token                common.Address
	Amount               *big.Int
	DestinationDomain    uint32
	MintRecipient        [32]byte
	DestinationCaller    [32]byte
	MaxFee               *big.Int
	MinFinalityThreshold uint32
	ProtocolVersion      uint8
}

func ApproveCall(token, spender common.Address, amount *big.Int) (*Call, error) {
	return newCall(token, bridgeabi.ERC20ABI, "approve", spender, amount)
}

func DepositForBurnCall(args *BurnArgs) (*Call, error) {
	contractABI := bridgeabi.TokenMessengerABI(args.ProtocolVersion)
	if args.ProtocolVersion < 2 {
		return newCall(args.Messenger, contractABI, "depositForBurn",
			args.Amount, args.DestinationDomain, args.MintRecipient, args.Token)
	}
	maxFee := args.MaxFee
	if maxFee == nil {
		maxFee = new(big.Int)
	}
	return newCall(args.Messenger, contractABI, "depositForBurn",
		args.Amount, args.DestinationDomain, args.MintRecipient, args.Token,
		args.DestinationCaller, maxFee, args.MinFinalityThreshold)
}

func ReceiveMessageCall(transmitter common.Address, message, attestation []byte) (*Call, error) {
	return newCall(transmitter, bridgeabi.MessageTransmitterABI, "receiveMessage", message, attestation)
}

func newCall(addr common.Address, contractABI abi.ABI, method string, args ...interface{}) (*Call, error) {
	m, ok := contractABI.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s is not present in contract abi", method)
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode %s calldata: %w", m.Sig, err)
	}
	params := make([]interface{}, len(args))
	for i, arg := range args {
		params[i], err = formatParam(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot format %s parameter %d: %w", m.Sig, i, err)
		}
	}
	return &Call{
		Contract:  addr,
		Signature: m.Sig,
		Params:    params,
		Data:      data,
	}, nil
}

func formatParam(arg interface{}) (interface{}, error) {
	switch v := arg.(type) {
	case common.Address:
		return v.Hex(), nil
	case *big.Int:
		return v.String(), nil
	case uint32:
		return fmt.Sprint(v), nil
	case [32]byte:
		return hexutil.Encode(v[:]), nil
	case []byte:
		return hexutil.Encode(v), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", arg)
	}
}
