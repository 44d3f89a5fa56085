package bridge

import (
	"fmt"
	"math"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/omni/bridge-orchestrator/apperr"
)

// TokenDecimals is the precision of the bridged stablecoin.
const TokenDecimals = 6

// maxAmountUnits keeps amounts and fees representable as int64 base units.
var maxAmountUnits = decimal.NewFromInt(math.MaxInt64)

var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// AnyCaller is the destinationCaller value that lets any address receive the message.
var AnyCaller [32]byte

// ParseAmount converts a human readable amount into token base units.
func ParseAmount(amount string) (*big.Int, error) {
	if !amountPattern.MatchString(amount) {
		return nil, fmt.Errorf("amount %q is not a decimal number: %w", amount, apperr.ErrValidation)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("amount %q is not a decimal number: %w", amount, apperr.ErrValidation)
	}
	units := d.Shift(TokenDecimals)
	if !units.Equal(units.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits: %w", amount, TokenDecimals, apperr.ErrValidation)
	}
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive: %w", amount, apperr.ErrValidation)
	}
	if units.GreaterThan(maxAmountUnits) {
		return nil, fmt.Errorf("amount %q is too large: %w", amount, apperr.ErrValidation)
	}
	return units.BigInt(), nil
}

// FormatUnits renders base units with exactly TokenDecimals fractional digits.
func FormatUnits(units *big.Int) string {
	return decimal.NewFromBigInt(units, -TokenDecimals).StringFixed(TokenDecimals)
}

// ComputeFee returns max(floor(amount * bps / 10000), minimum).
func ComputeFee(amountUnits *big.Int, feeBasisPoints, minimumFeeUnits int64) *big.Int {
	fee := new(big.Int).Mul(amountUnits, big.NewInt(feeBasisPoints))
	fee.Quo(fee, big.NewInt(10000))
	if minFee := big.NewInt(minimumFeeUnits); fee.Cmp(minFee) < 0 {
		return minFee
	}
	return fee
}

// EncodeRecipient left pads the address to the 32-byte form used in burn messages.
func EncodeRecipient(addr common.Address) [32]byte {
	var res [32]byte
	copy(res[:], common.LeftPadBytes(addr.Bytes(), 32))
	return res
}
