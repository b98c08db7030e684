package evm

import (
	"fmt"
	"math/big"
	"strings"

	"liquidityreward/pkg/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var tokenDecimals = map[string]int32{
	ledger.NativeToken: 18,
	"0x4f604735c1cf31399c6e711d5962b2b3e0225ad3": 18, // USDGLO
	"0x2e6c05f1f7d1f4eb9a088bf12257f1647682b754": 6,  // AXL
	"0x62b8b11039fcfe5ab0c56e502b1c372a3d2a9c7a": 18, // G$
	"0x912ce59144191c1204e64559fe8253a0e49e6548": 18, // ARB
}

// Decimals returns the on-chain decimals of a known payout token.
func Decimals(token string) (int32, error) {
	d, ok := tokenDecimals[strings.ToLower(token)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ledger.ErrUnknownToken, token)
	}
	return d, nil
}

// ToBaseUnits truncates amount to the token's precision and scales it to an integer.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Truncate(decimals).Shift(decimals).BigInt()
}

// ValidAddress accepts 20-byte hex addresses. Mixed-case input must carry a
// valid EIP-55 checksum; all-lower and all-upper forms carry none.
func ValidAddress(address string) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	body := address
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		body = body[2:]
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(address).Hex() == "0x"+body
}
