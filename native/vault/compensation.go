package vault

import "github.com/holiman/uint256"

var hundred = uint256.NewInt(100)

// TotalCompensation prices the minority supply (everything outside the reclaim
// escrow) at the TWAP snapshot. Amounts are integer micro-units so the product
// is exact; results that do not fit in 64 bits are rejected.
func TotalCompensation(totalSupply, tokensInEscrow, twapPrice uint64) (uint64, error) {
	if tokensInEscrow > totalSupply {
		return 0, errEscrowOverflow
	}
	return mulU64(totalSupply-tokensInEscrow, twapPrice)
}

// PaymentFor returns the compensation owed for amount fractions at the snapshot
// price.
func PaymentFor(amount, twapPrice uint64) (uint64, error) {
	return mulU64(amount, twapPrice)
}

// RequiredHolding is the smallest holding that satisfies pct of supply.
func RequiredHolding(supply uint64, pct uint8) uint64 {
	need := new(uint256.Int).Mul(uint256.NewInt(supply), uint256.NewInt(uint64(pct)))
	need.Add(need, uint256.NewInt(99))
	need.Div(need, hundred)
	return need.Uint64()
}

func meetsPercentage(holding, supply uint64, pct uint8) bool {
	have := new(uint256.Int).Mul(uint256.NewInt(holding), hundred)
	need := new(uint256.Int).Mul(uint256.NewInt(supply), uint256.NewInt(uint64(pct)))
	return !have.Lt(need)
}

func mulU64(a, b uint64) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}
