package market

import "math/big"

// MaxFeeRateBps caps the platform fee at 100%.
const MaxFeeRateBps uint32 = 10_000

// SplitFee divides a payment between the platform and the creator:
// fee = total * bps / 10000 with floor division, creator share is the
// remainder. Truncation favours the creator by at most 9999 smallest units
// relative to the exact proportion; the split always sums back to the total.
func SplitFee(total *big.Int, feeRateBps uint32) (fee *big.Int, creatorShare *big.Int) {
	if total == nil || total.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	fee = new(big.Int).Mul(total, big.NewInt(int64(feeRateBps)))
	fee = fee.Div(fee, big.NewInt(int64(MaxFeeRateBps)))
	creatorShare = new(big.Int).Sub(total, fee)
	return fee, creatorShare
}
