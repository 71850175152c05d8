package escrow

import "math"

// maxFeeBps is the full rate: 10000 bps = 100%.
const maxFeeBps = 10000

// ComputeFee splits an amount into the platform fee and the net payout
// at the given basis-point rate. The fee rounds down, so fee + payout
// always equals amount. Returns ErrOverflow when amount * feeBps would
// exceed the uint64 range before the division.
func ComputeFee(amount uint64, feeBps uint32) (fee, payout uint64, err error) {
	if feeBps > maxFeeBps {
		return 0, 0, ErrInvalidFeeBps
	}
	if feeBps > 0 && amount > math.MaxUint64/uint64(feeBps) {
		return 0, 0, ErrOverflow
	}
	fee = amount * uint64(feeBps) / maxFeeBps
	return fee, amount - fee, nil
}
