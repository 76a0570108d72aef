package math

// AuctionDecayDivisor controls the linear price decay of a liquidation
// auction: the asking price drops by debt*elapsed/2400 native-value units per
// second of elapsed auction time, which walks the 115% ceiling down to the
// 100% face-value floor over six minutes (2400 * 3/20 = 360s).
const AuctionDecayDivisor = 2400

// AuctionPrice returns the decaying asking price of an auctioned position.
// The ceiling is 115% of debt; once now passes start the price decays
// linearly and clamps at zero. Monotonically non-increasing in now.
func AuctionPrice(debt uint64, start, now int64) uint64 {
	// MulDiv cannot fail here: divisor is constant and the quotient of
	// debt*23/20 fits for any debt the validator admits.
	price, _ := MulDiv(debt, 23, 20)

	if now <= start {
		return price
	}

	elapsed := uint64(now - start)
	decay, err := MulDiv(debt, elapsed, AuctionDecayDivisor)
	if err != nil || decay >= price {
		return 0
	}
	return price - decay
}

// LiquidationFloor is the minimum total a liquidator must remit: the decaying
// auction price, but never less than the face-value debt.
func LiquidationFloor(debt uint64, start, now int64) uint64 {
	price := AuctionPrice(debt, start, now)
	if debt > price {
		return debt
	}
	return price
}
