package circuits

import (
	"math"
	"math/big"
)

// EstimateIV evaluates the circuit's IV formula on the host with the same
// integer arithmetic, so the expected circuit output can be logged and checked
// before proving. tick only matters through the 1-tick range width, which is
// why it is not an input. Zero liquidity yields nil.
func EstimateIV(dailyVolume, liquidity *big.Int, feeTier uint64) *big.Int {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil
	}
	tickTvl := new(big.Int).Set(liquidity) // liquidity * (tick+1 - tick)
	ratio := new(big.Int).Quo(dailyVolume, tickTvl)
	sqrt := new(big.Int).Sqrt(ratio)

	iv := new(big.Int).SetUint64(2 * feeTier)
	iv.Mul(iv, sqrt)
	iv.Mul(iv, big.NewInt(sqrt365))
	return iv
}

// EstimateIVFloat is the textbook form of the estimate:
//
//	iv = 2 * (feeTier / 1e6) * sqrt(dailyVolume / tickTvl) * sqrt(365)
func EstimateIVFloat(dailyVolume, tickTvl float64, feeTier uint64) float64 {
	if tickTvl <= 0 {
		return math.NaN()
	}
	return 2 * (float64(feeTier) / 1e6) * math.Sqrt(dailyVolume/tickTvl) * math.Sqrt(365)
}
