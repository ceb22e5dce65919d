package strategy

import "math"

// SizingCurve shapes position size as a function of available capital.
type SizingCurve string

const (
	CurveLinear SizingCurve = "linear"
	CurveSqrt   SizingCurve = "sqrt"
	CurveLog    SizingCurve = "log"
)

// sizeForCapital applies the configured scaling curve over available
// capital. The sqrt and log curves dampen growth so larger bankrolls do
// not scale orders linearly into thin books. The result is clamped to
// maxSizeUSD.
func sizeForCapital(curve SizingCurve, fraction, capitalUSD, maxSizeUSD float64) float64 {
	if capitalUSD <= 0 || fraction <= 0 || maxSizeUSD <= 0 {
		return 0
	}

	base := fraction * capitalUSD
	var size float64
	switch curve {
	case CurveSqrt:
		size = math.Sqrt(base * maxSizeUSD)
	case CurveLog:
		size = maxSizeUSD * math.Log1p(base) / math.Log1p(maxSizeUSD)
	default:
		size = base
	}

	return math.Min(size, maxSizeUSD)
}
