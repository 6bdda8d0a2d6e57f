package mirror

import (
	"math"
	"strconv"
	"strings"
)

// roundEps absorbs float representation error before snapping to a grid,
// so 0.56/0.01 = 56.000000000000007 still floors to 56 ticks.
const roundEps = 1e-9

// decimalsOf returns the number of fractional digits in a decimal string,
// ignoring trailing zeros ("0.010" has one significant decimal... no:
// venue min sizes come as "0.01", "1", "0.1"; trailing zeros kept).
func decimalsOf(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}

// parsePositive parses a decimal string and reports whether it is a
// finite positive number.
func parsePositive(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}

// snapToTick rounds price to a multiple of tick. Buys round up and sells
// round down so the limit never undercuts the intended slippage bound.
func snapToTick(price, tick float64, up bool) float64 {
	if tick <= 0 {
		return price
	}
	ticks := price / tick
	if up {
		ticks = math.Ceil(ticks - roundEps)
	} else {
		ticks = math.Floor(ticks + roundEps)
	}
	// Re-quantize through the tick's decimal width to shed float dust.
	d := decimalsOfFloat(tick)
	pow := math.Pow(10, float64(d))
	return math.Round(ticks*tick*pow) / pow
}

// floorToDecimals truncates x to the given number of fractional digits.
func floorToDecimals(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Floor(x*pow+roundEps) / pow
}

func decimalsOfFloat(x float64) int {
	s := strconv.FormatFloat(x, 'f', -1, 64)
	return decimalsOf(s)
}
