package indicators

import "math"

// Bands holds Bollinger band columns aligned with the input.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger uses the population standard deviation around an SMA.
func Bollinger(closes []float64, period int, mult float64) Bands {
	b := Bands{
		Upper:  nanSlice(len(closes)),
		Middle: SMASeries(closes, period),
		Lower:  nanSlice(len(closes)),
	}
	for i := range closes {
		mid := b.Middle[i]
		if math.IsNaN(mid) {
			continue
		}
		variance := 0.0
		for _, v := range closes[i-period+1 : i+1] {
			d := v - mid
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		b.Upper[i] = mid + mult*sd
		b.Lower[i] = mid - mult*sd
	}
	return b
}
