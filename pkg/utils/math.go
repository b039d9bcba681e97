package utils

// Linspace returns n evenly spaced values over [min, max], both inclusive.
func Linspace(min, max float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1 || min == max:
		return []float64{min}
	}
	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := range out {
		out[i] = min + step*float64(i)
	}
	out[n-1] = max
	return out
}

// Normalize maps value from [min, max] to [0, 1]. Values outside the range
// (e.g. special sentinels) map to 0.
func Normalize(value, min, max float64) float64 {
	if max <= min || value < min || value > max {
		return 0
	}
	return (value - min) / (max - min)
}
