package utils

import "math"

// Round rounds a float64 to the specified number of decimal places
func Round(value float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(value*multiplier) / multiplier
}

// IsFinite reports whether v is neither NaN nor an infinity
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FiniteOrNil returns a pointer to v, or nil when v is not finite.
// encoding/json rejects NaN and Inf, so API payloads carry null instead.
func FiniteOrNil(v float64) *float64 {
	if !IsFinite(v) {
		return nil
	}
	return &v
}

// FiniteSlice maps values through FiniteOrNil
func FiniteSlice(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = FiniteOrNil(v)
	}
	return out
}

// IsSortedAscending reports whether values never decrease
func IsSortedAscending(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}
