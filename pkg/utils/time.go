package utils

import "time"

// HoursBetween returns (t - ref) in fractional hours
func HoursBetween(ref, t time.Time) float64 {
	return t.Sub(ref).Hours()
}
