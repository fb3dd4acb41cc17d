package utils

import "golang.org/x/exp/constraints"

// CeilDiv returns ceil(a/b) for non negative a and positive b.
func CeilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

// RoundUp returns the smallest multiple of m that is >= a.
func RoundUp[T constraints.Integer](a, m T) T {
	return CeilDiv(a, m) * m
}
