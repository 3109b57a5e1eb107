package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	return min(max(v, lo), hi)
}

// ClampPositive returns v when it is above zero and def otherwise.
func ClampPositive[T constraints.Integer | constraints.Float](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
