// Package anymath provides numeric helpers generic over Go's ordered
// types.
package anymath

import "golang.org/x/exp/constraints"

type Number interface {
	constraints.Integer | constraints.Float
}

// Clamp returns v limited to [lo, hi].  If lo > hi, lo wins.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// CeilDiv returns a/b rounded up for positive a and b.
func CeilDiv[T constraints.Integer](a, b T) T {
	if b <= 0 {
		panic("anymath: non-positive divisor")
	}
	if a <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

// PowersOfTwo returns 1, 2, 4, ... up to and including n rounded down
// to a power of two.
func PowersOfTwo[T constraints.Integer](n T) []T {
	var out []T
	for k := T(1); k > 0 && k <= n; k *= 2 {
		out = append(out, k)
	}
	return out
}

func Sum[T Number](vals ...T) T {
	var s T
	for _, v := range vals {
		s += v
	}
	return s
}
