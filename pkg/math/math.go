package math

type signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}
type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}
type integer interface {
	signed | unsigned
}
type float interface {
	~float32 | ~float64
}
type ordered interface {
	integer | float | ~string
}

func Abs[T signed](i T) T {
	if i > 0 {
		return i
	}
	return -i
}
func Max[T ordered](i T, candidates ...T) T {
	for _, j := range candidates {
		if j > i {
			i = j
		}
	}
	return i
}
func Min[T ordered](i T, candidates ...T) T {
	for _, j := range candidates {
		if j < i {
			i = j
		}
	}
	return i
}

// CeilDiv divides rounding away from zero for positive operands.
func CeilDiv[T integer](n, d T) T {
	return (n + d - 1) / d
}

// NextEven rounds up to the nearest even number.
func NextEven[T integer](i T) T {
	if i%2 == 0 {
		return i
	}
	return i + 1
}

// Clamp pins i to the closed interval [lo, hi].
func Clamp[T ordered](i, lo, hi T) T {
	return Min(Max(i, lo), hi)
}
