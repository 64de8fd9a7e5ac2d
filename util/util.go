// Package util collects small numeric helpers reused by the address and
// size arithmetic elsewhere in this module.
package util

// Int constrains a type parameter to any built-in integer or
// pointer-sized numeric type, so Min/Rounddown/Roundup work uniformly
// over page counts, byte offsets, and uintptr addresses alike.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns whichever of a or b is not greater.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Rounddown clamps v to the largest multiple of b that does not exceed
// it.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup finds the smallest multiple of b that is at least v, by
// rounding v+b-1 down instead of rounding v up directly.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}
