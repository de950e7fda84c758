// package algorithms provides generified map/filter/reduce functions.
package algorithms

// Map applies the function f to each element of the slice and returns a new slice containing the results.
func Map[T, R any](s []T, f func(T) R) []R {
	r := make([]R, 0, len(s))
	for _, v := range s {
		r = append(r, f(v))
	}
	return r
}

// Filter returns a new slice containing all elements of the slice that satisfy the predicate function.
func Filter[T any](s []T, f func(T) bool) []T {
	r := make([]T, 0, len(s))
	for _, v := range s {
		if f(v) {
			r = append(r, v)
		}
	}
	return r
}

// Reverse reverses the order of the elements in the slice.
func Reverse[T any](a []T) {
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
}

// Uniq returns the elements of s with duplicates removed, preserving
// the order of first appearance.
func Uniq[T comparable](s []T) []T {
	seen := make(map[T]bool, len(s))
	r := make([]T, 0, len(s))
	for _, v := range s {
		if seen[v] {
			continue
		}
		seen[v] = true
		r = append(r, v)
	}
	return r
}

// Without returns the elements of s which do not appear in any of the exclusions.
func Without[T comparable](s []T, exclusions ...[]T) []T {
	drop := make(map[T]bool)
	for _, ex := range exclusions {
		for _, v := range ex {
			drop[v] = true
		}
	}
	return Filter(s, func(v T) bool { return !drop[v] })
}

// Contains reports whether v is present in s.
func Contains[T comparable](s []T, v T) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Chunk splits s into consecutive slices of at most size elements.
// A size less than one is treated as one.
func Chunk[T any](s []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var r [][]T
	for len(s) > size {
		r = append(r, s[:size:size])
		s = s[size:]
	}
	if len(s) > 0 {
		r = append(r, s)
	}
	return r
}
