// Package collection holds index bookkeeping for ordered slices, so
// rollbacks restore an element to the exact position it left.
package collection

import "slices"

// Insert puts v at index i. An out-of-range i is clamped to the nearest end.
func Insert[T any](s []T, i int, v T) []T {
	return slices.Insert(s, max(0, min(i, len(s))), v)
}

// Remove deletes the element at index i. ok is false when i is out of range
// and s is returned untouched.
func Remove[T any](s []T, i int) (out []T, removed T, ok bool) {
	if i < 0 || i >= len(s) {
		return s, removed, false
	}
	removed = s[i]
	return slices.Delete(s, i, i+1), removed, true
}

// IndexOf returns the index of the first element equal to v, or -1.
func IndexOf[T comparable](s []T, v T) int {
	return slices.Index(s, v)
}
