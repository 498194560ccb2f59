package pool

import "sync"

var stringSlicePool = sync.Pool{
	New: func() any { return &[]string{} },
}

// GetStringSlice retrieves a string slice of exactly size elements from the pool.
//
// The definition decoder uses it for the raw tag list, which only lives until the
// tags are split into a map. The caller must call the returned cleanup function once
// it no longer references the slice.
//
// Parameters:
//   - size: The desired length of the slice
//
// Returns:
//   - []string: A slice with length equal to size
//   - func(): Cleanup function that returns the slice to the pool
//
// Example:
//
//	tags, cleanup := pool.GetStringSlice(n)
//	defer cleanup()
func GetStringSlice(size int) ([]string, func()) {
	ptr, _ := stringSlicePool.Get().(*[]string)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]string, size)
	} else {
		slice = slice[:size]
	}
	*ptr = slice

	return slice, func() {
		// drop string references so pooled slices do not pin decoded buffers
		clear(*ptr)
		stringSlicePool.Put(ptr)
	}
}
