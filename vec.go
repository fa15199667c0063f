package objdiff

// Vec is a resizable contiguous buffer. Slices handed out by Data and Grow
// alias the backing storage and are invalidated by any later call that
// reallocates it.
type Vec[T any] struct {
	data []T
}

func (v *Vec[T]) Len() int  { return len(v.data) }
func (v *Vec[T]) Cap() int  { return cap(v.data) }
func (v *Vec[T]) Data() []T { return v.data }

// Reserve makes the backing storage hold at least n elements. Storage is
// reallocated when n exceeds the allocation, growing to max(n, 2*cap), or
// when n drops below half of it, shrinking to max(n, Len()).
func (v *Vec[T]) Reserve(n int) {
	memSize := cap(v.data)
	switch {
	case n > memSize:
		if n < memSize*2 {
			n = memSize * 2
		}
	case n*2 < memSize:
		if n < len(v.data) {
			n = len(v.data)
		}
		if n*2 >= memSize {
			return
		}
	default:
		return
	}
	data := make([]T, len(v.data), n)
	copy(data, v.data)
	v.data = data
}

// Resize sets the logical size. Elements exposed by growing are zeroed.
// Shrinking may release storage as described for Reserve.
func (v *Vec[T]) Resize(n int) {
	old := len(v.data)
	if n <= old {
		v.data = v.data[:n]
		v.Reserve(n)
		return
	}
	if n > cap(v.data) {
		v.Reserve(n)
	}
	v.data = v.data[:n]
	clear(v.data[old:])
}

// Grow extends the buffer by n zeroed elements and returns them.
func (v *Vec[T]) Grow(n int) []T {
	old := len(v.data)
	v.Resize(old + n)
	return v.data[old:]
}

func (v *Vec[T]) Push(x T) {
	v.Grow(1)[0] = x
}

// Reset drops the contents and the allocation.
func (v *Vec[T]) Reset() {
	v.data = nil
}
