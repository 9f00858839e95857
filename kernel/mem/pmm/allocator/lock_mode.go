package allocator

// lockMode tracks whether the allocator lock guards pool and ring updates.
// The mode only ever moves forward one step at a time.
type lockMode uint8

const (
	// modeUninitialized rejects every operation.
	modeUninitialized lockMode = iota

	// modeSingleThreaded is used during early boot while a single
	// processor runs; the lock is bypassed.
	modeSingleThreaded

	// modeMultiThreaded guards every pool and ring update with the lock.
	modeMultiThreaded
)

// String implements fmt.Stringer.
func (m lockMode) String() string {
	switch m {
	case modeUninitialized:
		return "uninitialized"
	case modeSingleThreaded:
		return "single-threaded"
	case modeMultiThreaded:
		return "multi-threaded"
	default:
		return "unknown"
	}
}

// advance moves the mode to next. It returns false and leaves the mode
// untouched if next is not the immediate successor of the current mode.
func (m *lockMode) advance(next lockMode) bool {
	if next != *m+1 || next > modeMultiThreaded {
		return false
	}

	*m = next
	return true
}
