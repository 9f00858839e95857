package mem

// Memset sets every byte of dst to value. Instead of using a for loop, this
// function uses log2(len(dst)) copy calls which should give us a speed boost
// as pages are always a power of 2 in size.
func Memset(dst []byte, value byte) {
	if len(dst) == 0 {
		return
	}

	// Set first element and make log2(size) optimized copies
	dst[0] = value
	for index := 1; index < len(dst); index *= 2 {
		copy(dst[index:], dst[:index])
	}
}
