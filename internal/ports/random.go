package ports

// Random abstracts random byte generation so session ID allocation is
// reproducible in tests.
type Random interface {
	// Read fills b with random bytes and returns the number of bytes read.
	Read(b []byte) (n int, err error)
}
