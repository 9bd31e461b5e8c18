//go:build !linux

package modem

// FindPort is only supported on linux.
func FindPort(string) (string, error) {
	return "", ErrNoModemFound
}
