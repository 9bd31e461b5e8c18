//go:build linux

package modem

import (
	"strings"

	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

// FindPort returns the path of the first serial device whose description contains
// match, case insensitive.
func FindPort(match string) (string, error) {
	devices, err := serialdet.List()
	if err != nil {
		return "", err
	}

	match = strings.ToLower(match)
	for _, device := range devices {
		if strings.Contains(strings.ToLower(device.Description()), match) {
			return device.Path(), nil
		}
	}
	return "", ErrNoModemFound
}
