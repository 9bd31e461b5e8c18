package modem

import (
	"errors"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// ErrNoModemFound is returned by FindPort when no serial device matches.
var ErrNoModemFound = errors.New("modem: no matching serial device found")

// DefaultBaudRate is used when the configuration does not name one.
const DefaultBaudRate = 115200

// OpenSerial opens portName as 8N1 with hardware flow control.
func OpenSerial(portName string, baudRate uint) (io.ReadWriteCloser, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return serial.Open(serial.OpenOptions{
		PortName:              portName,
		BaudRate:              baudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     true,
		MinimumReadSize:       1,
		InterCharacterTimeout: 100,
	})
}
