package transport

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

// Port is an open device handle.
type Port interface {
	io.Reader
	io.Closer
}

// Opener opens the device at path.
type Opener func(path string) (Port, error)

// SerialOpener returns an Opener for serial devices with the given baud
// rate. Reads block for at most readTimeout and return (0, nil) when no
// data arrived.
func SerialOpener(baud int, readTimeout time.Duration) Opener {
	return func(path string) (Port, error) {
		port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
		}
		return port, nil
	}
}

// PathExists reports whether a device node exists at path.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListPorts returns the serial ports known to the operating system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
