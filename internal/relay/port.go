package relay

import (
	"os"
)

// Port is one writable relay hardware handle. The production
// implementation wraps an RS-232 device file; tests substitute fakes.
type Port interface {
	Write(frame []byte) error
	Close() error
}

// Opener acquires the hardware handle for a channel. It is called
// lazily on first use and again after a fault, which is what lets a
// re-plugged USB adapter recover without a process restart.
type Opener func(channel int) (Port, error)

// Eletechsup 4CH boards speak a fixed 8-byte frame:
// 55 56 00 00 00 <channel> <op> <checksum>, checksum = low byte of the
// sum of the preceding bytes. Op 01 closes the contact, 02 releases it.
const (
	opClose   = 0x01
	opRelease = 0x02
)

func frame(channel, op byte) []byte {
	f := []byte{0x55, 0x56, 0x00, 0x00, 0x00, channel, op, 0x00}
	var sum byte
	for _, b := range f[:7] {
		sum += b
	}
	f[7] = sum
	return f
}

// AssertFrame returns the close-contact command for a channel.
func AssertFrame(channel int) []byte {
	return frame(byte(channel), opClose)
}

// ReleaseFrame returns the release command for a channel.
func ReleaseFrame(channel int) []byte {
	return frame(byte(channel), opRelease)
}

type devicePort struct {
	f *os.File
}

func (p *devicePort) Write(frame []byte) error {
	if _, err := p.f.Write(frame); err != nil {
		return err
	}
	return p.f.Sync()
}

func (p *devicePort) Close() error {
	return p.f.Close()
}

// DeviceOpener opens the relay board's serial device file. All four
// channels share one board, so the channel argument is ignored; the
// actuator still tracks acquisition per channel so a fault on one does
// not poison the others.
func DeviceOpener(device string) Opener {
	return func(int) (Port, error) {
		f, err := os.OpenFile(device, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return &devicePort{f: f}, nil
	}
}
