package link

import (
	"context"
	"io"
)

//go:generate go tool mockgen -destination=mock_link.go -package=link . Transport,Dialer

// Transport represents an established byte stream to a Bluetooth serial
// bridge module.
//
// A Transport is assumed to be already connected and ready for use. Besides
// a plain blocking write it offers the two read flavours the link driver
// needs: a non-blocking read of whatever has already been received, and a
// read bounded by the transport's own timeout. Typical implementations wrap
// a UART, or are in-memory fakes used for testing.
type Transport interface {
	io.Writer
	io.Closer

	// Buffered returns the number of received bytes that ReadAvailable can
	// return without blocking.
	Buffered() int

	// ReadAvailable copies up to len(p) already received bytes into p. It
	// never blocks and returns 0, nil when nothing is pending.
	ReadAvailable(p []byte) (int, error)

	// ReadTimeout blocks until len(p) bytes have been read or the transport
	// read timeout elapsed, and returns the number of bytes read. A timeout
	// is not an error.
	ReadTimeout(p []byte) (int, error)
}

// Dialer opens a Transport to a Bluetooth module.
//
// Dialer abstracts how the connection is created (for example, via a serial
// port or a test double) and is intended to be used during driver
// construction only.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It
	// may perform blocking operations and should respect cancellation and
	// deadlines provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// Purge discards every byte currently pending at the transport and returns
// how many were dropped.
func Purge(t Transport) (int, error) {
	var scratch [64]byte
	total := 0
	for t.Buffered() > 0 {
		n, err := t.ReadAvailable(scratch[:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
