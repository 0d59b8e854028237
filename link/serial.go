package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
	"go.bug.st/serial"
)

const (
	defaultBaudRate      = 9600
	defaultReplyTimeout  = time.Second
	defaultRxBufferSize  = 1024
	serialPollInterval   = 100 * time.Millisecond
	serialReadChunkBytes = 256
)

// SerialDialer opens a Transport on a UART wired to the module.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0" or "COM3".
	PortName string
	// Mode overrides the line settings. Defaults to 9600 baud 8N1.
	Mode *serial.Mode
	// ReplyTimeout bounds ReadTimeout. Defaults to one second.
	ReplyTimeout time.Duration
	// BufferSize is the capacity of the receive queue between the port and
	// the driver. Bytes arriving while it is full are dropped.
	BufferSize int
	// Logger receives overflow warnings. Defaults to discarding.
	Logger *slog.Logger
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("link: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("link: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: defaultBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", d.PortName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: reset input %s: %w", d.PortName, err)
	}
	if err := port.SetReadTimeout(serialPollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: set read timeout %s: %w", d.PortName, err)
	}

	timeout := d.ReplyTimeout
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	size := d.BufferSize
	if size <= 0 {
		size = defaultRxBufferSize
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return newSerialTransport(port, timeout, size, logger), nil
}

// serialPort is the part of serial.Port the transport uses. Reads must
// return 0, nil when the port read timeout elapses.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// serialTransport pumps the port into a ring buffer from a background
// goroutine, so Buffered and ReadAvailable never touch the port.
type serialTransport struct {
	port    serialPort
	rx      *ringbuffer.RingBuffer
	timeout time.Duration
	logger  *slog.Logger

	// notify is signalled after bytes were queued
	notify chan struct{}
	// done is closed by Close
	done chan struct{}
	// exited is closed when the pump returns; err is valid after that
	exited chan struct{}
	err    error

	mu        sync.Mutex
	dropped   int
	closeOnce sync.Once
}

func newSerialTransport(port serialPort, timeout time.Duration, size int, logger *slog.Logger) *serialTransport {
	t := &serialTransport{
		port:    port,
		rx:      ringbuffer.New(size),
		timeout: timeout,
		logger:  logger,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *serialTransport) pump() {
	defer close(t.exited)

	buf := make([]byte, serialReadChunkBytes)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.enqueue(buf[:n])
		}
		if err != nil {
			select {
			case <-t.done:
				t.err = ErrClosed
			default:
				t.err = fmt.Errorf("serial: read: %w", err)
			}
			return
		}
		select {
		case <-t.done:
			t.err = ErrClosed
			return
		default:
		}
	}
}

func (t *serialTransport) enqueue(p []byte) {
	n, err := t.rx.Write(p)
	if err != nil {
		t.mu.Lock()
		t.dropped += len(p) - n
		total := t.dropped
		t.mu.Unlock()
		// Lost bytes can split a status token; the driver resynchronizes
		// on the next unknown token.
		t.logger.Warn("Receive queue full, bytes dropped", "dropped", len(p)-n, "total", total)
	}
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Dropped returns how many received bytes were discarded because the
// receive queue was full.
func (t *serialTransport) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

func (t *serialTransport) Write(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, ErrClosed
	default:
	}
	return t.port.Write(p)
}

func (t *serialTransport) Buffered() int {
	return t.rx.Length()
}

func (t *serialTransport) ReadAvailable(p []byte) (int, error) {
	n := t.take(p)
	if n > 0 || len(p) == 0 {
		return n, nil
	}
	select {
	case <-t.exited:
		return 0, t.err
	default:
		return 0, nil
	}
}

func (t *serialTransport) ReadTimeout(p []byte) (int, error) {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	n := 0
	for {
		n += t.take(p[n:])
		if n == len(p) {
			return n, nil
		}
		select {
		case <-t.notify:
		case <-timer.C:
			return n, nil
		case <-t.exited:
			n += t.take(p[n:])
			if n == len(p) {
				return n, nil
			}
			return n, t.err
		}
	}
}

func (t *serialTransport) take(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	n, err := t.rx.Read(p)
	if err != nil {
		return 0
	}
	return n
}

func (t *serialTransport) Close() error {
	err := ErrClosed
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.port.Close()
		<-t.exited
	})
	return err
}
