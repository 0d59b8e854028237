package link

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "link: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{PortName: "/dev/ttyUSB0"}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "link: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{PortName: "/dev/nonexistent"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_NonexistentPort(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
		Mode: &serial.Mode{
			BaudRate: 115200,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
	}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
}

// fakePort behaves like a serial port with a short read timeout.
type fakePort struct {
	rx     chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakePort() *fakePort {
	return &fakePort{
		rx:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.rx:
		return copy(b, data), nil
	case <-p.closed:
		return 0, errors.New("port has been closed")
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// syncBuffer is written by the pump goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitBuffered(t *testing.T, tr Transport, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for tr.Buffered() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d buffered bytes, have %d", n, tr.Buffered())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSerialTransport(t *testing.T) {
	discard := slog.New(slog.DiscardHandler)

	t.Run("Received bytes become available without blocking", func(t *testing.T) {
		port := newFakePort()
		tr := newSerialTransport(port, 50*time.Millisecond, 64, discard)
		defer tr.Close()

		port.rx <- []byte("OK+CONN")
		waitBuffered(t, tr, 7)

		buf := make([]byte, 3)
		n, err := tr.ReadAvailable(buf)
		if err != nil {
			t.Fatalf("unexpected error from ReadAvailable(): %v", err)
		}
		if string(buf[:n]) != "OK+" {
			t.Errorf("expected %q, got %q", "OK+", buf[:n])
		}
		if tr.Buffered() != 4 {
			t.Errorf("expected 4 bytes left, got %d", tr.Buffered())
		}
	})

	t.Run("ReadAvailable on an empty queue returns nothing", func(t *testing.T) {
		port := newFakePort()
		tr := newSerialTransport(port, 50*time.Millisecond, 64, discard)
		defer tr.Close()

		n, err := tr.ReadAvailable(make([]byte, 8))
		if n != 0 || err != nil {
			t.Errorf("expected 0, nil, got %d, %v", n, err)
		}
	})

	t.Run("ReadTimeout collects bytes arriving in pieces", func(t *testing.T) {
		port := newFakePort()
		tr := newSerialTransport(port, time.Second, 64, discard)
		defer tr.Close()

		go func() {
			port.rx <- []byte("OK+")
			time.Sleep(10 * time.Millisecond)
			port.rx <- []byte("Set:1")
		}()

		buf := make([]byte, 8)
		n, err := tr.ReadTimeout(buf)
		if err != nil {
			t.Fatalf("unexpected error from ReadTimeout(): %v", err)
		}
		if string(buf[:n]) != "OK+Set:1" {
			t.Errorf("expected %q, got %q", "OK+Set:1", buf[:n])
		}
	})

	t.Run("ReadTimeout returns what arrived when the timeout elapses", func(t *testing.T) {
		port := newFakePort()
		tr := newSerialTransport(port, 30*time.Millisecond, 64, discard)
		defer tr.Close()

		port.rx <- []byte("OK")

		start := time.Now()
		n, err := tr.ReadTimeout(make([]byte, 8))
		if err != nil {
			t.Fatalf("unexpected error from ReadTimeout(): %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 bytes, got %d", n)
		}
		if time.Since(start) < 30*time.Millisecond {
			t.Error("ReadTimeout returned before the timeout")
		}
	})

	t.Run("Overflow is dropped and counted", func(t *testing.T) {
		port := newFakePort()
		var logs syncBuffer
		tr := newSerialTransport(port, 50*time.Millisecond, 8, slog.New(slog.NewJSONHandler(&logs, nil)))
		defer tr.Close()

		port.rx <- []byte("0123456789")
		waitBuffered(t, tr, 8)
		time.Sleep(10 * time.Millisecond)

		if tr.Dropped() != 2 {
			t.Errorf("expected 2 dropped bytes, got %d", tr.Dropped())
		}
		out := logs.String()
		if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"dropped":2`) {
			t.Errorf("expected a drop warning, got %q", out)
		}
	})

	t.Run("Writes go to the port", func(t *testing.T) {
		port := newFakePort()
		tr := newSerialTransport(port, 50*time.Millisecond, 64, discard)
		defer tr.Close()

		if _, err := tr.Write([]byte("AT+ROLE1")); err != nil {
			t.Fatalf("unexpected error from Write(): %v", err)
		}
		port.mu.Lock()
		defer port.mu.Unlock()
		if port.written.String() != "AT+ROLE1" {
			t.Errorf("expected AT+ROLE1 on the port, got %q", port.written.String())
		}
	})

	t.Run("Close stops the transport", func(t *testing.T) {
		port := newFakePort()
		tr := newSerialTransport(port, 50*time.Millisecond, 64, discard)

		if err := tr.Close(); err != nil {
			t.Fatalf("unexpected error from Close(): %v", err)
		}
		if err := tr.Close(); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed on second Close(), got: %v", err)
		}
		if _, err := tr.Write([]byte("AT")); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed from Write(), got: %v", err)
		}
		if _, err := tr.ReadAvailable(make([]byte, 1)); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed from ReadAvailable(), got: %v", err)
		}
		if _, err := tr.ReadTimeout(make([]byte, 1)); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed from ReadTimeout(), got: %v", err)
		}
	})
}

func TestPurge(t *testing.T) {
	tr := NewTestTransport()
	tr.Feed("leftover reply bytes that were never read")

	n, err := Purge(tr)
	if err != nil {
		t.Fatalf("unexpected error from Purge(): %v", err)
	}
	if n != 41 {
		t.Errorf("expected 41 purged bytes, got %d", n)
	}
	if tr.Buffered() != 0 {
		t.Errorf("expected nothing pending, got %d", tr.Buffered())
	}
}
