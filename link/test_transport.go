package link

import (
	"context"
	"errors"
	"sync"

	"github.com/smallnest/ringbuffer"

	"i4.energy/across/blelink/at"
)

// TestTransport is an in-memory stand-in for a Bluetooth module. Bytes fed
// with Feed, and scripted replies triggered by Write, queue up as received
// data; reads never block, and ReadTimeout returns at once with what is
// pending, like a serial port whose timeout elapsed.
// Exported for use in tests.
type TestTransport struct {
	mu        sync.Mutex
	pending   *ringbuffer.RingBuffer
	replies   map[string]string
	writes    []string
	readSizes []int
	closed    bool
}

// NewTestTransport creates a new test transport with nothing pending.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		pending: ringbuffer.New(1024),
		replies: make(map[string]string),
	}
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	req := string(p)
	t.writes = append(t.writes, req)
	if reply, ok := t.replies[req]; ok {
		t.pending.Write([]byte(reply))
	}
	return len(p), nil
}

func (t *TestTransport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Length()
}

func (t *TestTransport) ReadAvailable(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readSizes = append(t.readSizes, len(p))
	return t.read(p)
}

func (t *TestTransport) ReadTimeout(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.read(p)
}

func (t *TestTransport) read(p []byte) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := t.pending.Read(p)
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, nil
	}
	return n, err
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Feed queues data as if the module had sent it.
func (t *TestTransport) Feed(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.Write([]byte(data))
}

// Respond makes the transport answer every write of request with reply.
func (t *TestTransport) Respond(request, reply string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[request] = reply
}

// AcceptSetup scripts the replies of a healthy module for the whole setup
// sequence.
func (t *TestTransport) AcceptSetup() {
	for _, cmd := range at.InitScript() {
		if reply, ok := cmd.Reply(); ok {
			t.Respond(cmd.Request(), reply)
		}
	}
}

// Writes returns every request written so far, in order.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// ReadSizes returns the buffer length of every ReadAvailable call so far.
func (t *TestTransport) ReadSizes() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.readSizes...)
}

// ResetRecords forgets recorded writes and read sizes.
func (t *TestTransport) ResetRecords() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = nil
	t.readSizes = nil
}

// Dialer returns a Dialer that hands out this transport.
func (t *TestTransport) Dialer() Dialer {
	return testDialer{t}
}

type testDialer struct{ t *TestTransport }

func (d testDialer) Dial(_ context.Context) (Transport, error) {
	return d.t, nil
}
