package link

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/blelink/at"
)

// Driver turns the byte stream of a Bluetooth serial bridge module into a
// link status and a payload queue.
//
// The module pushes connection changes as text tokens into the same stream
// that carries AT replies and peer payload. The Driver owns a small receive
// buffer and runs a status check over its head before any payload becomes
// visible, so a token is never mistaken for payload and payload is never
// consumed as a token.
//
// A Driver is driven by polling from a single goroutine: call IsConnected
// every tick, then HasBytes / Payload / RemoveBytes to consume what the peer
// sent. It is not safe for concurrent use.
type Driver struct {
	// transport provides the physical connection to the module
	transport Transport
	// config contains the driver configuration settings
	config Config
	// logger receives diagnostics; never nil
	logger *slog.Logger
	// buffer holds received bytes that have not been consumed yet
	buffer *Buffer

	// linked is the last known peer connection status
	linked bool
	// initialized is set once the setup script and connect request went out
	initialized bool
	// newConnection is raised when a fresh connect token is seen
	newConnection bool
	// closed indicates if the driver has been shut down
	closed bool
}

// State is a snapshot of the link flags.
type State struct {
	Linked               bool `json:"linked"`
	Initialized          bool `json:"initialized"`
	NewConnectionPending bool `json:"new_connection_pending"`
}

// New creates a Driver with the given configuration. It dials the
// configured transport but does not talk to the module yet; the setup
// script runs on the first IsConnected call.
func New(ctx context.Context, config Config) (*Driver, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial module: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	return &Driver{
		transport: transport,
		config:    config,
		logger:    config.logger,
		buffer:    NewBuffer(config.bufferSize),
	}, nil
}

// IsConnected reports whether a peer is linked. While the module is not
// configured it runs the whole setup script first, which blocks for the
// retry and settle delays; a failing step leaves the driver unconfigured so
// the next call starts the script over from the first command.
func (d *Driver) IsConnected(ctx context.Context) bool {
	if d.linked {
		return true
	}

	if !d.initialized {
		if err := d.initialize(ctx); err != nil {
			d.logger.Warn("Module setup failed", "error", err)
			return false
		}
		d.initialized = true
	}

	return d.checkStatus()
}

// initialize sends the setup script, waits for the module to settle and
// fires the connect request for the configured peer.
func (d *Driver) initialize(ctx context.Context) error {
	for i, cmd := range at.InitScript() {
		if err := d.SendCommand(ctx, cmd); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i+1, cmd, err)
		}
	}

	if err := sleep(ctx, d.config.settleDelay); err != nil {
		return fmt.Errorf("settle: %w", err)
	}

	if err := d.SendCommand(ctx, at.Connect(d.config.peerAddress)); err != nil {
		return fmt.Errorf("connect %s: %w", d.config.peerAddress, err)
	}

	d.logger.Info("Module configured", "peer", d.config.peerAddress)
	return nil
}

// IsNewConnection reports whether a connect token was seen since the last
// call, and clears the flag.
func (d *Driver) IsNewConnection() bool {
	if d.newConnection {
		d.newConnection = false
		return true
	}
	return false
}

// Connect is a placeholder for peer discovery. The peer is currently fixed
// by configuration and connected from IsConnected.
func (d *Driver) Connect() {
	if d.linked {
		return
	}
	d.logger.Debug("Peer discovery not supported, waiting for configured peer", "peer", d.config.peerAddress)
}

// Disconnect drops the link and forces the setup script to run again.
func (d *Driver) Disconnect() {
	if !d.linked {
		return
	}
	d.Reset("disconnect device")
}

// HasBytes reports whether at least n payload bytes are buffered. It reads
// at most once from the transport per call, and never more than the
// missing byte count or the free buffer space, to keep per-tick latency and
// the receive queue small.
func (d *Driver) HasBytes(n int) bool {
	if d.buffer.Has(n) {
		return true
	}

	if d.transport.Buffered() > 0 {
		want := min(n-d.buffer.Len(), d.buffer.Free())
		d.fill(want)
	}

	// The new bytes may be a status token rather than payload.
	if !d.checkStatus() {
		return false
	}

	return d.buffer.Has(n)
}

// TokenPending reports whether the head of the buffer is a status token that
// is still arriving. It tops the token up first, so a token completed by the
// transport is applied before the answer. While it returns true the buffered
// bytes must not be consumed as payload.
func (d *Driver) TokenPending() bool {
	if !at.Partial(d.buffer.Bytes()) {
		return false
	}
	d.checkStatus()
	return at.Partial(d.buffer.Bytes())
}

// fill performs one non-blocking read of at most want bytes into the
// buffer.
func (d *Driver) fill(want int) int {
	want = min(want, d.buffer.Free())
	if want <= 0 {
		return 0
	}
	n, err := d.transport.ReadAvailable(d.buffer.Tail()[:want])
	if err != nil {
		d.logger.Warn("Transport read failed", "error", err)
	}
	if n <= 0 {
		return 0
	}
	if err := d.buffer.Commit(n); err != nil {
		d.logger.Error("Transport returned more bytes than requested", "error", err)
		return 0
	}
	return n
}

// Byte returns the buffered payload byte at pos.
func (d *Driver) Byte(pos int) (byte, error) {
	return d.buffer.At(pos)
}

// Payload returns the buffered payload. The slice aliases the receive
// buffer and is invalidated by RemoveBytes.
func (d *Driver) Payload() []byte {
	return d.buffer.Bytes()
}

// RemoveBytes consumes n payload bytes and re-checks the head of the
// stream, since consuming payload may expose a status token behind it.
func (d *Driver) RemoveBytes(n int) error {
	if err := d.buffer.Consume(n); err != nil {
		return err
	}
	d.checkStatus()
	return nil
}

// Write sends payload to the peer. Nothing is written while no peer is
// linked.
func (d *Driver) Write(p []byte) (int, error) {
	if !d.linked {
		return 0, ErrNotLinked
	}
	return d.transport.Write(p)
}

// Reset drops the link and all buffered bytes, and purges the transport to
// resynchronize framing after an anomaly.
func (d *Driver) Reset(reason string) {
	d.logger.Info("Link reset", "reason", reason)

	d.linked = false
	d.newConnection = false
	d.initialized = false
	d.buffer.Reset()

	if n, err := Purge(d.transport); err != nil {
		d.logger.Warn("Transport purge failed", "error", err, "purged", n)
	} else if n > 0 {
		d.logger.Debug("Transport purged", "bytes", n)
	}
}

// State returns a snapshot of the link flags.
func (d *Driver) State() State {
	return State{
		Linked:               d.linked,
		Initialized:          d.initialized,
		NewConnectionPending: d.newConnection,
	}
}

// Close releases the transport. After Close the driver cannot be reused.
func (d *Driver) Close() error {
	if d.closed {
		return ErrAlreadyClosed
	}
	d.closed = true
	d.linked = false
	d.initialized = false

	if d.transport != nil {
		return d.transport.Close()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
