package link

import "errors"

var (
	// ErrNoDialer is returned when a Driver is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// reach the Bluetooth module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoPeerAddress is returned when no peer address is configured. The
	// connect request sent after the setup script needs one.
	ErrNoPeerAddress = errors.New("no peer address configured")

	// ErrBufferTooSmall is returned when the configured receive buffer cannot
	// hold the longest status token.
	ErrBufferTooSmall = errors.New("receive buffer too small")

	// ErrNotInitialized is returned when an operation is attempted on a Driver
	// without a transport.
	ErrNotInitialized = errors.New("driver not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Driver that has
	// already been closed.
	ErrAlreadyClosed = errors.New("driver already closed")

	// ErrNoReply is returned when the module stayed silent for every attempt
	// of a command.
	ErrNoReply = errors.New("no reply from module")

	// ErrUnexpectedReply is returned when the module answered a command with
	// something other than the expected literal. It is never retried.
	ErrUnexpectedReply = errors.New("unexpected reply")

	// ErrNotLinked is returned by Write when no peer is connected. Nothing is
	// sent to the transport in that case.
	ErrNotLinked = errors.New("peer not linked")

	// ErrClosed is returned by transports after Close.
	ErrClosed = errors.New("transport closed")

	// ErrOutOfRange is returned by Buffer operations whose position or count
	// falls outside the live or free region.
	ErrOutOfRange = errors.New("buffer: out of range")
)
