package link

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/blelink/at"
)

// replyScratchSize bounds a single synchronous reply. The longest reply of
// the setup script is 13 bytes.
const replyScratchSize = 40

// SendCommand performs one request/reply exchange with the module.
//
// Each attempt purges stale input, writes the request and reads the reply,
// waiting attempt × retryDelay before every retry. Only silence is retried:
// a reply that differs from the expected literal fails at once with
// ErrUnexpectedReply. When every attempt stays silent the error wraps
// ErrNoReply. A connect request has no synchronous reply and succeeds as
// soon as it is written.
//
// SendCommand owns the transport until it returns and must not be mixed
// with payload reads.
func (d *Driver) SendCommand(ctx context.Context, cmd at.Command) error {
	if d.closed {
		return ErrClosed
	}

	req := []byte(cmd.Request())
	want, awaited := cmd.Reply()

	var scratch [replyScratchSize]byte
	for attempt := range d.config.attempts {
		if err := sleep(ctx, time.Duration(attempt)*d.config.retryDelay); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}

		if _, err := Purge(d.transport); err != nil {
			return fmt.Errorf("%s: purge input: %w", cmd, err)
		}
		if _, err := d.transport.Write(req); err != nil {
			return fmt.Errorf("%s: write: %w", cmd, err)
		}

		if !awaited {
			d.logger.Debug("Command sent", "command", cmd.String())
			return nil
		}

		n, err := d.readReply(scratch[:], len(want))
		if err != nil {
			return fmt.Errorf("%s: read reply: %w", cmd, err)
		}
		if n == 0 {
			d.logger.Debug("No reply yet", "command", cmd.String(), "attempt", attempt+1)
			continue
		}

		if got := string(scratch[:n]); got != want {
			d.logger.Warn("Unexpected reply", "command", cmd.String(), "reply", got, "expected", want)
			return fmt.Errorf("%w: %s answered %q, expected %q", ErrUnexpectedReply, cmd, got, want)
		}

		d.logger.Debug("Command acknowledged", "command", cmd.String(), "attempt", attempt+1)
		return nil
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrNoReply, cmd, d.config.attempts)
}

// readReply reads the expected number of reply bytes with the transport
// timeout, then drains whatever else is already pending into the rest of
// buf.
func (d *Driver) readReply(buf []byte, expected int) (int, error) {
	n, err := d.transport.ReadTimeout(buf[:min(expected, len(buf))])
	if err != nil {
		return n, err
	}

	for n < len(buf) && d.transport.Buffered() > 0 {
		m, err := d.transport.ReadAvailable(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			break
		}
	}
	return n, nil
}
