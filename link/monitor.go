package link

import "i4.energy/across/blelink/at"

// checkStatus inspects the head of the receive buffer for an unsolicited
// status token and applies it. It returns the link status, or true when the
// head is plain payload.
//
// A partial token is topped up with at most one non-blocking read per
// recognizer state; if the token is still incomplete the bytes stay buffered
// and the previous status is reported, so the next call resumes the match.
func (d *Driver) checkStatus() bool {
	var toppedUp [at.StateResolved]bool

	for {
		m := at.Recognize(d.buffer.Bytes())
		if m.State != at.StateResolved {
			if toppedUp[m.State] {
				return d.linked
			}
			toppedUp[m.State] = true
			d.fill(m.Need - d.buffer.Len())
			continue
		}

		switch m.Action {
		case at.ActionPassthrough:
			return true

		case at.ActionUnlinked:
			d.consumeToken(m)
			d.linked = false
			d.initialized = false
			d.logger.Info("Peer connection failed")
			return false

		case at.ActionAcknowledged:
			d.consumeToken(m)
			d.logger.Debug("Connect request acknowledged")
			return d.linked

		case at.ActionLinked:
			d.consumeToken(m)
			d.linked = true
			d.newConnection = true
			d.logger.Info("Peer connected", "peer", d.config.peerAddress)
			return true

		default:
			d.Reset("device disconnected")
			return false
		}
	}
}

func (d *Driver) consumeToken(m at.Match) {
	if err := d.buffer.Consume(m.Length); err != nil {
		// Recognize only resolves tokens that are fully buffered.
		d.logger.Error("Status token consume failed", "action", m.Action, "error", err)
	}
}
