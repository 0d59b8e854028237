package at

import (
	"bytes"
)

// State is the progress of the status token recognizer over the head of
// the receive stream.
type State int

const (
	StateAwaitingPrefix State = iota // fewer than 3 bytes buffered
	StateDisambiguating              // "OK+" seen, fewer than 7 bytes buffered
	StateResolved                    // Action is final
)

func (s State) String() string {
	switch s {
	case StateAwaitingPrefix:
		return "awaiting-prefix"
	case StateDisambiguating:
		return "disambiguating"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Action is what the head of the stream asks the link owner to do.
type Action int

const (
	ActionNone         Action = iota // not resolved yet
	ActionPassthrough                // head is not a status token
	ActionLinked                     // OK+CONN, a peer connected
	ActionAcknowledged               // OK+CONNA, connect request accepted
	ActionUnlinked                   // OK+CONNE / OK+CONNF, link failed
	ActionLost                       // any other OK+ token, assumed OK+LOST
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPassthrough:
		return "passthrough"
	case ActionLinked:
		return "linked"
	case ActionAcknowledged:
		return "acknowledged"
	case ActionUnlinked:
		return "unlinked"
	case ActionLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Match is the result of Recognize.
//
// When State is StateResolved, Action is set and Length is the number of
// bytes the token occupies at the head of the stream (0 for passthrough and
// for ActionLost, whose recovery discards the whole buffer). Otherwise Need
// is the number of buffered bytes the recognizer wants before it is called
// again.
type Match struct {
	State  State
	Action Action
	Length int
	Need   int
}

const (
	prefixLen  = len(ReplyPfx)
	genericLen = len(Conn)
	wantLen    = MaxTokenLen
)

// statusTokens are checked in order once a full 8-byte window is buffered.
var statusTokens = []struct {
	token  []byte
	action Action
}{
	{[]byte(ConnErr), ActionUnlinked},
	{[]byte(ConnFail), ActionUnlinked},
	{[]byte(ConnAck), ActionAcknowledged},
}

// Recognize classifies the head of data as a status token, payload, or an
// incomplete token. It never looks beyond the first MaxTokenLen bytes and
// does not modify data, so it is safe to call again with the same bytes
// after more have arrived.
func Recognize(data []byte) Match {
	if len(data) < prefixLen {
		return Match{State: StateAwaitingPrefix, Need: prefixLen}
	}

	if !bytes.Equal(data[:prefixLen], []byte(ReplyPfx)) {
		return Match{State: StateResolved, Action: ActionPassthrough}
	}

	if len(data) < genericLen {
		return Match{State: StateDisambiguating, Need: wantLen}
	}

	if len(data) >= wantLen {
		head := data[:wantLen]
		for _, t := range statusTokens {
			if bytes.Equal(head, t.token) {
				return Match{State: StateResolved, Action: t.action, Length: wantLen}
			}
		}
	}

	if bytes.Equal(data[:genericLen], []byte(Conn)) {
		return Match{State: StateResolved, Action: ActionLinked, Length: genericLen}
	}

	return Match{State: StateResolved, Action: ActionLost}
}

// Partial reports whether data starts with a status token that has not
// fully arrived yet. Bytes that cannot begin a token are never partial.
func Partial(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := min(len(data), prefixLen)
	if !bytes.Equal(data[:n], []byte(ReplyPfx)[:n]) {
		return false
	}
	return Recognize(data).State != StateResolved
}
