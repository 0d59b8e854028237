package at

const (
	// Request framing
	Prefix      = "AT"
	ParamPrefix = "AT+"

	// Synchronous replies
	OK        = "OK"
	ReplyPfx  = "OK+"
	SetPrefix = "OK+Set:"

	// Unsolicited status tokens
	Conn     = "OK+CONN"
	ConnAck  = "OK+CONNA"
	ConnErr  = "OK+CONNE"
	ConnFail = "OK+CONNF"
	Lost     = "OK+LOST"
)

// Command names understood by the module firmware.
const (
	CmdRenew     = "RENEW"
	CmdImmediate = "IMME"
	CmdMode      = "MODE"
	CmdCompat    = "COMP"
	CmdNotify    = "NOTI"
	CmdUUID      = "UUID"
	CmdChar      = "CHAR"
	CmdRole      = "ROLE"
	CmdConnect   = "CON"
)

// MaxTokenLen is the length of the longest status token the module pushes.
const MaxTokenLen = len(ConnAck)

// Command is a single AT request: a name and an optional value. The zero
// Command is the bare "AT" probe.
type Command struct {
	Name  string
	Value string
}

// Request returns the literal bytes sent to the module. No line terminator
// is appended; the module frames commands by inter-byte silence.
func (c Command) Request() string {
	if c.Name == "" {
		return Prefix
	}
	return ParamPrefix + c.Name + c.Value
}

// Reply returns the literal reply the module sends for c. The second result
// is false when no synchronous reply is awaited: the answer to a connect
// request arrives later as an unsolicited status token.
func (c Command) Reply() (string, bool) {
	switch {
	case c.Name == "":
		return OK, true
	case c.Value == "":
		return ReplyPfx + c.Name, true
	case c.Name == CmdConnect:
		return "", false
	default:
		return SetPrefix + c.Value, true
	}
}

func (c Command) String() string {
	return c.Request()
}

// InitScript returns the ordered setup sequence that puts the module into
// central role with notifications on the weight scale characteristic.
func InitScript() []Command {
	return []Command{
		{},
		{Name: CmdRenew},
		{Name: CmdImmediate, Value: "1"},
		{Name: CmdMode, Value: "1"},
		{Name: CmdCompat, Value: "1"},
		{Name: CmdNotify, Value: "1"},
		{Name: CmdUUID, Value: "0x1800"},
		{Name: CmdChar, Value: "0x2A80"},
		{Name: CmdRole, Value: "1"},
	}
}

// Connect returns the connect request for the given peer address.
func Connect(address string) Command {
	return Command{Name: CmdConnect, Value: address}
}
