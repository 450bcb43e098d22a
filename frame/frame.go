package frame

// STOMP frame commands.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdStomp       = "STOMP"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdAck         = "ACK"
	CmdNack        = "NACK"
	CmdBegin       = "BEGIN"
	CmdCommit      = "COMMIT"
	CmdAbort       = "ABORT"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// Well-known header names.
const (
	HdrContentLength = "content-length"
	HdrContentType   = "content-type"
	HdrDestination   = "destination"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrMessageID     = "message-id"
	HdrSubscription  = "subscription"
	HdrTransaction   = "transaction"
	HdrAck           = "ack"
	HdrID            = "id"
	HdrVersion       = "version"
	HdrSession       = "session"
	HdrServer        = "server"
	HdrHeartBeat     = "heart-beat"
	HdrMessage       = "message"
)

// Frame is a single STOMP message unit: a command, ordered headers and an
// optional binary body.
//
// A Frame with an empty command is a heartbeat and serialises as a single
// '\n' byte.
type Frame struct {
	Command string
	Headers *Headers

	// Body may contain NUL bytes. When it does, the serialised form always
	// carries a content-length header so the peer does not stop at the
	// first NUL.
	Body []byte

	// Legacy selects STOMP 1.0 header escaping (only '\n' is escaped).
	Legacy bool

	// ExpectLengthHeader forces content-length emission even for bodies
	// without NUL bytes.
	ExpectLengthHeader bool
}

// New returns a frame for the given command with empty headers.
func New(command string) *Frame {
	return &Frame{Command: command, Headers: NewHeaders()}
}

// NewHeartbeat returns a heartbeat frame.
func NewHeartbeat() *Frame {
	return &Frame{Headers: NewHeaders()}
}

func (f *Frame) IsHeartbeat() bool {
	return f.Command == ""
}

// Header returns the value of a header, if present.
func (f *Frame) Header(name string) (string, bool) {
	if f.Headers == nil {
		return "", false
	}

	return f.Headers.Get(name)
}

// SetHeader sets a header, replacing any existing value.
func (f *Frame) SetHeader(name, value string) {
	if f.Headers == nil {
		f.Headers = NewHeaders()
	}

	f.Headers.Set(name, value)
}
