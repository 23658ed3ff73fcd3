package domain

import "context"

// CloseReason classifies why the protocol layer dropped a connection. The
// session handle's reconnect policy keys off this classification.
type CloseReason int

const (
	// CloseReasonOther covers close signals with no better classification.
	// Treated as recoverable.
	CloseReasonOther CloseReason = iota
	// CloseReasonConnectionLost is a transient network drop. Recoverable.
	CloseReasonConnectionLost
	// CloseReasonTimedOut is a handshake or keepalive timeout. Recoverable.
	CloseReasonTimedOut
	// CloseReasonRestartRequired means the server asked for a clean
	// reconnect. Recoverable.
	CloseReasonRestartRequired
	// CloseReasonCredentialsInvalid means the stored credentials were
	// rejected (logged out, bad session). The local credential artifact must
	// be wiped before retrying so a fresh pairing can be issued.
	CloseReasonCredentialsInvalid
	// CloseReasonReplaced means another session took over this identity.
	// Terminal; retrying would just steal the connection back and forth.
	CloseReasonReplaced
)

// String returns a short name for the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonConnectionLost:
		return "connection_lost"
	case CloseReasonTimedOut:
		return "timed_out"
	case CloseReasonRestartRequired:
		return "restart_required"
	case CloseReasonCredentialsInvalid:
		return "credentials_invalid"
	case CloseReasonReplaced:
		return "replaced_by_session"
	default:
		return "other"
	}
}

// Recoverable reports whether the handle should schedule a reconnect after
// a close with this reason.
func (r CloseReason) Recoverable() bool {
	return r != CloseReasonReplaced
}

// NumberResult is the outcome of one existence check.
type NumberResult struct {
	Exists bool
	// JID is the protocol-level canonical identifier, empty when the number
	// is not registered.
	JID string
}

// ConnEvents carries the out-of-band signals a connection emits while it is
// alive. Handlers run on the protocol layer's event goroutine and must not
// block.
type ConnEvents struct {
	// QR fires for every fresh pairing challenge. Only the most recent code
	// per connection is meaningful.
	QR func(code string)
	// Open fires when the handshake completes.
	Open func()
	// Closed fires when the connection drops, with a classified reason.
	Closed func(reason CloseReason, err error)
}

// Conn is one live protocol connection.
type Conn interface {
	// IsLoggedIn reports whether the handshake has completed and the
	// connection is usable.
	IsLoggedIn() bool
	// CheckNumber asks the protocol layer whether the phone exists.
	CheckNumber(ctx context.Context, phone string) (NumberResult, error)
	// Disconnect closes the connection without invalidating credentials.
	Disconnect()
}

// Dialer opens protocol connections against a credential locator. It is the
// only boundary the supervisor has with the wire protocol implementation.
type Dialer interface {
	// Dial opens a connection using the credential state stored under the
	// locator, creating fresh state when none exists (which will trigger QR
	// pairing). Event handlers must be registered before the handshake
	// starts so no signal is lost.
	Dial(ctx context.Context, authPath string, events ConnEvents) (Conn, error)
}
