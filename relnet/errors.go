package relnet

import (
	"errors"

	"github.com/gamevidea/relnet/internal/channel"
	"github.com/gamevidea/relnet/internal/message"
)

// This error is returned when a message is sent on a session that is not connected.
var ErrNotConnected = errors.New("session is not connected")

// This error is returned when Connect is called while the previous session is still open.
var ErrAlreadyConnected = errors.New("client is already connected, close it before connecting again")

// This error is returned when a message is sent with a delivery type that does not exist.
var ErrInvalidDelivery = errors.New("invalid delivery type")

// This error is returned when an application message is sent on the reserved ping channel.
var ErrInvalidChannel = errors.New("sequenced channel 255 is reserved")

// This error is returned when an unreliable or sequenced message is larger than the session's
// payload MTU, or a reliable one needs more fragments than a fragment chain can index.
var ErrMessageTooLarge = channel.ErrMessageTooLarge

// This error is returned when the same message is sent twice.
var ErrAlreadyCommitted = channel.ErrAlreadyCommitted

// This error is returned when the socket refuses a datagram because its send buffer is full.
var ErrSendBufferFull = errors.New("socket send buffer is full, try to expand it")

// This error is returned by operations on a peer that was closed.
var ErrClosed = errors.New("peer is closed")

// This error is returned by the codec for datagrams that cannot be parsed.
var ErrMalformedPacket = message.ErrMalformedPacket

// Close causes reported by Session.Cause.
const (
	CauseTimedOut      = "connection timed out"
	CauseResendLimit   = "resend limit exceeded"
	CauseUnknownPacket = "unknown packet for current state"
	CauseShutdown      = "connection closed"
	CauseRemoteClosed  = "connection closed by remote peer"
	CauseRejected      = "server rejected connection"
	CauseServerFull    = "server is full"
	CauseSessionClosed = "session is closed"
	CauseConnectionErr = "connection error"
)
