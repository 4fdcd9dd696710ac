package relnet

import (
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Options configures a Server or a Client. The zero value is usable but disables MTU probing
// and pings; DefaultOptions returns the recommended configuration.
type Options struct {
	// Probe the path MTU of connected sessions.
	MTUProbing bool

	// Ping connected sessions every PING_INTERVAL to keep them alive and measure round trips.
	Ping bool

	// Fraction of received datagrams dropped before decoding. Only meant for tests.
	SimulatedDropRate float64

	// Socket buffer sizes. Zero leaves the operating system default.
	ReceiveBufferSize int
	SendBufferSize    int

	// Server only. Maximum number of sessions that are not closed, zero means unlimited.
	MaxSessions int

	// Server only. Decides whether a new session is accepted, returning the reason sent to the
	// remote on rejection. Runs on the receive path and must not block. Nil accepts everyone.
	Accept func(s *Session, handshake []byte) (bool, string)

	// Receives every user message. Runs on the receive path and must not block. When nil the
	// messages are queued for Receive and TryReceive instead.
	OnMessage func(s *Session, msg *Message)

	// Observes every session state change. Runs on the goroutine that caused the change and
	// must not block.
	OnStateChanged func(s *Session, prev, next State)

	// Number of user messages buffered for Receive when OnMessage is nil. Messages arriving while
	// the buffer is full are dropped and logged, even reliable ones.
	InboxSize int

	Logger *logrus.Entry
}

// Returns the recommended options: probing and pings enabled, DEFAULT_BUFFER_SIZE socket
// buffers and the standard logger.
func DefaultOptions() Options {
	return Options{
		MTUProbing:        true,
		Ping:              true,
		ReceiveBufferSize: protocol.DEFAULT_BUFFER_SIZE,
		SendBufferSize:    protocol.DEFAULT_BUFFER_SIZE,
		InboxSize:         1024,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	if o.InboxSize <= 0 {
		o.InboxSize = 1024
	}

	if o.SimulatedDropRate < 0 {
		o.SimulatedDropRate = 0
	}

	return o
}
