package protocol

import "time"

// This is the size of the fixed packet header:
// Sequence (int32)
// Channel Index (uint8)
// Service Byte (uint8) - delivery type in bits 0-1, packet type in bits 2-5
// Body Length (uint16)
const HEADER_SIZE int = 4 + 1 + 1 + 2

// This is the largest body length the header can describe.
const MAX_BODY_SIZE int = 65535

// This contains the size of the UDP Header.
// IP Header Size (20 bytes)
// UDP header size (8 bytes)
const UDP_HEADER_SIZE int = 20 + 8

// This is the safe area kept below the IPv4 minimum datagram size that every host must accept.
const SAFE_AREA_SIZE int = 20

// This is the IPv4 minimum datagram size that all hosts must be prepared to accept.
const MIN_DATAGRAM_SIZE int = 576

// This specifies the payload MTU every session starts with and returns to upon closing.
// 576 - 28 - 20 - 8 = 520 bytes of body.
const MIN_PAYLOAD_MTU int = MIN_DATAGRAM_SIZE - UDP_HEADER_SIZE - SAFE_AREA_SIZE - HEADER_SIZE

// This specifies the largest payload MTU the prober will ever try. It is bounded by the
// largest UDP payload over IPv4 (65507 bytes) minus the packet header.
const MAX_PAYLOAD_MTU int = 65507 - HEADER_SIZE

// This is the size of the buffer a peer reads datagrams into.
const MAX_DATAGRAM_SIZE int = 65535

// This is the channel index forced onto the last fragment of a fragment chain.
const FRAGMENT_TERMINATOR uint8 = 255

// This is the number of maximum fragments that a reliable message can be split into.
const MAX_FRAGMENT_COUNT int = 256

// This is the sequenced channel reserved for pings and pongs. Applications may use 0-254.
const PING_CHANNEL uint8 = 255

// This is the number of sequences ahead of the reliable watermark that the reorder buffer
// accepts. Anything farther is dropped unacknowledged and will be retransmitted.
const RELIABLE_WINDOW int32 = 4096

// This is the maximum number of reliable messages that may await confirmation at once.
const MAX_AWAITING int = 128

// This is the maximum number of datagrams a session sends in a single tick.
const MAX_SEND_PER_TICK int = 128

// This is the number of times a reliable message may be resent before the session gives up.
const RESEND_LIMIT int = 10

// This is the maximum number of probe attempts at one size before the size is treated as failed.
const MTU_PROBE_ATTEMPTS int = 3

// This is the factor the payload MTU is grown by while no probe has failed yet.
const MTU_GROWTH_FACTOR float64 = 1.2

// This is the default size of the socket send and receive buffers.
const DEFAULT_BUFFER_SIZE int = 131071

const (
	// Peers drive every session once per tick.
	TPS = 10 * time.Millisecond

	// A session receiving nothing for this long is closed.
	CONNECTION_TIMEOUT = 5 * time.Second

	// Interval between pings, also the age at which a round trip sample goes stale.
	PING_INTERVAL = time.Second

	// Minimum interval between two confirmation batches.
	CONFIRM_INTERVAL = 50 * time.Millisecond

	// Age of an unconfirmed reliable message before it is resent.
	RESEND_TIMEOUT = 500 * time.Millisecond

	// Minimum interval between two MTU probes.
	MTU_PROBE_INTERVAL = 500 * time.Millisecond

	// Read deadline used by the receive loop so it can observe shutdown.
	READ_DEADLINE = 100 * time.Millisecond
)
