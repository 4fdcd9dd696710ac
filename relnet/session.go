package relnet

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gamevidea/relnet/internal/channel"
	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/mtu"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// State represents the connection state of a session.
type State uint8

const (
	Closed State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// owner is the peer side of a session: it owns the socket the session sends on and observes
// the session's lifecycle.
type owner interface {
	// Sends the message to addr right away. Returns false if the datagram was refused in a
	// way the session recovers from, and an error if the socket is unusable.
	send(msg *message.Message, addr *net.UDPAddr) (bool, error)

	// Called after every state change, outside of the session lock.
	stateChanged(s *Session, prev State)

	// Decides whether a connection request is accepted. Returns the rejection reason.
	accept(s *Session, handshake []byte) (bool, string)
}

type stateEvent struct {
	prev, next State
}

// Session is the state of one remote peer: its channels, its connection state machine and its
// path MTU discovery. Sessions are created by a Server or a Client and driven by their ticks.
type Session struct {
	addr  *net.UDPAddr
	owner owner
	opts  Options
	log   *logrus.Entry
	clock func() time.Time

	state atomic.Uint32
	mtu   atomic.Int64
	rtt   atomic.Int64

	mu               sync.Mutex
	cause            string
	lastIncoming     time.Time
	lastPingSent     time.Time
	lastPongReceived time.Time
	lastConfirm      time.Time
	prober           *mtu.Prober
	tickSent         int
	shutdownCalled   bool
	events           []stateEvent

	unreliable *channel.Channel
	reliable   *channel.Channel

	seqMu     sync.Mutex
	sequenced map[uint8]*channel.Channel

	// Datagrams of this session currently being processed by the receive path.
	inflight atomic.Int32
}

// Creates a closed session for the remote address.
func newSession(addr *net.UDPAddr, o owner, opts Options) *Session {
	s := &Session{
		addr:       addr,
		owner:      o,
		opts:       opts,
		log:        opts.Logger.WithField("remote", addr.String()),
		clock:      time.Now,
		prober:     mtu.NewDefault(),
		unreliable: channel.FromUnreliable(channel.NewUnreliable()),
		reliable:   channel.FromReliable(channel.NewReliable()),
		sequenced:  map[uint8]*channel.Channel{},
	}

	now := s.clock()
	s.lastIncoming = now
	s.lastPongReceived = now
	s.prober.Reset(now)
	s.mtu.Store(int64(s.prober.MTU()))
	s.rtt.Store(-1)

	return s
}

// Returns the address of the remote peer.
func (s *Session) RemoteAddr() *net.UDPAddr {
	return s.addr
}

// Returns the connection state of the session.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Returns the largest body an unreliable or sequenced message may carry, which is also the
// fragment size of reliable messages.
func (s *Session) MTU() int {
	return int(s.mtu.Load())
}

// Returns the last measured round trip in milliseconds, or -1 if there is no recent sample.
func (s *Session) RoundTrip() int {
	return int(s.rtt.Load())
}

// Returns why the session was closed, or an empty string if it never was.
func (s *Session) Cause() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cause
}

// Returns the time the last datagram of the remote peer arrived.
func (s *Session) LastIncoming() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastIncoming
}

func (s *Session) String() string {
	return fmt.Sprintf("Session[state=%v, remote=%v, mtu=%d, rtt=%d]", s.State(), s.addr, s.MTU(), s.RoundTrip())
}

// Sends the message with the delivery type. The channel index selects the sequenced channel
// and is ignored otherwise. Reliable messages larger than the MTU are fragmented, other
// delivery types fail with ErrMessageTooLarge instead. The message is queued and goes out on
// the next tick.
func (s *Session) Send(msg *Message, delivery DeliveryType, index uint8) error {
	if s.State() != Connected {
		return ErrNotConnected
	}

	if !delivery.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidDelivery, delivery)
	}

	if delivery == Sequenced && index == protocol.PING_CHANNEL {
		return ErrInvalidChannel
	}

	if msg.Status != message.Created {
		return ErrAlreadyCommitted
	}

	msg.Type = protocol.UserData
	return s.commit(msg, delivery, index)
}

// Numbers and queues the message on the channel selected by delivery and index.
func (s *Session) commit(msg *message.Message, delivery protocol.DeliveryType, index uint8) error {
	mtu := s.MTU()

	if delivery != protocol.Reliable {
		if len(msg.Body) > mtu {
			return fmt.Errorf("%w: %d bytes exceeds the %d byte mtu of %v delivery",
				ErrMessageTooLarge, len(msg.Body), mtu, delivery)
		}

		return s.channel(delivery, index).Commit(msg)
	}

	fragments, err := channel.Split(msg, mtu)
	if err != nil {
		return err
	}

	if err := s.reliable.Reliable().CommitChain(fragments); err != nil {
		return err
	}

	if len(fragments) > 1 {
		msg.Status = message.Queued
	}

	return nil
}

// Returns the channel for the delivery type and index, creating sequenced channels on demand.
func (s *Session) channel(delivery protocol.DeliveryType, index uint8) *channel.Channel {
	switch delivery {
	case protocol.Sequenced:
		s.seqMu.Lock()
		defer s.seqMu.Unlock()

		ch, ok := s.sequenced[index]
		if !ok {
			ch = channel.FromSequenced(channel.NewSequenced(index))
			s.sequenced[index] = ch
		}

		return ch
	case protocol.Reliable:
		return s.reliable
	default:
		return s.unreliable
	}
}

// Returns a snapshot of the sequenced channels ordered by index.
func (s *Session) sequencedChannels() []*channel.Channel {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	channels := make([]*channel.Channel, 0, len(s.sequenced))
	for i := 0; i <= 255; i++ {
		if ch, ok := s.sequenced[uint8(i)]; ok {
			channels = append(channels, ch)
		}
	}

	return channels
}

// Starts a graceful close: the session moves to Closing and asks the remote to acknowledge.
// It closes once the remote answered or the connection times out. Does nothing unless the
// session is connecting or connected.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.unlockAndNotify()

	switch s.State() {
	case Connected, Connecting:
		s.shutdownCalled = true
		s.setState(Closing)
		s.commitControl(message.NewFinAck())
	}
}

// Starts the handshake of a client session.
func (s *Session) connect(handshake []byte) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	s.lastIncoming = s.clock()
	s.setState(Connecting)
	s.commitControl(message.NewConnectAck(handshake))
}

// Queues a control message on the channel of its delivery type.
func (s *Session) commitControl(msg *message.Message) {
	if err := s.channel(msg.Delivery, msg.Channel).Commit(msg); err != nil {
		s.log.WithFields(logrus.Fields{"function": "commitControl", "type": msg.Type}).WithError(err).Error("Failed to queue control message")
	}
}

// Sends a control message immediately, bypassing the queues.
func (s *Session) sendDirect(msg *message.Message) bool {
	ok, err := s.owner.send(msg, s.addr)
	if err != nil {
		s.log.WithFields(logrus.Fields{"function": "sendDirect", "type": msg.Type}).WithError(err).Warn("Failed to send control message")
		return false
	}

	if ok {
		s.tickSent++
	}

	return ok
}

// Changes the state and records the change for notification. Must be called with mu held.
func (s *Session) setState(next State) {
	prev := State(s.state.Swap(uint32(next)))
	if prev == next {
		return
	}

	s.log.WithFields(logrus.Fields{"from": prev, "to": next}).Debug("Session state changed")
	s.events = append(s.events, stateEvent{prev: prev, next: next})
}

// Closes the session with the cause. Closing resets the path MTU to the floor and invalidates
// the round trip. Must be called with mu held.
func (s *Session) close(cause string) {
	if s.State() == Closed {
		return
	}

	s.cause = cause
	s.rtt.Store(-1)
	s.prober.Reset(s.clock())
	s.mtu.Store(int64(s.prober.MTU()))
	s.setState(Closed)

	s.log.WithField("cause", cause).Info("Session closed")
}

// Unlocks mu and dispatches the state changes recorded while it was held.
func (s *Session) unlockAndNotify() {
	events := s.events
	s.events = nil
	s.mu.Unlock()

	for _, ev := range events {
		if s.opts.OnStateChanged != nil {
			s.opts.OnStateChanged(s, ev.prev, ev.next)
		}

		s.owner.stateChanged(s, ev.prev)
	}
}
