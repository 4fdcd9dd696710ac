package relnet

import (
	"time"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Handles a message decoded from a datagram of the remote peer. The message is passed through
// its channel, control messages are consumed and the user messages ready for delivery are
// returned in delivery order.
func (s *Session) ReceiveMessage(msg *Message) []*Message {
	s.mu.Lock()
	defer s.unlockAndNotify()

	now := s.clock()
	s.lastIncoming = now

	var delivered []*Message
	for _, ready := range s.channel(msg.Delivery, msg.Channel).Process(msg) {
		if s.process(ready, now) {
			delivered = append(delivered, ready)
		}
	}

	return delivered
}

// Handles a message released by its channel and returns whether it is user data that should be
// delivered. Must be called with mu held.
func (s *Session) process(msg *message.Message, now time.Time) bool {
	switch msg.Type {
	case protocol.ConfirmDelivery:
		s.receiveConfirm(msg)
		return false

	case protocol.Ping:
		pk := &message.Ping{}
		if err := msg.Decode(pk); err != nil {
			s.log.WithFields(logrus.Fields{"function": "process"}).WithError(err).Debug("Dropped malformed ping")
			return false
		}

		s.commitControl(message.NewPong(msg, pk))
		return false

	case protocol.MTUExpandRequest:
		s.sendDirect(message.NewMTUSuccess(len(msg.Body)))
		return false

	case protocol.MTUSuccess:
		pk := &message.MTUSuccess{}
		if err := msg.Decode(pk); err != nil {
			s.log.WithFields(logrus.Fields{"function": "process"}).WithError(err).Debug("Dropped malformed mtu success")
			return false
		}

		if s.prober.Success(int(pk.Length)) {
			s.mtu.Store(int64(s.prober.MTU()))
			s.log.WithField("mtu", s.prober.MTU()).Debug("Path MTU expanded")
		}
		return false

	case protocol.Pong:
		pk := &message.Pong{}
		if err := msg.Decode(pk); err != nil {
			s.log.WithFields(logrus.Fields{"function": "process"}).WithError(err).Debug("Dropped malformed pong")
			return false
		}

		s.lastPongReceived = now
		s.rtt.Store(int64(pk.RoundTrip(now)))
		return false

	case protocol.ConnectionError:
		pk := &message.ConnectionError{}
		reason := CauseConnectionErr
		if err := msg.Decode(pk); err == nil && pk.Reason != "" {
			reason = pk.Reason
		}

		s.close(reason)
		return false

	case protocol.FinAck:
		s.receiveFinAck()
		return false

	case protocol.FinResp:
		if s.State() == Closed {
			return false
		}

		s.flushConfirms()
		s.close(s.closeCause())
		return false

	case protocol.ConnectAck:
		if s.State() == Closed {
			s.receiveConnectAck(msg)
		}
		return false

	case protocol.PartialMessage:
		return false

	case protocol.UserData:
		if s.State() == Connected {
			return true
		}
	}

	s.log.WithFields(logrus.Fields{"function": "process", "type": msg.Type, "state": s.State()}).Debug("Unexpected packet")
	s.close(CauseUnknownPacket)
	return false
}

// Pops every confirmed message from the awaiting map and advances the handshake and the
// graceful close on the confirmations they were waiting for.
func (s *Session) receiveConfirm(msg *message.Message) {
	pk := &message.ConfirmDelivery{}
	if err := msg.Decode(pk); err != nil {
		s.log.WithFields(logrus.Fields{"function": "receiveConfirm"}).WithError(err).Debug("Dropped malformed confirmation")
		return
	}

	reliable := s.reliable.Reliable()
	for _, seq := range pk.Sequences {
		confirmed := reliable.Confirm(seq)
		if confirmed == nil {
			continue
		}

		switch {
		case confirmed.Type == protocol.ConnectAck && s.State() == Connecting:
			s.setState(Connected)
		case confirmed.Type == protocol.FinResp && s.State() == Closing:
			s.close(s.closeCause())
		}
	}
}

// Answers a close request of the remote peer. A request for a session that is already closed
// is answered with a connection error so the remote stops waiting.
func (s *Session) receiveFinAck() {
	switch s.State() {
	case Connected, Connecting:
		s.setState(Closing)
		s.commitControl(message.NewFinResp())
	case Closing:
		s.commitControl(message.NewFinResp())
	default:
		s.sendDirect(message.NewConnectionError(CauseSessionClosed))
	}
}

// Asks the owner whether the connection request is accepted. Accepted sessions are connected
// right away, rejected ones stay closed and the remote is told why.
func (s *Session) receiveConnectAck(msg *message.Message) {
	ok, reason := s.owner.accept(s, msg.Body)
	if ok {
		s.lastIncoming = s.clock()
		s.setState(Connected)
		return
	}

	if reason == "" {
		reason = CauseRejected
	}

	s.cause = reason
	s.log.WithField("reason", reason).Info("Rejected connection")
	s.sendDirect(message.NewConnectionError(reason))
}

// Returns the cause of a graceful close. Must be called with mu held.
func (s *Session) closeCause() string {
	if s.shutdownCalled {
		return CauseShutdown
	}

	return CauseRemoteClosed
}
