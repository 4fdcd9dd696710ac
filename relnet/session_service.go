package relnet

import (
	"time"

	"github.com/gamevidea/relnet/internal/channel"
	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Drives the session for one tick: idle timeout, pings, MTU probing, confirmations,
// retransmissions and the first send of queued messages, in that order. At most
// MAX_SEND_PER_TICK datagrams go out per tick, confirmations first. Returns true if the session
// is closed afterwards.
func (s *Session) Service() bool {
	s.mu.Lock()
	defer s.unlockAndNotify()

	if s.State() == Closed {
		return true
	}

	now := s.clock()
	if now.Sub(s.lastIncoming) > protocol.CONNECTION_TIMEOUT {
		s.close(CauseTimedOut)
		return true
	}

	s.tickSent = 0

	if s.State() == Connected || s.State() == Closing {
		s.ping(now)
	}

	if s.State() == Connected && s.opts.MTUProbing {
		s.probe(now)
	}

	if now.Sub(s.lastPongReceived) > protocol.PING_INTERVAL+protocol.RESEND_TIMEOUT {
		s.rtt.Store(-1)
	}

	if now.Sub(s.lastConfirm) >= protocol.CONFIRM_INTERVAL {
		s.flushConfirms()
		s.lastConfirm = now
	}

	if !s.resendAll(now) {
		return true
	}

	s.sendAll(now)
	return s.State() == Closed
}

// Commits a ping on the reserved ping channel if the last one is older than PING_INTERVAL.
func (s *Session) ping(now time.Time) {
	if !s.opts.Ping || now.Sub(s.lastPingSent) < protocol.PING_INTERVAL {
		return
	}

	s.lastPingSent = now
	s.commitControl(message.NewPing(now))
}

// Sends the next MTU probe if one is due. A probe the socket refuses counts as a failure of
// its size.
func (s *Session) probe(now time.Time) {
	size, ok := s.prober.Next(now)
	if !ok {
		return
	}

	probe := message.NewMTUExpandRequest(size)
	sent, err := s.owner.send(probe, s.addr)
	if err != nil || !sent {
		s.log.WithFields(logrus.Fields{"function": "probe", "size": size}).Debug("MTU probe refused")
		s.prober.Fail(size)
		return
	}

	s.tickSent++
	s.prober.Sent(size, now)
}

// Sends every pending confirmation, split so that none exceeds the MTU.
func (s *Session) flushConfirms() {
	for _, confirm := range s.reliable.Reliable().Confirmations(s.MTU()) {
		s.sendDirect(confirm)
	}
}

// Resends the reliable messages whose confirmation is overdue, lowest sequence first and within
// the tick budget. Closes the session and returns false once a message exhausts RESEND_LIMIT.
func (s *Session) resendAll(now time.Time) bool {
	for _, msg := range s.reliable.Reliable().Due(now, protocol.RESEND_TIMEOUT) {
		if s.tickSent >= protocol.MAX_SEND_PER_TICK {
			return true
		}

		if msg.SentTimes > protocol.RESEND_LIMIT {
			s.log.WithFields(logrus.Fields{"function": "resendAll", "sequence": msg.Sequence, "type": msg.Type}).Warn("Resend limit exceeded")
			s.close(CauseResendLimit)
			return false
		}

		s.transmit(msg, now)
	}

	return true
}

// Sends queued messages for the first time: reliable ones while the awaiting map has room,
// then sequenced and unreliable ones, all within the tick budget.
func (s *Session) sendAll(now time.Time) {
	reliable := s.reliable.Reliable()

	room := min(protocol.MAX_AWAITING-reliable.Awaiting(), protocol.MAX_SEND_PER_TICK-s.tickSent)
	if room > 0 {
		for _, msg := range reliable.Take(room) {
			if err := reliable.AddAwaiting(msg); err != nil {
				s.log.WithFields(logrus.Fields{"function": "sendAll", "sequence": msg.Sequence}).WithError(err).Error("Failed to track reliable message")
				continue
			}

			s.transmit(msg, now)
		}
	}

	for _, ch := range s.sequencedChannels() {
		if !s.sendQueued(ch, now) {
			return
		}
	}

	s.sendQueued(s.unreliable, now)
}

// Sends the queued messages of a channel that does not track them for retransmission. Returns
// false once the tick budget is spent.
func (s *Session) sendQueued(ch *channel.Channel, now time.Time) bool {
	budget := protocol.MAX_SEND_PER_TICK - s.tickSent
	if budget <= 0 {
		return false
	}

	for _, msg := range ch.Take(budget) {
		s.transmit(msg, now)
	}

	return s.tickSent < protocol.MAX_SEND_PER_TICK
}

// Sends the message through the owner and updates its send bookkeeping. Returns false if the
// datagram did not go out; reliable messages are then retried by a later resend. A socket error
// is logged and leaves the session as it is.
func (s *Session) transmit(msg *message.Message, now time.Time) bool {
	sent, err := s.owner.send(msg, s.addr)
	if err != nil {
		s.log.WithFields(logrus.Fields{"function": "transmit", "type": msg.Type, "sequence": msg.Sequence}).WithError(err).Warn("Failed to send message")
		return false
	}

	if !sent {
		return false
	}

	msg.LastSent = now
	msg.SentTimes++
	msg.Status = message.Sent
	s.tickSent++

	return true
}
