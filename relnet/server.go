package relnet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Received is a user message together with the session it arrived on.
type Received struct {
	Session *Session
	Message *Message
}

// Server accepts sessions from many remote peers on one UDP socket. A session is created for
// every new address that asks to connect and removed once it closes.
type Server struct {
	addr *net.UDPAddr
	opts Options
	log  *logrus.Entry
	peer *peer

	mu       sync.RWMutex
	sessions map[string]*Session

	inbox chan Received
}

// Listen announces on the local network address. Creates a new Server and binds it to the
// provided address. Returns an error if the address was invalid or in use already.
func Listen(address string, opts Options) (*Server, error) {
	opts = opts.withDefaults()

	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}

	socket, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		addr:     socket.LocalAddr().(*net.UDPAddr),
		opts:     opts,
		sessions: map[string]*Session{},
		inbox:    make(chan Received, opts.InboxSize),
	}

	s.log = opts.Logger.WithField("server", s.addr.String())
	s.peer = newPeer(socket, false, opts)
	s.peer.onDatagram = s.handle
	s.peer.onTick = s.service
	s.peer.start()

	s.log.Info("Server listening")
	return s, nil
}

// Returns the local address of the server that the server is bound to.
func (s *Server) LocalAddr() *net.UDPAddr {
	return s.addr
}

// Returns the transport error that stopped the server, if any.
func (s *Server) Err() error {
	return s.peer.Err()
}

// Returns the session of the remote address, or nil if there is none.
func (s *Server) Session(addr *net.UDPAddr) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sessions[addr.String()]
}

// Returns a snapshot of the sessions.
func (s *Server) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// Returns the number of sessions that are not closed.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countOpen(nil)
}

// Sends the message to the session of the remote address.
func (s *Server) Send(addr *net.UDPAddr, msg *Message, delivery DeliveryType, index uint8) error {
	session := s.Session(addr)
	if session == nil {
		return ErrNotConnected
	}

	return session.Send(msg, delivery, index)
}

// Sends a copy of the body to every connected session and returns the number of sessions it
// was queued for.
func (s *Server) Broadcast(body []byte, delivery DeliveryType, index uint8) int {
	count := 0
	for _, session := range s.Sessions() {
		if err := session.Send(NewMessage(body), delivery, index); err == nil {
			count++
		}
	}

	return count
}

// Returns the next received message without blocking, or false if there is none. Messages are
// only queued when Options.OnMessage is nil.
func (s *Server) TryReceive() (Received, bool) {
	select {
	case r := <-s.inbox:
		return r, true
	default:
		return Received{}, false
	}
}

// Waits for the next received message until the context is done or the server stops.
func (s *Server) Receive(ctx context.Context) (Received, error) {
	select {
	case r := <-s.inbox:
		return r, nil
	case <-ctx.Done():
		return Received{}, ctx.Err()
	case <-s.peer.done():
		return Received{}, ErrClosed
	}
}

// Shuts down every session, waits up to CONNECTION_TIMEOUT for them to close and stops the
// server.
func (s *Server) Close() error {
	for _, session := range s.Sessions() {
		session.Shutdown()
	}

	deadline := time.NewTimer(protocol.CONNECTION_TIMEOUT)
	defer deadline.Stop()

wait:
	for s.SessionCount() > 0 {
		select {
		case <-deadline.C:
			s.log.WithField("sessions", s.SessionCount()).Warn("Sessions did not close in time")
			break wait
		case <-s.peer.done():
			break wait
		case <-time.After(protocol.TPS):
		}
	}

	s.peer.dispose()
	s.log.Info("Server closed")
	return s.peer.Err()
}

// Hands a datagram to the session of its sender, creating a closed session for new senders.
func (s *Server) handle(msg *message.Message) {
	key := msg.Addr.String()

	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok {
		session = newSession(msg.Addr, s, s.opts)
		s.sessions[key] = session
	}
	session.inflight.Add(1)
	s.mu.Unlock()

	delivered := session.ReceiveMessage(msg)
	session.inflight.Add(-1)

	for _, m := range delivered {
		s.deliver(session, m)
	}
}

// Passes a user message to the application. The receive loop is shared by every session, so a
// message that finds the inbox full is dropped rather than stalling the loop.
func (s *Server) deliver(session *Session, msg *Message) {
	if s.opts.OnMessage != nil {
		s.opts.OnMessage(session, msg)
		return
	}

	select {
	case s.inbox <- Received{Session: session, Message: msg}:
	default:
		s.log.WithFields(logrus.Fields{"function": "deliver", "remote": session.addr.String(), "inbox": cap(s.inbox)}).Warn("Inbox full, dropped message")
	}
}

// Services every session and removes the closed ones.
func (s *Server) service() {
	var closed []*Session
	for _, session := range s.Sessions() {
		if session.Service() {
			closed = append(closed, session)
		}
	}

	if len(closed) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range closed {
		key := session.addr.String()
		if s.sessions[key] != session || session.inflight.Load() > 0 || session.State() != Closed {
			continue
		}

		delete(s.sessions, key)
		s.log.WithFields(logrus.Fields{"remote": key, "cause": session.Cause()}).Debug("Removed session")
	}
}

// Returns the number of sessions other than except that are not closed. Must be called with mu
// held.
func (s *Server) countOpen(except *Session) int {
	count := 0
	for _, session := range s.sessions {
		if session != except && session.State() != Closed {
			count++
		}
	}

	return count
}

func (s *Server) send(msg *message.Message, addr *net.UDPAddr) (bool, error) {
	return s.peer.send(msg, addr)
}

func (s *Server) stateChanged(session *Session, prev State) {
	s.log.WithFields(logrus.Fields{
		"remote": session.addr.String(),
		"from":   prev,
		"to":     session.State(),
	}).Debug("Session state changed")
}

// Accepts a new session unless the server is full or the application rejects it.
func (s *Server) accept(session *Session, handshake []byte) (bool, string) {
	if s.opts.MaxSessions > 0 {
		s.mu.RLock()
		open := s.countOpen(session)
		s.mu.RUnlock()

		if open >= s.opts.MaxSessions {
			return false, CauseServerFull
		}
	}

	if s.opts.Accept == nil {
		return true, ""
	}

	ok, reason := s.opts.Accept(session, handshake)
	if !ok && reason == "" {
		reason = CauseRejected
	}

	return ok, reason
}

func (s *Server) String() string {
	return fmt.Sprintf("Server[addr=%v, sessions=%d]", s.addr, s.SessionCount())
}
