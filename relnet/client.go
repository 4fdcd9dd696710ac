package relnet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Client connects to a single Server. Each Connect dials a new socket and creates a new session;
// the socket is released once that session closes.
type Client struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	peer    *peer
	session *Session

	inbox chan *Message
}

// Creates a client that is not connected yet.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	return &Client{
		opts:  opts,
		log:   opts.Logger.WithField("component", "client"),
		inbox: make(chan *Message, opts.InboxSize),
	}
}

// Dial creates a client, connects it to the address and waits until the server accepted the
// session, the context is done or the connection failed.
func Dial(ctx context.Context, address string, opts Options, handshake []byte) (*Client, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	c := NewClient(opts)
	if err := c.Connect(host, port, handshake); err != nil {
		return nil, err
	}

	if err := c.checkState(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// Dials the server and starts the handshake. The session is Connecting when Connect returns and
// becomes Connected once the server accepted it. Returns ErrAlreadyConnected if the previous
// session is not closed yet and ErrMessageTooLarge if the handshake does not fit the minimum
// MTU.
func (c *Client) Connect(host string, port int, handshake []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.State() != Closed {
		return ErrAlreadyConnected
	}

	// The connection request is never fragmented and a new session starts at the floor MTU.
	if len(handshake) > protocol.MIN_PAYLOAD_MTU {
		return fmt.Errorf("%w: %d byte handshake exceeds the %d byte mtu",
			ErrMessageTooLarge, len(handshake), protocol.MIN_PAYLOAD_MTU)
	}

	if c.peer != nil {
		c.peer.dispose()
	}

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}

	socket, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}

	p := newPeer(socket, true, c.opts)
	session := newSession(raddr, &clientLink{client: c, peer: p}, c.opts)

	p.onDatagram = func(msg *message.Message) {
		for _, m := range session.ReceiveMessage(msg) {
			c.deliver(session, m)
		}
	}
	p.onTick = func() {
		session.Service()
	}

	c.peer = p
	c.session = session

	session.connect(handshake)
	p.start()

	c.log.WithField("remote", raddr.String()).Info("Connecting")
	return nil
}

// Waits until the session is connected. Returns the close cause as an error if the session
// closes first.
func (c *Client) checkState(ctx context.Context) error {
	session := c.Session()
	if session == nil {
		return ErrNotConnected
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(protocol.TPS):
			switch session.State() {
			case Connected:
				return nil
			case Closed:
				return fmt.Errorf("%w: %s", ErrNotConnected, session.Cause())
			}
		}
	}
}

// Returns the current session, or nil if Connect was never called.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session
}

// Returns the state of the current session.
func (c *Client) State() State {
	if session := c.Session(); session != nil {
		return session.State()
	}

	return Closed
}

// Sends the message to the server.
func (c *Client) Send(msg *Message, delivery DeliveryType, index uint8) error {
	session := c.Session()
	if session == nil {
		return ErrNotConnected
	}

	return session.Send(msg, delivery, index)
}

// Returns the next received message without blocking, or false if there is none. Messages are
// only queued when Options.OnMessage is nil.
func (c *Client) TryReceive() (*Message, bool) {
	select {
	case msg := <-c.inbox:
		return msg, true
	default:
		return nil, false
	}
}

// Waits for the next received message until the context is done.
func (c *Client) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Starts a graceful close of the current session.
func (c *Client) Shutdown() {
	if session := c.Session(); session != nil {
		session.Shutdown()
	}
}

// Shuts the session down, waits up to CONNECTION_TIMEOUT for it to close and releases the
// socket.
func (c *Client) Close() error {
	c.mu.Lock()
	session, p := c.session, c.peer
	c.mu.Unlock()

	if session == nil {
		return nil
	}

	session.Shutdown()

	deadline := time.NewTimer(protocol.CONNECTION_TIMEOUT)
	defer deadline.Stop()

wait:
	for session.State() != Closed {
		select {
		case <-deadline.C:
			c.log.Warn("Session did not close in time")
			break wait
		case <-p.done():
			break wait
		case <-time.After(protocol.TPS):
		}
	}

	p.dispose()
	return p.Err()
}

// Passes a user message to the application, dropping it if the inbox is full.
func (c *Client) deliver(session *Session, msg *Message) {
	if c.opts.OnMessage != nil {
		c.opts.OnMessage(session, msg)
		return
	}

	select {
	case c.inbox <- msg:
	default:
		c.log.WithFields(logrus.Fields{"function": "deliver", "inbox": cap(c.inbox)}).Warn("Inbox full, dropped message")
	}
}

// clientLink is the owner of a client session. It sends on the client's socket, rejects
// connection requests and releases the socket once the session closes.
type clientLink struct {
	client *Client
	peer   *peer
}

func (l *clientLink) send(msg *message.Message, addr *net.UDPAddr) (bool, error) {
	return l.peer.send(msg, addr)
}

func (l *clientLink) stateChanged(s *Session, prev State) {
	if s.State() != Closed {
		return
	}

	l.client.log.WithFields(logrus.Fields{"remote": s.addr.String(), "cause": s.Cause()}).Info("Disconnected")

	// The change is reported from one of the peer's loops, which dispose waits for.
	go l.peer.dispose()
}

func (l *clientLink) accept(s *Session, handshake []byte) (bool, string) {
	return false, CauseRejected
}
