package relnet

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
)

// datagramPool is used for minimising the number of allocations in the receive loop. Decoding
// copies the body out of the datagram, so a buffer goes back to the pool right after decoding.
var datagramPool = sync.Pool{
	New: func() any {
		b := make([]byte, protocol.MAX_DATAGRAM_SIZE)
		return &b
	},
}

// peer owns the UDP socket shared by the sessions of a Server or a Client. It runs two
// goroutines: the receive loop, which decodes datagrams and hands them to onDatagram, and the
// tick loop, which calls onTick every TPS. Sends from both loops and from the application are
// serialized on the socket.
type peer struct {
	conn *net.UDPConn

	// Connected sockets were dialed and must be written to without a destination address.
	connected bool

	log  *logrus.Entry
	opts Options

	onDatagram func(msg *message.Message)
	onTick     func()

	sendMu sync.Mutex

	dropMu sync.Mutex
	drop   *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error

	disposeOnce sync.Once
}

// Creates a peer on the socket and applies the socket options. The loops are not running until
// start is called.
func newPeer(conn *net.UDPConn, connected bool, opts Options) *peer {
	ctx, cancel := context.WithCancel(context.Background())

	p := &peer{
		conn:      conn,
		connected: connected,
		log:       opts.Logger.WithField("local", conn.LocalAddr().String()),
		opts:      opts,
		drop:      rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:       ctx,
		cancel:    cancel,
	}

	if opts.ReceiveBufferSize > 0 {
		if err := conn.SetReadBuffer(opts.ReceiveBufferSize); err != nil {
			p.log.WithFields(logrus.Fields{"function": "newPeer", "size": opts.ReceiveBufferSize}).WithError(err).Warn("Failed to set receive buffer size")
		}
	}

	if opts.SendBufferSize > 0 {
		if err := conn.SetWriteBuffer(opts.SendBufferSize); err != nil {
			p.log.WithFields(logrus.Fields{"function": "newPeer", "size": opts.SendBufferSize}).WithError(err).Warn("Failed to set send buffer size")
		}
	}

	return p
}

// Starts the receive and tick loops.
func (p *peer) start() {
	p.wg.Add(2)
	go p.receiveLoop()
	go p.tickLoop()
}

// Stops both loops, waits for them to return and closes the socket. No callback runs after
// dispose returns. Must not be called from either loop.
func (p *peer) dispose() {
	p.disposeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()

		if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			p.log.WithFields(logrus.Fields{"function": "dispose"}).WithError(err).Warn("Failed to close socket")
		}
	})
}

// Returns the transport error that stopped the peer, if any.
func (p *peer) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()

	return p.err
}

// Returns a channel that is closed once the peer stops.
func (p *peer) done() <-chan struct{} {
	return p.ctx.Done()
}

// Records a transport error and stops the loops.
func (p *peer) fail(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()

	p.log.WithFields(logrus.Fields{"function": "fail"}).WithError(err).Error("Socket failed, stopping peer")
	p.cancel()
}

// Reads datagrams until the peer stops. The read deadline lets the loop observe the stop
// without the socket being closed under it.
func (p *peer) receiveLoop() {
	defer p.wg.Done()

	bp := datagramPool.Get().(*[]byte)
	defer datagramPool.Put(bp)
	buf := *bp

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		_ = p.conn.SetReadDeadline(time.Now().Add(protocol.READ_DEADLINE))

		n, addr, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if p.recoverable(err) {
				continue
			}

			if !errors.Is(err, net.ErrClosed) {
				p.fail(err)
			}
			return
		}

		if p.dropped() {
			continue
		}

		msg, err := message.Decode(buf[:n], addr)
		if err != nil {
			p.log.WithFields(logrus.Fields{"function": "receiveLoop", "remote": addr.String()}).WithError(err).Debug("Dropped malformed datagram")
			continue
		}

		p.onDatagram(msg)
	}
}

// Returns whether a read error leaves the socket usable.
func (p *peer) recoverable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	sent, classified := classifySendError(err)
	return !sent && classified == nil && !errors.Is(err, net.ErrClosed)
}

// Returns whether the datagram should be dropped to simulate packet loss.
func (p *peer) dropped() bool {
	if p.opts.SimulatedDropRate <= 0 {
		return false
	}

	p.dropMu.Lock()
	defer p.dropMu.Unlock()

	return p.drop.Float64() < p.opts.SimulatedDropRate
}

// Calls onTick every TPS until the peer stops.
func (p *peer) tickLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-time.After(protocol.TPS):
			p.onTick()
		}
	}
}

// Encodes and sends the message to addr. Returns false without an error if the datagram was
// refused in a way the sender recovers from: the remote is unreachable or the datagram is
// larger than the link allows. Returns ErrSendBufferFull if the socket buffer is full. Any other
// socket error is fatal and stops the peer.
func (p *peer) send(msg *message.Message, addr *net.UDPAddr) (bool, error) {
	data, err := message.Encode(msg)
	if err != nil {
		return false, err
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if msg.DontFragment {
		if err := setDontFragment(p.conn, true); err != nil {
			p.log.WithFields(logrus.Fields{"function": "send"}).WithError(err).Debug("Failed to set don't fragment")
		}

		defer func() {
			if err := setDontFragment(p.conn, false); err != nil {
				p.log.WithFields(logrus.Fields{"function": "send"}).WithError(err).Debug("Failed to clear don't fragment")
			}
		}()
	}

	if p.connected {
		_, err = p.conn.Write(data)
	} else {
		_, err = p.conn.WriteToUDP(data, addr)
	}

	if err != nil {
		sent, err := classifySendError(err)
		if err != nil && !errors.Is(err, ErrSendBufferFull) {
			p.fail(err)
		}

		return sent, err
	}

	return true, nil
}
