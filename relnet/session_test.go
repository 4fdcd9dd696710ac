package relnet

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gamevidea/relnet/internal/message"
	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// fakeOwner records what a session sends after a trip through the codec, as the remote would
// decode it.
type fakeOwner struct {
	mu   sync.Mutex
	from *net.UDPAddr
	out  []*message.Message

	// Datagrams larger than limit are refused like the kernel refuses them for exceeding the
	// link MTU. Zero means no limit.
	limit int
	// Every datagram is lost.
	blackhole bool

	acceptFn func(s *Session, handshake []byte) (bool, string)
	changes  []State
}

func (o *fakeOwner) send(msg *message.Message, addr *net.UDPAddr) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.limit > 0 && len(msg.Body) > o.limit {
		return false, nil
	}

	if o.blackhole {
		return true, nil
	}

	data, err := message.Encode(msg)
	if err != nil {
		return false, err
	}

	decoded, err := message.Decode(data, o.from)
	if err != nil {
		return false, err
	}

	o.out = append(o.out, decoded)
	return true, nil
}

func (o *fakeOwner) stateChanged(s *Session, prev State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.changes = append(o.changes, s.State())
}

func (o *fakeOwner) accept(s *Session, handshake []byte) (bool, string) {
	if o.acceptFn == nil {
		return true, ""
	}

	return o.acceptFn(s, handshake)
}

// drain returns and forgets everything sent so far.
func (o *fakeOwner) drain() []*message.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := o.out
	o.out = nil
	return out
}

func (o *fakeOwner) sentOfType(t protocol.PacketType) []*message.Message {
	var out []*message.Message
	for _, m := range o.drain() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type testPair struct {
	clock  *fakeClock
	client *Session
	server *Session
	co     *fakeOwner
	so     *fakeOwner
}

func testOptions() Options {
	opts := Options{Logger: logrus.NewEntry(logrus.New())}
	opts.Logger.Logger.SetLevel(logrus.PanicLevel)
	return opts.withDefaults()
}

func newTestSession(o owner, clock *fakeClock, addr *net.UDPAddr, opts Options) *Session {
	s := newSession(addr, o, opts)
	s.clock = clock.Now
	s.lastIncoming = clock.Now()
	s.lastPongReceived = clock.Now()
	s.prober.Reset(clock.Now())
	return s
}

func newTestPair(opts Options) *testPair {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	clientAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
	serverAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7777}

	co := &fakeOwner{from: clientAddr}
	so := &fakeOwner{from: serverAddr}

	return &testPair{
		clock:  clock,
		client: newTestSession(co, clock, serverAddr, opts),
		server: newTestSession(so, clock, clientAddr, opts),
		co:     co,
		so:     so,
	}
}

// toServer delivers everything the client sent to the server and returns the user messages.
func (p *testPair) toServer() []*Message {
	var out []*Message
	for _, m := range p.co.drain() {
		out = append(out, p.server.ReceiveMessage(m)...)
	}
	return out
}

// toClient delivers everything the server sent to the client and returns the user messages.
func (p *testPair) toClient() []*Message {
	var out []*Message
	for _, m := range p.so.drain() {
		out = append(out, p.client.ReceiveMessage(m)...)
	}
	return out
}

// step runs one tick on both sides and exchanges what they sent.
func (p *testPair) step() (toServer, toClient []*Message) {
	p.clock.Advance(protocol.CONFIRM_INTERVAL)
	p.client.Service()
	toServer = p.toServer()
	p.server.Service()
	toClient = p.toClient()
	return
}

func (p *testPair) handshake(t *testing.T) {
	t.Helper()

	p.client.connect([]byte("hello"))
	require.Equal(t, Connecting, p.client.State())

	for i := 0; i < 5 && p.client.State() != Connected; i++ {
		p.step()
	}

	require.Equal(t, Connected, p.client.State())
	require.Equal(t, Connected, p.server.State())
}

func TestSessionStartsClosed(t *testing.T) {
	p := newTestPair(testOptions())

	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, protocol.MIN_PAYLOAD_MTU, p.client.MTU())
	assert.Equal(t, -1, p.client.RoundTrip())
	assert.True(t, p.client.Service())
}

func TestHandshake(t *testing.T) {
	p := newTestPair(testOptions())

	var handshake []byte
	p.so.acceptFn = func(s *Session, h []byte) (bool, string) {
		handshake = h
		return true, ""
	}

	p.handshake(t)
	assert.Equal(t, []byte("hello"), handshake)
	assert.Equal(t, []State{Connecting, Connected}, p.co.changes)
	assert.Equal(t, []State{Connected}, p.so.changes)
	assert.Equal(t, 0, p.client.reliable.Reliable().Awaiting())
}

func TestHandshakeRejected(t *testing.T) {
	p := newTestPair(testOptions())
	p.so.acceptFn = func(s *Session, h []byte) (bool, string) {
		return false, "go away"
	}

	p.client.connect(nil)
	p.step()

	assert.Equal(t, Closed, p.server.State())
	assert.Equal(t, "go away", p.server.Cause())
	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, "go away", p.client.Cause())
}

func TestStateChangeObserver(t *testing.T) {
	opts := testOptions()

	var mu sync.Mutex
	var seen [][2]State
	opts.OnStateChanged = func(s *Session, prev, next State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, [2]State{prev, next})
	}

	p := newTestPair(opts)
	p.handshake(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, [2]State{Closed, Connecting})
	assert.Contains(t, seen, [2]State{Connecting, Connected})
	assert.Contains(t, seen, [2]State{Closed, Connected})
}

func TestSendValidation(t *testing.T) {
	p := newTestPair(testOptions())

	assert.ErrorIs(t, p.client.Send(NewMessage([]byte("x")), Reliable, 0), ErrNotConnected)

	p.handshake(t)

	assert.ErrorIs(t, p.client.Send(NewMessage(nil), DeliveryType(3), 0), ErrInvalidDelivery)
	assert.ErrorIs(t, p.client.Send(NewMessage(nil), Sequenced, protocol.PING_CHANNEL), ErrInvalidChannel)
	assert.ErrorIs(t, p.client.Send(NewMessage(make([]byte, p.client.MTU()+1)), Unreliable, 0), ErrMessageTooLarge)
	assert.ErrorIs(t, p.client.Send(NewMessage(make([]byte, p.client.MTU()+1)), Sequenced, 3), ErrMessageTooLarge)
	assert.ErrorIs(t, p.client.Send(NewMessage(make([]byte, protocol.MAX_FRAGMENT_COUNT*p.client.MTU()+1)), Reliable, 0), ErrMessageTooLarge)

	msg := NewMessage([]byte("once"))
	require.NoError(t, p.client.Send(msg, Reliable, 0))
	assert.ErrorIs(t, p.client.Send(msg, Reliable, 0), ErrAlreadyCommitted)

	large := NewMessage(make([]byte, 3*p.client.MTU()))
	require.NoError(t, p.client.Send(large, Reliable, 0))
	assert.ErrorIs(t, p.client.Send(large, Unreliable, 0), ErrAlreadyCommitted)
}

func TestDeliveryTypes(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	body := bytes.Repeat([]byte("0123456789"), p.client.MTU()/2)

	require.NoError(t, p.client.Send(NewMessage([]byte("u")), Unreliable, 0))
	require.NoError(t, p.client.Send(NewMessage([]byte("s")), Sequenced, 4))
	require.NoError(t, p.client.Send(NewMessage([]byte("r")), Reliable, 0))
	require.NoError(t, p.client.Send(NewMessage(body), Reliable, 0))

	received, _ := p.step()
	require.Len(t, received, 4)

	byBody := map[string]*Message{}
	for _, m := range received {
		byBody[string(m.Body)] = m
		assert.Equal(t, protocol.UserData, m.Type)
	}

	assert.Equal(t, Unreliable, byBody["u"].Delivery)
	assert.Equal(t, Sequenced, byBody["s"].Delivery)
	assert.Equal(t, uint8(4), byBody["s"].Channel)
	assert.Equal(t, Reliable, byBody["r"].Delivery)
	assert.Equal(t, Reliable, byBody[string(body)].Delivery)

	// The server confirmed everything on its tick.
	p.step()
	assert.Equal(t, 0, p.client.reliable.Reliable().Awaiting())
}

func TestSendBudgetPerTick(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	const n = 300
	for i := 0; i < n; i++ {
		require.NoError(t, p.client.Send(NewMessage([]byte{byte(i)}), Unreliable, 0))
	}

	total := 0
	for tick := 0; tick < 3; tick++ {
		p.clock.Advance(protocol.TPS)
		p.client.Service()

		sent := p.co.sentOfType(protocol.UserData)
		assert.LessOrEqual(t, len(sent), protocol.MAX_SEND_PER_TICK)
		total += len(sent)
	}

	assert.Equal(t, n, total)
}

func TestReliableResentUntilConfirmed(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	require.NoError(t, p.client.Send(NewMessage([]byte("lost")), Reliable, 0))
	p.client.Service()
	first := p.co.sentOfType(protocol.UserData)
	require.Len(t, first, 1)

	p.clock.Advance(protocol.RESEND_TIMEOUT / 2)
	p.client.Service()
	assert.Empty(t, p.co.sentOfType(protocol.UserData))

	p.clock.Advance(protocol.RESEND_TIMEOUT)
	p.client.Service()
	again := p.co.sentOfType(protocol.UserData)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].Sequence, again[0].Sequence)

	assert.Len(t, p.server.ReceiveMessage(again[0]), 1)
	p.server.Service()
	p.toClient()
	assert.Equal(t, 0, p.client.reliable.Reliable().Awaiting())
}

func TestDuplicateIsConfirmedAgain(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	require.NoError(t, p.client.Send(NewMessage([]byte("dup")), Reliable, 0))
	p.client.Service()
	sent := p.co.drain()
	require.Len(t, sent, 1)

	assert.Len(t, p.server.ReceiveMessage(sent[0]), 1)
	p.clock.Advance(protocol.CONFIRM_INTERVAL)
	p.server.Service()
	require.Len(t, p.so.sentOfType(protocol.ConfirmDelivery), 1)

	assert.Empty(t, p.server.ReceiveMessage(sent[0]))
	p.clock.Advance(protocol.CONFIRM_INTERVAL)
	p.server.Service()

	confirms := p.so.sentOfType(protocol.ConfirmDelivery)
	require.Len(t, confirms, 1)

	pk := &message.ConfirmDelivery{}
	require.NoError(t, confirms[0].Decode(pk))
	assert.Equal(t, []int32{sent[0].Sequence}, pk.Sequences)
}

func TestResendLimitClosesSession(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	p.co.blackhole = true
	require.NoError(t, p.client.Send(NewMessage([]byte("void")), Reliable, 0))

	keepAlive := message.NewConfirmDelivery(nil)
	for i := 0; i < 3*protocol.RESEND_LIMIT && p.client.State() == Connected; i++ {
		p.client.ReceiveMessage(keepAlive)
		p.client.Service()
		p.clock.Advance(protocol.RESEND_TIMEOUT + time.Millisecond)
	}

	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, CauseResendLimit, p.client.Cause())
}

func TestIdleTimeout(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	p.clock.Advance(protocol.CONNECTION_TIMEOUT)
	assert.False(t, p.client.Service())
	assert.Equal(t, Connected, p.client.State())

	p.clock.Advance(time.Millisecond)
	assert.True(t, p.client.Service())
	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, CauseTimedOut, p.client.Cause())
}

func TestIdleTimeoutWhileConnecting(t *testing.T) {
	p := newTestPair(testOptions())
	p.co.blackhole = true

	p.client.connect(nil)
	p.clock.Advance(protocol.CONNECTION_TIMEOUT + time.Millisecond)
	p.client.Service()

	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, CauseTimedOut, p.client.Cause())
}

func TestUserDataBeforeConnectedIsViolation(t *testing.T) {
	p := newTestPair(testOptions())
	p.client.connect(nil)

	data := &message.Message{Delivery: protocol.Unreliable, Type: protocol.UserData, Body: []byte("early")}
	assert.Empty(t, p.client.ReceiveMessage(data))

	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, CauseUnknownPacket, p.client.Cause())
}

func TestGracefulClose(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	p.client.Shutdown()
	assert.Equal(t, Closing, p.client.State())
	assert.ErrorIs(t, p.client.Send(NewMessage(nil), Reliable, 0), ErrNotConnected)

	for i := 0; i < 5 && (p.client.State() != Closed || p.server.State() != Closed); i++ {
		p.step()
	}

	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, CauseShutdown, p.client.Cause())
	assert.Equal(t, Closed, p.server.State())
	assert.Equal(t, CauseRemoteClosed, p.server.Cause())
}

func TestSimultaneousClose(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	p.client.Shutdown()
	p.server.Shutdown()

	for i := 0; i < 5 && (p.client.State() != Closed || p.server.State() != Closed); i++ {
		p.step()
	}

	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, Closed, p.server.State())
}

func TestFinAckOnClosedSession(t *testing.T) {
	p := newTestPair(testOptions())

	fin := message.NewFinAck()
	fin.Sequence = 1
	p.server.ReceiveMessage(fin)

	errs := p.so.sentOfType(protocol.ConnectionError)
	require.Len(t, errs, 1)

	pk := &message.ConnectionError{}
	require.NoError(t, errs[0].Decode(pk))
	assert.Equal(t, CauseSessionClosed, pk.Reason)
}

func TestConnectionErrorClosesSession(t *testing.T) {
	p := newTestPair(testOptions())
	p.handshake(t)

	p.client.ReceiveMessage(message.NewConnectionError("kicked"))
	assert.Equal(t, Closed, p.client.State())
	assert.Equal(t, "kicked", p.client.Cause())
}

func TestPingMeasuresRoundTrip(t *testing.T) {
	opts := testOptions()
	opts.Ping = true

	p := newTestPair(opts)
	p.handshake(t)

	p.clock.Advance(protocol.PING_INTERVAL)
	p.client.Service()
	pings := p.co.drain()
	require.NotEmpty(t, pings)

	p.clock.Advance(30 * time.Millisecond)
	for _, m := range pings {
		p.server.ReceiveMessage(m)
	}
	p.server.Service()

	pongs := p.so.sentOfType(protocol.Pong)
	require.Len(t, pongs, 1)
	assert.Equal(t, protocol.PING_CHANNEL, pongs[0].Channel)

	p.clock.Advance(20 * time.Millisecond)
	p.client.ReceiveMessage(pongs[0])
	assert.Equal(t, 50, p.client.RoundTrip())

	p.clock.Advance(protocol.PING_INTERVAL + protocol.RESEND_TIMEOUT + time.Millisecond)
	p.client.ReceiveMessage(message.NewConfirmDelivery(nil))
	p.client.Service()
	assert.Equal(t, -1, p.client.RoundTrip())
}

func TestMTUProbingConverges(t *testing.T) {
	opts := testOptions()
	opts.MTUProbing = true

	p := newTestPair(opts)
	p.handshake(t)

	const pathMTU = 1400
	p.co.limit = pathMTU

	for i := 0; i < 500 && !p.client.prober.Finalized(); i++ {
		p.clock.Advance(protocol.MTU_PROBE_INTERVAL)
		p.client.Service()
		p.toServer()
		p.toClient()
		p.client.ReceiveMessage(message.NewConfirmDelivery(nil))
	}

	assert.True(t, p.client.prober.Finalized())
	assert.Equal(t, pathMTU, p.client.MTU())

	p.client.ReceiveMessage(message.NewConnectionError("bye"))
	assert.Equal(t, protocol.MIN_PAYLOAD_MTU, p.client.MTU())
}
