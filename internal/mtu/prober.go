// Package mtu discovers the largest payload a network path delivers without fragmentation.
package mtu

import (
	"time"

	"github.com/gamevidea/relnet/internal/protocol"
)

// Prober holds the path MTU discovery state of a session. It grows the payload MTU by a fixed
// factor until a probe fails, then bisects between the accepted MTU and the smallest failed
// size until the two meet. The prober does not send anything itself: the session asks it for
// the next probe size, sends the probe and reports back.
//
// A Prober is not safe for concurrent use.
type Prober struct {
	floor    int
	ceiling  int
	interval time.Duration

	mtu            int
	smallestFailed int
	tries          int
	lastProbe      int
	lastSent       time.Time
	finalized      bool
}

// Creates a prober starting at floor that never probes above ceiling.
func New(floor, ceiling int, interval time.Duration) *Prober {
	p := &Prober{
		floor:    floor,
		ceiling:  max(floor, ceiling),
		interval: interval,
	}

	p.Reset(time.Time{})
	return p
}

// Creates a prober with the protocol floor, ceiling and probe interval.
func NewDefault() *Prober {
	return New(protocol.MIN_PAYLOAD_MTU, protocol.MAX_PAYLOAD_MTU, protocol.MTU_PROBE_INTERVAL)
}

// Returns the prober to its initial state at the floor. The first probe after a reset waits
// one interval from now.
func (p *Prober) Reset(now time.Time) {
	p.mtu = p.floor
	p.smallestFailed = -1
	p.tries = 0
	p.lastProbe = 0
	p.lastSent = now
	p.finalized = false
}

// Returns the accepted payload MTU.
func (p *Prober) MTU() int {
	return p.mtu
}

// Returns whether the bisection has converged.
func (p *Prober) Finalized() bool {
	return p.finalized
}

// Returns the smallest size that failed, or -1 if none did.
func (p *Prober) SmallestFailed() int {
	return p.smallestFailed
}

// Returns the number of unanswered probes at the current size.
func (p *Prober) Tries() int {
	return p.tries
}

// Returns the size to probe next and true if a probe is due at now. When the last size has
// been tried MTU_PROBE_ATTEMPTS times without an answer it is recorded as failed instead, and
// when the bisection has converged the prober finalizes; both return false.
func (p *Prober) Next(now time.Time) (int, bool) {
	if p.finalized || now.Sub(p.lastSent) < p.interval {
		return 0, false
	}

	if p.tries >= protocol.MTU_PROBE_ATTEMPTS {
		p.Fail(p.lastProbe)
		return 0, false
	}

	var next int
	if p.smallestFailed < 0 {
		next = int(float64(p.mtu) * protocol.MTU_GROWTH_FACTOR)
	} else {
		next = (p.mtu + p.smallestFailed) / 2
	}

	next = min(next, p.ceiling)
	if next <= p.mtu {
		p.finalized = true
		return 0, false
	}

	return next, true
}

// Records that a probe of size went out at now.
func (p *Prober) Sent(size int, now time.Time) {
	p.tries++
	p.lastProbe = size
	p.lastSent = now
}

// Records that size cannot be delivered. The next probe is due immediately.
func (p *Prober) Fail(size int) {
	p.tries = 0
	if p.smallestFailed < 0 || size < p.smallestFailed {
		p.smallestFailed = size
	}
	p.lastSent = time.Time{}
}

// Records that the remote received a probe of size. Sizes above the accepted MTU become the new
// MTU and reset the attempt counter; returns whether the MTU grew. A success at or above the
// smallest failed size proves that failure spurious and clears it.
func (p *Prober) Success(size int) bool {
	if size <= p.mtu || size > p.ceiling {
		return false
	}

	p.mtu = size
	p.tries = 0
	if p.smallestFailed >= 0 && size >= p.smallestFailed {
		p.smallestFailed = -1
	}

	return true
}
