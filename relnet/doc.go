// Package relnet is a session oriented transport over UDP.
//
// A Server accepts sessions from many remote addresses over a single socket while a Client owns
// exactly one session towards a server. Every session multiplexes three kinds of channels:
// Unreliable messages are sent at most once, Sequenced messages are dropped when older than the
// newest one already received on their channel, and Reliable messages are retransmitted until
// confirmed and handed over in the order they were sent. Reliable messages larger than the
// current MTU are split into fragments and merged back on the receiving side.
//
// Sessions are driven by a periodic tick which pings the remote end, probes the path
// MTU, flushes delivery confirmations and resends what has not been confirmed in time.
package relnet
