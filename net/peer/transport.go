// Package peer implements swap/alice.Transport over a plain TCP
// connection, the minimal "point-to-point pipe" spec.md §1 leaves as
// an external collaborator (it names only the message contents and
// ordering, not the socket layer). Grounded on peer.go's
// net.Conn-backed peer struct, stripped of everything Lightning-P2P
// specific (brontide handshake, wire.Message dispatch by type byte,
// ping/pong keepalive) since spec.md's transport only ever needs to
// carry seven messages in a fixed order over one already-established
// connection.
package peer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/xmrswap/swapd/net/message"
)

// Conn wraps a net.Conn with the message framing net/message defines,
// serializing writes the way peer.go's sendQueue does (a single writer
// goroutine; here, a mutex instead, since this transport has no
// outgoing queue to batch through).
type Conn struct {
	conn net.Conn

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// NewConn wraps an already-dialed or already-accepted connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// Dial connects to a counterparty's listening address and wraps the
// resulting connection.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s: %w", addr, err)
	}
	return NewConn(conn), nil
}

// Send writes msg to the wire, serialized against concurrent writers.
func (c *Conn) Send(ctx context.Context, msg message.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	_, err := message.WriteMessage(c.conn, msg)
	if err != nil {
		return fmt.Errorf("peer: write %s: %w", msg.MsgType(), err)
	}
	return nil
}

// Receive blocks for the next framed message on the wire. Per
// net/message's framing, a short read or a connection reset surfaces
// as a plain error; the caller (swap/alice's handshake/machine code)
// treats any Receive error as fatal to the in-flight swap.
//
// net.Conn.Read ignores context cancellation, so the race in
// machine.go's waitForRedeemOrCancel (M6 vs. the cancel timelock)
// would otherwise leak a goroutine blocked in Read until the next
// message happens to arrive. A watcher goroutine sets an
// already-elapsed read deadline on ctx.Done to interrupt it instead.
func (c *Conn) Receive(ctx context.Context) (message.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	// Clear any deadline a previous call's cancellation watcher left
	// behind (it may fire after that call's Read already returned).
	c.conn.SetReadDeadline(time.Time{})

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(dl)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.SetReadDeadline(time.Unix(0, 1))
		case <-done:
		}
	}()

	msg, err := message.ReadMessage(c.conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("peer: read: %w", err)
	}
	return msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
