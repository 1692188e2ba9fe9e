package alice

import (
	"context"
	"fmt"

	"github.com/xmrswap/swapd/net/message"
)

// Transport is the peer-to-peer collaborator spec.md §1 lists as out
// of core scope ("the networking layer delivering four ordered
// messages and one encrypted-signature message"). The state machine
// only ever needs to send and receive one message.Message at a time,
// strictly in the M0..M6 order spec.md §5 requires.
type Transport interface {
	Send(ctx context.Context, msg message.Message) error
	Receive(ctx context.Context) (message.Message, error)
}

// receiveAs reads the next message off t and asserts it decodes to
// the type *T expects, failing with ProtocolViolation (not a panic) on
// a type mismatch — spec.md §5's "incoming messages are consumed
// strictly in order" means an out-of-order message is a protocol
// error, not a programming error.
func receiveAs[T any](ctx context.Context, t Transport, want string) (*T, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	typed, ok := msg.(*T)
	if !ok {
		return nil, fmt.Errorf("expected %s, got %s", want, msg.MsgType())
	}
	return typed, nil
}
