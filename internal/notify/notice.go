// Package notify publishes screen transitions to other machines as small
// JSON notices.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"tiltlock/internal/session"
	"tiltlock/internal/udp"
)

// Notice is the wire form of a transition.
type Notice struct {
	Device string `json:"device"`
	session.Transition
}

func Encode(device string, t session.Transition) ([]byte, error) {
	return json.Marshal(Notice{Device: device, Transition: t})
}

type sender interface {
	Send(payload []byte) error
}

// UDP sends one datagram per transition.
type UDP struct {
	device string
	out    sender
}

func NewUDP(device string, b *udp.Broadcaster) *UDP {
	return &UDP{device: device, out: b}
}

func (u *UDP) Navigate(ctx context.Context, t session.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Encode(u.device, t)
	if err != nil {
		return fmt.Errorf("udp notice: %w", err)
	}
	if err := u.out.Send(b); err != nil {
		return fmt.Errorf("udp notice: %w", err)
	}
	return nil
}
