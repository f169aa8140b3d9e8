// Package udp sends datagrams to a fixed destination, typically a
// broadcast address on the local network.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("udp: broadcaster closed")

type packetConn interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type listenFunc func(ctx context.Context) (packetConn, error)

// Broadcaster writes each payload as one datagram to dest. The socket has
// SO_BROADCAST set, so dest may be a subnet broadcast address such as
// 192.168.10.255:4000.
type Broadcaster struct {
	dest *net.UDPAddr

	mu   sync.Mutex
	conn packetConn

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, listenBroadcast)
}

func listenBroadcast(ctx context.Context) (packetConn, error) {
	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func newBroadcaster(dest string, resolve resolveFunc, listen listenFunc) (*Broadcaster, error) {
	addr, err := resolve("udp4", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", dest, err)
	}
	if addr.Port == 0 {
		return nil, fmt.Errorf("udp: %s has no port", dest)
	}
	conn, err := listen(context.Background())
	if err != nil {
		return nil, fmt.Errorf("udp: listen: %w", err)
	}
	return &Broadcaster{dest: addr, conn: conn}, nil
}

// Dest returns the resolved destination address.
func (b *Broadcaster) Dest() string { return b.dest.String() }

// Send writes payload as one datagram. Empty payloads are not sent.
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrClosed
	}
	if _, err := b.conn.WriteTo(payload, b.dest); err != nil {
		b.failed.Add(1)
		return fmt.Errorf("udp: send to %s: %w", b.dest, err)
	}
	b.sent.Add(1)
	return nil
}

// Stats returns how many datagrams were sent and how many writes failed.
func (b *Broadcaster) Stats() (sent, failed uint64) {
	return b.sent.Load(), b.failed.Load()
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
