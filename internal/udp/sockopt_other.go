//go:build !linux

package udp

import "syscall"

// Broadcast sends need SO_BROADCAST on Linux only; elsewhere the default
// socket is used and unicast destinations work as usual.
func enableBroadcast(network, address string, c syscall.RawConn) error { return nil }
