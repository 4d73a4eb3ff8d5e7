// Package mem provides an in-process loopback transport for tests and
// single-process deployments.
package mem

import (
	"context"
	"fmt"
	"sync"

	"taskmesh/pkg/transport"
)

// Bus routes frames between endpoints registered in the same process.
type Bus struct {
	mu        sync.RWMutex
	endpoints map[transport.PeerID]transport.Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{endpoints: make(map[transport.PeerID]transport.Handler)}
}

// Endpoint attaches a peer to the bus and returns its transport. Inbound
// frames are delivered to h on a fresh goroutine, so handlers may call back
// into the transport without deadlocking.
func (b *Bus) Endpoint(id transport.PeerID, h transport.Handler) transport.Transport {
	b.mu.Lock()
	b.endpoints[id] = h
	b.mu.Unlock()
	return &endpoint{bus: b, self: id}
}

func (b *Bus) detach(id transport.PeerID) {
	b.mu.Lock()
	delete(b.endpoints, id)
	b.mu.Unlock()
}

func (b *Bus) deliver(from, to transport.PeerID, frame []byte) error {
	b.mu.RLock()
	h, ok := b.endpoints[to]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("peer %s unreachable", to)
	}
	cp := append([]byte(nil), frame...)
	go h(from, cp)
	return nil
}

type endpoint struct {
	bus    *Bus
	self   transport.PeerID
	mu     sync.Mutex
	closed bool
}

func (e *endpoint) Send(ctx context.Context, to transport.PeerID, frame []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return fmt.Errorf("endpoint %s closed", e.self)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return e.bus.deliver(e.self, to, frame)
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.bus.detach(e.self)
	return nil
}
