// Package comm tracks peer liveness and exchanges messages over a pluggable
// transport. It is independent of task scheduling: a peer here is tracked
// only for liveness.
package comm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskmesh/pkg/observability"
	"taskmesh/pkg/protocol"
	"taskmesh/pkg/protocol/codec"
	"taskmesh/pkg/transport"
)

// Config controls heartbeat cadence and message delivery.
type Config struct {
	HeartbeatInterval time.Duration // default 5s
	MessageTimeout    time.Duration // default 10s
	MaxRetries        int           // resends after a failed Send (default 3)
}

func (c Config) withDefaults() Config {
	res := c
	if res.HeartbeatInterval <= 0 {
		res.HeartbeatInterval = 5 * time.Second
	}
	if res.MessageTimeout <= 0 {
		res.MessageTimeout = 10 * time.Second
	}
	if res.MaxRetries <= 0 {
		res.MaxRetries = 3
	}
	return res
}

// PeerStatus is the derived liveness of a peer. It changes only through
// heartbeat aging or an inbound message.
type PeerStatus int

const (
	PeerOnline PeerStatus = iota
	PeerOffline
)

func (s PeerStatus) String() string {
	if s == PeerOffline {
		return "offline"
	}
	return "online"
}

// PeerRecord tracks one remote participant. Records are created on explicit
// registration or first contact and destroyed only by explicit
// unregistration; aging flips status, never existence.
type PeerRecord struct {
	ID       transport.PeerID
	LastSeen time.Time
	Status   PeerStatus
}

// Handler consumes one inbound message of a registered type.
type Handler func(msg protocol.Message)

// Stats is a read-only view of the messaging layer.
type Stats struct {
	NodeID          string
	TotalPeers      int
	OnlinePeers     int
	OfflinePeers    int
	PendingMessages int
	Config          Config
}

// Manager is the peer directory and heartbeat monitor. The heartbeat loop
// runs on its own timer and touches only the peer table.
type Manager struct {
	mu       sync.Mutex
	nodeID   transport.PeerID
	cfg      Config
	tr       transport.Transport
	codec    codec.Codec
	peers    map[transport.PeerID]*PeerRecord
	handlers map[protocol.MessageType]Handler
	pending  map[string]protocol.Message
	closeCh  chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewManager constructs a stopped manager. The transport's inbound side
// should be wired to Inbound.
func NewManager(nodeID transport.PeerID, cfg Config, tr transport.Transport, c codec.Codec) *Manager {
	return &Manager{
		nodeID:   nodeID,
		cfg:      cfg.withDefaults(),
		tr:       tr,
		codec:    c,
		peers:    make(map[transport.PeerID]*PeerRecord),
		handlers: make(map[protocol.MessageType]Handler),
		pending:  make(map[string]protocol.Message),
	}
}

// RegisterPeer adds or resets a peer: online, last-seen now.
func (m *Manager) RegisterPeer(id transport.PeerID) {
	m.mu.Lock()
	m.touchLocked(id)
	m.mu.Unlock()
}

// UnregisterPeer destroys the peer record. This is the only way a record is
// removed.
func (m *Manager) UnregisterPeer(id transport.PeerID) {
	m.mu.Lock()
	delete(m.peers, id)
	m.updatePeerGaugeLocked()
	m.mu.Unlock()
	zap.L().Info("peer unregistered", zap.String("peer", string(id)))
}

// Peers returns a snapshot of the directory, ordered by id.
func (m *Manager) Peers() []PeerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerRecord, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnMessage registers the handler for a message type. One handler per type:
// a later registration replaces the previous one.
func (m *Manager) OnMessage(typ protocol.MessageType, h Handler) {
	m.mu.Lock()
	if h == nil {
		delete(m.handlers, typ)
	} else {
		m.handlers[typ] = h
	}
	m.mu.Unlock()
}

// Send constructs a message, tracks it as pending, and invokes the
// transport. A failed send is retried up to MaxRetries times while the
// message timeout allows. The pending entry is cleared when the attempts
// conclude, success or failure. Returns the message id.
func (m *Manager) Send(to transport.PeerID, payload []byte, typ protocol.MessageType) (string, error) {
	msg := protocol.NewMessage(typ, string(m.nodeID), []string{string(to)}, payload)
	frame, err := msg.Encode(m.codec)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.pending[msg.ID] = msg
	timeout := m.cfg.MessageTimeout
	maxRetries := m.cfg.MaxRetries
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, msg.ID)
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var sendErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if sendErr = m.tr.Send(ctx, to, frame); sendErr == nil {
			return msg.ID, nil
		}
		if ctx.Err() != nil {
			break
		}
		zap.L().Debug("send attempt failed",
			zap.String("to", string(to)),
			zap.Int("attempt", attempt+1),
			zap.Error(sendErr))
	}
	return msg.ID, fmt.Errorf("send %s to %s: %w", msg.Type, to, sendErr)
}

// Broadcast sends one message addressed to all currently known peers.
// Delivery is best effort: a peer that fails is not retried, and the first
// failure is reported after all peers were attempted.
func (m *Manager) Broadcast(payload []byte, typ protocol.MessageType) (string, error) {
	m.mu.Lock()
	ids := make([]transport.PeerID, 0, len(m.peers))
	to := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
		to = append(to, string(id))
	}
	timeout := m.cfg.MessageTimeout
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	sort.Strings(to)

	msg := protocol.NewMessage(typ, string(m.nodeID), to, payload)
	frame, err := msg.Encode(m.codec)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.pending[msg.ID] = msg
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, msg.ID)
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var firstErr error
	for _, id := range ids {
		if err := m.tr.Send(ctx, id, frame); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("broadcast to %s: %w", id, err)
		}
	}
	return msg.ID, firstErr
}

// Inbound decodes a frame and dispatches it. Wire this as the transport's
// inbound handler.
func (m *Manager) Inbound(from transport.PeerID, frame []byte) {
	msg, err := protocol.DecodeMessage(m.codec, frame)
	if err != nil {
		zap.L().Warn("dropping undecodable frame", zap.String("from", string(from)), zap.Error(err))
		return
	}
	m.HandleMessage(msg)
}

// HandleMessage dispatches to the registered handler for the message type
// and refreshes the sender's liveness. An unknown sender is implicitly
// registered. Messages from self do not touch the peer table.
func (m *Manager) HandleMessage(msg protocol.Message) {
	m.mu.Lock()
	h := m.handlers[msg.Type]
	if msg.From != "" && msg.From != string(m.nodeID) {
		m.touchLocked(transport.PeerID(msg.From))
	}
	m.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// Start launches the heartbeat loop. Idempotent.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.closeCh = make(chan struct{})
	m.wg.Add(1)
	go m.heartbeatLoop(m.closeCh)
	zap.L().Info("heartbeat monitor started",
		zap.String("node", string(m.nodeID)),
		zap.Duration("interval", m.cfg.HeartbeatInterval))
}

// Stop cancels the heartbeat loop and waits for it to exit. Idempotent;
// no timers remain after return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	ch := m.closeCh
	m.mu.Unlock()
	close(ch)
	m.wg.Wait()
	zap.L().Info("heartbeat monitor stopped", zap.String("node", string(m.nodeID)))
}

// Stats returns a read-only summary of the directory and in-flight sends.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	online := 0
	for _, p := range m.peers {
		if p.Status == PeerOnline {
			online++
		}
	}
	return Stats{
		NodeID:          string(m.nodeID),
		TotalPeers:      len(m.peers),
		OnlinePeers:     online,
		OfflinePeers:    len(m.peers) - online,
		PendingMessages: len(m.pending),
		Config:          m.cfg,
	}
}

func (m *Manager) heartbeatLoop(stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := m.Broadcast(nil, protocol.MsgHeartbeat); err != nil {
				zap.L().Debug("heartbeat broadcast", zap.Error(err))
			}
			observability.HeartbeatsSent.Inc()
			m.agePeers()
		}
	}
}

// agePeers marks peers silent for more than 3 heartbeat intervals offline.
// Status only; records are never removed here.
func (m *Manager) agePeers() {
	cutoff := 3 * m.cfg.HeartbeatInterval
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.peers {
		if p.Status == PeerOnline && now.Sub(p.LastSeen) > cutoff {
			p.Status = PeerOffline
			zap.L().Warn("peer offline",
				zap.String("peer", string(p.ID)),
				zap.Time("last_seen", p.LastSeen))
		}
	}
	m.updatePeerGaugeLocked()
}

// touchLocked refreshes last-seen and flips the peer online, creating the
// record if needed. Caller holds mu.
func (m *Manager) touchLocked(id transport.PeerID) {
	p, ok := m.peers[id]
	if !ok {
		p = &PeerRecord{ID: id}
		m.peers[id] = p
		zap.L().Debug("peer registered", zap.String("peer", string(id)))
	}
	p.LastSeen = time.Now()
	p.Status = PeerOnline
	m.updatePeerGaugeLocked()
}

func (m *Manager) updatePeerGaugeLocked() {
	online := 0
	for _, p := range m.peers {
		if p.Status == PeerOnline {
			online++
		}
	}
	observability.PeersOnline.Set(float64(online))
}
