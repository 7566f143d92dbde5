package transport

import "sync"

// loopbackBus fans datagrams sent by any attached node out to every other
// attached node's inbound channel. It plays the role the real UDP
// broadcast segment plays in production, for tests and the single-process
// demo — the same trade RegisterPeer/UnregisterPeer/Broadcast channels
// play in the teacher's websocket.MonitorHub, just over loopback instead
// of a socket.
type loopbackBus struct {
	mu    sync.Mutex
	nodes map[string]*LoopbackAdapter
}

// NewLoopbackBus creates a shared bus. Call Attach for every node that
// should see every other node's broadcasts.
func NewLoopbackBus() *loopbackBus {
	return &loopbackBus{nodes: map[string]*LoopbackAdapter{}}
}

// LoopbackAdapter implements Adapter over the in-process bus.
type LoopbackAdapter struct {
	bus        *loopbackBus
	id         string
	inbound    chan Inbound
	peerUpdate chan PeerUpdate
	closed     bool
	mu         sync.Mutex
}

// Attach registers a new node on the bus and returns its Adapter. Every
// node already attached receives a PeerUpdate adding the newcomer, and the
// newcomer receives one PeerUpdate describing everyone already present.
func (b *loopbackBus) Attach(id string) *LoopbackAdapter {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := &LoopbackAdapter{
		bus:        b,
		id:         id,
		inbound:    make(chan Inbound, 256),
		peerUpdate: make(chan PeerUpdate, 16),
	}
	b.nodes[id] = a

	peers := b.peerSetLocked()
	for otherID, other := range b.nodes {
		if otherID == id {
			continue
		}
		other.deliverPeerUpdate(PeerUpdate{Peers: peers, New: id})
	}
	a.deliverPeerUpdate(PeerUpdate{Peers: peers})
	return a
}

// Detach removes a node, notifying every remaining node it is Lost.
func (b *loopbackBus) Detach(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.nodes, id)
	peers := b.peerSetLocked()
	for _, other := range b.nodes {
		other.deliverPeerUpdate(PeerUpdate{Peers: peers, Lost: []string{id}})
	}
}

func (b *loopbackBus) peerSetLocked() map[string]struct{} {
	peers := make(map[string]struct{}, len(b.nodes))
	for id := range b.nodes {
		peers[id] = struct{}{}
	}
	return peers
}

func (a *LoopbackAdapter) deliverPeerUpdate(u PeerUpdate) {
	select {
	case a.peerUpdate <- u:
	default:
	}
}

func (a *LoopbackAdapter) SendBroadcast(data []byte) {
	from := a.id
	a.bus.mu.Lock()
	defer a.bus.mu.Unlock()
	for otherID, other := range a.bus.nodes {
		if otherID == from {
			continue
		}
		in, err := Decode(data, from)
		if err != nil {
			continue // §7.3: malformed datagrams are dropped silently
		}
		select {
		case other.inbound <- in:
		default:
		}
	}
}

func (a *LoopbackAdapter) Broadcasts() <-chan Inbound       { return a.inbound }
func (a *LoopbackAdapter) PeerUpdates() <-chan PeerUpdate   { return a.peerUpdate }
func (a *LoopbackAdapter) LocalID() string                  { return a.id }

func (a *LoopbackAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.bus.Detach(a.id)
}
