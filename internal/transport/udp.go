package transport

import (
	"log"
	"net"
	"sync"
	"time"
)

// Default ports per §6.2.
const (
	DefaultBroadcastPort = 9876
	DefaultPresencePort  = 9877

	// presenceInterval is how often this node sends its own heartbeat.
	presenceInterval = 150 * time.Millisecond
	// presenceDeadline is how long a peer can go unheard before it is
	// considered lost — "typical deadline 500ms" per §6.2.
	presenceDeadline = 500 * time.Millisecond
	// coalesceWindow is the interval between scans for lost peers; every
	// peer found lost in one scan is reported in a single PeerUpdate.
	// Joins are not batched: each newly heard peer is reported at once.
	coalesceWindow = 50 * time.Millisecond
)

// UDPAdapter is the production Adapter: background goroutines receive
// broadcasts, send and receive presence heartbeats, and scan for lost
// peers; broadcasts are sent synchronously on the caller's goroutine.
// The main loop never reads a socket directly.
type UDPAdapter struct {
	localID string

	bcastConn    *net.UDPConn
	bcastTarget  *net.UDPAddr
	presConn     *net.UDPConn
	presTarget   *net.UDPAddr

	inbound    chan Inbound
	peerUpdate chan PeerUpdate

	mu       sync.Mutex
	lastSeen map[string]time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewUDPAdapter binds the broadcast and presence sockets and starts the
// broadcast-receive, presence-send and presence-receive goroutines (the
// last starts the lost-peer scan). Both sockets listen on all interfaces
// at broadcastPort/presencePort and send to 255.255.255.255 on the same
// ports; bindIfaceIP is not used.
func NewUDPAdapter(localID, bindIfaceIP string, broadcastPort, presencePort int) (*UDPAdapter, error) {
	bcastConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: broadcastPort})
	if err != nil {
		return nil, err
	}
	presConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: presencePort})
	if err != nil {
		bcastConn.Close()
		return nil, err
	}

	a := &UDPAdapter{
		localID:     localID,
		bcastConn:   bcastConn,
		bcastTarget: &net.UDPAddr{IP: net.IPv4bcast, Port: broadcastPort},
		presConn:    presConn,
		presTarget:  &net.UDPAddr{IP: net.IPv4bcast, Port: presencePort},
		inbound:     make(chan Inbound, 256),
		peerUpdate:  make(chan PeerUpdate, 16),
		lastSeen:    map[string]time.Time{},
		done:        make(chan struct{}),
	}

	go a.recvBroadcastLoop()
	go a.sendPresenceLoop()
	go a.recvPresenceLoop()
	return a, nil
}

func (a *UDPAdapter) LocalID() string               { return a.localID }
func (a *UDPAdapter) Broadcasts() <-chan Inbound     { return a.inbound }
func (a *UDPAdapter) PeerUpdates() <-chan PeerUpdate { return a.peerUpdate }

// SendBroadcast is fire-and-forget: a write error is logged at the
// transport layer and never surfaces to the caller (§7, error kind 4).
func (a *UDPAdapter) SendBroadcast(data []byte) {
	if _, err := a.bcastConn.WriteToUDP(data, a.bcastTarget); err != nil {
		log.Printf("transport: broadcast send error: %v", err)
	}
}

func (a *UDPAdapter) recvBroadcastLoop() {
	buf := make([]byte, 1500)
	for {
		n, addr, err := a.bcastConn.ReadFromUDP(buf)
		select {
		case <-a.done:
			return
		default:
		}
		if err != nil {
			log.Printf("transport: broadcast recv error: %v", err)
			continue
		}
		in, err := Decode(buf[:n], addr.IP.String())
		if err != nil {
			// §7.3: drop malformed datagrams silently (no log spam from
			// random subnet noise).
			continue
		}
		select {
		case a.inbound <- in:
		case <-a.done:
			return
		}
	}
}

func (a *UDPAdapter) sendPresenceLoop() {
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := a.presConn.WriteToUDP([]byte(a.localID), a.presTarget); err != nil {
				log.Printf("transport: presence send error: %v", err)
			}
		case <-a.done:
			return
		}
	}
}

// recvPresenceLoop reads heartbeats and emits a PeerUpdate as soon as a
// peer is heard for the first time. Lost peers are found by scanLoop,
// which reports all peers lost since its previous scan in one PeerUpdate.
func (a *UDPAdapter) recvPresenceLoop() {
	buf := make([]byte, 256)
	go a.scanLoop()
	for {
		n, _, err := a.presConn.ReadFromUDP(buf)
		select {
		case <-a.done:
			return
		default:
		}
		if err != nil {
			log.Printf("transport: presence recv error: %v", err)
			continue
		}
		id := string(buf[:n])
		if id == a.localID {
			continue
		}
		a.mu.Lock()
		_, known := a.lastSeen[id]
		a.lastSeen[id] = time.Now()
		a.mu.Unlock()
		if !known {
			a.emitUpdate("", id, nil)
		}
	}
}

func (a *UDPAdapter) scanLoop() {
	ticker := time.NewTicker(coalesceWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.scanForLost()
		case <-a.done:
			return
		}
	}
}

func (a *UDPAdapter) scanForLost() {
	a.mu.Lock()
	now := time.Now()
	var lost []string
	for id, seen := range a.lastSeen {
		if now.Sub(seen) > presenceDeadline {
			lost = append(lost, id)
			delete(a.lastSeen, id)
		}
	}
	a.mu.Unlock()
	if len(lost) > 0 {
		a.emitUpdate("", "", lost)
	}
}

func (a *UDPAdapter) emitUpdate(_ string, newPeer string, lost []string) {
	a.mu.Lock()
	peers := make(map[string]struct{}, len(a.lastSeen))
	for id := range a.lastSeen {
		peers[id] = struct{}{}
	}
	a.mu.Unlock()

	update := PeerUpdate{Peers: peers, New: newPeer, Lost: lost}
	select {
	case a.peerUpdate <- update:
	case <-a.done:
	}
}

func (a *UDPAdapter) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		a.bcastConn.Close()
		a.presConn.Close()
	})
}
