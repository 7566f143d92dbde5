// Package handler implements the replication and assignment logic that
// sits between the wire transport and the elevator motion FSM (§4.3, §4.4).
package handler

import (
	"strings"
	"sync"

	"liftd/internal/request"
	"liftd/internal/transport"
)

// Direction is the cabin's current direction of travel. Stop is never
// stored as a direction — it is only a motor command (§3).
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) Opposite() Direction {
	if d == Up {
		return Down
	}
	return Up
}

// HallKind returns the hall-call kind a passenger would press for this
// direction (CallUp for Up, CallDown for Down).
func (d Direction) HallKind() request.Kind {
	return d.hallKind()
}

func (d Direction) hallKind() request.Kind {
	if d == Up {
		return request.CallUp
	}
	return request.CallDown
}

func ipPrefix(peerID string) string {
	if i := strings.LastIndex(peerID, ":"); i >= 0 {
		return peerID[:i]
	}
	return peerID
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Handler owns the replicated RequestTable, the peer positions map and the
// transport adapter. It is a plain field of the FSM, not a cyclic
// collaborator — see §9 "cyclic references between Elevator and Handler".
type Handler struct {
	table    *request.Table
	adapter  transport.Adapter
	localID  string
	localIP  string

	mu             sync.RWMutex
	localFloor     int
	livePeers      map[string]struct{} // full "ip:id" identities, excluding self
	peerPositions  map[string]int      // bare IP -> last-known floor
}

// New builds a handler for a table of the given size, bound to adapter.
func New(table *request.Table, adapter transport.Adapter) *Handler {
	localID := adapter.LocalID()
	return &Handler{
		table:         table,
		adapter:       adapter,
		localID:       localID,
		localIP:       ipPrefix(localID),
		livePeers:     map[string]struct{}{},
		peerPositions: map[string]int{},
	}
}

// Table exposes the underlying table for read-only inspection (status API).
func (h *Handler) Table() *request.Table { return h.table }

// PeerSnapshot is a read-only view of one live peer for the status API.
type PeerSnapshot struct {
	ID    string
	Floor int
}

// Peers returns a snapshot of every live peer and its last-known floor,
// for the status API's GET /api/peers.
func (h *Handler) Peers() []PeerSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]PeerSnapshot, 0, len(h.livePeers))
	for id := range h.livePeers {
		out = append(out, PeerSnapshot{ID: id, Floor: h.peerPositions[ipPrefix(id)]})
	}
	return out
}

// LocalFloor returns the last floor recorded via SetLocalFloor.
func (h *Handler) LocalFloor() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.localFloor
}

// SetLocalFloor records the cabin's current floor, consulted by the
// assignment function's cost calculation.
func (h *Handler) SetLocalFloor(floor int) {
	h.mu.Lock()
	h.localFloor = floor
	h.mu.Unlock()
}

// fullPeerSet returns the live-peer coverage set INCLUDING the local node
// itself — the acknowledgement predicate in §4.1/§8 scenario 1 is defined
// over "peers" that includes the announcing node's own identity.
func (h *Handler) fullPeerSet() map[string]struct{} {
	full := make(map[string]struct{}, len(h.livePeers)+1)
	for id := range h.livePeers {
		full[id] = struct{}{}
	}
	full[h.localID] = struct{}{}
	return full
}

// HandlePeerUpdate applies a presence change: PeerPositions gains an entry
// (floor 0, corrected by the next Position broadcast) for a New peer and
// loses its entry for every Lost peer (§3, §9 "dynamic peer set").
func (h *Handler) HandlePeerUpdate(u transport.PeerUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.livePeers = make(map[string]struct{}, len(u.Peers))
	for id := range u.Peers {
		if id == h.localID {
			continue
		}
		h.livePeers[id] = struct{}{}
	}
	if u.New != "" {
		if _, ok := h.peerPositions[ipPrefix(u.New)]; !ok {
			h.peerPositions[ipPrefix(u.New)] = 0
		}
	}
	for _, lost := range u.Lost {
		delete(h.peerPositions, ipPrefix(lost))
	}
}

// HandlePosition applies a last-write-wins Position update (§5).
func (h *Handler) HandlePosition(fromIP string, floor int) {
	h.mu.Lock()
	h.peerPositions[ipPrefix(fromIP)] = floor
	h.mu.Unlock()
}

// HandleRequest merges an incoming Request cell and returns the lamp hint.
func (h *Handler) HandleRequest(remote request.Request, fromID string) request.LightHint {
	h.mu.RLock()
	peers := h.fullPeerSet()
	h.mu.RUnlock()
	return h.table.Merge(remote, fromID, peers)
}

// HandleInbound dispatches a decoded datagram to HandleRequest or
// HandlePosition, returning the lamp hint (NoHint for Position messages).
func (h *Handler) HandleInbound(in transport.Inbound) request.LightHint {
	switch in.Kind {
	case transport.InboundRequest:
		return h.HandleRequest(in.Request, in.From)
	case transport.InboundPosition:
		h.HandlePosition(in.From, in.PositionFloor)
		return request.NoHint
	default:
		return request.NoHint
	}
}

// localBest implements the §4.3 assignment function for a request at
// reqFloor: true iff no peer has a strictly lower cost, and ties are
// broken in favour of the lexicographically smaller full address (the
// Open Question resolution in SPEC_FULL.md — not just the 4th octet).
func (h *Handler) localBest(reqFloor int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	localCost := abs(reqFloor - h.localFloor)
	if len(h.peerPositions) == 0 {
		return true
	}
	minCost := -1
	winningIP := ""
	for ip, pos := range h.peerPositions {
		c := abs(reqFloor - pos)
		if minCost == -1 || c < minCost || (c == minCost && ip < winningIP) {
			minCost = c
			winningIP = ip
		}
	}
	if localCost < minCost {
		return true
	}
	if localCost == minCost && h.localIP <= winningIP {
		return true
	}
	return false
}

// ShouldStop implements §4.3: stop iff the Internal cell at floor is
// Active, or the hall cell matching dir at floor is Active and assigned
// to this node.
func (h *Handler) ShouldStop(floor int, dir Direction) bool {
	internal, _ := h.table.Get(request.Internal, floor)
	if internal.Status == request.Active {
		return true
	}
	hall, err := h.table.Get(dir.hallKind(), floor)
	if err != nil || hall.Status != request.Active {
		return false
	}
	return h.localBest(floor)
}

// directionWindow returns the [lo, hi) floor range considered by
// ShouldContinue/ShouldChangeDirection for travel in dir from floor: Up
// covers floor+1 through the top floor, Down covers floor 0 through
// floor-1. floor itself is excluded on both sides.
func directionWindow(floor, floors int, dir Direction) (lo, hi int) {
	if dir == Up {
		return floor + 1, floors
	}
	return 0, floor
}

func (h *Handler) anyActiveAssignedInWindow(lo, hi int) bool {
	for f := lo; f < hi; f++ {
		internal, _ := h.table.Get(request.Internal, f)
		if internal.Status == request.Active && h.localBest(f) {
			return true
		}
		for _, kind := range []request.Kind{request.CallUp, request.CallDown} {
			if !h.table.IsLegal(kind, f) {
				continue
			}
			cell, _ := h.table.Get(kind, f)
			if cell.Status == request.Active && h.localBest(f) {
				return true
			}
		}
	}
	return false
}

// ShouldContinue implements §4.3.
func (h *Handler) ShouldContinue(floor int, dir Direction) bool {
	lo, hi := directionWindow(floor, h.table.Floors(), dir)
	return h.anyActiveAssignedInWindow(lo, hi)
}

// ShouldChangeDirection implements §4.3: true if the opposite hall cell at
// floor itself is Active (no assignment gate), or any
// Active, locally-assigned request exists in the opposite window.
func (h *Handler) ShouldChangeDirection(floor int, dir Direction) bool {
	opp := dir.Opposite()
	if cell, err := h.table.Get(opp.hallKind(), floor); err == nil && cell.Status == request.Active {
		return true
	}
	lo, hi := directionWindow(floor, h.table.Floors(), opp)
	return h.anyActiveAssignedInWindow(lo, hi)
}

// AnnounceNewRequest implements §4.4's new-call path. Internal cells are
// local-only: set Active and never broadcast. Hall cells move to Pending
// locally, then self-ack exactly as if this node had received its own
// broadcast (the "receive_own_broadcast" step in §8's idempotence law),
// which is what lets a single-node system (no OTHER live peers) promote
// straight to Active. The resulting lamp hint is returned so the FSM can
// light the button immediately rather than waiting for a round trip.
func (h *Handler) AnnounceNewRequest(kind request.Kind, floor int) request.LightHint {
	if kind == request.Internal {
		if cell, err := h.table.Get(request.Internal, floor); err == nil && cell.Status == request.Active {
			return request.NoHint // already outstanding; a repeat press is a no-op
		}
		h.table.SetLocal(request.Internal, floor, request.Active)
		return request.LightOn
	}
	if !h.table.IsLegal(kind, floor) {
		return request.NoHint
	}
	if cell, err := h.table.Get(kind, floor); err == nil && (cell.Status == request.Pending || cell.Status == request.Active) {
		return request.NoHint // already outstanding; don't regress an Active cell back to Pending
	}

	h.table.SetLocal(kind, floor, request.Pending)
	if cell, err := h.table.Get(kind, floor); err == nil {
		data, encErr := transport.EncodeRequest(cell)
		if encErr == nil {
			h.adapter.SendBroadcast(data)
		}
	}

	h.mu.RLock()
	peers := h.fullPeerSet()
	h.mu.RUnlock()
	hint := h.table.Merge(request.Request{Floor: floor, Kind: kind, Status: request.Pending}, h.localID, peers)
	return hint
}

// AnnounceRequestsCleared implements §4.4: broadcast Inactive for the
// Internal cell and the hall cell matching dir at floor, done exactly when
// the door opens at a floor that was being served.
func (h *Handler) AnnounceRequestsCleared(floor int, dir Direction) {
	h.table.SetLocal(request.Internal, floor, request.Inactive)
	if data, err := transport.EncodeRequest(request.Request{Floor: floor, Kind: request.Internal, Status: request.Inactive}); err == nil {
		h.adapter.SendBroadcast(data)
	}

	hallKind := dir.hallKind()
	if h.table.IsLegal(hallKind, floor) {
		h.table.SetLocal(hallKind, floor, request.Inactive)
		if data, err := transport.EncodeRequest(request.Request{Floor: floor, Kind: hallKind, Status: request.Inactive}); err == nil {
			h.adapter.SendBroadcast(data)
		}
	}
}

// AnnounceAllRequests broadcasts every non-internal cell — the periodic
// refresh tick in §4.4 (run every ~150-300ms by the FSM main loop).
func (h *Handler) AnnounceAllRequests() {
	h.table.WalkAll(func(r request.Request) {
		if data, err := transport.EncodeRequest(r); err == nil {
			h.adapter.SendBroadcast(data)
		}
	})
}

// AnnouncePosition broadcasts the cabin's current floor.
func (h *Handler) AnnouncePosition(floor int) {
	if data, err := transport.EncodePosition(floor); err == nil {
		h.adapter.SendBroadcast(data)
	}
}
