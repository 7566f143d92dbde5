package request

import "fmt"

// LightHint is the authoritative signal for hall-button lamps produced by
// Merge. It is the ONLY source a node should trust for lighting a hall
// lamp — see §4.2.
type LightHint int

const (
	NoHint LightHint = iota
	LightOn
	LightOff
)

// Table is the F-per-kind matrix of Request cells described in §3/§4.2.
// Internal cells are local-only and are never produced by Merge with a
// non-local sender; callers still store them here so the FSM has one
// place to look up any (kind, floor).
type Table struct {
	floors int
	cells  [3][]Request // indexed by Kind
}

// NewTable builds the fixed 3xF matrix for a system with the given floor
// count, seeding every legal cell to Unknown — §3's "initial/uninitialised
// at this node" — so the Unknown->adopt(remote) branch in Merge can
// bootstrap a freshly-booted node from whatever a live peer is already
// gossiping, including an already-Active hall call. Illegal cells (CallUp
// at floors-1, CallDown at 0) are seeded Inactive and left there forever;
// they are never merged into and never broadcast.
func NewTable(floors int) *Table {
	t := &Table{floors: floors}
	for k := Kind(0); k < 3; k++ {
		t.cells[k] = make([]Request, floors)
		for f := 0; f < floors; f++ {
			t.cells[k][f] = New(k, f)
			if t.IsLegal(k, f) {
				t.cells[k][f].Status = Unknown
			}
		}
	}
	return t
}

// Floors returns the configured floor count.
func (t *Table) Floors() int { return t.floors }

// IsLegal reports whether (kind, floor) is a real cell. CallUp has no top
// floor; CallDown has no ground floor.
func (t *Table) IsLegal(kind Kind, floor int) bool {
	if floor < 0 || floor >= t.floors {
		return false
	}
	switch kind {
	case CallUp:
		return floor != t.floors-1
	case CallDown:
		return floor != 0
	default:
		return true
	}
}

// Get returns a snapshot copy of the cell at (kind, floor).
func (t *Table) Get(kind Kind, floor int) (Request, error) {
	if floor < 0 || floor >= t.floors {
		return Request{}, fmt.Errorf("request: floor %d out of range [0,%d)", floor, t.floors)
	}
	return t.cells[kind][floor].Snapshot(), nil
}

// mutate hands fn the cell at (kind, floor). The table has no lock of its
// own; mutate does no synchronization, so callers must not mutate the
// table from more than one goroutine at a time.
func (t *Table) mutate(kind Kind, floor int, fn func(*Request)) {
	fn(&t.cells[kind][floor])
}

// SetLocal forces a cell (used for Internal cabin-button presses, which
// are never subject to the merge rule).
func (t *Table) SetLocal(kind Kind, floor int, status Status) {
	t.mutate(kind, floor, func(r *Request) {
		switch status {
		case Active:
			r.ToActive()
		case Pending:
			r.ToPending()
		case Inactive:
			r.ToInactive()
		}
	})
}

// Merge applies the §4.2 merge table to the cell matching remote's
// (Kind, Floor), using senderID as the acknowledging peer and peers as the
// current live-peer coverage set. It returns the lamp hint the caller
// (RequestHandler) must apply; illegal cells and Internal cells are skipped
// (NoHint, no mutation) and transitions outside the table are no-ops. An
// Unknown cell that adopts a Pending also records senderID as an
// acknowledgement, so merging the same message twice changes nothing more.
func (t *Table) Merge(remote Request, senderID string, peers map[string]struct{}) LightHint {
	if remote.Kind == Internal || !t.IsLegal(remote.Kind, remote.Floor) {
		return NoHint
	}
	hint := NoHint
	t.mutate(remote.Kind, remote.Floor, func(l *Request) {
		switch {
		case l.Status == Unknown:
			l.Adopt(remote)
			if l.Status == Pending {
				// The sender has observed the Pending it sent; recording it
				// now keeps a repeat of the same message a no-op.
				l.Ack(peers, senderID)
			}
			if l.Status == Active {
				hint = LightOn
			}
		case l.Status == Inactive && remote.Status == Pending:
			l.ToPending()
		case l.Status == Pending && remote.Status == Pending:
			if l.Ack(peers, senderID) == Active {
				hint = LightOn
			}
		case l.Status == Pending && remote.Status == Active:
			l.ToActive()
			hint = LightOn
		case l.Status == Active && remote.Status == Inactive:
			l.ToInactive()
			hint = LightOff
		}
	})
	return hint
}

// WalkCell visits the cell at (kind, floor) if legal (or Internal).
func (t *Table) WalkCell(kind Kind, floor int, fn func(Request)) {
	if kind != Internal && !t.IsLegal(kind, floor) {
		return
	}
	fn(t.cells[kind][floor].Snapshot())
}

// WalkAll visits every legal, non-internal cell — the set broadcast by
// AnnounceAllRequests (§4.4).
func (t *Table) WalkAll(fn func(Request)) {
	for _, kind := range []Kind{CallUp, CallDown} {
		for f := 0; f < t.floors; f++ {
			if t.IsLegal(kind, f) {
				fn(t.cells[kind][f].Snapshot())
			}
		}
	}
}

// WalkInternal visits every Internal cell.
func (t *Table) WalkInternal(fn func(Request)) {
	for f := 0; f < t.floors; f++ {
		fn(t.cells[Internal][f].Snapshot())
	}
}
