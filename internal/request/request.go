// Package request implements the per-cell request lifecycle and the
// replicated request table that sits beneath the elevator FSM.
package request

import "strings"

// Kind identifies what placed a request: a cabin button (Internal) or a
// landing button (CallUp / CallDown). Internal requests are never
// broadcast; hall requests are replicated to every live peer.
type Kind int

const (
	CallDown Kind = iota
	CallUp
	Internal
)

func (k Kind) String() string {
	switch k {
	case CallDown:
		return "CallDown"
	case CallUp:
		return "CallUp"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Status is the lifecycle phase of a request cell.
type Status int

const (
	Unknown Status = iota
	Inactive
	Pending
	Active
)

func (s Status) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Pending:
		return "Pending"
	case Active:
		return "Active"
	default:
		return "Unknown"
	}
}

// Request is one cell of the replicated table, identified by (Kind, Floor).
// AckedBy holds the IP-prefix portion ("host", not "host:id") of every peer
// that has observed the current Pending announcement; it is the coverage
// set consulted by Ack.
type Request struct {
	Floor   int
	Kind    Kind
	Status  Status
	AckedBy map[string]struct{}
}

// New returns an Inactive, empty cell for (kind, floor).
func New(kind Kind, floor int) Request {
	return Request{Floor: floor, Kind: kind, Status: Inactive, AckedBy: map[string]struct{}{}}
}

// Snapshot returns a value copy whose AckedBy map is copied, not shared
// with the original.
func (r Request) Snapshot() Request {
	cp := r
	cp.AckedBy = make(map[string]struct{}, len(r.AckedBy))
	for k := range r.AckedBy {
		cp.AckedBy[k] = struct{}{}
	}
	return cp
}

func (r *Request) ToActive()   { r.Status = Active }
func (r *Request) ToPending()  { r.Status = Pending }
func (r *Request) ToInactive() { r.Status = Inactive; r.AckedBy = map[string]struct{}{} }

// Adopt copies floor, kind, status and the acknowledgement set from remote.
// Used when the local cell is Unknown and a peer's gossip is the only
// source of truth — see §4.1.
func (r *Request) Adopt(remote Request) {
	r.Floor = remote.Floor
	r.Kind = remote.Kind
	r.Status = remote.Status
	r.AckedBy = make(map[string]struct{}, len(remote.AckedBy))
	for k := range remote.AckedBy {
		r.AckedBy[k] = struct{}{}
	}
}

// ipPrefix returns the host part of a "host:id" peer identity string.
func ipPrefix(peerID string) string {
	if i := strings.LastIndex(peerID, ":"); i >= 0 {
		return peerID[:i]
	}
	return peerID
}

// Ack records that remoteID has observed this Pending cell. It promotes the
// cell to Active exactly when AckedBy now covers the IP prefix of every
// entry in peers (peers excludes no one — coverage is evaluated against
// the full current peer set, recomputed on every call so a shrinking peer
// set cannot block promotion, per §9 "dynamic peer set" design note).
//
// peers == nil or empty is the one-node-system case: coverage is vacuously
// true and the cell promotes to Active immediately (§8).
func (r *Request) Ack(peers map[string]struct{}, remoteID string) Status {
	if r.AckedBy == nil {
		r.AckedBy = map[string]struct{}{}
	}
	r.AckedBy[ipPrefix(remoteID)] = struct{}{}

	for peerID := range peers {
		if _, ok := r.AckedBy[ipPrefix(peerID)]; !ok {
			r.Status = Pending
			return r.Status
		}
	}
	r.Status = Active
	return r.Status
}
