package transport

// PeerUpdate reports a change in the live peer set, as delivered by the
// presence subsystem (§6.2). New and Lost are nil/empty unless that
// particular transition triggered this update.
type PeerUpdate struct {
	Peers map[string]struct{}
	New   string
	Lost  []string
}

// Adapter is the capability RequestHandler is handed at construction,
// instead of a shared transport object threaded through the FSM and the
// handler — see §9 "shared ownership of the transport adapter". A single
// Adapter is built once in main; the handler sends through it, and the FSM
// main loop only drains its Broadcasts and PeerUpdates channels.
type Adapter interface {
	// SendBroadcast is fire-and-forget (§4.4): errors are logged by the
	// implementation, never returned to a caller that cannot act on them.
	SendBroadcast(data []byte)

	// Broadcasts yields every successfully decoded datagram received;
	// malformed datagrams are dropped before reaching this channel (§7.3).
	Broadcasts() <-chan Inbound

	// PeerUpdates yields a PeerUpdate whenever the live peer set changes.
	PeerUpdates() <-chan PeerUpdate

	// LocalID is this node's "ip:id" identity string (§6.2).
	LocalID() string

	Close()
}
