package transport

import (
	"encoding/json"
	"fmt"

	"liftd/internal/request"
)

// wireKind mirrors spec §6.3's explicit numeric encoding: CallDown=0,
// CallUp=1, Internal=2. request.Kind already iotas in this order, so the
// conversion is an identity cast — kept explicit so a reordering of
// request.Kind can't silently break the wire contract.
func wireKind(k request.Kind) (int, error) {
	switch k {
	case request.CallDown:
		return 0, nil
	case request.CallUp:
		return 1, nil
	case request.Internal:
		return 2, nil
	default:
		return 0, fmt.Errorf("transport: unknown request kind %v", k)
	}
}

func kindFromWire(n int) (request.Kind, error) {
	switch n {
	case 0:
		return request.CallDown, nil
	case 1:
		return request.CallUp, nil
	case 2:
		return request.Internal, nil
	default:
		return 0, fmt.Errorf("transport: unknown wire kind %d", n)
	}
}

func statusString(s request.Status) string {
	switch s {
	case request.Active:
		return "Active"
	case request.Pending:
		return "Pending"
	case request.Inactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

func statusFromString(s string) request.Status {
	switch s {
	case "Active":
		return request.Active
	case "Pending":
		return request.Pending
	case "Inactive":
		return request.Inactive
	default:
		return request.Unknown
	}
}

// requestWire is the JSON shape of the Request variant of BroadcastMessage.
type requestWire struct {
	Floor          int      `json:"floor"`
	Kind           int      `json:"kind"`
	Status         string   `json:"status"`
	AcknowledgedBy []string `json:"acknowledged_by"`
}

// Message is a BroadcastMessage (§6.3): exactly one of Req or Position is
// set. Field order is irrelevant and unknown fields are ignored on decode,
// per the wire contract.
type Message struct {
	Req      *requestWire `json:"request,omitempty"`
	Position *int         `json:"position,omitempty"`
}

// EncodeRequest serialises a Request cell as a BroadcastMessage datagram.
func EncodeRequest(r request.Request) ([]byte, error) {
	k, err := wireKind(r.Kind)
	if err != nil {
		return nil, err
	}
	acked := make([]string, 0, len(r.AckedBy))
	for id := range r.AckedBy {
		acked = append(acked, id)
	}
	msg := Message{Req: &requestWire{
		Floor:          r.Floor,
		Kind:           k,
		Status:         statusString(r.Status),
		AcknowledgedBy: acked,
	}}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if len(b) > 1024 {
		return nil, fmt.Errorf("transport: encoded request message exceeds 1024 bytes (%d)", len(b))
	}
	return b, nil
}

// EncodePosition serialises a Position(floor) BroadcastMessage datagram.
func EncodePosition(floor int) ([]byte, error) {
	msg := Message{Position: &floor}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if len(b) > 1024 {
		return nil, fmt.Errorf("transport: encoded position message exceeds 1024 bytes (%d)", len(b))
	}
	return b, nil
}

// Inbound is a decoded BroadcastMessage together with the sending peer's
// identity. Exactly one of Request/PositionFloor is valid, selected by Kind.
type InboundKind int

const (
	InboundRequest InboundKind = iota
	InboundPosition
)

type Inbound struct {
	From          string
	Kind          InboundKind
	Request       request.Request
	PositionFloor int
}

// Decode parses a datagram into an Inbound message. Malformed datagrams
// return an error; §7.3 requires the caller to drop these silently rather
// than propagate them.
func Decode(data []byte, from string) (Inbound, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("transport: decode: %w", err)
	}
	switch {
	case msg.Req != nil:
		kind, err := kindFromWire(msg.Req.Kind)
		if err != nil {
			return Inbound{}, err
		}
		acked := make(map[string]struct{}, len(msg.Req.AcknowledgedBy))
		for _, id := range msg.Req.AcknowledgedBy {
			acked[id] = struct{}{}
		}
		return Inbound{
			From: from,
			Kind: InboundRequest,
			Request: request.Request{
				Floor:   msg.Req.Floor,
				Kind:    kind,
				Status:  statusFromString(msg.Req.Status),
				AckedBy: acked,
			},
		}, nil
	case msg.Position != nil:
		return Inbound{From: from, Kind: InboundPosition, PositionFloor: *msg.Position}, nil
	default:
		return Inbound{}, fmt.Errorf("transport: decode: message has neither request nor position")
	}
}
