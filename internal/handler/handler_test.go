package handler

import (
	"testing"

	"liftd/internal/request"
	"liftd/internal/transport"
)

func TestAssignmentStrictlyLowerCostWins(t *testing.T) {
	bus := transport.NewLoopbackBus()
	h := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	h.SetLocalFloor(2)
	h.HandlePosition("10.0.0.3", 0) // peer cost to floor 3 = 3, local cost = 1

	if !h.localBest(3) {
		t.Fatal("local has strictly lower cost and should win")
	}
}

func TestAssignmentTieBreakFavorsLowerIP(t *testing.T) {
	bus := transport.NewLoopbackBus()

	// Scenario 3: both nodes equidistant from the request (cost 3 each);
	// the lexicographically smaller IP must win the tie.
	low := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	low.SetLocalFloor(0)
	low.HandlePosition("10.0.0.9", 0)
	if !low.localBest(3) {
		t.Fatal("lower IP should win a cost tie")
	}

	high := New(request.NewTable(4), bus.Attach("10.0.0.9:1"))
	high.SetLocalFloor(0)
	high.HandlePosition("10.0.0.2", 0)
	if high.localBest(3) {
		t.Fatal("higher IP should lose a cost tie")
	}
}

func TestAssignmentNoPeersAlwaysLocalBest(t *testing.T) {
	bus := transport.NewLoopbackBus()
	h := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	h.SetLocalFloor(0)
	if !h.localBest(3) {
		t.Fatal("a node with no known peers must always be assigned its own requests")
	}
}

func TestShouldStopOnAssignedActiveHallCell(t *testing.T) {
	bus := transport.NewLoopbackBus()
	h := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	h.SetLocalFloor(2)
	h.table.SetLocal(request.CallUp, 2, request.Pending)
	h.table.SetLocal(request.CallUp, 2, request.Active)
	if !h.ShouldStop(2, Up) {
		t.Fatal("expected stop: Active hall cell with no peers is always locally assigned")
	}
}

func TestShouldStopIgnoresInactiveHallCell(t *testing.T) {
	bus := transport.NewLoopbackBus()
	h := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	h.SetLocalFloor(2)
	if h.ShouldStop(2, Up) {
		t.Fatal("expected no stop: hall cell is Inactive")
	}
}

func TestShouldContinueWindowExcludesCurrentFloor(t *testing.T) {
	bus := transport.NewLoopbackBus()
	h := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	h.SetLocalFloor(1)
	h.table.SetLocal(request.Internal, 1, request.Active)
	if h.ShouldContinue(1, Up) {
		t.Fatal("request at current floor must not trigger continue")
	}
	h.table.SetLocal(request.Internal, 2, request.Active)
	if !h.ShouldContinue(1, Up) {
		t.Fatal("active request above current floor should trigger continue while going up")
	}
}

func TestShouldChangeDirectionOnOppositeCellAtFloor(t *testing.T) {
	bus := transport.NewLoopbackBus()
	h := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	h.SetLocalFloor(1)
	h.table.SetLocal(request.CallDown, 1, request.Pending)
	h.table.SetLocal(request.CallDown, 1, request.Active)
	if !h.ShouldChangeDirection(1, Up) {
		t.Fatal("opposite hall cell active at floor should force a direction change regardless of assignment")
	}
}

func TestAnnounceNewRequestInternalIsActiveImmediatelyAndNeverBroadcasts(t *testing.T) {
	bus := transport.NewLoopbackBus()
	aAdapter := bus.Attach("10.0.0.2:1")
	a := New(request.NewTable(4), aAdapter)
	b := bus.Attach("10.0.0.3:1")

	hint := a.AnnounceNewRequest(request.Internal, 2)
	if hint != request.LightOn {
		t.Fatalf("expected LightOn, got %v", hint)
	}
	cell, _ := a.table.Get(request.Internal, 2)
	if cell.Status != request.Active {
		t.Fatalf("expected Active, got %v", cell.Status)
	}

	select {
	case in := <-b.Broadcasts():
		t.Fatalf("internal requests must never be broadcast, got %+v", in)
	default:
	}
}

func TestAnnounceNewRequestSingleNodePromotesImmediately(t *testing.T) {
	bus := transport.NewLoopbackBus()
	a := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))

	hint := a.AnnounceNewRequest(request.CallUp, 1)
	if hint != request.LightOn {
		t.Fatalf("expected a lone node to self-promote straight to Active, got hint %v", hint)
	}
	cell, _ := a.table.Get(request.CallUp, 1)
	if cell.Status != request.Active {
		t.Fatalf("expected Active, got %v", cell.Status)
	}
}

func TestAnnounceNewRequestTwoNodeStaysPendingUntilPeerAcks(t *testing.T) {
	bus := transport.NewLoopbackBus()
	aAdapter := bus.Attach("10.0.0.2:1")
	a := New(request.NewTable(4), aAdapter)
	bAdapter := bus.Attach("10.0.0.3:1")
	b := New(request.NewTable(4), bAdapter)
	a.HandlePeerUpdate(transport.PeerUpdate{
		Peers: map[string]struct{}{"10.0.0.2:1": {}, "10.0.0.3:1": {}},
		New:   "10.0.0.3:1",
	})

	hint := a.AnnounceNewRequest(request.CallUp, 1)
	if hint != request.NoHint {
		t.Fatalf("with a live peer not yet acked, expected NoHint, got %v", hint)
	}
	cell, _ := a.table.Get(request.CallUp, 1)
	if cell.Status != request.Pending {
		t.Fatalf("expected Pending until peer acknowledges, got %v", cell.Status)
	}

	select {
	case in := <-bAdapter.Broadcasts():
		b.HandleInbound(in)
	default:
		t.Fatal("b did not receive a's broadcast")
	}
	bCell, _ := b.table.Get(request.CallUp, 1)
	if bCell.Status != request.Pending {
		t.Fatalf("expected b to adopt Pending, got %v", bCell.Status)
	}

	bData, err := transport.EncodeRequest(bCell)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bAdapter.SendBroadcast(bData)

	var promoted request.LightHint
	select {
	case in := <-aAdapter.Broadcasts():
		promoted = a.HandleInbound(in)
	default:
		t.Fatal("a did not receive b's ack broadcast")
	}
	if promoted != request.LightOn {
		t.Fatalf("expected a to promote to Active on full coverage, got hint %v", promoted)
	}
	aCell, _ := a.table.Get(request.CallUp, 1)
	if aCell.Status != request.Active {
		t.Fatalf("expected Active, got %v", aCell.Status)
	}
}

func TestAnnounceRequestsClearedBroadcastsInactiveForBothCells(t *testing.T) {
	bus := transport.NewLoopbackBus()
	aAdapter := bus.Attach("10.0.0.2:1")
	a := New(request.NewTable(4), aAdapter)
	b := bus.Attach("10.0.0.3:1")

	a.table.SetLocal(request.Internal, 1, request.Active)
	a.table.SetLocal(request.CallUp, 1, request.Pending)
	a.table.SetLocal(request.CallUp, 1, request.Active)

	a.AnnounceRequestsCleared(1, Up)

	internalCell, _ := a.table.Get(request.Internal, 1)
	hallCell, _ := a.table.Get(request.CallUp, 1)
	if internalCell.Status != request.Inactive || hallCell.Status != request.Inactive {
		t.Fatalf("expected both cells Inactive locally, got internal=%v hall=%v", internalCell.Status, hallCell.Status)
	}

	seen := map[request.Kind]bool{}
	for i := 0; i < 2; i++ {
		select {
		case in := <-b.Broadcasts():
			if in.Kind != transport.InboundRequest || in.Request.Status != request.Inactive {
				t.Fatalf("unexpected broadcast: %+v", in)
			}
			seen[in.Request.Kind] = true
		default:
			t.Fatalf("expected 2 broadcasts, got %d", i)
		}
	}
	if !seen[request.Internal] || !seen[request.CallUp] {
		t.Fatalf("expected both Internal and CallUp broadcasts, got %+v", seen)
	}
}

func TestHandlePeerUpdatePrunesPositionsOnLost(t *testing.T) {
	bus := transport.NewLoopbackBus()
	a := New(request.NewTable(4), bus.Attach("10.0.0.2:1"))
	a.HandlePeerUpdate(transport.PeerUpdate{
		Peers: map[string]struct{}{"10.0.0.2:1": {}, "10.0.0.3:1": {}},
		New:   "10.0.0.3:1",
	})
	if _, ok := a.peerPositions["10.0.0.3"]; !ok {
		t.Fatal("expected a placeholder entry for the new peer")
	}
	a.HandlePeerUpdate(transport.PeerUpdate{
		Peers: map[string]struct{}{"10.0.0.2:1": {}},
		Lost:  []string{"10.0.0.3:1"},
	})
	if _, ok := a.peerPositions["10.0.0.3"]; ok {
		t.Fatal("expected the lost peer's position entry to be pruned")
	}
}
