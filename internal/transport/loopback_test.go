package transport

import (
	"testing"
	"time"
)

func TestLoopbackBroadcastDeliversToOthersNotSelf(t *testing.T) {
	bus := NewLoopbackBus()
	a := bus.Attach("10.0.0.2:1")
	b := bus.Attach("10.0.0.3:1")

	data, _ := EncodePosition(2)
	a.SendBroadcast(data)

	select {
	case in := <-b.Broadcasts():
		if in.PositionFloor != 2 {
			t.Fatalf("unexpected payload: %+v", in)
		}
	case <-time.After(time.Second):
		t.Fatal("b did not receive a's broadcast")
	}

	select {
	case in := <-a.Broadcasts():
		t.Fatalf("sender should not receive its own broadcast, got %+v", in)
	default:
	}
}

func TestLoopbackAttachNotifiesExistingPeers(t *testing.T) {
	bus := NewLoopbackBus()
	a := bus.Attach("10.0.0.2:1")

	drain(t, a.PeerUpdates()) // initial update listing only a itself

	bus.Attach("10.0.0.3:1")
	select {
	case u := <-a.PeerUpdates():
		if u.New != "10.0.0.3:1" {
			t.Fatalf("expected New=10.0.0.3:1, got %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("a was not notified of new peer")
	}
}

func TestLoopbackDetachNotifiesLost(t *testing.T) {
	bus := NewLoopbackBus()
	a := bus.Attach("10.0.0.2:1")
	drain(t, a.PeerUpdates())
	b := bus.Attach("10.0.0.3:1")
	drain(t, a.PeerUpdates())

	b.Close()
	select {
	case u := <-a.PeerUpdates():
		if len(u.Lost) != 1 || u.Lost[0] != "10.0.0.3:1" {
			t.Fatalf("expected Lost=[10.0.0.3:1], got %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("a was not notified of lost peer")
	}
}

func drain(t *testing.T, ch <-chan PeerUpdate) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a buffered update")
	}
}
