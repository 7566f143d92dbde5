// Package fsm implements the per-cabin motion state machine described in
// §4.5/§4.6: Idle/Running/DoorOpen driven by floor-sensor and button
// events, consulting a handler.Handler for stop/continue/reverse
// decisions and a hwio.Driver for all physical I/O.
package fsm

import (
	"context"
	"fmt"
	"log"
	"time"

	"liftd/internal/handler"
	"liftd/internal/hwio"
	"liftd/internal/request"
	"liftd/internal/transport"
)

// State is the cabin's motion state.
type State int

const (
	Idle State = iota
	Running
	DoorOpen
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case DoorOpen:
		return "DoorOpen"
	default:
		return "Unknown"
	}
}

func motorDirFor(dir handler.Direction) hwio.MotorDir {
	if dir == handler.Up {
		return hwio.MotorUp
	}
	return hwio.MotorDown
}

// FSM is the cooperative single-threaded owner of cabin state, the
// RequestHandler and the hardware driver. Init and Run are its only
// blocking methods and are never called from more than one goroutine.
type FSM struct {
	state State
	dir   handler.Direction
	floor int

	floors  int
	h       *handler.Handler
	adapter transport.Adapter
	driver  hwio.Driver

	doorTimer  *Timer
	stuckTimer *Timer

	pollInterval     time.Duration
	announceInterval time.Duration

	pressed map[hwio.Button]hwio.Signal

	// fatal is called on an unrecoverable error (stuck watchdog, a motor
	// or light write failure). Defaults to log.Fatalf; tests override it
	// to avoid exiting the process.
	fatal func(format string, args ...interface{})

	// observer, if set, is notified of state/position/request changes —
	// the hook internal/statusapi's hub uses to push Events to
	// connected clients. Nil by default: most callers (tests, Init
	// homing) never need it.
	observer func(event string, data interface{})
}

// SetObserver installs a callback invoked with "position" on every
// at-floor reading, "fsm" when the FSM enters Running, DoorOpen, or Idle
// after the door closes, and "cell" on every button press and on every
// hall-lamp change from a merge. The Running->Idle step on arrival and
// table changes that carry no lamp hint are not reported. Pass nil to
// disable.
func (f *FSM) SetObserver(fn func(event string, data interface{})) {
	f.observer = fn
}

func (f *FSM) notify(event string, data interface{}) {
	if f.observer != nil {
		f.observer(event, data)
	}
}

// actuate reports whether a driver write succeeded. On failure it routes
// the error to fatal — §7 error kind 2 and §6.1 treat any motor/light
// write failure as unrecoverable — and the caller must stop whatever it
// was doing instead of proceeding on a cabin in an unknown state.
func (f *FSM) actuate(err error, what string) bool {
	if err != nil {
		f.fatal("fsm: %s failed at floor %d: %v, terminating", what, f.floor, err)
		return false
	}
	return true
}

// New builds an FSM. pollInterval governs how often sensors/timers are
// polled; announceInterval governs the periodic re-broadcast tick (§4.4,
// ≈150-300ms).
func New(floors int, h *handler.Handler, adapter transport.Adapter, driver hwio.Driver, pollInterval, announceInterval, doorTimeout, stuckTimeout time.Duration) *FSM {
	return &FSM{
		floors:           floors,
		h:                h,
		adapter:          adapter,
		driver:           driver,
		doorTimer:        NewTimer(doorTimeout),
		stuckTimer:       NewTimer(stuckTimeout),
		pollInterval:     pollInterval,
		announceInterval: announceInterval,
		pressed:          map[hwio.Button]hwio.Signal{},
		fatal:            log.Fatalf,
	}
}

func (f *FSM) State() State                 { return f.state }
func (f *FSM) Direction() handler.Direction { return f.dir }
func (f *FSM) Floor() int                   { return f.floor }

// Init runs the §4.5 startup homing sequence: drive down until floor 0,
// stop, light the floor-0 indicator, clear every button lamp, and set
// current_direction = Down. It blocks until homing completes or ctx is
// cancelled.
func (f *FSM) Init(ctx context.Context) error {
	if err := f.driver.SetMotorDir(hwio.MotorDown); err != nil {
		return fmt.Errorf("fsm: init motor down: %w", err)
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sig, err := f.driver.GetFloorSignal()
			if err != nil {
				log.Printf("fsm: init floor sensor error: %v", err)
				continue
			}
			if sig.Between || sig.Floor != 0 {
				continue
			}
			if err := f.driver.SetMotorDir(hwio.MotorStop); err != nil {
				return fmt.Errorf("fsm: init motor stop: %w", err)
			}
			if err := f.driver.SetFloorLight(0); err != nil {
				return fmt.Errorf("fsm: init floor light: %w", err)
			}
			if err := f.clearAllButtonLights(); err != nil {
				return fmt.Errorf("fsm: init clear button lights: %w", err)
			}
			f.floor = 0
			f.dir = handler.Down
			f.state = Idle
			f.h.SetLocalFloor(0)
			f.stuckTimer.Start()
			return nil
		}
	}
}

func (f *FSM) clearAllButtonLights() error {
	for floor := 0; floor < f.floors; floor++ {
		if err := f.driver.SetButtonLight(hwio.Button{Kind: request.Internal, Floor: floor}, false); err != nil {
			return err
		}
		if floor != f.floors-1 {
			if err := f.driver.SetButtonLight(hwio.Button{Kind: request.CallUp, Floor: floor}, false); err != nil {
				return err
			}
		}
		if floor != 0 {
			if err := f.driver.SetButtonLight(hwio.Button{Kind: request.CallDown, Floor: floor}, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run is the main loop from §5: a single multi-way select over the
// sensor/timer poll tick, the periodic announce tick, inbound broadcasts
// and peer updates. It never blocks indefinitely — the poll tick is
// always armed.
func (f *FSM) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(f.pollInterval)
	defer pollTicker.Stop()
	announceTicker := time.NewTicker(f.announceInterval)
	defer announceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollTicker.C:
			f.pollFloor()
			f.pollButtons()
			f.pollTimers()
		case <-announceTicker.C:
			f.h.AnnounceAllRequests()
			f.h.AnnouncePosition(f.floor)
		case in := <-f.adapter.Broadcasts():
			switch in.Kind {
			case transport.InboundRequest:
				f.OnRequestMessage(in.Request, in.From)
			case transport.InboundPosition:
				f.OnPositionMessage(in.From, in.PositionFloor)
			}
		case u := <-f.adapter.PeerUpdates():
			f.h.HandlePeerUpdate(u)
		}
	}
}

func (f *FSM) pollFloor() {
	sig, err := f.driver.GetFloorSignal()
	if err != nil {
		log.Printf("fsm: floor sensor error: %v", err)
		return
	}
	if sig.Between {
		if f.state == Idle {
			f.OnRunning()
		}
		return
	}
	if f.state != DoorOpen {
		f.OnAtFloor(sig.Floor)
	}
}

func (f *FSM) pollButtons() {
	for floor := 0; floor < f.floors; floor++ {
		f.pollButton(hwio.Button{Kind: request.Internal, Floor: floor})
		if floor != f.floors-1 {
			f.pollButton(hwio.Button{Kind: request.CallUp, Floor: floor})
		}
		if floor != 0 {
			f.pollButton(hwio.Button{Kind: request.CallDown, Floor: floor})
		}
	}
}

func (f *FSM) pollButton(btn hwio.Button) {
	sig, err := f.driver.GetButtonSignal(btn)
	if err != nil {
		log.Printf("fsm: button sensor error: %v", err)
		return
	}
	prev := f.pressed[btn]
	f.pressed[btn] = sig
	if prev == hwio.Low && sig == hwio.High {
		f.OnNewFloorOrder(btn)
	}
}

func (f *FSM) pollTimers() {
	if f.state == DoorOpen {
		if f.doorTimer.Timeout() {
			f.OnDoorTimeout()
		}
		return
	}
	if f.stuckTimer.Timeout() {
		f.OnStuck()
	}
}

// OnAtFloor is the `at_floor` event from §4.5: reset the stuck watchdog,
// light the floor indicator, and re-evaluate stop/continue/reverse.
func (f *FSM) OnAtFloor(floor int) {
	f.floor = floor
	f.h.SetLocalFloor(floor)
	f.stuckTimer.Start()
	if !f.actuate(f.driver.SetFloorLight(floor), "set floor light") {
		return
	}
	if f.state == Running {
		f.state = Idle
	}
	f.notify("position", floor)

	if f.h.ShouldStop(floor, f.dir) {
		if !f.actuate(f.driver.SetMotorDir(hwio.MotorStop), "stop motor") {
			return
		}
		if !f.actuate(f.driver.SetDoorLight(true), "open door light") {
			return
		}
		f.h.AnnounceRequestsCleared(floor, f.dir)
		if !f.actuate(f.driver.SetButtonLight(hwio.Button{Kind: request.Internal, Floor: floor}, false), "clear internal lamp") {
			return
		}
		if !f.actuate(f.driver.SetButtonLight(hwio.Button{Kind: f.dir.HallKind(), Floor: floor}, false), "clear hall lamp") {
			return
		}
		f.doorTimer.Start()
		f.state = DoorOpen
		f.notify("fsm", f.state.String())
		return
	}
	if f.h.ShouldContinue(floor, f.dir) {
		f.actuate(f.driver.SetMotorDir(motorDirFor(f.dir)), "continue motor")
		return
	}
	if f.h.ShouldChangeDirection(floor, f.dir) {
		f.dir = f.dir.Opposite()
		return
	}
	f.actuate(f.driver.SetMotorDir(hwio.MotorStop), "stop motor")
}

// OnRunning is the `running` event: the floor sensor reports Between
// while Idle.
func (f *FSM) OnRunning() {
	f.state = Running
	f.notify("fsm", f.state.String())
}

// OnDoorTimeout is the door_timer firing while DoorOpen.
func (f *FSM) OnDoorTimeout() {
	if !f.actuate(f.driver.SetDoorLight(false), "close door light") {
		return
	}
	f.state = Idle
	f.notify("fsm", f.state.String())
}

// OnNewFloorOrder is a rising edge on a button signal.
func (f *FSM) OnNewFloorOrder(btn hwio.Button) {
	hint := f.h.AnnounceNewRequest(btn.Kind, btn.Floor)
	if hint == request.LightOn {
		if !f.actuate(f.driver.SetButtonLight(btn, true), "light button lamp") {
			return
		}
	}
	f.notify("cell", btn)
}

// OnRequestMessage is an inbound Request broadcast from a peer.
func (f *FSM) OnRequestMessage(remote request.Request, fromID string) {
	hint := f.h.HandleRequest(remote, fromID)
	if hint == request.NoHint {
		return
	}
	btn := hwio.Button{Kind: remote.Kind, Floor: remote.Floor}
	if !f.actuate(f.driver.SetButtonLight(btn, hint == request.LightOn), "set hall lamp") {
		return
	}
	f.notify("cell", btn)
}

// OnPositionMessage is an inbound Position broadcast from a peer.
func (f *FSM) OnPositionMessage(fromIP string, floor int) {
	f.h.HandlePosition(fromIP, floor)
}

// OnStuck is the stuck_timer firing: the cabin has not proven motion for
// ≈5s while it should be moving. Fatal per §7, error kind 5.
func (f *FSM) OnStuck() {
	f.driver.SetMotorDir(hwio.MotorStop)
	f.fatal("fsm: stuck_timer fired at floor %d, terminating", f.floor)
}
