package hwio

import "sync"

// SimDriver is an in-memory cabin model for tests and the demo binary,
// in the small probed-capability-struct style the teacher uses for its
// hardware-adjacent detection code: plain fields behind a mutex, no
// goroutines of its own — the FSM's poll loop drives every state change.
//
// Travel between floors is modelled as a fixed number of poll ticks
// (ticksPerFloor) reporting Between before the next floor is reached,
// standing in for the "Plan" of floor travel times a real timing-aware
// simulator would load from a config file.
type SimDriver struct {
	mu sync.Mutex

	floors        int
	floor         int
	between       bool
	ticksPerFloor int
	ticksLeft     int
	motor         MotorDir

	buttons      map[Button]Signal
	buttonLights map[Button]bool
	floorLight   int
	doorLight    bool
	stopLight    bool
	stop         Signal
	obstruction  Signal

	failWrites error // test seam: if set, every Set* call returns this instead of acting
}

// NewSimDriver builds a simulator for a cabin with floors floors,
// starting at floor 0, motor stopped.
func NewSimDriver(floors, ticksPerFloor int) *SimDriver {
	if ticksPerFloor <= 0 {
		ticksPerFloor = 3
	}
	return &SimDriver{
		floors:        floors,
		ticksPerFloor: ticksPerFloor,
		buttons:       map[Button]Signal{},
		buttonLights:  map[Button]bool{},
	}
}

func (s *SimDriver) GetFloorSignal() (FloorSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.motor == MotorStop {
		return AtFloor(s.floor), nil
	}
	if s.motor == MotorDown && s.floor == 0 {
		return AtFloor(0), nil // already at the bottom terminal floor
	}
	if s.motor == MotorUp && s.floor == s.floors-1 {
		return AtFloor(s.floor), nil // already at the top terminal floor
	}
	if !s.between {
		s.between = true
		s.ticksLeft = s.ticksPerFloor
		return BetweenFloors(), nil
	}
	s.ticksLeft--
	if s.ticksLeft > 0 {
		return BetweenFloors(), nil
	}
	switch s.motor {
	case MotorUp:
		s.floor++
	case MotorDown:
		s.floor--
	}
	s.between = false
	return AtFloor(s.floor), nil
}

// SetFloorForTest positions the cabin directly, bypassing motor travel —
// a test seam for exercising FSM logic from a non-zero starting floor.
func (s *SimDriver) SetFloorForTest(floor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floor = floor
	s.between = false
}

// FailWritesForTest makes every subsequent Set* call return err instead of
// taking effect — a test seam for exercising the FSM's actuator-failure
// handling. Pass nil to resume normal operation.
func (s *SimDriver) FailWritesForTest(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

func (s *SimDriver) GetButtonSignal(btn Button) (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttons[btn], nil
}

func (s *SimDriver) GetStopSignal() (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop, nil
}

func (s *SimDriver) GetObstructionSignal() (Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obstruction, nil
}

func (s *SimDriver) SetMotorDir(dir MotorDir) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.motor = dir
	if dir == MotorStop {
		s.between = false
	}
	return nil
}

func (s *SimDriver) SetButtonLight(btn Button, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.buttonLights[btn] = on
	return nil
}

func (s *SimDriver) SetFloorLight(floor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.floorLight = floor
	return nil
}

func (s *SimDriver) SetDoorLight(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.doorLight = on
	return nil
}

func (s *SimDriver) SetStopLight(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.stopLight = on
	return nil
}

// PressButton simulates a passenger pressing btn (test/demo helper).
func (s *SimDriver) PressButton(btn Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons[btn] = High
}

// ReleaseButton simulates the button returning to its rest state.
func (s *SimDriver) ReleaseButton(btn Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons[btn] = Low
}

// ButtonLight reports whether btn's lamp is currently lit (test/demo helper).
func (s *SimDriver) ButtonLight(btn Button) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttonLights[btn]
}

// DoorLight reports the door lamp state (test/demo helper).
func (s *SimDriver) DoorLight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doorLight
}

// Floor reports the cabin's current resting floor (test/demo helper;
// meaningless mid-travel, when GetFloorSignal reports Between).
func (s *SimDriver) Floor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.floor
}
