// Package hwio defines the hardware I/O boundary consumed by the
// elevator FSM. The real memory-mapped driver (motor, floor sensors,
// buttons, lights, stop, obstruction) is explicitly out of scope — this
// package ships only the interface and an in-memory simulator.
package hwio

import "liftd/internal/request"

// Signal is a two-state digital input (button, stop, obstruction).
type Signal int

const (
	Low Signal = iota
	High
)

// MotorDir is a motor command. Stop is a command, never a stored
// direction of travel.
type MotorDir int

const (
	MotorStop MotorDir = iota
	MotorUp
	MotorDown
)

// FloorSignal is the floor sensor's reading: either stopped at a known
// floor, or between floors.
type FloorSignal struct {
	Floor   int
	Between bool
}

// AtFloor builds a FloorSignal reporting the cabin stopped at f.
func AtFloor(f int) FloorSignal { return FloorSignal{Floor: f} }

// BetweenFloors builds a FloorSignal reporting the cabin in transit.
func BetweenFloors() FloorSignal { return FloorSignal{Between: true} }

// Button identifies a physical button: a cabin button (Kind=Internal)
// or a landing button (Kind=CallUp/CallDown) at Floor.
type Button struct {
	Kind  request.Kind
	Floor int
}

// Driver is the hardware I/O boundary from §6.1. All calls are expected
// to be non-blocking register reads/writes; a call returning an error on
// a sensor read is logged and retried next tick, while an error on a
// motor/light write is treated as fatal by the FSM.
type Driver interface {
	GetFloorSignal() (FloorSignal, error)
	GetButtonSignal(btn Button) (Signal, error)
	GetStopSignal() (Signal, error)
	GetObstructionSignal() (Signal, error)

	SetMotorDir(dir MotorDir) error
	SetButtonLight(btn Button, on bool) error
	SetFloorLight(floor int) error
	SetDoorLight(on bool) error
	SetStopLight(on bool) error
}
