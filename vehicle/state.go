package vehicle

// Door bit positions in the packed State.Doors bitmask.
const (
	DoorDriver    uint8 = 0x80
	DoorPassenger uint8 = 0x40
	DoorRearLeft  uint8 = 0x20
	DoorRearRight uint8 = 0x10
	DoorBoot      uint8 = 0x08
)

// State is the single normalized record of current vehicle signals.
// Exactly one producer (the bus decoder or the synthetic generator)
// mutates it; the transmit scheduler and encoders only read it. It is
// created once and reset in place on a profile switch, never replaced.
type State struct {
	Steering     int16  // steering wheel angle, 0.1 degree units, signed
	EngineRPM    uint16 // engine speed, RPM
	Speed        uint8  // road speed, km/h
	FuelLevel    uint8  // fuel level, liters
	Odometer     uint32 // total mileage, km
	Voltage      uint16 // battery voltage, 0.1 V units
	Temperature  int8   // external/coolant temperature, degrees C
	DTE          int16  // distance to empty, km
	FuelConsInst uint16 // instantaneous consumption, 0.1 L/100km
	FuelConsAvg  uint16 // average consumption, 0.1 L/100km

	Doors uint8 // packed door-open bitmask, see Door* constants

	Headlights    bool
	HighBeam      bool
	ParkingLights bool

	// The bus only pulses indicator frames while a turn signal is
	// active, so indicators are tracked as last-pulse timestamps and
	// resolved against a timeout at read time.
	LeftBlinkAt    Millis
	RightBlinkAt   Millis
	LeftBlinkSeen  bool
	RightBlinkSeen bool
}

// NewState returns a state with safe zero/false defaults.
func NewState() *State {
	return &State{}
}

// Reset restores every signal to its default in place. A profile switch
// must call this so a new profile's unset fields do not inherit stale
// values from the previous profile.
func (s *State) Reset() {
	*s = State{}
}

// SetDoor sets or clears a single bit of the packed door bitmask,
// leaving the other doors untouched.
func (s *State) SetDoor(bit uint8, open bool) {
	if open {
		s.Doors |= bit
	} else {
		s.Doors &^= bit
	}
}

// PulseLeftIndicator records left-indicator activity at time now.
func (s *State) PulseLeftIndicator(now Millis) {
	s.LeftBlinkAt = now
	s.LeftBlinkSeen = true
}

// PulseRightIndicator records right-indicator activity at time now.
func (s *State) PulseRightIndicator(now Millis) {
	s.RightBlinkAt = now
	s.RightBlinkSeen = true
}

// LeftIndicator reports whether the left indicator is considered active:
// a pulse was seen less than timeoutMS ago.
func (s *State) LeftIndicator(now Millis, timeoutMS uint32) bool {
	return s.LeftBlinkSeen && Elapsed(now, s.LeftBlinkAt) < timeoutMS
}

// RightIndicator reports whether the right indicator is considered active.
func (s *State) RightIndicator(now Millis, timeoutMS uint32) bool {
	return s.RightBlinkSeen && Elapsed(now, s.RightBlinkAt) < timeoutMS
}
