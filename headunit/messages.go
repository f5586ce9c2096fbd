package headunit

import "canbox-gateway/vehicle"

// Kind identifies one outbound message kind. Door, dashboard and trip
// messages share wire code 0x41 and are told apart by a sub-command
// byte, but each is scheduled and deduplicated independently.
type Kind uint8

const (
	KindSteering Kind = iota
	KindDashboard
	KindDoors
	KindLights
	KindTrip
	kindCount
)

// Wire codes and 0x41 sub-commands.
const (
	codeSteering  byte = 0x26
	codeCombined  byte = 0x41
	codeLights    byte = 0x29
	subDoors      byte = 0x01
	subDashboard  byte = 0x02
	subTrip       byte = 0x03
	engineRunning byte = 0x04 // dashboard engine-status byte
)

// WireCode returns the protocol code byte for the kind.
func (k Kind) WireCode() byte {
	switch k {
	case KindSteering:
		return codeSteering
	case KindLights:
		return codeLights
	default:
		return codeCombined
	}
}

func (k Kind) String() string {
	switch k {
	case KindSteering:
		return "steering"
	case KindDashboard:
		return "dashboard"
	case KindDoors:
		return "doors"
	case KindLights:
		return "lights"
	case KindTrip:
		return "trip"
	default:
		return "unknown"
	}
}

// Calibration holds the receiver-side tuning applied while encoding.
type Calibration struct {
	SteerOffset        int16  // added to the angle before scaling, 0.1 degree units
	SteerInvert        bool   // flip rotation direction for the receiver
	SteerScalePct      uint8  // percent scale, 100 = unchanged
	IndicatorTimeoutMS uint32 // pulse age below which an indicator reads active
	TankCapacityL      uint8  // full-tank liters for the fuel percent byte
}

// Encoder serializes vehicle state into per-kind payloads.
type Encoder struct {
	cal Calibration
}

func NewEncoder(cal Calibration) *Encoder {
	if cal.SteerScalePct == 0 {
		cal.SteerScalePct = 100
	}
	return &Encoder{cal: cal}
}

// Calibration returns the active tuning values.
func (e *Encoder) Calibration() Calibration {
	return e.cal
}

// SetCalibration swaps the tuning values, normalizing a zero scale.
func (e *Encoder) SetCalibration(cal Calibration) {
	if cal.SteerScalePct == 0 {
		cal.SteerScalePct = 100
	}
	e.cal = cal
}

// Payload builds the payload bytes for one message kind from the
// current vehicle state. Layouts are fixed; see each encoder.
func (e *Encoder) Payload(k Kind, st *vehicle.State, now vehicle.Millis) []byte {
	switch k {
	case KindSteering:
		return e.steeringPayload(st)
	case KindDashboard:
		return e.dashboardPayload(st)
	case KindDoors:
		return e.doorsPayload(st)
	case KindLights:
		return e.lightsPayload(st, now)
	case KindTrip:
		return e.tripPayload(st)
	default:
		return nil
	}
}

// steeringPayload: signed angle, little endian, after calibration
// offset, optional inversion and percent scaling, clamped to +/-5400
// (+/-540.0 degrees, the receiver's display range).
func (e *Encoder) steeringPayload(st *vehicle.State) []byte {
	v := int32(st.Steering) + int32(e.cal.SteerOffset)
	if e.cal.SteerInvert {
		v = -v
	}
	v = v * int32(e.cal.SteerScalePct) / 100
	if v > 5400 {
		v = 5400
	} else if v < -5400 {
		v = -5400
	}
	return []byte{byte(v & 0xFF), byte(uint16(v) >> 8)}
}

// dashboardPayload: 13 bytes, sub-command 0x02. RPM, battery voltage in
// centivolts and temperature in tenths are big endian; bytes 3-4 and
// 9-10 are reserved by the receiver and stay zero.
func (e *Encoder) dashboardPayload(st *vehicle.State) []byte {
	p := make([]byte, 13)
	p[0] = subDashboard

	p[1] = byte(st.EngineRPM >> 8)
	p[2] = byte(st.EngineRPM)

	centivolts := st.Voltage * 10
	p[5] = byte(centivolts >> 8)
	p[6] = byte(centivolts)

	tenths := int16(st.Temperature) * 10
	p[7] = byte(uint16(tenths) >> 8)
	p[8] = byte(uint16(tenths))

	p[11] = engineRunning
	p[12] = e.fuelPercent(st.FuelLevel)
	return p
}

// doorsPayload: 13 bytes, sub-command 0x01, receiver door bits in byte 1.
func (e *Encoder) doorsPayload(st *vehicle.State) []byte {
	p := make([]byte, 13)
	p[0] = subDoors

	var bits byte
	if st.Doors&vehicle.DoorDriver != 0 {
		bits |= 0x01
	}
	if st.Doors&vehicle.DoorPassenger != 0 {
		bits |= 0x02
	}
	if st.Doors&vehicle.DoorRearLeft != 0 {
		bits |= 0x04
	}
	if st.Doors&vehicle.DoorRearRight != 0 {
		bits |= 0x08
	}
	if st.Doors&vehicle.DoorBoot != 0 {
		bits |= 0x10
	}
	p[1] = bits
	return p
}

// lightsPayload: lamp bits then indicator bits. Indicators resolve the
// activity timestamps against the calibrated timeout at encode time.
func (e *Encoder) lightsPayload(st *vehicle.State, now vehicle.Millis) []byte {
	var lamps byte
	if st.ParkingLights {
		lamps |= 0x01
	}
	if st.Headlights {
		lamps |= 0x02
	}
	if st.HighBeam {
		lamps |= 0x04
	}

	var ind byte
	if st.LeftIndicator(now, e.cal.IndicatorTimeoutMS) {
		ind |= 0x01
	}
	if st.RightIndicator(now, e.cal.IndicatorTimeoutMS) {
		ind |= 0x02
	}
	return []byte{lamps, ind}
}

// tripPayload: 13 bytes, sub-command 0x03. DTE, consumption values big
// endian, odometer as a 24-bit big-endian value, speed in the last
// meaningful byte.
func (e *Encoder) tripPayload(st *vehicle.State) []byte {
	p := make([]byte, 13)
	p[0] = subTrip

	p[1] = byte(uint16(st.DTE) >> 8)
	p[2] = byte(uint16(st.DTE))

	p[3] = byte(st.FuelConsInst >> 8)
	p[4] = byte(st.FuelConsInst)

	p[5] = byte(st.FuelConsAvg >> 8)
	p[6] = byte(st.FuelConsAvg)

	p[7] = byte(st.Odometer >> 16)
	p[8] = byte(st.Odometer >> 8)
	p[9] = byte(st.Odometer)

	p[10] = st.Speed
	return p
}

// fuelPercent converts liters to the 0-100 tank percentage the receiver
// displays. Without a configured capacity the liter value passes through.
func (e *Encoder) fuelPercent(liters uint8) byte {
	if e.cal.TankCapacityL == 0 {
		return liters
	}
	pct := int(liters) * 100 / int(e.cal.TankCapacityL)
	if pct > 100 {
		pct = 100
	}
	return byte(pct)
}
