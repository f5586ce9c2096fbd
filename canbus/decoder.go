package canbus

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.einride.tech/can"

	"canbox-gateway/vehicle"
)

// Stats is a snapshot of decoder counters.
type Stats struct {
	Matched     uint64
	Unmatched   uint64
	FieldFaults uint64
}

// Decoder interprets the active profile's schemas against inbound
// frames and writes the results into the shared vehicle state. It never
// blocks and never fails: an unknown identifier or a short payload is a
// counter, not an error.
type Decoder struct {
	profile *Profile
	log     zerolog.Logger

	matched     atomic.Uint64
	unmatched   atomic.Uint64
	fieldFaults atomic.Uint64
}

func NewDecoder(p *Profile, log zerolog.Logger) *Decoder {
	if p == nil {
		p = EmptyProfile()
	}
	return &Decoder{profile: p, log: log}
}

// Profile returns the installed schema table.
func (d *Decoder) Profile() *Profile {
	return d.profile
}

// Stats returns the current counter values. Counters are atomic so an
// external diagnostics reader can sample them without pausing the
// pipeline.
func (d *Decoder) Stats() Stats {
	return Stats{
		Matched:     d.matched.Load(),
		Unmatched:   d.unmatched.Load(),
		FieldFaults: d.fieldFaults.Load(),
	}
}

// Decode processes one inbound frame. Each field of the matched schema
// is extracted, converted and written per its target's write policy.
// A field whose byte span exceeds the frame's declared length is
// skipped and counted; the remaining fields still apply.
func (d *Decoder) Decode(f can.Frame, st *vehicle.State, now vehicle.Millis) {
	fs := d.profile.Find(uint16(f.ID))
	if fs == nil {
		d.unmatched.Add(1)
		return
	}
	d.matched.Add(1)

	for _, rule := range fs.Fields {
		if rule.StartByte+rule.ByteCount > int(f.Length) {
			d.fieldFaults.Add(1)
			d.log.Debug().
				Uint32("id", f.ID).
				Str("target", rule.Target.String()).
				Uint8("dlc", f.Length).
				Msg("field span exceeds declared length, skipped")
			continue
		}
		raw := extractRaw(f.Data[:], rule)
		writeSignal(st, rule.Target, rule.Formula.Apply(raw), now)
	}
}

// writeSignal applies the fixed per-target write policy: numeric targets
// overwrite, door targets touch one bit of the packed bitmask, indicator
// targets stamp activity time only when the value is true, remaining
// boolean targets overwrite.
func writeSignal(st *vehicle.State, target Target, v int32, now vehicle.Millis) {
	switch target {
	case TargetSteering:
		st.Steering = int16(v)
	case TargetEngineRPM:
		st.EngineRPM = uint16(v)
	case TargetVehicleSpeed:
		st.Speed = uint8(v)
	case TargetFuelLevel:
		st.FuelLevel = uint8(v)
	case TargetOdometer:
		st.Odometer = uint32(v)
	case TargetVoltage:
		st.Voltage = uint16(v)
	case TargetTemperature:
		st.Temperature = int8(v)
	case TargetDTE:
		st.DTE = int16(v)
	case TargetFuelConsInst:
		st.FuelConsInst = uint16(v)
	case TargetFuelConsAvg:
		st.FuelConsAvg = uint16(v)

	case TargetDoorDriver:
		st.SetDoor(vehicle.DoorDriver, v != 0)
	case TargetDoorPassenger:
		st.SetDoor(vehicle.DoorPassenger, v != 0)
	case TargetDoorRearLeft:
		st.SetDoor(vehicle.DoorRearLeft, v != 0)
	case TargetDoorRearRight:
		st.SetDoor(vehicle.DoorRearRight, v != 0)
	case TargetDoorBoot:
		st.SetDoor(vehicle.DoorBoot, v != 0)

	case TargetIndicatorLeft:
		if v != 0 {
			st.PulseLeftIndicator(now)
		}
	case TargetIndicatorRight:
		if v != 0 {
			st.PulseRightIndicator(now)
		}

	case TargetHeadlights:
		st.Headlights = v != 0
	case TargetHighBeam:
		st.HighBeam = v != 0
	case TargetParkingLights:
		st.ParkingLights = v != 0
	}
}
