package canbus

import "fmt"

// Target identifies the vehicle-state signal a decoded field is written
// to. Targets are resolved once at profile load, never per frame.
type Target uint8

const (
	TargetSteering Target = iota
	TargetEngineRPM
	TargetVehicleSpeed
	TargetFuelLevel
	TargetOdometer
	TargetVoltage
	TargetTemperature
	TargetDTE
	TargetFuelConsInst
	TargetFuelConsAvg
	TargetDoorDriver
	TargetDoorPassenger
	TargetDoorRearLeft
	TargetDoorRearRight
	TargetDoorBoot
	TargetIndicatorLeft
	TargetIndicatorRight
	TargetHeadlights
	TargetHighBeam
	TargetParkingLights
)

// ByteOrder selects how multi-byte raw values are assembled.
type ByteOrder uint8

const (
	MSBFirst ByteOrder = iota // big endian, common in automotive
	LSBFirst
)

// FormulaKind is the closed set of conversion formulas.
type FormulaKind uint8

const (
	Identity FormulaKind = iota
	LinearScale
	RangeMap
	BitExtract
)

// Formula converts an extracted raw value into standard units. Params
// usage per kind:
//
//	LinearScale: [mult, div, offset]        -> trunc(raw*mult/div)+offset
//	RangeMap:    [inMin, inMax, outMin, outMax]
//	BitExtract:  [mask, shift]              -> (raw & mask) >> shift
type Formula struct {
	Kind   FormulaKind
	Params [4]int32
}

// Apply runs the formula against a raw extracted value. All arithmetic
// is integer with truncating division; intermediates are widened to
// int64 so mult/div combinations cannot overflow.
func (f Formula) Apply(raw int32) int32 {
	switch f.Kind {
	case LinearScale:
		mult := int64(f.Params[0])
		div := int64(f.Params[1])
		off := int64(f.Params[2])
		return int32(int64(raw)*mult/div + off)
	case RangeMap:
		inMin := int64(f.Params[0])
		inMax := int64(f.Params[1])
		outMin := int64(f.Params[2])
		outMax := int64(f.Params[3])
		return int32((int64(raw)-inMin)*(outMax-outMin)/(inMax-inMin) + outMin)
	case BitExtract:
		mask := uint32(f.Params[0])
		shift := uint32(f.Params[1])
		return int32((uint32(raw) & mask) >> shift)
	default:
		return raw
	}
}

// FieldRule describes the extraction and conversion of one signal from
// a frame payload.
type FieldRule struct {
	Target    Target
	StartByte int // 0-7
	ByteCount int // 1-4
	Order     ByteOrder
	Signed    bool
	Formula   Formula
}

// FrameSchema groups every field extracted from one frame identifier.
type FrameSchema struct {
	ID     uint16 // 11-bit identifier
	Fields []FieldRule
}

// Profile is a named, loadable schema table for one vehicle model.
type Profile struct {
	Name      string
	Synthetic bool
	Frames    []FrameSchema
}

// Find returns the schema for a frame identifier. Lookup is a linear
// scan and the first matching ID wins; profile tables are small enough
// that a map buys nothing.
func (p *Profile) Find(id uint16) *FrameSchema {
	for i := range p.Frames {
		if p.Frames[i].ID == id {
			return &p.Frames[i]
		}
	}
	return nil
}

// EmptyProfile is installed before any schema document has been loaded.
// It matches nothing, so every frame counts as unmatched.
func EmptyProfile() *Profile {
	return &Profile{Name: "none", Synthetic: true}
}

func (t Target) String() string {
	if int(t) < len(targetNames) {
		return targetNames[t]
	}
	return fmt.Sprintf("Target(%d)", uint8(t))
}

var targetNames = []string{
	"STEERING", "ENGINE_RPM", "VEHICLE_SPEED", "FUEL_LEVEL", "ODOMETER",
	"VOLTAGE", "TEMPERATURE", "DTE", "FUEL_CONS_INST", "FUEL_CONS_AVG",
	"DOOR_DRIVER", "DOOR_PASSENGER", "DOOR_REAR_LEFT", "DOOR_REAR_RIGHT",
	"DOOR_BOOT", "INDICATOR_LEFT", "INDICATOR_RIGHT", "HEADLIGHTS",
	"HIGH_BEAM", "PARKING_LIGHTS",
}
