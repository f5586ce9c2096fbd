package headunit

import (
	"bytes"
	"testing"

	"canbox-gateway/vehicle"
)

func defaultCal() Calibration {
	return Calibration{
		SteerScalePct:      100,
		IndicatorTimeoutMS: 500,
		TankCapacityL:      45,
	}
}

func TestSteeringPayloadLittleEndianSigned(t *testing.T) {
	e := NewEncoder(defaultCal())
	st := vehicle.NewState()
	st.Steering = -1234

	p := e.Payload(KindSteering, st, 0)
	angle := int16(-1234)
	want := []byte{byte(uint16(angle) & 0xFF), byte(uint16(angle) >> 8)}
	if !bytes.Equal(p, want) {
		t.Fatalf("payload = % X, want % X", p, want)
	}
}

func TestSteeringCalibration(t *testing.T) {
	e := NewEncoder(Calibration{SteerOffset: 100, SteerInvert: true, SteerScalePct: 50})
	st := vehicle.NewState()
	st.Steering = 300

	// (300+100) inverted -> -400, scaled 50% -> -200
	p := e.Payload(KindSteering, st, 0)
	got := int16(uint16(p[0]) | uint16(p[1])<<8)
	if got != -200 {
		t.Fatalf("calibrated angle = %d, want -200", got)
	}
}

func TestSteeringClampsToDisplayRange(t *testing.T) {
	e := NewEncoder(defaultCal())
	st := vehicle.NewState()
	st.Steering = 7200

	p := e.Payload(KindSteering, st, 0)
	got := int16(uint16(p[0]) | uint16(p[1])<<8)
	if got != 5400 {
		t.Fatalf("angle = %d, want clamp at 5400", got)
	}
}

func TestDashboardPayloadLayout(t *testing.T) {
	e := NewEncoder(defaultCal())
	st := vehicle.NewState()
	st.EngineRPM = 2504
	st.Voltage = 141    // 14.1 V
	st.Temperature = -5 // -5 C -> -50 tenths
	st.FuelLevel = 45   // full tank -> 100 percent

	p := e.Payload(KindDashboard, st, 0)
	if len(p) != 13 {
		t.Fatalf("payload length %d, want 13", len(p))
	}
	if p[0] != 0x02 {
		t.Fatalf("sub-command 0x%02X, want 0x02", p[0])
	}
	if p[1] != byte(2504>>8) || p[2] != byte(2504&0xFF) {
		t.Fatalf("rpm bytes % X", p[1:3])
	}
	if p[5] != byte(1410>>8) || p[6] != byte(1410&0xFF) {
		t.Fatalf("voltage bytes % X, want 1410 centivolts BE", p[5:7])
	}
	if got := int16(uint16(p[7])<<8 | uint16(p[8])); got != -50 {
		t.Fatalf("temperature tenths = %d, want -50", got)
	}
	if p[11] != 0x04 {
		t.Fatalf("engine status 0x%02X, want 0x04", p[11])
	}
	if p[12] != 100 {
		t.Fatalf("fuel percent %d, want 100", p[12])
	}
	if p[3] != 0 || p[4] != 0 || p[9] != 0 || p[10] != 0 {
		t.Fatalf("reserved bytes not zero: % X", p)
	}
}

func TestDoorsPayloadReceiverBitMapping(t *testing.T) {
	e := NewEncoder(defaultCal())
	st := vehicle.NewState()
	st.Doors = vehicle.DoorDriver | vehicle.DoorBoot

	p := e.Payload(KindDoors, st, 0)
	if p[0] != 0x01 {
		t.Fatalf("sub-command 0x%02X, want 0x01", p[0])
	}
	if p[1] != 0x01|0x10 {
		t.Fatalf("door bits 0x%02X, want 0x11", p[1])
	}

	st.Doors = vehicle.DoorPassenger | vehicle.DoorRearLeft | vehicle.DoorRearRight
	p = e.Payload(KindDoors, st, 0)
	if p[1] != 0x02|0x04|0x08 {
		t.Fatalf("door bits 0x%02X, want 0x0E", p[1])
	}
}

func TestLightsPayloadResolvesIndicators(t *testing.T) {
	e := NewEncoder(defaultCal())
	st := vehicle.NewState()
	st.Headlights = true
	st.ParkingLights = true
	st.PulseLeftIndicator(1000)

	p := e.Payload(KindLights, st, 1200)
	if p[0] != 0x01|0x02 {
		t.Fatalf("lamp bits 0x%02X, want 0x03", p[0])
	}
	if p[1] != 0x01 {
		t.Fatalf("indicator bits 0x%02X, want left only", p[1])
	}

	// Past the timeout the indicator bit drops without any new frame.
	p = e.Payload(KindLights, st, 1600)
	if p[1] != 0x00 {
		t.Fatalf("indicator bits 0x%02X after timeout, want 0x00", p[1])
	}
}

func TestTripPayloadLayout(t *testing.T) {
	e := NewEncoder(defaultCal())
	st := vehicle.NewState()
	st.DTE = 350
	st.FuelConsInst = 65
	st.FuelConsAvg = 72
	st.Odometer = 85050
	st.Speed = 60

	p := e.Payload(KindTrip, st, 0)
	if p[0] != 0x03 {
		t.Fatalf("sub-command 0x%02X, want 0x03", p[0])
	}
	if got := uint16(p[1])<<8 | uint16(p[2]); got != 350 {
		t.Fatalf("dte = %d", got)
	}
	if got := uint16(p[3])<<8 | uint16(p[4]); got != 65 {
		t.Fatalf("inst cons = %d", got)
	}
	if got := uint16(p[5])<<8 | uint16(p[6]); got != 72 {
		t.Fatalf("avg cons = %d", got)
	}
	if got := uint32(p[7])<<16 | uint32(p[8])<<8 | uint32(p[9]); got != 85050 {
		t.Fatalf("odometer = %d", got)
	}
	if p[10] != 60 {
		t.Fatalf("speed = %d", p[10])
	}
}

func TestFuelPercentWithoutCapacityPassesLiters(t *testing.T) {
	e := NewEncoder(Calibration{})
	st := vehicle.NewState()
	st.FuelLevel = 30

	p := e.Payload(KindDashboard, st, 0)
	if p[12] != 30 {
		t.Fatalf("fuel byte %d, want raw liters 30", p[12])
	}
}
