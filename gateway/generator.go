package gateway

import "canbox-gateway/vehicle"

// Generator substitutes for a live bus when the active profile is
// synthetic: it mutates the vehicle state directly, feeding the same
// downstream scheduler/encoder pipeline. Oscillating signals bounce
// between realistic bounds; static signals hold their typical value;
// the left indicator pulses like a real turn signal.
type Generator struct {
	started    bool
	lastUpdate vehicle.Millis

	steering oscillator
	rpm      oscillator
	speed    oscillator
	voltage  oscillator
	temp     oscillator
	consInst oscillator
	odometer oscillator

	lastBlink vehicle.Millis
	blinkOn   bool
}

const generatorIntervalMS = 50 // 20 Hz, same as the original mock source

type oscillator struct {
	v, min, max, step, dir int32
}

func newOscillator(min, max, typical, step int32) oscillator {
	return oscillator{v: typical, min: min, max: max, step: step, dir: 1}
}

func (o *oscillator) next() int32 {
	o.v += o.step * o.dir
	if o.v >= o.max {
		o.v = o.max
		o.dir = -1
	} else if o.v <= o.min {
		o.v = o.min
		o.dir = 1
	}
	return o.v
}

func NewGenerator() *Generator {
	return &Generator{
		steering: newOscillator(-5400, 5400, 0, 100),
		rpm:      newOscillator(800, 6000, 2500, 50),
		speed:    newOscillator(0, 120, 60, 2),
		voltage:  newOscillator(125, 145, 140, 1), // 0.1 V units
		temp:     newOscillator(70, 95, 85, 1),
		consInst: newOscillator(30, 120, 65, 3), // 0.1 L/100km
		odometer: newOscillator(85000, 85100, 85050, 1),
	}
}

// Update advances the simulation and writes the state, respecting the
// generator's own update floor regardless of the caller's tick rate.
func (gen *Generator) Update(now vehicle.Millis, st *vehicle.State) {
	if gen.started && vehicle.Elapsed(now, gen.lastUpdate) < generatorIntervalMS {
		return
	}
	gen.lastUpdate = now

	if !gen.started {
		gen.started = true
		gen.lastBlink = now
		// Static signals and lamps are set once.
		st.FuelLevel = 30
		st.DTE = 350
		st.FuelConsAvg = 65
		st.Headlights = true
	}

	st.Steering = int16(gen.steering.next())
	st.EngineRPM = uint16(gen.rpm.next())
	st.Speed = uint8(gen.speed.next())
	st.Voltage = uint16(gen.voltage.next())
	st.Temperature = int8(gen.temp.next())
	st.FuelConsInst = uint16(gen.consInst.next())
	st.Odometer = uint32(gen.odometer.next())

	// Left indicator toggles every 500 ms; while on, each update pulses
	// the activity timestamp exactly like decoded indicator frames do.
	if vehicle.Elapsed(now, gen.lastBlink) >= 500 {
		gen.lastBlink = now
		gen.blinkOn = !gen.blinkOn
	}
	if gen.blinkOn {
		st.PulseLeftIndicator(now)
	}
}
