// Package gateway wires the translation pipeline together: inbound
// frames are decoded through the active schema profile into the shared
// vehicle state, and the transmit scheduler re-encodes that state for
// the head unit. Everything runs on one logical thread of control,
// driven by an outer Step loop.
package gateway

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.einride.tech/can"

	"canbox-gateway/canbus"
	"canbox-gateway/headunit"
	"canbox-gateway/vehicle"
)

// Metrics is the diagnostics snapshot exposed to external collaborators.
type Metrics struct {
	Profile        string `json:"profile"`
	Synthetic      bool   `json:"synthetic"`
	Paused         bool   `json:"paused"`
	Matched        uint64 `json:"frames_matched"`
	Unmatched      uint64 `json:"frames_unmatched"`
	FieldFaults    uint64 `json:"field_faults"`
	FramesSeen     bool   `json:"frames_seen"`
	LastFrameAgeMS uint32 `json:"last_frame_age_ms"`
}

// Gateway owns the vehicle state and coordinates decoder, synthetic
// generator and scheduler. The state object is passed by handle to all
// of them; no package-level mutable data exists.
//
// The mutex only fences Step and the profile/calibration mutators
// against the diagnostics snapshot readers, which run on the HTTP
// goroutine. Within the pipeline there is no concurrency.
type Gateway struct {
	mu  sync.Mutex
	log zerolog.Logger

	state *vehicle.State
	dec   *canbus.Decoder
	enc   *headunit.Encoder
	sched *headunit.Scheduler
	gen   *Generator

	frames chan can.Frame
	paused bool

	framesSeen  bool
	lastFrameAt vehicle.Millis
	now         vehicle.Millis
}

// New builds a gateway around an initial profile. The port carries the
// outbound head unit protocol; writes to it are best-effort.
func New(p *canbus.Profile, cal headunit.Calibration, iv headunit.Intervals, variant headunit.Variant, port io.Writer, log zerolog.Logger) *Gateway {
	if p == nil {
		p = canbus.EmptyProfile()
	}
	enc := headunit.NewEncoder(cal)
	g := &Gateway{
		log:    log,
		state:  vehicle.NewState(),
		dec:    canbus.NewDecoder(p, log),
		enc:    enc,
		sched:  headunit.NewScheduler(enc, iv, variant, port, log),
		frames: make(chan can.Frame, 64),
	}
	if p.Synthetic {
		g.gen = NewGenerator()
	}
	log.Info().Str("profile", p.Name).Bool("synthetic", p.Synthetic).Msg("gateway ready")
	return g
}

// Submit hands an inbound frame to the pipeline. It never blocks: when
// the buffer is full the frame is dropped, the next bus cycle carries
// fresher data anyway.
func (g *Gateway) Submit(f can.Frame) {
	select {
	case g.frames <- f:
	default:
	}
}

// FeedInbound passes bytes received from the head unit to the scheduler
// (handshake traffic on the legacy variant, discarded otherwise).
func (g *Gateway) FeedInbound(data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sched.Feed(data)
}

// Step runs one cooperative pipeline pass at time now: consume at most
// one inbound frame (unless paused), advance the synthetic generator
// when the active profile is synthetic, then let the scheduler fire
// every message kind that is due.
func (g *Gateway) Step(now vehicle.Millis) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now

	if !g.paused {
		select {
		case f := <-g.frames:
			g.dec.Decode(f, g.state, now)
			g.lastFrameAt = now
			g.framesSeen = true
		default:
		}
	}

	if g.gen != nil {
		g.gen.Update(now, g.state)
	}

	g.sched.Tick(now, g.state)
}

// LoadProfile performs the two-phase profile switch: frame consumption
// stops under the old table, then the new table is installed and the
// state reset to defaults before the pipeline resumes. Both phases
// complete under the lock, so no reader ever observes a half-applied
// switch, and signals the new profile does not decode stay at their
// defaults instead of inheriting stale values.
func (g *Gateway) LoadProfile(p *canbus.Profile) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Phase 1: stop consuming under the old schema table.
	for {
		select {
		case <-g.frames:
			continue
		default:
		}
		break
	}

	// Phase 2: install the new table and reset to defaults.
	g.dec = canbus.NewDecoder(p, g.log)
	g.state.Reset()
	if p.Synthetic {
		g.gen = NewGenerator()
	} else {
		g.gen = nil
	}
	g.framesSeen = false
	g.log.Info().Str("profile", p.Name).Bool("synthetic", p.Synthetic).Msg("profile switched")
}

// SetDecodePaused pauses or resumes live-bus consumption. Encoding
// continues from the stale state while paused; a reconfiguration or
// firmware collaborator uses this around transfers.
func (g *Gateway) SetDecodePaused(paused bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused != paused {
		g.log.Info().Bool("paused", paused).Msg("decode pause changed")
	}
	g.paused = paused
}

// DecodePaused reports the current pause flag.
func (g *Gateway) DecodePaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Metrics samples the diagnostics counters. Upstream silence shows up
// here as a growing last-frame age; the pipeline itself never acts on
// it, that is the external watchdog's job.
func (g *Gateway) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := g.dec.Stats()
	p := g.dec.Profile()
	m := Metrics{
		Profile:     p.Name,
		Synthetic:   p.Synthetic,
		Paused:      g.paused,
		Matched:     stats.Matched,
		Unmatched:   stats.Unmatched,
		FieldFaults: stats.FieldFaults,
		FramesSeen:  g.framesSeen,
	}
	if g.framesSeen {
		m.LastFrameAgeMS = vehicle.Elapsed(g.now, g.lastFrameAt)
	}
	return m
}

// Snapshot copies the current vehicle state for diagnostics readers.
func (g *Gateway) Snapshot() vehicle.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.state
}

// ProfileName returns the active profile identity.
func (g *Gateway) ProfileName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dec.Profile().Name
}

// SetCalibration applies new receiver-side tuning to the encoders.
func (g *Gateway) SetCalibration(cal headunit.Calibration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enc.SetCalibration(cal)
}

// Calibration returns the tuning currently applied to the encoders.
func (g *Gateway) Calibration() headunit.Calibration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enc.Calibration()
}
