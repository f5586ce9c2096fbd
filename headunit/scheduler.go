package headunit

import (
	"bytes"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"canbox-gateway/vehicle"
)

// Variant selects the receiver generation. The current protocol sends
// only; legacy receivers additionally expect handshake replies on the
// same line.
type Variant uint8

const (
	VariantCurrent Variant = iota
	VariantLegacy
)

// Intervals configures the transmit cadence per message kind. Periodic
// kinds re-emit on their interval; on-change kinds use theirs as the
// floor that guarantees eventual convergence for a receiver that missed
// an update.
type Intervals struct {
	SteeringMS  uint32
	DashboardMS uint32
	DoorsMS     uint32
	LightsMS    uint32
	TripMS      uint32
}

// DefaultIntervals matches the cadence of the reference receiver.
func DefaultIntervals() Intervals {
	return Intervals{
		SteeringMS:  100,
		DashboardMS: 400,
		DoorsMS:     1000,
		LightsMS:    500,
		TripMS:      5000,
	}
}

type policy uint8

const (
	periodic policy = iota
	onChange
)

type kindState struct {
	kind     Kind
	policy   policy
	interval uint32
	sent     bool
	lastTx   vehicle.Millis
	lastPay  []byte
}

// Scheduler decides per tick which message kinds are due and writes
// them through the outbound port. Writes are single and best-effort: a
// failed or partial write is dropped, because the next scheduled
// emission self-heals and stale data is not worth re-queuing.
type Scheduler struct {
	enc     *Encoder
	port    io.Writer
	variant Variant
	log     zerolog.Logger

	kinds [kindCount]kindState
	rx    []byte
}

func NewScheduler(enc *Encoder, iv Intervals, variant Variant, port io.Writer, log zerolog.Logger) *Scheduler {
	s := &Scheduler{enc: enc, port: port, variant: variant, log: log}
	s.kinds = [kindCount]kindState{
		{kind: KindSteering, policy: periodic, interval: iv.SteeringMS},
		{kind: KindDashboard, policy: periodic, interval: iv.DashboardMS},
		{kind: KindDoors, policy: onChange, interval: iv.DoorsMS},
		{kind: KindLights, policy: onChange, interval: iv.LightsMS},
		{kind: KindTrip, policy: periodic, interval: iv.TripMS},
	}
	return s
}

// Feed hands inbound bytes from the receiver to the scheduler. The
// current variant discards them on the next tick; the legacy variant
// parses handshake requests out of them.
func (s *Scheduler) Feed(data []byte) {
	s.rx = append(s.rx, data...)
	// Bound the buffer; anything older than this is line noise.
	if len(s.rx) > 256 {
		s.rx = s.rx[len(s.rx)-256:]
	}
}

// Tick runs one scheduling pass: answer (or discard) inbound traffic,
// then fire every kind that is due. No ordering exists between kinds
// beyond "all due kinds fire this tick".
func (s *Scheduler) Tick(now vehicle.Millis, st *vehicle.State) {
	s.serveInbound()

	for i := range s.kinds {
		ks := &s.kinds[i]
		switch ks.policy {
		case periodic:
			if ks.sent && vehicle.Elapsed(now, ks.lastTx) < ks.interval {
				continue
			}
			s.emit(ks, s.enc.Payload(ks.kind, st, now), now)
		case onChange:
			payload := s.enc.Payload(ks.kind, st, now)
			changed := !ks.sent || !bytes.Equal(payload, ks.lastPay)
			floorDue := ks.sent && vehicle.Elapsed(now, ks.lastTx) >= ks.interval
			if changed || floorDue {
				s.emit(ks, payload, now)
			}
		}
	}
}

func (s *Scheduler) emit(ks *kindState, payload []byte, now vehicle.Millis) {
	s.send(ks.kind.WireCode(), payload)
	ks.sent = true
	ks.lastTx = now
	ks.lastPay = payload
}

func (s *Scheduler) serveInbound() {
	if s.variant != VariantLegacy {
		s.rx = s.rx[:0]
		return
	}
	s.rx = s.answerHandshakes(s.rx)
}

// answerHandshakes scans buf for complete inbound frames and replies to
// the legacy handshake requests, returning the unconsumed tail.
func (s *Scheduler) answerHandshakes(buf []byte) []byte {
	for {
		start := bytes.IndexByte(buf, Marker)
		if start < 0 {
			return buf[:0]
		}
		buf = buf[start:]
		code, _, n, err := ParseFrame(buf)
		switch {
		case errors.Is(err, ErrShortFrame):
			return buf // wait for more bytes
		case errors.Is(err, ErrBadChecksum):
			s.log.Debug().Uint8("code", buf[1]).Msg("inbound frame failed checksum, dropped")
		default:
			s.reply(code)
		}
		buf = buf[n:]
	}
}

// reply sends the fixed acknowledgment payload for a handshake request:
// connection start and version queries get the version triplet, status
// queries get the combined-message acknowledgment.
func (s *Scheduler) reply(code byte) {
	switch code {
	case 0xC0, 0x08:
		s.send(0xF1, []byte{0x02, 0x08, 0x10})
	case 0x90:
		s.send(0x91, []byte{0x41, 0x02})
	default:
		// Legacy receivers emit other chatter; none of it needs answering.
	}
}

func (s *Scheduler) send(code byte, payload []byte) {
	frame := AppendFrame(nil, code, payload)
	if _, err := s.port.Write(frame); err != nil {
		s.log.Debug().Err(err).Uint8("code", code).Msg("outbound write dropped")
	}
}
