package gateway

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"go.einride.tech/can"

	"canbox-gateway/canbus"
	"canbox-gateway/headunit"
)

func mustProfile(t *testing.T, doc string) *canbus.Profile {
	t.Helper()
	p, err := canbus.LoadProfile([]byte(doc))
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	return p
}

func newTestGateway(t *testing.T, p *canbus.Profile) *Gateway {
	t.Helper()
	cal := DefaultConfig().Calibration.HeadUnit()
	return New(p, cal, headunit.DefaultIntervals(), headunit.VariantCurrent, io.Discard, zerolog.Nop())
}

func rpmFrame(rpmRaw uint16) can.Frame {
	f := can.Frame{ID: 0x180, Length: 8}
	f.Data[0] = byte(rpmRaw >> 8)
	f.Data[1] = byte(rpmRaw)
	return f
}

const rpmDoc = `{"name":"juke","frames":[{"id":"0x180","fields":[
	{"target":"ENGINE_RPM","startByte":0,"byteCount":2,"byteOrder":"BE",
	 "formula":"SCALE","params":[1,7,0]}]}]}`

const speedOnlyDoc = `{"name":"other","frames":[{"id":"0x284","fields":[
	{"target":"VEHICLE_SPEED","startByte":0,"byteCount":1}]}]}`

func TestStepDecodesSubmittedFrame(t *testing.T) {
	g := newTestGateway(t, mustProfile(t, rpmDoc))

	g.Submit(rpmFrame(0x447E))
	g.Step(10)

	if got := g.Snapshot().EngineRPM; got != 2504 {
		t.Fatalf("EngineRPM = %d, want 2504", got)
	}
	m := g.Metrics()
	if m.Matched != 1 || m.Profile != "juke" {
		t.Fatalf("metrics = %+v", m)
	}
	if !m.FramesSeen || m.LastFrameAgeMS != 0 {
		t.Fatalf("frame age tracking broken: %+v", m)
	}
}

func TestProfileSwitchResetsOmittedSignals(t *testing.T) {
	g := newTestGateway(t, mustProfile(t, rpmDoc))

	g.Submit(rpmFrame(0x447E))
	g.Step(10)
	if g.Snapshot().EngineRPM != 2504 {
		t.Fatal("precondition: rpm not decoded")
	}

	// The new profile has no ENGINE_RPM mapping: the signal must drop
	// back to its default, not keep the prior profile's last value.
	g.LoadProfile(mustProfile(t, speedOnlyDoc))

	if got := g.Snapshot().EngineRPM; got != 0 {
		t.Fatalf("EngineRPM after switch = %d, want default 0", got)
	}
	if g.ProfileName() != "other" {
		t.Fatalf("profile = %q", g.ProfileName())
	}
}

func TestProfileSwitchDropsQueuedFrames(t *testing.T) {
	g := newTestGateway(t, mustProfile(t, rpmDoc))

	// Queued but not yet consumed under the old table.
	g.Submit(rpmFrame(0x447E))
	g.LoadProfile(mustProfile(t, speedOnlyDoc))
	g.Step(10)

	m := g.Metrics()
	if m.Matched != 0 || m.Unmatched != 0 {
		t.Fatalf("stale frame crossed the profile switch: %+v", m)
	}
}

func TestSetDecodePaused(t *testing.T) {
	g := newTestGateway(t, mustProfile(t, rpmDoc))

	g.SetDecodePaused(true)
	g.Submit(rpmFrame(0x447E))
	g.Step(10)
	if got := g.Snapshot().EngineRPM; got != 0 {
		t.Fatalf("paused gateway decoded a frame: rpm=%d", got)
	}

	g.SetDecodePaused(false)
	g.Step(20)
	if got := g.Snapshot().EngineRPM; got != 2504 {
		t.Fatalf("resume did not drain the queued frame: rpm=%d", got)
	}
}

func TestUnmatchedFramesAreMetrics(t *testing.T) {
	g := newTestGateway(t, mustProfile(t, rpmDoc))

	g.Submit(can.Frame{ID: 0x7DF, Length: 8})
	g.Step(10)

	m := g.Metrics()
	if m.Unmatched != 1 || m.Matched != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestSyntheticProfileDrivesGenerator(t *testing.T) {
	g := newTestGateway(t, &canbus.Profile{Name: "bench", Synthetic: true})

	g.Step(0)

	st := g.Snapshot()
	if st.EngineRPM == 0 || st.FuelLevel == 0 {
		t.Fatalf("generator did not populate state: %+v", st)
	}
}
