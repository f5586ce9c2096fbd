package canbus

import (
	"strings"
	"testing"
)

const validDoc = `{
  "name": "Nissan Juke F15",
  "synthetic": false,
  "frames": [
    {
      "id": "0x180",
      "fields": [
        {"target": "ENGINE_RPM", "startByte": 0, "byteCount": 2,
         "byteOrder": "BE", "formula": "SCALE", "params": [1, 7, 0]}
      ]
    },
    {
      "id": 1477,
      "fields": [
        {"target": "FUEL_LEVEL", "startByte": 0, "byteCount": 1,
         "formula": "MAP_RANGE", "params": [255, 0, 0, 45]},
        {"target": "ODOMETER", "startByte": 1, "byteCount": 3,
         "byteOrder": "BE"}
      ]
    }
  ]
}`

func TestLoadProfileValid(t *testing.T) {
	p, err := LoadProfile([]byte(validDoc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "Nissan Juke F15" || p.Synthetic {
		t.Fatalf("header mismatch: %+v", p)
	}
	if len(p.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(p.Frames))
	}
	if p.Frames[0].ID != 0x180 {
		t.Fatalf("hex id parsed as 0x%X", p.Frames[0].ID)
	}
	if p.Frames[1].ID != 0x5C5 {
		t.Fatalf("numeric id parsed as 0x%X", p.Frames[1].ID)
	}
	rpm := p.Frames[0].Fields[0]
	if rpm.Target != TargetEngineRPM || rpm.Formula.Kind != LinearScale || rpm.Order != MSBFirst {
		t.Fatalf("rpm rule mismatch: %+v", rpm)
	}
	// byteOrder omitted defaults to big endian.
	if p.Frames[1].Fields[0].Order != MSBFirst {
		t.Fatal("default byte order is not MSB-first")
	}
}

func TestLoadProfileRejections(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		errPart string
	}{
		{
			"zero divisor",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"ENGINE_RPM","startByte":0,"byteCount":2,"formula":"SCALE","params":[1,0,0]}]}]}`,
			"divisor",
		},
		{
			"empty map range",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"FUEL_LEVEL","startByte":0,"byteCount":1,"formula":"MAP_RANGE","params":[5,5,0,45]}]}]}`,
			"input range",
		},
		{
			"unknown formula",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"FUEL_LEVEL","startByte":0,"byteCount":1,"formula":"CUBIC"}]}]}`,
			"unknown formula",
		},
		{
			"unknown target",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"WARP_DRIVE","startByte":0,"byteCount":1}]}]}`,
			"unknown target",
		},
		{
			"unknown byte order",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"FUEL_LEVEL","startByte":0,"byteCount":1,"byteOrder":"PDP"}]}]}`,
			"byte order",
		},
		{
			"span past payload",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"ODOMETER","startByte":6,"byteCount":3}]}]}`,
			"byte span",
		},
		{
			"byte count out of range",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"ODOMETER","startByte":0,"byteCount":5}]}]}`,
			"byteCount",
		},
		{
			"id over 11 bits",
			`{"name":"x","frames":[{"id":"0x800","fields":[]}]}`,
			"11 bits",
		},
		{
			"shift out of range",
			`{"name":"x","frames":[{"id":1,"fields":[
				{"target":"HEADLIGHTS","startByte":0,"byteCount":4,"formula":"BITMASK_EXTRACT","params":[1,32]}]}]}`,
			"shift",
		},
	}
	for _, tc := range cases {
		_, err := LoadProfile([]byte(tc.doc))
		if err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.errPart) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.errPart)
		}
	}
}

func TestFindFirstMatchWins(t *testing.T) {
	p := &Profile{
		Name: "dup",
		Frames: []FrameSchema{
			{ID: 0x180, Fields: []FieldRule{{Target: TargetEngineRPM, ByteCount: 1}}},
			{ID: 0x180, Fields: []FieldRule{{Target: TargetVehicleSpeed, ByteCount: 1}}},
		},
	}
	fs := p.Find(0x180)
	if fs == nil || fs.Fields[0].Target != TargetEngineRPM {
		t.Fatalf("first schema did not win: %+v", fs)
	}
	if p.Find(0x181) != nil {
		t.Fatal("unexpected match for unknown id")
	}
}
