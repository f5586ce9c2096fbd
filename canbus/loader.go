package canbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// JSON document shape:
//
//	{
//	  "name": "Nissan Juke F15",
//	  "synthetic": false,
//	  "frames": [
//	    {
//	      "id": "0x180",
//	      "fields": [
//	        {"target": "ENGINE_RPM", "startByte": 0, "byteCount": 2,
//	         "byteOrder": "BE", "signed": false,
//	         "formula": "SCALE", "params": [1, 7, 0]}
//	      ]
//	    }
//	  ]
//	}
//
// Frame ids are accepted as hex strings ("0x180") or plain numbers.
// Every token and range is validated here, once, so the decoder never
// has to interpret strings per frame. A document that fails validation
// is rejected whole; the caller keeps its previously installed profile.

type profileDoc struct {
	Name      string     `json:"name"`
	Synthetic bool       `json:"synthetic"`
	Frames    []frameDoc `json:"frames"`
}

type frameDoc struct {
	ID     frameID    `json:"id"`
	Fields []fieldDoc `json:"fields"`
}

type fieldDoc struct {
	Target    string  `json:"target"`
	StartByte int     `json:"startByte"`
	ByteCount int     `json:"byteCount"`
	ByteOrder string  `json:"byteOrder"`
	Signed    bool    `json:"signed"`
	Formula   string  `json:"formula"`
	Params    []int32 `json:"params"`
}

// frameID unmarshals from either a JSON number or a hex/decimal string.
type frameID uint16

func (f *frameID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		u, err := strconv.ParseUint(strings.TrimSpace(str), 0, 16)
		if err != nil {
			return fmt.Errorf("invalid frame id %q: %w", str, err)
		}
		*f = frameID(u)
		return nil
	}
	var n uint16
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid frame id %s: %w", s, err)
	}
	*f = frameID(n)
	return nil
}

// LoadProfile parses and validates a schema document.
func LoadProfile(data []byte) (*Profile, error) {
	var doc profileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if doc.Name == "" {
		doc.Name = "unknown"
	}
	if len(doc.Frames) == 0 && !doc.Synthetic {
		return nil, fmt.Errorf("profile %q: no frames and not synthetic", doc.Name)
	}

	p := &Profile{Name: doc.Name, Synthetic: doc.Synthetic}
	for _, fd := range doc.Frames {
		if fd.ID > 0x7FF {
			return nil, fmt.Errorf("profile %q: frame id 0x%X exceeds 11 bits", doc.Name, fd.ID)
		}
		fs := FrameSchema{ID: uint16(fd.ID)}
		for i, fld := range fd.Fields {
			rule, err := parseField(fld)
			if err != nil {
				return nil, fmt.Errorf("profile %q frame 0x%X field %d: %w", doc.Name, fd.ID, i, err)
			}
			fs.Fields = append(fs.Fields, rule)
		}
		p.Frames = append(p.Frames, fs)
	}
	return p, nil
}

// LoadProfileFile reads and parses a schema document from disk.
func LoadProfileFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return LoadProfile(data)
}

func parseField(fd fieldDoc) (FieldRule, error) {
	var r FieldRule

	target, err := parseTarget(fd.Target)
	if err != nil {
		return r, err
	}
	order, err := parseByteOrder(fd.ByteOrder)
	if err != nil {
		return r, err
	}
	if fd.StartByte < 0 || fd.StartByte > 7 {
		return r, fmt.Errorf("startByte %d out of range 0-7", fd.StartByte)
	}
	if fd.ByteCount < 1 || fd.ByteCount > 4 {
		return r, fmt.Errorf("byteCount %d out of range 1-4", fd.ByteCount)
	}
	if fd.StartByte+fd.ByteCount > 8 {
		return r, fmt.Errorf("byte span %d+%d exceeds frame payload", fd.StartByte, fd.ByteCount)
	}
	if len(fd.Params) > 4 {
		return r, fmt.Errorf("too many formula params: %d", len(fd.Params))
	}

	formula, err := parseFormula(fd.Formula, fd.Params)
	if err != nil {
		return r, err
	}

	r.Target = target
	r.StartByte = fd.StartByte
	r.ByteCount = fd.ByteCount
	r.Order = order
	r.Signed = fd.Signed
	r.Formula = formula
	return r, nil
}

func parseTarget(s string) (Target, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range targetNames {
		if n == name {
			return Target(i), nil
		}
	}
	return 0, fmt.Errorf("unknown target %q", s)
}

func parseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "BE", "BIG_ENDIAN", "MSB_FIRST":
		return MSBFirst, nil
	case "LE", "LITTLE_ENDIAN", "LSB_FIRST":
		return LSBFirst, nil
	default:
		return 0, fmt.Errorf("unknown byte order %q", s)
	}
}

func parseFormula(name string, params []int32) (Formula, error) {
	var f Formula
	copy(f.Params[:], params)

	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "NONE", "IDENTITY":
		f.Kind = Identity
	case "SCALE", "LINEAR_SCALE":
		f.Kind = LinearScale
		if f.Params[0] == 0 {
			f.Params[0] = 1
		}
		if f.Params[1] == 0 {
			return f, fmt.Errorf("SCALE divisor must not be zero")
		}
	case "MAP_RANGE", "RANGE_MAP":
		f.Kind = RangeMap
		if f.Params[0] == f.Params[1] {
			return f, fmt.Errorf("MAP_RANGE input range is empty (inMin == inMax == %d)", f.Params[0])
		}
	case "BITMASK_EXTRACT", "BIT_EXTRACT":
		f.Kind = BitExtract
		if f.Params[1] < 0 || f.Params[1] > 31 {
			return f, fmt.Errorf("BITMASK_EXTRACT shift %d out of range 0-31", f.Params[1])
		}
	default:
		return f, fmt.Errorf("unknown formula %q", name)
	}
	return f, nil
}
