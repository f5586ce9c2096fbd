// Package shell implements the text reconfiguration protocol spoken
// over the gateway's maintenance line. Commands edit calibration, manage
// schema profiles, and stage firmware images through a chunked base64
// transfer. Replies are single lines prefixed OK or ERR (CFG LIST and
// HELP are multi-line).
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"canbox-gateway/canbus"
	"canbox-gateway/gateway"
)

// Shell processes one command line at a time on behalf of an external
// operator. It is a collaborator of the gateway core: profile loads go
// through LoadProfile, transfers pause decoding via SetDecodePaused.
type Shell struct {
	gw      *gateway.Gateway
	cfg     *gateway.Config
	cfgPath string
	log     zerolog.Logger

	upload *uploadSession
	ota    *otaSession
	bootAt time.Time
}

func New(gw *gateway.Gateway, cfg *gateway.Config, cfgPath string, log zerolog.Logger) *Shell {
	return &Shell{gw: gw, cfg: cfg, cfgPath: cfgPath, log: log, bootAt: time.Now()}
}

// Run reads lines from rw and writes one reply per line until EOF or
// context cancellation.
func (s *Shell) Run(ctx context.Context, rw io.ReadWriter) error {
	sc := bufio.NewScanner(rw)
	sc.Buffer(make([]byte, 0, 4096), 64*1024) // base64 chunks are long lines
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reply := s.Execute(sc.Text())
		if _, err := io.WriteString(rw, reply+"\n"); err != nil {
			return fmt.Errorf("shell write: %w", err)
		}
	}
	return sc.Err()
}

// Execute runs a single command line and returns the reply.
func (s *Shell) Execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	cmd, args := strings.ToUpper(fields[0]), fields[1:]

	switch cmd {
	case "CFG":
		return s.cfgCommand(args)
	case "CAN":
		return s.canCommand(args)
	case "OTA":
		return s.otaCommand(args)
	case "SYS":
		return s.sysCommand(args)
	case "HELP", "?":
		return helpText
	default:
		return fmt.Sprintf("ERR unknown command %q (try HELP)", fields[0])
	}
}

// --- CFG -----------------------------------------------------------------

var cfgParams = []struct {
	name, desc string
}{
	{"steerOffset", "steering center offset, 0.1 deg (-500..500)"},
	{"steerInvert", "invert steering direction (0/1)"},
	{"steerScale", "steering scale percent (1-200)"},
	{"indTimeout", "indicator timeout ms (100-2000)"},
	{"tankCap", "tank capacity liters (0 = pass-through)"},
}

func (s *Shell) cfgCommand(args []string) string {
	if len(args) == 0 {
		return "ERR usage: CFG LIST|GET|SET|SAVE|RESET"
	}
	switch strings.ToUpper(args[0]) {
	case "LIST":
		var b strings.Builder
		for _, p := range cfgParams {
			fmt.Fprintf(&b, "%s=%s  # %s\n", p.name, s.cfgGet(p.name), p.desc)
		}
		b.WriteString("OK")
		return b.String()
	case "GET":
		if len(args) < 2 {
			return "ERR usage: CFG GET <param>"
		}
		v := s.cfgGet(args[1])
		if v == "" {
			return fmt.Sprintf("ERR unknown param %q", args[1])
		}
		return "OK " + v
	case "SET":
		if len(args) < 3 {
			return "ERR usage: CFG SET <param> <value>"
		}
		return s.cfgSet(args[1], args[2])
	case "SAVE":
		if err := s.cfg.Save(s.cfgPath); err != nil {
			return "ERR " + err.Error()
		}
		return "OK saved"
	case "RESET":
		s.cfg.Calibration = gateway.DefaultConfig().Calibration
		s.gw.SetCalibration(s.cfg.Calibration.HeadUnit())
		if err := s.cfg.Save(s.cfgPath); err != nil {
			return "ERR " + err.Error()
		}
		return "OK defaults restored"
	default:
		return "ERR usage: CFG LIST|GET|SET|SAVE|RESET"
	}
}

func (s *Shell) cfgGet(param string) string {
	c := s.cfg.Calibration
	switch normalizeParam(param) {
	case "steeroffset":
		return strconv.Itoa(int(c.SteerOffset))
	case "steerinvert":
		return boolDigit(c.SteerInvert)
	case "steerscale":
		return strconv.Itoa(int(c.SteerScalePct))
	case "indtimeout":
		return strconv.Itoa(int(c.IndicatorTimeoutMS))
	case "tankcap":
		return strconv.Itoa(int(c.TankCapacityL))
	default:
		return ""
	}
}

func (s *Shell) cfgSet(param, value string) string {
	next := s.cfg.Calibration
	switch normalizeParam(param) {
	case "steeroffset":
		v, err := strconv.ParseInt(value, 10, 16)
		if err != nil {
			return "ERR " + err.Error()
		}
		next.SteerOffset = int16(v)
	case "steerinvert":
		next.SteerInvert = value == "1" || strings.EqualFold(value, "true")
	case "steerscale":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return "ERR " + err.Error()
		}
		next.SteerScalePct = uint8(v)
	case "indtimeout":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return "ERR " + err.Error()
		}
		next.IndicatorTimeoutMS = uint32(v)
	case "tankcap":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return "ERR " + err.Error()
		}
		next.TankCapacityL = uint8(v)
	default:
		return fmt.Sprintf("ERR unknown param %q", param)
	}
	if err := next.Validate(); err != nil {
		return "ERR " + err.Error()
	}
	s.cfg.Calibration = next
	s.gw.SetCalibration(next.HeadUnit())
	return "OK (CFG SAVE to persist)"
}

func normalizeParam(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// --- CAN -----------------------------------------------------------------

func (s *Shell) canCommand(args []string) string {
	if len(args) == 0 {
		return "ERR usage: CAN STATUS|LIST|LOAD|DELETE|PAUSE|RESUME|UPLOAD"
	}
	switch strings.ToUpper(args[0]) {
	case "STATUS":
		m := s.gw.Metrics()
		return fmt.Sprintf("OK profile=%s synthetic=%v paused=%v matched=%d unmatched=%d faults=%d",
			m.Profile, m.Synthetic, m.Paused, m.Matched, m.Unmatched, m.FieldFaults)
	case "LIST":
		names, err := s.listProfiles()
		if err != nil {
			return "ERR " + err.Error()
		}
		if len(names) == 0 {
			return "OK (no profiles)"
		}
		return "OK " + strings.Join(names, " ")
	case "LOAD":
		if len(args) < 2 {
			return "ERR usage: CAN LOAD <file>"
		}
		return s.canLoad(args[1])
	case "DELETE":
		if len(args) < 2 {
			return "ERR usage: CAN DELETE <file>"
		}
		path, err := s.profilePath(args[1])
		if err != nil {
			return "ERR " + err.Error()
		}
		if err := os.Remove(path); err != nil {
			return "ERR " + err.Error()
		}
		return "OK deleted"
	case "PAUSE":
		s.gw.SetDecodePaused(true)
		return "OK decode paused"
	case "RESUME":
		s.gw.SetDecodePaused(false)
		return "OK decode resumed"
	case "UPLOAD":
		return s.uploadCommand(args[1:])
	default:
		return "ERR usage: CAN STATUS|LIST|LOAD|DELETE|PAUSE|RESUME|UPLOAD"
	}
}

func (s *Shell) canLoad(name string) string {
	path, err := s.profilePath(name)
	if err != nil {
		return "ERR " + err.Error()
	}
	p, err := canbus.LoadProfileFile(path)
	if err != nil {
		// The active profile stays installed; a bad document is a
		// local, recoverable failure.
		return "ERR " + err.Error()
	}
	s.gw.LoadProfile(p)
	return fmt.Sprintf("OK loaded %s (%d frames)", p.Name, len(p.Frames))
}

func (s *Shell) listProfiles() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Gateway.ProfileDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Shell) profilePath(name string) (string, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid profile name %q", name)
	}
	return filepath.Join(s.cfg.Gateway.ProfileDir, name), nil
}

// --- SYS -----------------------------------------------------------------

func (s *Shell) sysCommand(args []string) string {
	sub := "INFO"
	if len(args) > 0 {
		sub = strings.ToUpper(args[0])
	}
	switch sub {
	case "INFO":
		m := s.gw.Metrics()
		return fmt.Sprintf("OK canbox-gateway profile=%s uptime=%s", m.Profile, time.Since(s.bootAt).Round(time.Second))
	case "UPTIME":
		return "OK " + time.Since(s.bootAt).Round(time.Second).String()
	default:
		return "ERR usage: SYS INFO|UPTIME"
	}
}

const helpText = `CFG LIST|GET <p>|SET <p> <v>|SAVE|RESET   calibration
CAN STATUS|LIST|LOAD <f>|DELETE <f>       schema profiles
CAN PAUSE|RESUME                          live decode control
CAN UPLOAD START <name> <size>|DATA <b64>|END|ABORT
OTA START <size> <md5>|DATA <b64>|END|ABORT|STATUS
SYS INFO|UPTIME
OK`
