package shell

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"canbox-gateway/canbus"
)

// Transfers are chunked: START declares the byte size, DATA carries
// base64 chunks in order, END verifies and commits. Decode is paused
// for the duration so a flood of bus frames cannot starve the line.

const maxTransferBytes = 1 << 20 // schema documents and images are small

type uploadSession struct {
	id       string
	name     string
	expected int
	buf      bytes.Buffer
}

type otaSession struct {
	id       string
	expected int
	received int
	wantMD5  string
	sum      hash.Hash
	file     *os.File
	path     string
}

// --- CAN UPLOAD ----------------------------------------------------------

func (s *Shell) uploadCommand(args []string) string {
	if len(args) == 0 {
		return "ERR usage: CAN UPLOAD START|DATA|END|ABORT"
	}
	switch strings.ToUpper(args[0]) {
	case "START":
		if len(args) < 3 {
			return "ERR usage: CAN UPLOAD START <name> <size>"
		}
		return s.uploadStart(args[1], args[2])
	case "DATA":
		if len(args) < 2 {
			return "ERR usage: CAN UPLOAD DATA <base64>"
		}
		return s.uploadData(args[1])
	case "END":
		return s.uploadEnd()
	case "ABORT":
		s.uploadAbort()
		return "OK upload aborted"
	default:
		return "ERR usage: CAN UPLOAD START|DATA|END|ABORT"
	}
}

func (s *Shell) uploadStart(name, sizeStr string) string {
	if s.upload != nil {
		return "ERR upload already in progress (CAN UPLOAD ABORT first)"
	}
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".json") {
		return fmt.Sprintf("ERR invalid profile file name %q", name)
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 || size > maxTransferBytes {
		return fmt.Sprintf("ERR invalid size %q", sizeStr)
	}

	s.upload = &uploadSession{id: uuid.NewString(), name: name, expected: size}
	s.gw.SetDecodePaused(true)
	s.log.Info().Str("session", s.upload.id).Str("file", name).Int("size", size).Msg("profile upload started")
	return "OK session " + s.upload.id
}

func (s *Shell) uploadData(chunk string) string {
	if s.upload == nil {
		return "ERR no upload in progress"
	}
	raw, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return "ERR bad base64: " + err.Error()
	}
	if s.upload.buf.Len()+len(raw) > s.upload.expected {
		s.uploadAbort()
		return "ERR upload exceeds declared size, aborted"
	}
	s.upload.buf.Write(raw)
	return fmt.Sprintf("OK %d/%d", s.upload.buf.Len(), s.upload.expected)
}

func (s *Shell) uploadEnd() string {
	if s.upload == nil {
		return "ERR no upload in progress"
	}
	up := s.upload
	defer s.uploadAbort()

	if up.buf.Len() != up.expected {
		return fmt.Sprintf("ERR size mismatch: got %d, declared %d", up.buf.Len(), up.expected)
	}
	// Validate before persisting; a malformed document must never land
	// in the profile store.
	p, err := canbus.LoadProfile(up.buf.Bytes())
	if err != nil {
		return "ERR " + err.Error()
	}
	if err := os.MkdirAll(s.cfg.Gateway.ProfileDir, 0o755); err != nil {
		return "ERR " + err.Error()
	}
	path := filepath.Join(s.cfg.Gateway.ProfileDir, up.name)
	if err := os.WriteFile(path, up.buf.Bytes(), 0o644); err != nil {
		return "ERR " + err.Error()
	}
	s.log.Info().Str("session", up.id).Str("profile", p.Name).Msg("profile upload stored")
	return fmt.Sprintf("OK stored %s (%s, %d frames)", up.name, p.Name, len(p.Frames))
}

func (s *Shell) uploadAbort() {
	if s.upload != nil {
		s.upload = nil
		s.resumeIfIdle()
	}
}

// --- OTA -----------------------------------------------------------------

func (s *Shell) otaCommand(args []string) string {
	if len(args) == 0 {
		return "ERR usage: OTA START|DATA|END|ABORT|STATUS"
	}
	switch strings.ToUpper(args[0]) {
	case "START":
		if len(args) < 3 {
			return "ERR usage: OTA START <size> <md5>"
		}
		return s.otaStart(args[1], args[2])
	case "DATA":
		if len(args) < 2 {
			return "ERR usage: OTA DATA <base64>"
		}
		return s.otaData(args[1])
	case "END":
		return s.otaEnd()
	case "ABORT":
		s.otaAbort()
		return "OK ota aborted"
	case "STATUS":
		if s.ota == nil {
			return "OK idle"
		}
		return fmt.Sprintf("OK session %s %d/%d", s.ota.id, s.ota.received, s.ota.expected)
	default:
		return "ERR usage: OTA START|DATA|END|ABORT|STATUS"
	}
}

func (s *Shell) otaStart(sizeStr, md5hex string) string {
	if s.ota != nil {
		return "ERR ota already in progress (OTA ABORT first)"
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 || size > maxTransferBytes {
		return fmt.Sprintf("ERR invalid size %q", sizeStr)
	}
	md5hex = strings.ToLower(md5hex)
	if len(md5hex) != 32 {
		return "ERR md5 must be 32 hex chars"
	}
	if err := os.MkdirAll(s.cfg.Gateway.StagingDir, 0o755); err != nil {
		return "ERR " + err.Error()
	}
	path := filepath.Join(s.cfg.Gateway.StagingDir, "firmware.bin.part")
	f, err := os.Create(path)
	if err != nil {
		return "ERR " + err.Error()
	}

	s.ota = &otaSession{
		id:       uuid.NewString(),
		expected: size,
		wantMD5:  md5hex,
		sum:      md5.New(),
		file:     f,
		path:     path,
	}
	s.gw.SetDecodePaused(true)
	s.log.Info().Str("session", s.ota.id).Int("size", size).Msg("ota transfer started")
	return "OK session " + s.ota.id
}

func (s *Shell) otaData(chunk string) string {
	if s.ota == nil {
		return "ERR no ota in progress"
	}
	raw, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return "ERR bad base64: " + err.Error()
	}
	if s.ota.received+len(raw) > s.ota.expected {
		s.otaAbort()
		return "ERR image exceeds declared size, aborted"
	}
	if _, err := s.ota.file.Write(raw); err != nil {
		s.otaAbort()
		return "ERR " + err.Error()
	}
	s.ota.sum.Write(raw)
	s.ota.received += len(raw)
	return fmt.Sprintf("OK %d/%d", s.ota.received, s.ota.expected)
}

func (s *Shell) otaEnd() string {
	if s.ota == nil {
		return "ERR no ota in progress"
	}
	ota := s.ota
	if ota.received != ota.expected {
		s.otaAbort()
		return fmt.Sprintf("ERR size mismatch: got %d, declared %d", ota.received, ota.expected)
	}
	got := hex.EncodeToString(ota.sum.Sum(nil))
	if got != ota.wantMD5 {
		s.otaAbort()
		return fmt.Sprintf("ERR md5 mismatch: image %s, declared %s", got, ota.wantMD5)
	}
	if err := ota.file.Close(); err != nil {
		s.otaAbort()
		return "ERR " + err.Error()
	}
	final := filepath.Join(s.cfg.Gateway.StagingDir, "firmware.bin")
	if err := os.Rename(ota.path, final); err != nil {
		s.otaAbort()
		return "ERR " + err.Error()
	}
	s.ota = nil
	s.resumeIfIdle()
	s.log.Info().Str("md5", got).Str("path", final).Msg("firmware image staged")
	return "OK staged " + final
}

func (s *Shell) otaAbort() {
	if s.ota == nil {
		return
	}
	s.ota.file.Close()
	os.Remove(s.ota.path)
	s.ota = nil
	s.resumeIfIdle()
}

// resumeIfIdle lifts the decode pause once no transfer is active.
func (s *Shell) resumeIfIdle() {
	if s.upload == nil && s.ota == nil {
		s.gw.SetDecodePaused(false)
	}
}
