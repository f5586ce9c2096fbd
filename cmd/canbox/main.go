// Command canbox runs the CAN-to-head-unit gateway: it decodes vehicle
// bus frames through a schema profile, keeps a vehicle state snapshot,
// and streams the head unit protocol out the serial port. A line shell
// on stdin handles calibration, profile management and firmware
// staging; an optional HTTP endpoint exposes diagnostics.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"canbox-gateway/canbus"
	"canbox-gateway/diag"
	"canbox-gateway/gateway"
	"canbox-gateway/headunit"
	"canbox-gateway/shell"
	"canbox-gateway/vehicle"
)

func main() {
	var (
		cfgPath  = flag.String("config", "canbox.toml", "TOML configuration file")
		iface    = flag.String("iface", "", "SocketCAN interface (overrides config)")
		profile  = flag.String("profile", "", "schema profile JSON (overrides config)")
		device   = flag.String("port", "", "head unit serial device (empty: discard)")
		logLevel = flag.String("log", "", "trace|debug|info|warn|error")
	)
	flag.Parse()

	_ = godotenv.Load()
	log := newLogger(*logLevel)

	cfg, err := gateway.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *cfgPath).Msg("configuration load failed")
	}
	if *iface != "" {
		cfg.Bus.Interface = *iface
	}
	if *profile != "" {
		cfg.Gateway.ProfilePath = *profile
	}
	if *device != "" {
		cfg.Port.Device = *device
	}

	prof := canbus.EmptyProfile()
	if cfg.Gateway.ProfilePath != "" {
		prof, err = canbus.LoadProfileFile(cfg.Gateway.ProfilePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Gateway.ProfilePath).Msg("profile load failed")
		}
	}

	port, portIn, closePort, err := openPort(cfg.Port.Device)
	if err != nil {
		log.Fatal().Err(err).Str("device", cfg.Port.Device).Msg("port open failed")
	}
	defer closePort()

	gw := gateway.New(prof, cfg.Calibration.HeadUnit(), cfg.Intervals.HeadUnitIntervals(),
		cfg.Port.HeadUnitVariant(), port, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Legacy receivers talk back on the same line; feed their bytes to
	// the handshake parser.
	if portIn != nil && cfg.Port.HeadUnitVariant() == headunit.VariantLegacy {
		go feedPort(portIn, gw, log)
	}

	if !prof.Synthetic {
		src, err := canbus.NewSocketCANSource(ctx, cfg.Bus.Interface)
		if err != nil {
			log.Fatal().Err(err).Str("iface", cfg.Bus.Interface).Msg("bus open failed")
		}
		defer src.Close()
		go receiveFrames(ctx, src, gw, log)
	}

	if cfg.Diag.Addr != "" {
		srv := diag.NewServer(cfg.Diag.Addr, gw, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("diagnostics endpoint failed")
			}
		}()
	}

	sh := shell.New(gw, &cfg, *cfgPath, log)
	go func() {
		if err := sh.Run(ctx, stdinConsole{}); err != nil {
			log.Debug().Err(err).Msg("shell closed")
		}
	}()

	runLoop(ctx, gw, time.Duration(cfg.Gateway.TickMS)*time.Millisecond)
	log.Info().Msg("gateway stopped")
}

// runLoop drives the cooperative pipeline. Millis is derived from a
// monotonic start reference so uint32 wraparound behaves the same as
// on an embedded tick counter.
func runLoop(ctx context.Context, gw *gateway.Gateway, tick time.Duration) {
	start := time.Now()
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			gw.Step(vehicle.Millis(now.Sub(start).Milliseconds()))
		}
	}
}

func receiveFrames(ctx context.Context, src canbus.FrameSource, gw *gateway.Gateway, log zerolog.Logger) {
	for {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("bus read failed")
			return
		}
		gw.Submit(f)
	}
}

// openPort returns the head unit writer and, for a real device, the
// inbound side. With no device configured the protocol is generated and
// discarded, which is enough for bench runs with the synthetic profile.
func openPort(device string) (io.Writer, io.Reader, func(), error) {
	if device == "" {
		return io.Discard, nil, func() {}, nil
	}
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", device, err)
	}
	return f, f, func() { f.Close() }, nil
}

func feedPort(r io.Reader, gw *gateway.Gateway, log zerolog.Logger) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			gw.FeedInbound(buf[:n])
		}
		if err != nil {
			log.Debug().Err(err).Msg("port read closed")
			return
		}
	}
}

func newLogger(level string) zerolog.Logger {
	if level == "" {
		level = os.Getenv("CANBOX_LOG_LEVEL")
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// stdinConsole pairs stdin and stdout into the shell's line transport.
type stdinConsole struct{}

func (stdinConsole) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdinConsole) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
