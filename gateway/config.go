package gateway

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"canbox-gateway/headunit"
)

// Config is the gateway runtime configuration, loaded from a TOML file.
// Calibration values are also written back through Save when edited at
// runtime, which replaces the original device's NVS preference store.
type Config struct {
	Gateway     GatewaySection     `toml:"gateway"`
	Bus         BusSection         `toml:"bus"`
	Port        PortSection        `toml:"port"`
	Diag        DiagSection        `toml:"diag"`
	Calibration CalibrationSection `toml:"calibration"`
	Intervals   IntervalsSection   `toml:"intervals"`
}

type GatewaySection struct {
	ProfilePath string `toml:"profile_path"` // active schema document
	ProfileDir  string `toml:"profile_dir"`  // store for uploaded profiles
	StagingDir  string `toml:"staging_dir"`  // firmware images land here
	TickMS      uint32 `toml:"tick_ms"`
}

type BusSection struct {
	Interface string `toml:"interface"`
}

type PortSection struct {
	Device  string `toml:"device"`
	Variant string `toml:"variant"` // "current" or "legacy"
}

type DiagSection struct {
	Addr string `toml:"addr"` // empty disables the diagnostics endpoint
}

type CalibrationSection struct {
	SteerOffset        int16  `toml:"steer_offset"`
	SteerInvert        bool   `toml:"steer_invert"`
	SteerScalePct      uint8  `toml:"steer_scale_pct"`
	IndicatorTimeoutMS uint32 `toml:"indicator_timeout_ms"`
	TankCapacityL      uint8  `toml:"tank_capacity_l"`
}

type IntervalsSection struct {
	SteeringMS  uint32 `toml:"steering_ms"`
	DashboardMS uint32 `toml:"dashboard_ms"`
	DoorsMS     uint32 `toml:"doors_ms"`
	LightsMS    uint32 `toml:"lights_ms"`
	TripMS      uint32 `toml:"trip_ms"`
}

// DefaultConfig returns the values used when the config file omits a
// key. Calibration defaults match the reference vehicle.
func DefaultConfig() Config {
	iv := headunit.DefaultIntervals()
	return Config{
		Gateway: GatewaySection{
			ProfileDir: "profiles",
			StagingDir: "staging",
			TickMS:     10,
		},
		Bus:  BusSection{Interface: "can0"},
		Port: PortSection{Variant: "current"},
		Calibration: CalibrationSection{
			SteerScalePct:      100,
			IndicatorTimeoutMS: 500,
			TankCapacityL:      45,
		},
		Intervals: IntervalsSection{
			SteeringMS:  iv.SteeringMS,
			DashboardMS: iv.DashboardMS,
			DoorsMS:     iv.DoorsMS,
			LightsMS:    iv.LightsMS,
			TripMS:      iv.TripMS,
		},
	}
}

// LoadConfig reads path over the defaults and validates the result. A
// missing file is not an error: the gateway boots with factory values
// and CFG SAVE creates the file later.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration back to path.
func (c Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config save failed (%s): %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("config encode failed: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Gateway.TickMS == 0 || c.Gateway.TickMS > 100 {
		return fmt.Errorf("gateway tick_ms %d out of range 1-100", c.Gateway.TickMS)
	}
	if c.Port.Variant != "current" && c.Port.Variant != "legacy" {
		return fmt.Errorf("port variant %q must be current or legacy", c.Port.Variant)
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	iv := c.Intervals
	for _, v := range []uint32{iv.SteeringMS, iv.DashboardMS, iv.DoorsMS, iv.LightsMS, iv.TripMS} {
		if v == 0 {
			return fmt.Errorf("intervals must be non-zero")
		}
	}
	return nil
}

func (c CalibrationSection) Validate() error {
	if c.SteerOffset < -500 || c.SteerOffset > 500 {
		return fmt.Errorf("steer_offset %d out of range -500..500", c.SteerOffset)
	}
	if c.SteerScalePct == 0 || c.SteerScalePct > 200 {
		return fmt.Errorf("steer_scale_pct %d out of range 1-200", c.SteerScalePct)
	}
	if c.IndicatorTimeoutMS < 100 || c.IndicatorTimeoutMS > 2000 {
		return fmt.Errorf("indicator_timeout_ms %d out of range 100-2000", c.IndicatorTimeoutMS)
	}
	return nil
}

// HeadUnit converts the section into the encoder's calibration type.
func (c CalibrationSection) HeadUnit() headunit.Calibration {
	return headunit.Calibration{
		SteerOffset:        c.SteerOffset,
		SteerInvert:        c.SteerInvert,
		SteerScalePct:      c.SteerScalePct,
		IndicatorTimeoutMS: c.IndicatorTimeoutMS,
		TankCapacityL:      c.TankCapacityL,
	}
}

// HeadUnitIntervals converts the section into scheduler intervals.
func (c IntervalsSection) HeadUnitIntervals() headunit.Intervals {
	return headunit.Intervals{
		SteeringMS:  c.SteeringMS,
		DashboardMS: c.DashboardMS,
		DoorsMS:     c.DoorsMS,
		LightsMS:    c.LightsMS,
		TripMS:      c.TripMS,
	}
}

// HeadUnitVariant maps the config token to the protocol variant.
func (c PortSection) HeadUnitVariant() headunit.Variant {
	if c.Variant == "legacy" {
		return headunit.VariantLegacy
	}
	return headunit.VariantCurrent
}
