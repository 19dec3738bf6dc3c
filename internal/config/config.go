// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/xypsu/internal/simulator/persistence"
	"github.com/ffutop/xypsu/modbus/rtu"
	"github.com/ffutop/xypsu/psu"
	"github.com/ffutop/xypsu/transaction"
	"github.com/ffutop/xypsu/transport/serial"
)

// Transport names.
const (
	TransportSerial     = "serial"
	TransportRTUOverTCP = "rtu-over-tcp"
)

// Preset reselect policies.
const (
	ReselectAuto   = "auto"
	ReselectAlways = "always"
	ReselectNever  = "never"
)

// Config defines the global configuration structure
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Transport string          `mapstructure:"transport"` // "serial", "rtu-over-tcp"
	Serial    SerialConfig    `mapstructure:"serial"`    // Used if Transport is "serial"
	TCP       TCPConfig       `mapstructure:"tcp"`       // Used if Transport is "rtu-over-tcp"
	Device    DeviceConfig    `mapstructure:"device"`
	Trace     TraceConfig     `mapstructure:"trace"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path, empty or "-" for stderr
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    int           `mapstructure:"stop_bits"`
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// TCPConfig defines the serial-to-Ethernet bridge to dial.
type TCPConfig struct {
	Address     string        `mapstructure:"address"` // e.g. "192.168.1.100:8899"
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DeviceConfig describes the power supply on the line.
type DeviceConfig struct {
	UnitID     int           `mapstructure:"unit_id"`
	Verifier   string        `mapstructure:"verifier"` // "echo", "decode"
	BufferSize int           `mapstructure:"buffer_size"`
	Reselect   string        `mapstructure:"reselect"` // "auto", "always", "never"
	Scaling    ScalingConfig `mapstructure:"scaling"`
}

// ScalingConfig overrides model detection when any divisor is set.
type ScalingConfig struct {
	Voltage  uint32 `mapstructure:"voltage"`
	Current  uint32 `mapstructure:"current"`
	Power    uint32 `mapstructure:"power"`
	Capacity uint32 `mapstructure:"capacity"`
	Energy   uint32 `mapstructure:"energy"`
}

// TraceConfig enables frame capture.
type TraceConfig struct {
	File string `mapstructure:"file"`
}

// SimulatorConfig defines the simulated power supply served by "simulate".
type SimulatorConfig struct {
	Listen      string            `mapstructure:"listen"`  // "serial" or "tcp"
	Address     string            `mapstructure:"address"` // TCP listen address
	Model       uint16            `mapstructure:"model"`
	UnitID      int               `mapstructure:"unit_id"`
	Echo        bool              `mapstructure:"echo"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap", "sqlite"
	Path string `mapstructure:"path"` // File path for "file", "mmap" and "sqlite"
}

// flagKeys maps command line flags to the configuration keys they set.
var flagKeys = map[string][]string{
	"log-level":   {"log.level"},
	"log-file":    {"log.file"},
	"transport":   {"transport"},
	"device":      {"serial.device"},
	"baud":        {"serial.baud_rate"},
	"timeout":     {"serial.timeout", "tcp.timeout"},
	"address":     {"tcp.address"},
	"unit":        {"device.unit_id"},
	"verifier":    {"device.verifier"},
	"buffer-size": {"device.buffer_size"},
	"reselect":    {"device.reselect"},
	"trace":       {"trace.file"},
}

// AddFlags registers the flags that override configuration keys.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("log-level", "v", "", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log-file", "L", "", "Log file name ('-' for logging to STDERR only).")
	fs.StringP("transport", "t", "", "Transport to the device (serial, rtu-over-tcp).")
	fs.StringP("device", "p", "", "Serial port device name.")
	fs.IntP("baud", "s", 0, "Serial port speed.")
	fs.DurationP("timeout", "W", 0, "Response wait time per read, on the serial line or the TCP bridge.")
	fs.StringP("address", "a", "", "Address of an RTU over TCP bridge.")
	fs.IntP("unit", "u", 0, "Modbus unit id of the power supply.")
	fs.String("verifier", "", "Reply verification policy (echo, decode).")
	fs.Int("buffer-size", 0, "Reply buffer capacity in bytes.")
	fs.String("reselect", "", "Select the active preset again after rewriting it (auto, always, never).")
	fs.String("trace", "", "Append every frame to this CBOR trace file.")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("transport", TransportSerial)
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", serial.DefaultBaudRate)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", serial.DefaultTimeout)
	v.SetDefault("serial.idle_timeout", serial.DefaultIdleTimeout)
	v.SetDefault("tcp.dial_timeout", 10*time.Second)
	v.SetDefault("tcp.timeout", 300*time.Millisecond)
	v.SetDefault("device.unit_id", rtu.DefaultSlaveID)
	v.SetDefault("device.verifier", "echo")
	v.SetDefault("device.buffer_size", transaction.DefaultBufferSize)
	v.SetDefault("device.reselect", ReselectAuto)
	v.SetDefault("simulator.listen", "serial")
	v.SetDefault("simulator.address", "127.0.0.1:8899")
	v.SetDefault("simulator.model", uint16(psu.XY6020L))
	v.SetDefault("simulator.unit_id", rtu.DefaultSlaveID)
	v.SetDefault("simulator.persistence.type", "memory")
}

// LoadConfig loads configuration from the file named by the "config" flag,
// or from config.yaml in the default search path. Flags that were set on
// the command line take precedence over the file, and XYPSU_* environment
// variables take precedence over both defaults and the file.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("xypsu")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFile string
	if fs != nil {
		configFile, _ = fs.GetString("config")
		for name, keys := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			for _, key := range keys {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/xypsu/")
		v.AddConfigPath("$HOME/.xypsu")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Serial.Parity = strings.ToUpper(config.Serial.Parity)
	config.Transport = strings.ToLower(config.Transport)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the driver cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSerial:
		if c.Serial.Device == "" {
			return errors.New("config: serial.device is empty")
		}
	case TransportRTUOverTCP:
		if c.TCP.Address == "" {
			return errors.New("config: tcp.address is empty")
		}
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if err := checkUnitID("device.unit_id", c.Device.UnitID); err != nil {
		return err
	}
	if _, err := transaction.VerifierByName(c.Device.Verifier); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Device.BufferSize < rtu.MinSize {
		return fmt.Errorf("config: device.buffer_size %d is below %d", c.Device.BufferSize, rtu.MinSize)
	}
	switch c.Device.Reselect {
	case ReselectAuto, ReselectAlways, ReselectNever:
	default:
		return fmt.Errorf("config: unknown reselect policy %q", c.Device.Reselect)
	}
	if s, ok := c.Device.Scaling.Factors(); ok {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("config: device.scaling: %w", err)
		}
	}

	switch c.Simulator.Listen {
	case "serial", "tcp":
	default:
		return fmt.Errorf("config: unknown simulator listen mode %q", c.Simulator.Listen)
	}
	if err := checkUnitID("simulator.unit_id", c.Simulator.UnitID); err != nil {
		return err
	}
	if c.Simulator.Model == 0 {
		return errors.New("config: simulator.model is zero")
	}
	if !persistence.Known(c.Simulator.Persistence.Type) {
		return fmt.Errorf("config: unknown persistence type %q", c.Simulator.Persistence.Type)
	}
	return nil
}

func checkUnitID(key string, id int) error {
	if id < rtu.MinSlaveID || id > rtu.MaxSlaveID {
		return fmt.Errorf("config: %s %d outside %d-%d", key, id, rtu.MinSlaveID, rtu.MaxSlaveID)
	}
	return nil
}

// Factors returns the configured scaling factors. ok is false when no
// divisor is set. A missing energy divisor is derived from the power one.
func (s ScalingConfig) Factors() (f psu.ScalingFactors, ok bool) {
	if s == (ScalingConfig{}) {
		return f, false
	}
	f = psu.NewScalingFactors(s.Voltage, s.Current, s.Power, s.Capacity)
	if s.Energy != 0 {
		f.Energy = s.Energy
	}
	return f, true
}

// ReselectPolicy returns the reselect override, or nil for "auto".
func (d DeviceConfig) ReselectPolicy() *bool {
	var b bool
	switch d.Reselect {
	case ReselectAlways:
		b = true
	case ReselectNever:
		b = false
	default:
		return nil
	}
	return &b
}

// SerialPort converts the serial settings for transport/serial.
func (s SerialConfig) SerialPort() serial.Config {
	return serial.Config{
		Device:             s.Device,
		BaudRate:           s.BaudRate,
		DataBits:           s.DataBits,
		Parity:             s.Parity,
		StopBits:           s.StopBits,
		Timeout:            s.Timeout,
		IdleTimeout:        s.IdleTimeout,
		RS485:              s.RS485,
		DelayRtsBeforeSend: s.DelayRtsBeforeSend,
		DelayRtsAfterSend:  s.DelayRtsAfterSend,
		RtsHighDuringSend:  s.RtsHighDuringSend,
		RtsHighAfterSend:   s.RtsHighAfterSend,
		RxDuringTx:         s.RxDuringTx,
	}
}
