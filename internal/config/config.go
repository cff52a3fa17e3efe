package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML duration strings like "1s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// AppConfig is the resolved client configuration. Flags in main override
// values loaded from a YAML file.
type AppConfig struct {
	ServerIP      string        `yaml:"server_ip"`
	ControlPort   int           `yaml:"control_port"`
	TelemetryPort int           `yaml:"telemetry_port"`
	ResultPort    int           `yaml:"result_port"`
	UIPort        int           `yaml:"ui_port"`
	FrameWidth    int           `yaml:"frame_width"`
	FrameHeight   int           `yaml:"frame_height"`
	Debug         bool          `yaml:"debug"`
	DebugAcqRate  float64       `yaml:"debug_acq_rate"`
	RecvTimeout   Duration      `yaml:"recv_timeout"`
	RawLogEnabled bool          `yaml:"raw_log"`
	RawLogDir     string        `yaml:"raw_log_dir"`
	ExportDir     string        `yaml:"export_dir"`
}

// Default returns the configuration matching the reference deployment.
func Default() AppConfig {
	return AppConfig{
		ControlPort:   5555,
		TelemetryPort: 5556,
		ResultPort:    5557,
		UIPort:        8889,
		FrameWidth:    640,
		FrameHeight:   480,
		DebugAcqRate:  30,
		RecvTimeout:   Duration(time.Second),
		RawLogDir:     "rawlog",
		ExportDir:     "export",
	}
}

// Load overlays a YAML file onto the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ControlEndpoint returns the ZMQ endpoint of the command channel.
func (c AppConfig) ControlEndpoint() string {
	return fmt.Sprintf("tcp://%s:%d", c.ServerIP, c.ControlPort)
}

// TelemetryEndpoint returns the ZMQ endpoint of the outbound frame stream.
func (c AppConfig) TelemetryEndpoint() string {
	return fmt.Sprintf("tcp://%s:%d", c.ServerIP, c.TelemetryPort)
}

// ResultEndpoint returns the ZMQ endpoint of the inbound result stream.
func (c AppConfig) ResultEndpoint() string {
	return fmt.Sprintf("tcp://%s:%d", c.ServerIP, c.ResultPort)
}

// Validate rejects configurations the session cannot run with.
func (c AppConfig) Validate() error {
	if !c.Debug && c.ServerIP == "" {
		return fmt.Errorf("server_ip is required outside debug mode")
	}
	if c.FrameWidth < 1 || c.FrameHeight < 1 {
		return fmt.Errorf("invalid frame size %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.RecvTimeout <= 0 {
		return fmt.Errorf("recv_timeout must be positive")
	}
	return nil
}
