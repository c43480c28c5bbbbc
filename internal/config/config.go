// Package config loads faultfs settings from defaults, an optional YAML
// file, FAULTFS_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. FAULTFS_LOGGING_LEVEL.
const EnvPrefix = "FAULTFS"

// ErrHelp is returned by Load when usage was requested.
var ErrHelp = pflag.ErrHelp

// Config is the complete runtime configuration of a mount.
type Config struct {
	// Target is the real directory whose contents are exposed.
	Target string `mapstructure:"target" validate:"required,dir"`

	// Mountpoint is where the filesystem is attached.
	Mountpoint string `mapstructure:"mountpoint" validate:"required,dir"`

	// AllowOther lets other users access the mount.
	AllowOther bool `mapstructure:"allow_other"`

	Logging LoggingConfig `mapstructure:"logging"`

	Fault FaultConfig `mapstructure:"fault"`

	Metrics MetricsConfig `mapstructure:"metrics"`

	Report ReportConfig `mapstructure:"report"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=ERROR WARN INFO DEBUG TRACE error warn info debug trace"`
}

type FaultConfig struct {
	// Seed for the coin; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed"`

	// LogPerSecond bounds debug lines about injected faults.
	LogPerSecond float64 `mapstructure:"log_per_second" validate:"gte=0"`
}

type MetricsConfig struct {
	// Listen is the host:port of the metrics endpoint; empty disables it.
	Listen string `mapstructure:"listen"`
}

type ReportConfig struct {
	// Path of the JSON fault journal; empty disables it.
	Path string `mapstructure:"path"`

	// Interval between saves of the journal while faults keep coming.
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"target":          "target",
	"mountpoint":      "mountpoint",
	"allow-other":     "allow_other",
	"log-level":       "logging.level",
	"fault-seed":      "fault.seed",
	"fault-log-rate":  "fault.log_per_second",
	"metrics-listen":  "metrics.listen",
	"report":          "report.path",
	"report-interval": "report.interval",
}

// NewFlagSet declares the command line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("target", "", "Real directory to expose (or first positional argument)")
	flags.String("mountpoint", "", "Directory to mount on (or second positional argument)")
	flags.Bool("allow-other", false, "Allow other users to access the mount")
	flags.String("log-level", "", "Log level: ERROR, WARN, INFO, DEBUG or TRACE")
	flags.Int64("fault-seed", 0, "Seed for the fault coin, 0 seeds from the clock")
	flags.Float64("fault-log-rate", 0, "Maximum injected-fault log lines per second")
	flags.String("metrics-listen", "", "Address for the metrics endpoint, e.g. :9091 (disabled when empty)")
	flags.String("report", "", "Path of the JSON fault journal (disabled when empty)")
	flags.Duration("report-interval", 0, "Interval between fault journal saves")
	return flags
}

// Load parses args (without the program name) and builds a validated
// Config. Positional arguments fill target and mountpoint when the
// corresponding flags are absent.
func Load(args []string) (*Config, error) {
	flags := NewFlagSet("faultfs")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	setupViper(v)

	configPath, _ := flags.GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	if err := applyPositional(v, flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target", "")
	v.SetDefault("mountpoint", "")
	v.SetDefault("allow_other", false)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("fault.seed", 0)
	v.SetDefault("fault.log_per_second", 5.0)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("report.path", "")
	v.SetDefault("report.interval", 5*time.Second)
}

func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
}

// applyPositional handles "faultfs [flags] <target> <mountpoint>".
func applyPositional(v *viper.Viper, flags *pflag.FlagSet) error {
	args := flags.Args()
	if len(args) > 2 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args[2:], " "))
	}

	positional := []string{"target", "mountpoint"}
	for i, arg := range args {
		name := positional[i]
		if flags.Changed(name) {
			return fmt.Errorf("%s given both as flag and argument", name)
		}
		v.Set(name, arg)
	}
	return nil
}
