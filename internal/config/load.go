package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/healthmesh/internal/view"
	"github.com/spf13/viper"
)

// ErrInvalid is returned when the resolved configuration fails validation.
var ErrInvalid = errors.New("config: invalid")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HEALTHMESH"

// NewViper returns a viper instance holding the defaults and reading
// HEALTHMESH_* overrides. Callers bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load merges the HCL file at path (if any) into v and returns the
// validated result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		settings, err := readHCL(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("failed to merge config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and normalises the view mode. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Source.URL == "" && c.Source.WSURLEndpoint == "" {
		errs = append(errs, errors.New("source.url or source.ws_url_endpoint is required"))
	}
	switch c.Source.Transport {
	case TransportWebsocket, TransportSocketIO:
	default:
		errs = append(errs, fmt.Errorf("source.transport %q must be %q or %q", c.Source.Transport, TransportWebsocket, TransportSocketIO))
	}
	if mode, err := view.ParseMode(c.View.Mode); err != nil {
		errs = append(errs, fmt.Errorf("view.mode: %w", err))
	} else {
		c.View.Mode = string(mode)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"source.reconnect_delay", c.Source.ReconnectDelay},
		{"source.probe_interval", c.Source.ProbeInterval},
		{"agents.timeout", c.Agents.Timeout},
		{"view.flash_duration", c.View.FlashDuration},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}
	if c.Agents.RateLimit < 0 {
		errs = append(errs, errors.New("agents.rate_limit must not be negative"))
	}
	if c.Listen.Address == "" {
		errs = append(errs, errors.New("listen.address is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
