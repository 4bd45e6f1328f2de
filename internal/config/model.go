package config

import "time"

// Config is the fully resolved and validated configuration.
type Config struct {
	Source Source `mapstructure:"source"`
	Agents Agents `mapstructure:"agents"`
	View   View   `mapstructure:"view"`
	Listen Listen `mapstructure:"listen"`
	Log    Log    `mapstructure:"log"`
}

// Source describes the upstream health stream.
type Source struct {
	// URL is dialled directly. When empty it is discovered from WSURLEndpoint.
	URL                string        `mapstructure:"url"`
	Transport          string        `mapstructure:"transport"`
	Event              string        `mapstructure:"event"`
	Namespace          string        `mapstructure:"namespace"`
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	WSURLEndpoint      string        `mapstructure:"ws_url_endpoint"`
	OnlineProbe        string        `mapstructure:"online_probe"`
	ProbeInterval      time.Duration `mapstructure:"probe_interval"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// Agents describes the pollNow API.
type Agents struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// View selects the projection and highlight window.
type View struct {
	Mode          string        `mapstructure:"mode"`
	FlashDuration time.Duration `mapstructure:"flash_duration"`
}

// Listen is the HTTP listener for the API, metrics and widgets.
type Listen struct {
	Address string `mapstructure:"address"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Transports accepted in source.transport.
const (
	TransportWebsocket = "websocket"
	TransportSocketIO  = "socketio"
)

// defaults is the lowest layer.
var defaults = map[string]any{
	"source.url":                  "",
	"source.transport":            TransportWebsocket,
	"source.event":                "message",
	"source.namespace":            "/",
	"source.reconnect_delay":      "1s",
	"source.ws_url_endpoint":      "http://localhost:8080/api/wsUrl",
	"source.online_probe":         "",
	"source.probe_interval":       "5s",
	"source.insecure_skip_verify": false,
	"agents.base_url":             "http://localhost:8080/api",
	"agents.timeout":              "5s",
	"agents.rate_limit":           5.0,
	"view.mode":                   "services",
	"view.flash_duration":         "300ms",
	"listen.address":              ":8090",
	"log.level":                   "info",
	"log.format":                  "text",
}
