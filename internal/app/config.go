package app

import (
	"github.com/specialistvlad/healthmesh/internal/config"
	"github.com/specialistvlad/healthmesh/internal/transport"
	"resty.dev/v3"
)

// newDialer picks the stream client for cfg.Transport.
func newDialer(cfg config.Source) transport.Dialer {
	if cfg.Transport == config.TransportSocketIO {
		return transport.SocketIODialer{
			Event:              cfg.Event,
			Namespace:          cfg.Namespace,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}
	return transport.WebsocketDialer{}
}

// newResolver returns the fixed URL when one is configured and discovers it
// otherwise. A discovered URL is kept for the life of the adapter.
func newResolver(cfg config.Source, client *resty.Client) transport.Resolver {
	if cfg.URL != "" {
		return transport.StaticURL(cfg.URL)
	}
	return transport.DiscoverURL(client, cfg.WSURLEndpoint)
}

// newNetwork probes cfg.OnlineProbe when set. The returned monitor is nil
// when the network is assumed to be always up.
func newNetwork(cfg config.Source, client *resty.Client) (transport.Network, *transport.ProbeMonitor) {
	if cfg.OnlineProbe == "" {
		return transport.AlwaysOnline{}, nil
	}
	probe := transport.NewProbeMonitor(client, cfg.OnlineProbe, cfg.ProbeInterval)
	return probe, probe
}
