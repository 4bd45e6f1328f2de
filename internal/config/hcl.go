package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level structure of a configuration file. Every block
// and attribute is optional.
type hclFile struct {
	Source *hclSource `hcl:"source,block"`
	Agents *hclAgents `hcl:"agents,block"`
	View   *hclView   `hcl:"view,block"`
	Listen *hclListen `hcl:"listen,block"`
	Log    *hclLog    `hcl:"log,block"`
}

type hclSource struct {
	URL                *string `hcl:"url,optional"`
	Transport          *string `hcl:"transport,optional"`
	Event              *string `hcl:"event,optional"`
	Namespace          *string `hcl:"namespace,optional"`
	ReconnectDelay     *string `hcl:"reconnect_delay,optional"`
	WSURLEndpoint      *string `hcl:"ws_url_endpoint,optional"`
	OnlineProbe        *string `hcl:"online_probe,optional"`
	ProbeInterval      *string `hcl:"probe_interval,optional"`
	InsecureSkipVerify *bool   `hcl:"insecure_skip_verify,optional"`
}

type hclAgents struct {
	BaseURL   *string  `hcl:"base_url,optional"`
	Timeout   *string  `hcl:"timeout,optional"`
	RateLimit *float64 `hcl:"rate_limit,optional"`
}

type hclView struct {
	Mode          *string `hcl:"mode,optional"`
	FlashDuration *string `hcl:"flash_duration,optional"`
}

type hclListen struct {
	Address *string `hcl:"address,optional"`
}

type hclLog struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// readHCL parses the file at path into a nested settings map.
func readHCL(path string) (map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decodeHCL(src, path, os.Environ())
}

// decodeHCL decodes src. Only attributes set in the file appear in the
// result.
func decodeHCL(src []byte, filename string, environ []string) (map[string]any, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, envContext(environ), &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	out := map[string]any{}
	if s := parsed.Source; s != nil {
		m := section(out, "source")
		put(m, "url", s.URL)
		put(m, "transport", s.Transport)
		put(m, "event", s.Event)
		put(m, "namespace", s.Namespace)
		put(m, "reconnect_delay", s.ReconnectDelay)
		put(m, "ws_url_endpoint", s.WSURLEndpoint)
		put(m, "online_probe", s.OnlineProbe)
		put(m, "probe_interval", s.ProbeInterval)
		put(m, "insecure_skip_verify", s.InsecureSkipVerify)
	}
	if a := parsed.Agents; a != nil {
		m := section(out, "agents")
		put(m, "base_url", a.BaseURL)
		put(m, "timeout", a.Timeout)
		put(m, "rate_limit", a.RateLimit)
	}
	if v := parsed.View; v != nil {
		m := section(out, "view")
		put(m, "mode", v.Mode)
		put(m, "flash_duration", v.FlashDuration)
	}
	if l := parsed.Listen; l != nil {
		put(section(out, "listen"), "address", l.Address)
	}
	if l := parsed.Log; l != nil {
		m := section(out, "log")
		put(m, "level", l.Level)
		put(m, "format", l.Format)
	}
	return out, nil
}

// envContext exposes the environment to expressions as the env map.
func envContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	env := cty.MapValEmpty(cty.String)
	if len(vars) > 0 {
		env = cty.MapVal(vars)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": env}}
}

func section(out map[string]any, name string) map[string]any {
	m := map[string]any{}
	out[name] = m
	return m
}

func put[T any](m map[string]any, key string, v *T) {
	if v != nil {
		m[key] = *v
	}
}
