// Package config loads the daemon configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// command line flags that were explicitly set.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
	"github.com/joshuafuller/linkbeacon/internal/records"
)

type Config struct {
	LogLevel string `koanf:"log_level"`
	LogJSON  bool   `koanf:"log_json"`

	Capacity         int              `koanf:"capacity"`
	IPv6             bool             `koanf:"ipv6"`
	MaxIPv6Addresses int              `koanf:"max_ipv6_addresses"`
	MaxMessageSize   int              `koanf:"max_message_size"`
	Interfaces       InterfacesConfig `koanf:"interfaces"`

	TickInterval     time.Duration `koanf:"tick_interval"`
	PaceInterval     time.Duration `koanf:"pace_interval"`
	LinkPollInterval time.Duration `koanf:"link_poll_interval"`
	ShutdownGrace    time.Duration `koanf:"shutdown_grace"`

	MetricsAddr string `koanf:"metrics_addr"`

	Services []ServiceConfig `koanf:"services"`
}

// InterfacesConfig maps the logical interfaces to OS interface names. An
// empty name disables that interface.
type InterfacesConfig struct {
	Station string `koanf:"station"`
	SoftAP  string `koanf:"softap"`
}

// ServiceConfig is one entry of the services list.
//
// TXT holds the dotted wire form ("a=1.b=2", with '/' escaping). TXTRecords
// lists plain key=value strings instead and is escaped on load; a service
// sets one or the other.
type ServiceConfig struct {
	Service    string   `koanf:"service"`
	Host       string   `koanf:"host"`
	Instance   string   `koanf:"instance"`
	TXT        string   `koanf:"txt"`
	TXTRecords []string `koanf:"txt_records"`
	Interface  string   `koanf:"interface"`
	TTL        uint32   `koanf:"ttl"`
	Port       uint16   `koanf:"port"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log_level":          "info",
		"log_json":           false,
		"capacity":           records.DefaultCapacity,
		"ipv6":               false,
		"max_ipv6_addresses": 3,
		"max_message_size":   protocol.MaxMessageSize,
		"interfaces.station": "",
		"interfaces.softap":  "",
		"tick_interval":      "1s",
		"pace_interval":      "200ms",
		"link_poll_interval": "2s",
		"shutdown_grace":     "1s",
		"metrics_addr":       "",
	}
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"station-interface": "interfaces.station",
	"softap-interface":  "interfaces.softap",
}

// RegisterFlags adds the overridable settings to fs. Flag defaults are
// informational only; unset flags never override the file.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.Bool("log-json", false, "log in JSON format")
	fs.Int("capacity", records.DefaultCapacity, "number of record slots")
	fs.Bool("ipv6", false, "also answer and announce over IPv6")
	fs.Int("max-ipv6-addresses", 3, "AAAA records per host")
	fs.Int("max-message-size", protocol.MaxMessageSize, "largest datagram built")
	fs.String("station-interface", "", "OS interface backing the station link")
	fs.String("softap-interface", "", "OS interface backing the soft-AP link")
	fs.Duration("tick-interval", time.Second, "housekeeping tick")
	fs.Duration("pace-interval", 200*time.Millisecond, "spacing between announcements")
	fs.Duration("link-poll-interval", 2*time.Second, "interface state poll interval")
	fs.Duration("shutdown-grace", time.Second, "time allowed for goodbyes on shutdown")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func flagKey(f *pflag.Flag) string {
	if key, ok := flagKeys[f.Name]; ok {
		return key
	}
	return strings.ReplaceAll(f.Name, "-", "_")
}

// Load builds the configuration. path may be empty; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed reading config file %s: %w", path, err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			return flagKey(f), posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and every service entry.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return &errors.ValidationError{Field: "log_level", Value: c.LogLevel, Message: err.Error()}
	}
	if c.Capacity <= 0 {
		return &errors.ValidationError{Field: "capacity", Value: c.Capacity, Message: "must be positive"}
	}
	if c.MaxMessageSize < protocol.HeaderSize || c.MaxMessageSize > protocol.ReceiveBufferSize {
		return &errors.ValidationError{
			Field:   "max_message_size",
			Value:   c.MaxMessageSize,
			Message: fmt.Sprintf("must be between %d and %d", protocol.HeaderSize, protocol.ReceiveBufferSize),
		}
	}
	if c.MaxIPv6Addresses < 1 {
		return &errors.ValidationError{Field: "max_ipv6_addresses", Value: c.MaxIPv6Addresses, Message: "must be at least 1; set ipv6 to false to publish no AAAA records"}
	}
	for field, d := range map[string]time.Duration{
		"tick_interval":      c.TickInterval,
		"pace_interval":      c.PaceInterval,
		"link_poll_interval": c.LinkPollInterval,
	} {
		if d <= 0 {
			return &errors.ValidationError{Field: field, Value: d.String(), Message: "must be positive"}
		}
	}
	if c.ShutdownGrace < 0 {
		return &errors.ValidationError{Field: "shutdown_grace", Value: c.ShutdownGrace.String(), Message: "must not be negative"}
	}
	if len(c.Services) > c.Capacity {
		return &errors.ValidationError{
			Field:   "services",
			Value:   len(c.Services),
			Message: fmt.Sprintf("more services than capacity %d", c.Capacity),
		}
	}

	for i, svc := range c.Services {
		if _, err := svc.Record(); err != nil {
			return fmt.Errorf("services[%d]: %w", i, err)
		}
	}
	return nil
}

// InterfaceNames returns the configured OS interface per logical interface,
// omitting empty ones.
func (c *Config) InterfaceNames() map[records.Interface]string {
	names := make(map[records.Interface]string, 2)
	if c.Interfaces.Station != "" {
		names[records.Station] = c.Interfaces.Station
	}
	if c.Interfaces.SoftAP != "" {
		names[records.SoftAP] = c.Interfaces.SoftAP
	}
	return names
}

// Records converts the services list.
func (c *Config) Records() ([]records.Service, error) {
	out := make([]records.Service, 0, len(c.Services))
	for i, svc := range c.Services {
		rec, err := svc.Record()
		if err != nil {
			return nil, fmt.Errorf("services[%d]: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Record validates the entry and converts it to a table service. Instance is
// the bare instance label; the service type is appended to it.
func (s ServiceConfig) Record() (records.Service, error) {
	if _, err := message.EncodeName(s.Service); err != nil || message.CanonicalName(s.Service) == "" {
		return records.Service{}, &errors.ValidationError{Field: "service", Value: s.Service, Message: "invalid service type"}
	}
	if _, err := message.EncodeName(s.Host); err != nil || message.CanonicalName(s.Host) == "" {
		return records.Service{}, &errors.ValidationError{Field: "host", Value: s.Host, Message: "invalid hostname"}
	}
	if _, err := message.EncodeServiceInstanceName(s.Instance, s.Service); err != nil {
		return records.Service{}, err
	}
	txt := s.TXT
	if len(s.TXTRecords) > 0 {
		if s.TXT != "" {
			return records.Service{}, &errors.ValidationError{Field: "txt_records", Value: s.TXTRecords, Message: "cannot be combined with txt"}
		}
		txt = message.EscapeTXT(s.TXTRecords...)
	}
	if _, err := message.EncodeTXT(txt); err != nil {
		return records.Service{}, err
	}
	if s.Port == 0 {
		return records.Service{}, &errors.ValidationError{Field: "port", Value: s.Port, Message: "must be non-zero"}
	}
	iface, err := records.ParseInterface(s.Interface)
	if err != nil {
		return records.Service{}, &errors.ValidationError{Field: "interface", Value: s.Interface, Message: err.Error()}
	}

	ttl := s.TTL
	if ttl == 0 {
		ttl = protocol.TTLService
	}
	service := fqdn(s.Service)
	return records.Service{
		Hostname:     fqdn(s.Host),
		ServiceName:  service,
		InstanceName: s.Instance + "." + service,
		TXT:          txt,
		Interface:    iface,
		TTL:          ttl,
		Port:         s.Port,
	}, nil
}

func fqdn(name string) string {
	return message.CanonicalName(name) + "."
}
