package config

import (
	goerrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/records"
)

const sample = `
log_level: debug
capacity: 4
ipv6: true
pace_interval: 500ms
interfaces:
  station: wlan0
services:
  - service: _http._tcp.local
    host: dev.local
    instance: My Device
    txt: path=/
    interface: station
    port: 80
  - service: _ipp._tcp.local.
    host: dev.local.
    instance: Printer
    txt_records:
      - rp=ipp/print
      - note=Room 1.2
    interface: softap
    ttl: 60
    port: 631
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacond.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, records.DefaultCapacity, cfg.Capacity)
	assert.False(t, cfg.IPv6)
	assert.Equal(t, 3, cfg.MaxIPv6Addresses)
	assert.Equal(t, 1472, cfg.MaxMessageSize)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.PaceInterval)
	assert.Equal(t, 2*time.Second, cfg.LinkPollInterval)
	assert.Equal(t, time.Second, cfg.ShutdownGrace)
	assert.Empty(t, cfg.Services)
	assert.Empty(t, cfg.InterfaceNames())
}

func TestLoad_FileThenFlags(t *testing.T) {
	path := writeFile(t, sample)

	// unset flags leave the file values alone
	cfg, err := Load(path, newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Capacity)
	assert.True(t, cfg.IPv6)
	assert.Equal(t, 500*time.Millisecond, cfg.PaceInterval)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, map[records.Interface]string{records.Station: "wlan0"}, cfg.InterfaceNames())

	cfg, err = Load(path, newFlags(t, "--log-level=warn", "--station-interface=eth0", "--softap-interface=ap0", "--pace-interval=1s"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.PaceInterval)
	assert.Equal(t, "eth0", cfg.Interfaces.Station)
	assert.Equal(t, "ap0", cfg.Interfaces.SoftAP)
	assert.Equal(t, 4, cfg.Capacity)
}

func TestLoad_Services(t *testing.T) {
	cfg, err := Load(writeFile(t, sample), nil)
	require.NoError(t, err)

	recs, err := cfg.Records()
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, records.Service{
		Hostname:     "dev.local.",
		ServiceName:  "_http._tcp.local.",
		InstanceName: "My Device._http._tcp.local.",
		TXT:          "path=/",
		Interface:    records.Station,
		TTL:          120,
		Port:         80,
	}, recs[0])
	assert.Equal(t, records.SoftAP, recs[1].Interface)
	assert.Equal(t, uint32(60), recs[1].TTL)
	assert.Equal(t, "Printer._ipp._tcp.local.", recs[1].InstanceName)
	assert.Equal(t, "rp=ipp//print.note=Room 1/.2", recs[1].TXT)

	wire, err := message.EncodeTXT(recs[1].TXT)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{12}, "rp=ipp/print"...), append([]byte{13}, "note=Room 1.2"...)...), wire[:len(wire)-1])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"), nil)
	assert.Error(t, err)
}

func TestServiceConfig_Invalid(t *testing.T) {
	valid := ServiceConfig{
		Service:   "_http._tcp.local",
		Host:      "dev.local",
		Instance:  "dev",
		Interface: "sta",
		Port:      80,
	}
	_, err := valid.Record()
	require.NoError(t, err)

	tests := []struct {
		name  string
		field string
		edit  func(*ServiceConfig)
	}{
		{"empty service", "service", func(s *ServiceConfig) { s.Service = "" }},
		{"bad service", "service", func(s *ServiceConfig) { s.Service = "_http..local" }},
		{"empty host", "host", func(s *ServiceConfig) { s.Host = "" }},
		{"empty instance", "instance", func(s *ServiceConfig) { s.Instance = "" }},
		{"long txt", "txt", func(s *ServiceConfig) { s.TXT = string(make([]byte, 300)) }},
		{"zero port", "port", func(s *ServiceConfig) { s.Port = 0 }},
		{"bad interface", "interface", func(s *ServiceConfig) { s.Interface = "eth0" }},
		{"txt and txt_records", "txt_records", func(s *ServiceConfig) {
			s.TXT = "a=1"
			s.TXTRecords = []string{"b=2"}
		}},
		{"long txt record", "txt", func(s *ServiceConfig) { s.TXTRecords = []string{string(make([]byte, 300))} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := valid
			tt.edit(&svc)
			_, err := svc.Record()
			var verr *errors.ValidationError
			require.True(t, goerrors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	bad := *cfg
	bad.LogLevel = "loud"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Capacity = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.MaxMessageSize = 4
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.MaxIPv6Addresses = 0
	err = bad.Validate()
	var verr *errors.ValidationError
	require.True(t, goerrors.As(err, &verr))
	assert.Equal(t, "max_ipv6_addresses", verr.Field)

	bad = *cfg
	bad.PaceInterval = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Capacity = 1
	bad.Services = []ServiceConfig{
		{Service: "_a._tcp.local", Host: "h.local", Instance: "a", Interface: "sta", Port: 1},
		{Service: "_b._tcp.local", Host: "h.local", Instance: "b", Interface: "sta", Port: 1},
	}
	assert.Error(t, bad.Validate())

	bad.Capacity = 2
	bad.Services[1].Port = 0
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "services[1]")
}
