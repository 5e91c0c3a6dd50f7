package main

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/linkbeacon/internal/records"
	"github.com/joshuafuller/linkbeacon/querier"
)

func TestBrowseService(t *testing.T) {
	assert.Equal(t, "_http._tcp", browseService("_http._tcp", "local."))
	assert.Equal(t, "_http._tcp", browseService("_http._tcp.local.", "local."))
	assert.Equal(t, "_http._tcp", browseService("_http._tcp.local", "local"))
}

func TestInterfaceList(t *testing.T) {
	names := map[records.Interface]string{records.SoftAP: "ap0", records.Station: "wlan0"}
	assert.Equal(t, []string{"wlan0", "ap0"}, interfaceList(names))
	assert.Empty(t, interfaceList(nil))
}

func TestFormatData(t *testing.T) {
	tests := []struct {
		rr   querier.ResourceRecord
		want string
	}{
		{querier.ResourceRecord{Type: querier.RecordTypeA, Data: net.IPv4(10, 0, 0, 1)}, "10.0.0.1"},
		{querier.ResourceRecord{Type: querier.RecordTypePTR, Data: "_http._tcp.local."}, "_http._tcp.local."},
		{querier.ResourceRecord{Type: querier.RecordTypeSRV, Data: querier.SRVData{Port: 80, Target: "dev.local."}}, "0 0 80 dev.local."},
		{querier.ResourceRecord{Type: querier.RecordTypeTXT, Data: []string{"a=1"}}, `["a=1"]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatData(tt.rr))
	}
}

func TestSetupLogging(t *testing.T) {
	require.NoError(t, setupLogging("debug", true))
	require.NoError(t, setupLogging("info", false))
	assert.Error(t, setupLogging("loud", false))
}

func TestQueryCommand_RejectsUnknownType(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"query", "dev.local", "MX"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported record type")
}
