package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "geo: {}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Geo.Provider != "mozilla" {
		t.Fatalf("provider=%q want mozilla", cfg.Geo.Provider)
	}
	if cfg.Geo.MaxAccuracyM != 300 {
		t.Fatalf("max accuracy=%d want 300", cfg.Geo.MaxAccuracyM)
	}
	if cfg.Beacon.GeoInterval.Std() != 20*time.Second || cfg.Beacon.MinInterval.Std() != time.Minute ||
		cfg.Beacon.MaxInterval.Std() != 10*time.Minute || cfg.Beacon.Step.Std() != 30*time.Second {
		t.Fatalf("beacon defaults not applied: %+v", cfg.Beacon)
	}
	if cfg.NTP.Server != "pool.ntp.org" {
		t.Fatalf("ntp server=%q", cfg.NTP.Server)
	}
	if cfg.APRS.AltitudeM != -1 {
		t.Fatalf("altitude=%v want -1 (disabled)", cfg.APRS.AltitudeM)
	}
}

func TestLoad_ProviderValidation(t *testing.T) {
	path := writeTempConfig(t, "geo:\n  provider: dead-reckoning\n")
	_, err := Load(path)
	requireErrEq(t, err, "geo.provider must be one of mozilla, google, wigle")

	path = writeTempConfig(t, "geo:\n  provider: wigle\n")
	_, err = Load(path)
	requireErrEq(t, err, "geo.api_key is required when geo.provider is 'wigle'")
}

func TestLoad_APRSRequiresCallsign(t *testing.T) {
	path := writeTempConfig(t, "aprs:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "aprs.callsign is required when aprs.enable is true")
}

func TestLoad_APRSDefaults(t *testing.T) {
	path := writeTempConfig(t, "aprs:\n  enable: true\n  callsign: N0CALL-9\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APRS.Server != "euro.aprs2.net" || cfg.APRS.Port != 14580 {
		t.Fatalf("aprs defaults: %+v", cfg.APRS)
	}
}

func TestLoad_DurationForms(t *testing.T) {
	path := writeTempConfig(t, "beacon:\n  geo_interval: 15\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Beacon.GeoInterval.Std() != 15*time.Second {
		t.Fatalf("bare integer not taken as seconds: %v", cfg.Beacon.GeoInterval)
	}

	path = writeTempConfig(t, "beacon:\n  geo_interval: soon\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("invalid duration accepted")
	}
}

func TestLoad_BeaconIntervalOrder(t *testing.T) {
	path := writeTempConfig(t, "beacon:\n  min_interval: 10m\n  max_interval: 1m\n")
	_, err := Load(path)
	requireErrEq(t, err, "beacon.max_interval must not be below beacon.min_interval")
}

func TestLoad_SerialBaudDefault(t *testing.T) {
	path := writeTempConfig(t, "nmea:\n  serial:\n    device: /dev/ttyUSB0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.NMEA.Serial.Baud != 4800 {
		t.Fatalf("baud=%d want 4800", cfg.NMEA.Serial.Baud)
	}
}

func TestLoad_MQTTValidation(t *testing.T) {
	path := writeTempConfig(t, "mqtt:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "mqtt.broker is required when mqtt.enable is true")

	path = writeTempConfig(t, "mqtt:\n  enable: true\n  broker: tcp://localhost:1883\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MQTT.Topic != "wifitrk/position" || cfg.MQTT.ClientID != "wifitrk-ng" {
		t.Fatalf("mqtt defaults: %+v", cfg.MQTT)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeTempConfig(t, `
wifi:
  interface: wlan0
geo:
  provider: google
  api_key: abc123
  max_accuracy_m: 150
  sort_by_rssi: true
aprs:
  enable: true
  callsign: N0CALL-9
  object: Car
  comment: on the move
  altitude_m: 90
beacon:
  geo_interval: 15s
  min_interval: 30s
  max_interval: 5m
  step: 15s
nmea:
  tcp_listen: ":10110"
  udp_dest: "192.168.10.255:10110"
ntp:
  server: ro.pool.ntp.org
web:
  listen: ":8080"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.WiFi.Interface != "wlan0" {
		t.Fatalf("interface=%q", cfg.WiFi.Interface)
	}
	if cfg.Geo.Provider != "google" || cfg.Geo.MaxAccuracyM != 150 || !cfg.Geo.SortByRSSI {
		t.Fatalf("geo=%+v", cfg.Geo)
	}
	if cfg.APRS.Object != "Car" || cfg.APRS.AltitudeM != 90 {
		t.Fatalf("aprs=%+v", cfg.APRS)
	}
	if cfg.Beacon.GeoInterval.Std() != 15*time.Second || cfg.Beacon.Step.Std() != 15*time.Second {
		t.Fatalf("beacon=%+v", cfg.Beacon)
	}
	if cfg.NMEA.TCPListen != ":10110" || cfg.NMEA.UDPDest != "192.168.10.255:10110" {
		t.Fatalf("nmea=%+v", cfg.NMEA)
	}
	if cfg.Web.Listen != ":8080" {
		t.Fatalf("web=%+v", cfg.Web)
	}
}
