package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	WiFi   WiFiConfig   `yaml:"wifi"`
	Geo    GeoConfig    `yaml:"geo"`
	APRS   APRSConfig   `yaml:"aprs"`
	Beacon BeaconConfig `yaml:"beacon"`
	NMEA   NMEAConfig   `yaml:"nmea"`
	NTP    NTPConfig    `yaml:"ntp"`
	Web    WebConfig    `yaml:"web"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

type WiFiConfig struct {
	Interface string `yaml:"interface"`
}

type GeoConfig struct {
	Provider     string `yaml:"provider"`
	APIKey       string `yaml:"api_key"`
	URL          string `yaml:"url"`
	MaxAccuracyM int    `yaml:"max_accuracy_m"`
	SortByRSSI   bool   `yaml:"sort_by_rssi"`
}

type APRSConfig struct {
	Enable    bool    `yaml:"enable"`
	Server    string  `yaml:"server"`
	Port      int     `yaml:"port"`
	Callsign  string  `yaml:"callsign"`
	Passcode  string  `yaml:"passcode"`
	Object    string  `yaml:"object"`
	Comment   string  `yaml:"comment"`
	AltitudeM float64 `yaml:"altitude_m"`
}

type BeaconConfig struct {
	GeoInterval Duration `yaml:"geo_interval"`
	MinInterval Duration `yaml:"min_interval"`
	MaxInterval Duration `yaml:"max_interval"`
	Step        Duration `yaml:"step"`
}

// Duration accepts "20s" style YAML values; a bare integer is taken as
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var i int64
	if err := n.Decode(&i); err == nil {
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", n.Value)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type NMEAConfig struct {
	TCPListen string       `yaml:"tcp_listen"`
	UDPDest   string       `yaml:"udp_dest"`
	Serial    SerialConfig `yaml:"serial"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type NTPConfig struct {
	Server string `yaml:"server"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Geo.Provider == "" {
		cfg.Geo.Provider = "mozilla"
	}
	switch cfg.Geo.Provider {
	case "mozilla", "google", "wigle":
	default:
		return Config{}, fmt.Errorf("geo.provider must be one of mozilla, google, wigle")
	}
	if cfg.Geo.Provider == "wigle" && cfg.Geo.APIKey == "" {
		return Config{}, fmt.Errorf("geo.api_key is required when geo.provider is 'wigle'")
	}
	if cfg.Geo.MaxAccuracyM <= 0 {
		cfg.Geo.MaxAccuracyM = 300
	}

	if cfg.APRS.Enable {
		if cfg.APRS.Callsign == "" {
			return Config{}, fmt.Errorf("aprs.callsign is required when aprs.enable is true")
		}
		if cfg.APRS.Server == "" {
			cfg.APRS.Server = "euro.aprs2.net"
		}
		if cfg.APRS.Port <= 0 {
			cfg.APRS.Port = 14580
		}
	}
	if cfg.APRS.AltitudeM == 0 {
		cfg.APRS.AltitudeM = -1
	}

	// Scheduler defaults (safe even if the section is absent).
	if cfg.Beacon.GeoInterval <= 0 {
		cfg.Beacon.GeoInterval = Duration(20 * time.Second)
	}
	if cfg.Beacon.MinInterval <= 0 {
		cfg.Beacon.MinInterval = Duration(1 * time.Minute)
	}
	if cfg.Beacon.MaxInterval <= 0 {
		cfg.Beacon.MaxInterval = Duration(10 * time.Minute)
	}
	if cfg.Beacon.Step <= 0 {
		cfg.Beacon.Step = Duration(30 * time.Second)
	}
	if cfg.Beacon.MaxInterval < cfg.Beacon.MinInterval {
		return Config{}, fmt.Errorf("beacon.max_interval must not be below beacon.min_interval")
	}

	if cfg.NMEA.Serial.Device != "" && cfg.NMEA.Serial.Baud <= 0 {
		cfg.NMEA.Serial.Baud = 4800
	}

	if cfg.NTP.Server == "" {
		cfg.NTP.Server = "pool.ntp.org"
	}

	if cfg.MQTT.Enable {
		if cfg.MQTT.Broker == "" {
			return Config{}, fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "wifitrk/position"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "wifitrk-ng"
		}
	}

	return cfg, nil
}
