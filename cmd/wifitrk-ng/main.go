package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"wifitrk-ng/internal/aprs"
	"wifitrk-ng/internal/beacon"
	"wifitrk-ng/internal/config"
	"wifitrk-ng/internal/fanout"
	"wifitrk-ng/internal/geo"
	"wifitrk-ng/internal/geoloc"
	"wifitrk-ng/internal/mqttpub"
	"wifitrk-ng/internal/nmea"
	"wifitrk-ng/internal/ntp"
	"wifitrk-ng/internal/web"
	"wifitrk-ng/internal/wifi"
)

const (
	appName    = "WiFiTrk-NG"
	appVersion = "0.3.0"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./wifitrk.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolver, err := geoloc.New(geoloc.Config{
		Provider: cfg.Geo.Provider,
		APIKey:   cfg.Geo.APIKey,
		URL:      cfg.Geo.URL,
	})
	if err != nil {
		log.Fatalf("geolocation init failed: %v", err)
	}
	scanner := wifi.NewScanner(cfg.WiFi.Interface)
	engine := geo.NewEngine(scanner, resolver, cfg.Geo.MaxAccuracyM)
	clock := ntp.New(cfg.NTP.Server)

	g, ctx := errgroup.WithContext(ctx)

	var sinks []beacon.Sink
	var tcpSrv *fanout.TCPServer
	if cfg.NMEA.TCPListen != "" {
		tcpSrv = fanout.NewTCPServer(cfg.NMEA.TCPListen, []byte(nmea.Welcome(appName, appVersion)))
		sinks = append(sinks, tcpSrv)
		g.Go(func() error { return tcpSrv.Run(ctx) })
	}
	if cfg.NMEA.UDPDest != "" {
		dest, err := wifi.BroadcastDest(cfg.NMEA.UDPDest)
		if err != nil {
			log.Fatalf("udp broadcaster init failed: %v", err)
		}
		b, err := fanout.NewBroadcaster(dest)
		if err != nil {
			log.Fatalf("udp broadcaster init failed: %v", err)
		}
		defer b.Close()
		sinks = append(sinks, b)
	}
	if cfg.NMEA.Serial.Device != "" {
		sw, err := fanout.NewSerialWriter(cfg.NMEA.Serial.Device, cfg.NMEA.Serial.Baud)
		if err != nil {
			log.Fatalf("serial init failed: %v", err)
		}
		defer sw.Close()
		sinks = append(sinks, sw)
	}

	var reporter beacon.Reporter
	var aprsClient *aprs.Client
	if cfg.APRS.Enable {
		aprsClient = aprs.NewClient(aprs.Config{
			Server:   cfg.APRS.Server,
			Port:     cfg.APRS.Port,
			Callsign: cfg.APRS.Callsign,
			Passcode: cfg.APRS.Passcode,
			Object:   cfg.APRS.Object,
			Comment:  cfg.APRS.Comment,
			Name:     appName,
			Version:  appVersion,
		})
		reporter = aprsClient
		log.Printf("aprs reporting as %s via %s:%d", cfg.APRS.Callsign, cfg.APRS.Server, cfg.APRS.Port)
	}

	sched := beacon.New(beacon.Config{
		GeoInterval: cfg.Beacon.GeoInterval.Std(),
		MinInterval: cfg.Beacon.MinInterval.Std(),
		MaxInterval: cfg.Beacon.MaxInterval.Std(),
		Step:        cfg.Beacon.Step.Std(),
		SortByRSSI:  cfg.Geo.SortByRSSI,
		AltitudeM:   cfg.APRS.AltitudeM,
		Comment:     cfg.APRS.Comment,
	}, engine, reporter, clock, sinks...)
	g.Go(func() error { return sched.Run(ctx) })

	if cfg.Web.Listen != "" {
		var seq func() int
		if aprsClient != nil {
			seq = aprsClient.Sequence
		}
		var counter web.ClientCounter
		if tcpSrv != nil {
			counter = tcpSrv
		}
		srv := web.NewServer(cfg.Web.Listen, appName, appVersion, sched, clock, counter, seq)
		g.Go(func() error { return srv.Run(ctx) })
		log.Printf("status api on %s", cfg.Web.Listen)
	}

	if cfg.MQTT.Enable {
		pub := mqttpub.New(mqttpub.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, sched)
		g.Go(func() error { return pub.Run(ctx) })
	}

	log.Printf("%s %s starting, provider=%s", appName, appVersion, cfg.Geo.Provider)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%s stopped: %v", appName, err)
	}
	log.Printf("%s stopping", appName)
}
