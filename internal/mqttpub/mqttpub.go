// Package mqttpub publishes position snapshots to an MQTT broker, for
// home-automation dashboards that cannot speak APRS or NMEA.
package mqttpub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"wifitrk-ng/internal/beacon"
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	// Interval between publishes; defaults to a minute.
	Interval time.Duration
}

type Publisher struct {
	cfg    Config
	source interface{ Snapshot() beacon.Snapshot }
	client mqtt.Client

	// newClient builds the broker client, injectable for tests.
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

func New(cfg Config, source interface{ Snapshot() beacon.Snapshot }) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Publisher{cfg: cfg, source: source, newClient: mqtt.NewClient}
}

// Run publishes the tracker snapshot on every interval until the context
// is canceled. A broker that is down never stops the tracker: a failed
// connect is retried on the next tick, and paho reconnects on its own
// once the first connect has succeeded. Publishes are retained so a
// dashboard joining late still sees the last position.
func (p *Publisher) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetAutoReconnect(true)

	p.client = p.newClient(opts)
	defer p.client.Disconnect(250)
	connected := p.connect()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !connected {
				connected = p.connect()
				continue
			}
			p.publish()
		}
	}
}

// connect attempts one broker connection, logging failure instead of
// returning it.
func (p *Publisher) connect() bool {
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("mqttpub: connect %s: %v", p.cfg.Broker, token.Error())
		return false
	}
	log.Printf("mqttpub: connected to %s, topic %s", p.cfg.Broker, p.cfg.Topic)
	return true
}

func (p *Publisher) publish() {
	snap := p.source.Snapshot()
	if !snap.Fix.Valid {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("mqttpub: marshal: %v", err)
		return
	}
	token := p.client.Publish(p.cfg.Topic, 0, true, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("mqttpub: publish: %v", err)
	}
}
