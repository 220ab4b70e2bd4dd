// Command hpmd periodically publishes the state of the USB-PD controller
// (HPM) to an MQTT broker.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/spmi/internal/board"
)

func main() {
	var cfg board.SetupConfig
	cfg.RegisterFlags(flag.CommandLine)
	broker := flag.String("broker", "test.mosquitto.org:1883", "MQTT broker address.")
	clientID := flag.String("id", "hpmd", "MQTT client identifier.")
	prefix := flag.String("topic", "hpm", "Topic prefix. The HPM name is appended.")
	interval := flag.Duration("interval", 5*time.Second, "Publishing interval.")
	verbose := flag.Bool("v", false, "Verbose logging.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg.Logger = logger

	b, err := board.Setup(cfg)
	if err != nil {
		logger.Error("hpmd:setup-failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	d := daemon{
		board:    b,
		logger:   logger,
		broker:   *broker,
		clientID: []byte(*clientID),
		topic:    *prefix + "/" + b.Name,
		interval: *interval,
	}
	d.loop(ctx)
}

type daemon struct {
	board    *board.Board
	logger   *slog.Logger
	broker   string
	clientID []byte
	topic    string
	interval time.Duration
}

// loop connects to the broker and publishes until ctx is done, reconnecting
// on failure.
func (d *daemon) loop(ctx context.Context) {
	cfg := mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			d.logger.Debug("mqtt:received", slog.String("topic", string(varPub.TopicName)))
			return nil
		},
	}
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT(d.clientID)
	client := mqtt.NewClient(cfg)
	for ctx.Err() == nil {
		err := d.session(ctx, client, &varconn)
		d.logger.Error("mqtt:disconnected", slog.Any("reason", err))
		select {
		case <-ctx.Done():
		case <-time.After(d.interval):
		}
	}
}

func (d *daemon) session(ctx context.Context, client *mqtt.Client, varconn *mqtt.VariablesConnect) error {
	d.logger.Info("mqtt:start-connecting", slog.String("broker", d.broker))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err = client.StartConnect(conn, varconn); err != nil {
		return err
	}
	for retries := 50; retries > 0 && !client.IsConnected(); retries-- {
		if err = client.HandleNext(); err != nil {
			return err
		}
	}
	if !client.IsConnected() {
		return errors.Join(errors.New("mqtt connect failed"), client.Err())
	}
	d.logger.Info("mqtt:connected", slog.String("topic", d.topic))

	t, err := newTelemetry(client, d.topic)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for client.IsConnected() {
		s, err := collect(d.board.HPM)
		if err != nil {
			d.logger.Error("hpmd:collect-failed", slog.String("err", err.Error()))
		} else {
			conn.SetDeadline(time.Now().Add(5 * time.Second))
			if err := t.publish(s); err != nil {
				return err
			}
			d.logger.Debug("hpmd:published", slog.Int("power_state", int(s.PowerState)), slog.Int("events", len(s.Events)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return client.Err()
}
