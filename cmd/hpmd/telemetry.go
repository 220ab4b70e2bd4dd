package main

import (
	"fmt"
	"strconv"
	"strings"

	mqtt "github.com/soypat/natiu-mqtt"
	"github.com/soypat/spmi/hpm"
)

// publisher is satisfied by *mqtt.Client.
type publisher interface {
	PublishPayload(flags mqtt.PacketFlags, vp mqtt.VariablesPublish, payload []byte) error
}

// sample is a snapshot of the HPM state.
type sample struct {
	Mode       string
	Version    string
	PowerState uint8
	Events     []int
}

func collect(d *hpm.Dev) (s sample, err error) {
	if s.Mode, err = d.Mode(); err != nil {
		return s, err
	}
	if s.Version, err = d.Version(); err != nil {
		return s, err
	}
	if s.PowerState, err = d.PowerState(); err != nil {
		return s, err
	}
	s.Events, err = d.ReadEvents()
	return s, err
}

type message struct {
	topic   string
	payload []byte
}

func (s sample) messages(prefix string) []message {
	events := make([]string, len(s.Events))
	for i, e := range s.Events {
		events[i] = strconv.Itoa(e)
	}
	return []message{
		{prefix + "/mode", []byte(strings.TrimSpace(s.Mode))},
		{prefix + "/version", []byte(s.Version)},
		{prefix + "/power_state", []byte(strconv.Itoa(int(s.PowerState)))},
		{prefix + "/events", []byte(strings.Join(events, ","))},
	}
}

type telemetry struct {
	pub    publisher
	prefix string
	flags  mqtt.PacketFlags
	vp     mqtt.VariablesPublish
}

func newTelemetry(pub publisher, prefix string) (*telemetry, error) {
	flags, err := mqtt.NewPublishFlags(mqtt.QoS0, false, false)
	if err != nil {
		return nil, err
	}
	return &telemetry{pub: pub, prefix: prefix, flags: flags}, nil
}

// publish sends every message of s. The first failure aborts.
func (t *telemetry) publish(s sample) error {
	for _, m := range s.messages(t.prefix) {
		t.vp.TopicName = []byte(m.topic)
		t.vp.PacketIdentifier++
		if err := t.pub.PublishPayload(t.flags, t.vp, m.payload); err != nil {
			return fmt.Errorf("publishing %s: %w", m.topic, err)
		}
	}
	return nil
}
