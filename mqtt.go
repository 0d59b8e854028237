package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTBridge mirrors the link to a broker: the status is published retained
// on <topic>/status, received payload on <topic>/rx, and payload arriving
// on <topic>/tx is queued for the peer.
type MQTTBridge struct {
	client mqtt.Client
	topic  string
	bridge *Bridge
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMQTTBridge creates a client for cfg. It does not connect.
func NewMQTTBridge(cfg MQTTConfig, b *Bridge, logger *slog.Logger) *MQTTBridge {
	m := newMQTTBridge(nil, cfg.Topic, b, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("MQTT connected", "broker", cfg.Broker)
		m.subscribe(c)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	m.client = mqtt.NewClient(opts)
	return m
}

func newMQTTBridge(client mqtt.Client, topic string, b *Bridge, logger *slog.Logger) *MQTTBridge {
	return &MQTTBridge{
		client: client,
		topic:  topic,
		bridge: b,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Connect waits for the first broker connection. The client keeps retrying
// in the background until ctx is done or Disconnect is called.
func (m *MQTTBridge) Connect(ctx context.Context) error {
	token := m.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return errors.New("mqtt: client stopped")
		default:
		}
	}
}

// Disconnect stops the client. Safe to call more than once.
func (m *MQTTBridge) Disconnect() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.client.Disconnect(250)
	m.logger.Info("MQTT disconnected")
}

func (m *MQTTBridge) subscribe(c mqtt.Client) {
	topic := m.topic + "/tx"
	token := c.Subscribe(topic, 1, m.handleTx)
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			m.logger.Warn("MQTT subscribe timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			m.logger.Error("MQTT subscribe failed", "topic", topic, "error", err)
		}
	}()
}

func (m *MQTTBridge) handleTx(_ mqtt.Client, msg mqtt.Message) {
	p := msg.Payload()
	if len(p) == 0 {
		return
	}
	if err := m.bridge.Send(p); err != nil {
		m.logger.Warn("Dropped MQTT payload", "topic", msg.Topic(), "length", len(p), "error", err)
	}
}

// LinkChanged publishes the status retained, so late subscribers see the
// current link.
func (m *MQTTBridge) LinkChanged(status Status) {
	data, err := json.Marshal(status)
	if err != nil {
		m.logger.Error("Failed to marshal status", "error", err)
		return
	}
	m.publish(m.topic+"/status", 1, true, data)
}

// PayloadReceived publishes bytes from the peer as is.
func (m *MQTTBridge) PayloadReceived(p []byte) {
	m.publish(m.topic+"/rx", 0, false, p)
}

// publish does not wait for the broker, so the poll loop never blocks on
// the network.
func (m *MQTTBridge) publish(topic string, qos byte, retained bool, payload []byte) {
	if !m.client.IsConnected() {
		m.logger.Debug("MQTT not connected, dropping message", "topic", topic)
		return
	}
	token := m.client.Publish(topic, qos, retained, payload)
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			m.logger.Warn("MQTT publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			m.logger.Error("MQTT publish failed", "topic", topic, "error", err)
		}
	}()
}
