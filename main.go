package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/blelink/link"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port the Bluetooth module is attached to")
	flag.Int("baud-rate", 9600, "Baud rate of the module UART")
	flag.String("peer-address", "", "Address of the peer to connect to (e.g. D03972A5F1C2)")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("log-format", "json", "Log format (json, text)")
	flag.Duration("poll-interval", 50*time.Millisecond, "Link poll interval")
	flag.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883), empty disables MQTT")
	flag.String("mqtt-topic", "blelink", "MQTT topic prefix")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stderr, config.LogLevel, config.LogFormat)

	linkConfig, err := link.NewConfigBuilder().
		WithDialer(link.SerialDialer{
			PortName: config.SerialPort,
			Mode: &serial.Mode{
				BaudRate: config.BaudRate,
				DataBits: 8,
				Parity:   serial.NoParity,
				StopBits: serial.OneStopBit,
			},
			Logger: logger.With("component", "serial"),
		}).
		WithPeerAddress(config.PeerAddress).
		WithLogger(logger.With("component", "link")).
		Build()
	if err != nil {
		logger.Error("Failed to create link config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := link.New(ctx, linkConfig)
	if err != nil {
		logger.Error("Failed to open link", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting BLE link bridge", "serial_port", config.SerialPort, "peer", config.PeerAddress)

	bridge := NewBridge(driver, logger.With("component", "bridge"), config.PollInterval, 16)

	var mq *MQTTBridge
	if config.MQTT.Broker != "" {
		mq = NewMQTTBridge(config.MQTT, bridge, logger.With("component", "mqtt"))
		bridge.AddSink(mq)
		go func() {
			if err := mq.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MQTT connect failed", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Bridge: bridge,
		},
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// The driver is owned by this goroutine from here on.
	if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Bridge stopped", "error", err)
	}
	logger.Info("Received shutdown signal")

	if mq != nil {
		mq.Disconnect()
	}

	logger.Info("Closing link")
	if err := driver.Close(); err != nil {
		logger.Error("Failed to close link", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}
