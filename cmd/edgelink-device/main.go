// Command edgelink-device is a reference EdgeLink device client.
//
// It establishes an authenticated session, opens the realtime channel,
// and publishes simulated sensor readings until interrupted.
//
// Usage:
//
//	edgelink-device [flags]
//
// Flags:
//
//	-config string      Configuration file path
//	-api string         Management API base URL
//	-realtime string    Realtime endpoint address (host:port)
//	-device-id string   Device identifier (default: generated)
//	-interval duration  Reading publish interval (default 10s)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Start with a config file
//	edgelink-device -config /etc/edgelink/device.yaml
//
//	# Start against a local stack with verbose logging
//	edgelink-device -api http://localhost:8080 -realtime localhost:8443 -log-level debug
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgelink-io/edgelink-go/pkg/channel"
	"github.com/edgelink-io/edgelink-go/pkg/config"
	"github.com/edgelink-io/edgelink-go/pkg/device"
	"github.com/edgelink-io/edgelink-go/pkg/sdk"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		apiURL     = flag.String("api", "", "Management API base URL")
		realtime   = flag.String("realtime", "", "Realtime endpoint address (host:port)")
		deviceID   = flag.String("device-id", "", "Device identifier")
		interval   = flag.Duration("interval", 10*time.Second, "Reading publish interval")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	cfg, err := loadConfig(*configPath, *apiURL, *realtime, *deviceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	client, err := sdk.New(cfg, sdk.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("device starting",
		"deviceID", client.DeviceID(),
		"api", cfg.APIURL,
		"realtime", cfg.RealtimeAddress)

	ch := client.Channel()
	if ch != nil {
		ch.OnStateChange(func(oldState, newState channel.State) {
			logger.Info("channel state changed", "from", oldState, "to", newState)
		})
		ch.OnSecurityEvent(func(err error) {
			logger.Error("channel security event", "error", err)
		})
		ch.OnBackpressureDropped(func([]byte) {
			logger.Warn("reading dropped, outbound buffer full")
		})

		if err := client.Connect(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ticker.C:
			data := simulatedReading(time.Since(start))
			if err := client.SendData(data); err != nil {
				logger.Warn("failed to publish reading", "error", err)
			}
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig)
			if err := client.Close(); err != nil {
				logger.Warn("shutdown incomplete", "error", err)
			}
			return
		}
	}
}

// loadConfig builds the client config from a file and flag overrides.
func loadConfig(path, apiURL, realtime, deviceID string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.New(apiURL)
	}

	if apiURL != "" {
		cfg.APIURL = apiURL
	}
	if realtime != "" {
		cfg.RealtimeAddress = realtime
	}
	if deviceID != "" {
		cfg.DeviceID = deviceID
	}
	return cfg, cfg.Validate()
}

// simulatedReading produces a slowly oscillating temperature reading.
func simulatedReading(elapsed time.Duration) *device.Data {
	temp := 21.0 + 3.0*math.Sin(elapsed.Seconds()/60.0)
	return device.NewData(device.StatusOnline).
		WithReading("temperature", math.Round(temp*10)/10).
		WithReading("uptime_seconds", int64(elapsed.Seconds()))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
