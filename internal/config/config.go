// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// IMU serial link
	IMUSerialPort    string
	IMUBaudRate      int
	IMUPollInterval  time.Duration
	IMUReadTimeout   time.Duration
	IMUSimulate      bool
	IMUStatsInterval time.Duration

	// MQTT
	MQTTBroker            string
	MQTTClientIDPublisher string
	MQTTClientIDConsole   string
	MQTTClientIDWeb       string
	MQTTQoS               byte

	// Topics
	TopicIMU string
	TopicMag string

	// Web Server
	WebServerPort int

	// Logging
	LogLevel  slog.Level
	LogFormat string // "text" or "json"
}

// Package-level singleton, set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
	initErr      error
)

// Default returns a Config with every optional key at its default.
// MQTT_BROKER has no default; see RequireBroker.
func Default() *Config {
	return &Config{
		IMUSerialPort:    "/dev/ttyACM1",
		IMUBaudRate:      38400,
		IMUPollInterval:  time.Millisecond,
		IMUReadTimeout:   100 * time.Millisecond,
		IMUStatsInterval: 10 * time.Second,

		MQTTClientIDPublisher: "imu_publisher",
		MQTTClientIDConsole:   "imu_console",
		MQTTClientIDWeb:       "imu_web",
		MQTTQoS:               0,

		TopicIMU: "imu/data_raw",
		TopicMag: "mag/data_raw",

		WebServerPort: 8080,

		LogLevel:  slog.LevelInfo,
		LogFormat: "text",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// IMU serial link
	case "IMU_SERIAL_PORT":
		c.IMUSerialPort = value
	case "IMU_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_BAUD_RATE %q: %w", value, err)
		}
		c.IMUBaudRate = rate
	case "IMU_POLL_INTERVAL_US":
		us, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_POLL_INTERVAL_US %q: %w", value, err)
		}
		if us <= 0 {
			return fmt.Errorf("IMU_POLL_INTERVAL_US must be > 0, got %d", us)
		}
		c.IMUPollInterval = time.Duration(us) * time.Microsecond
	case "IMU_READ_TIMEOUT_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_READ_TIMEOUT_MS %q: %w", value, err)
		}
		if ms < 0 {
			return fmt.Errorf("IMU_READ_TIMEOUT_MS must be >= 0, got %d", ms)
		}
		c.IMUReadTimeout = time.Duration(ms) * time.Millisecond
	case "IMU_SIMULATE":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SIMULATE %q: %w", value, err)
		}
		c.IMUSimulate = b
	case "IMU_STATS_INTERVAL":
		sec, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_STATS_INTERVAL %q: %w", value, err)
		}
		if sec < 0 {
			return fmt.Errorf("IMU_STATS_INTERVAL must be >= 0, got %d", sec)
		}
		c.IMUStatsInterval = time.Duration(sec) * time.Second

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PUBLISHER":
		c.MQTTClientIDPublisher = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_QOS":
		qos, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_QOS %q: %w", value, err)
		}
		if qos < 0 || qos > 2 {
			return fmt.Errorf("MQTT_QOS must be 0-2, got %d", qos)
		}
		c.MQTTQoS = byte(qos)

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_MAG":
		c.TopicMag = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Logging
	case "LOG_LEVEL":
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", value, err)
		}
		c.LogLevel = level
	case "LOG_FORMAT":
		switch strings.ToLower(value) {
		case "text", "json":
			c.LogFormat = strings.ToLower(value)
		default:
			return fmt.Errorf("LOG_FORMAT must be text or json, got %q", value)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if !c.IMUSimulate && c.IMUSerialPort == "" {
		return fmt.Errorf("IMU_SERIAL_PORT is required")
	}
	if c.IMUBaudRate <= 0 {
		return fmt.Errorf("IMU_BAUD_RATE must be > 0")
	}
	if c.TopicIMU == "" || c.TopicMag == "" {
		return fmt.Errorf("TOPIC_IMU and TOPIC_MAG are required")
	}
	if c.TopicIMU == c.TopicMag {
		return fmt.Errorf("TOPIC_IMU and TOPIC_MAG must differ, both %q", c.TopicIMU)
	}
	return nil
}

// RequireBroker reports an error when MQTT_BROKER is unset. Only the
// binaries that talk to a broker call it.
func (c *Config) RequireBroker() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls return the first call's error.
func InitGlobal(configPath string) error {
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, initErr = Load(configPath)
	})
	return initErr
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
