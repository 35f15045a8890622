package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Acquisition source: "iis3dwb", "serial" or "mock".
	Source string

	// IIS3DWB over SPI
	AccelSPIDevice string
	AccelFullScaleG int // 2, 4, 8 or 16
	AccelWatermark  int // FIFO entries drained per cycle

	// Serial frontend
	SerialPort     string
	SerialBaudRate int
	SerialRateHz   float64
	SerialWatermark int

	// Mock source
	MockRateHz    float64
	MockWatermark int

	// Sample store
	StoreCapacity int

	// Acquisition loop timing
	AcqPeriodUS       int // 0 derives the period from the decoder
	AcqRetryBackoffMS int

	// Consumers
	AnalyticsIntervalMS int
	BroadcastIntervalMS int

	// MQTT
	MQTTBroker          string
	MQTTClientIDMonitor string
	MQTTClientIDConsole string
	TopicSample         string
	TopicStats          string
	TopicTilt           string

	// Web server
	WebServerPort    int
	ExportMaxSamples int // cap for /export and /api/recent; 0 = store capacity

	// Archive (empty path disables)
	ArchiveDBPath     string
	ArchiveIntervalMS int
	ArchiveBatchMax   int

	// Display
	DisplayEnabled          bool
	DisplayI2CAddr          uint16
	DisplayUpdateIntervalMS int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot access it directly.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
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

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Source
	case "SOURCE":
		switch value {
		case "iis3dwb", "serial", "mock":
			c.Source = value
		default:
			return fmt.Errorf("SOURCE must be iis3dwb, serial or mock, got %q", value)
		}

	// IIS3DWB
	case "ACCEL_SPI_DEVICE":
		c.AccelSPIDevice = value
	case "ACCEL_FULL_SCALE_G":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_FULL_SCALE_G %q: %w", value, err)
		}
		if val != 2 && val != 4 && val != 8 && val != 16 {
			return fmt.Errorf("ACCEL_FULL_SCALE_G must be 2, 4, 8 or 16, got %d", val)
		}
		c.AccelFullScaleG = val
	case "ACCEL_WATERMARK":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACCEL_WATERMARK %q: %w", value, err)
		}
		if val < 1 || val > 511 {
			return fmt.Errorf("ACCEL_WATERMARK must be 1-511, got %d", val)
		}
		c.AccelWatermark = val

	// Serial frontend
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate
	case "SERIAL_RATE_HZ":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_RATE_HZ %q: %w", value, err)
		}
		c.SerialRateHz = rate
	case "SERIAL_WATERMARK":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_WATERMARK %q: %w", value, err)
		}
		c.SerialWatermark = val

	// Mock source
	case "MOCK_RATE_HZ":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MOCK_RATE_HZ %q: %w", value, err)
		}
		c.MockRateHz = rate
	case "MOCK_WATERMARK":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MOCK_WATERMARK %q: %w", value, err)
		}
		c.MockWatermark = val

	// Store
	case "STORE_CAPACITY":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STORE_CAPACITY %q: %w", value, err)
		}
		if val < 1 {
			return fmt.Errorf("STORE_CAPACITY must be at least 1, got %d", val)
		}
		c.StoreCapacity = val

	// Timing
	case "ACQ_PERIOD_US":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACQ_PERIOD_US %q: %w", value, err)
		}
		c.AcqPeriodUS = val
	case "ACQ_RETRY_BACKOFF_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ACQ_RETRY_BACKOFF_MS %q: %w", value, err)
		}
		c.AcqRetryBackoffMS = val
	case "ANALYTICS_INTERVAL_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ANALYTICS_INTERVAL_MS %q: %w", value, err)
		}
		c.AnalyticsIntervalMS = val
	case "BROADCAST_INTERVAL_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BROADCAST_INTERVAL_MS %q: %w", value, err)
		}
		c.BroadcastIntervalMS = val

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "TOPIC_STATS":
		c.TopicStats = value
	case "TOPIC_TILT":
		c.TopicTilt = value

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "EXPORT_MAX_SAMPLES":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid EXPORT_MAX_SAMPLES %q: %w", value, err)
		}
		c.ExportMaxSamples = val

	// Archive
	case "ARCHIVE_DB_PATH":
		c.ArchiveDBPath = value
	case "ARCHIVE_INTERVAL_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ARCHIVE_INTERVAL_MS %q: %w", value, err)
		}
		c.ArchiveIntervalMS = val
	case "ARCHIVE_BATCH_MAX":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ARCHIVE_BATCH_MAX %q: %w", value, err)
		}
		c.ArchiveBatchMax = val

	// Display
	case "DISPLAY_ENABLED":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = enabled
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL_MS %q: %w", value, err)
		}
		c.DisplayUpdateIntervalMS = val

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.Source == "" {
		return fmt.Errorf("SOURCE is required")
	}
	if c.Source == "iis3dwb" {
		if c.AccelSPIDevice == "" {
			return fmt.Errorf("ACCEL_SPI_DEVICE is required for SOURCE=iis3dwb")
		}
		if c.AccelFullScaleG == 0 {
			return fmt.Errorf("ACCEL_FULL_SCALE_G is required for SOURCE=iis3dwb")
		}
		if c.AccelWatermark == 0 {
			return fmt.Errorf("ACCEL_WATERMARK is required for SOURCE=iis3dwb")
		}
	}
	if c.Source == "serial" {
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for SOURCE=serial")
		}
		if c.SerialBaudRate == 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required for SOURCE=serial")
		}
	}
	if c.StoreCapacity == 0 {
		return fmt.Errorf("STORE_CAPACITY is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.AnalyticsIntervalMS == 0 {
		return fmt.Errorf("ANALYTICS_INTERVAL_MS is required")
	}
	if c.BroadcastIntervalMS == 0 {
		return fmt.Errorf("BROADCAST_INTERVAL_MS is required")
	}
	if c.WebServerPort == 0 {
		return fmt.Errorf("WEB_SERVER_PORT is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
