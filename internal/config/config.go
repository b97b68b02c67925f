package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicSensor   string
	TopicHumidity string
	TopicErrors   string

	// Sensor hardware
	// Driver: "bme280", "dht22" or "mock"
	SensorDriver string
	DHTPin       string

	// BME280: interface "i2c" or "spi"
	BME280Interface    string
	BME280I2CBus       string
	BME280I2CAddr      uint16
	BME280SPIDevice    string
	BME280Oversampling int // 1, 2, 4, 8 or 16

	// Timing
	SampleInterval int // milliseconds
	ReadTimeout    int // milliseconds

	// Web Server
	WebServerPort     int
	MetricsListenAddr string

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Logging: logrus level name
	LogLevel string
}

// Global configuration instance.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional key set.
func Default() *Config {
	return &Config{
		MQTTClientIDProducer:  "raspberrysensor-producer",
		MQTTClientIDConsole:   "raspberrysensor-console",
		MQTTClientIDWeb:       "raspberrysensor-web",
		MQTTClientIDDisplay:   "raspberrysensor-display",
		TopicSensor:           "raspberrysensor/sensor",
		TopicHumidity:         "raspberrysensor/humidity",
		TopicErrors:           "raspberrysensor/errors",
		DHTPin:                "4",
		BME280Interface:       "i2c",
		BME280I2CBus:          "1",
		BME280I2CAddr:         0x76,
		BME280Oversampling:    4,
		ReadTimeout:           5000,
		WebServerPort:         8080,
		MetricsListenAddr:     ":9100",
		DisplayI2CBus:         "1",
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
		LogLevel:              "info",
	}
}

// Load reads the configuration file and returns a Config struct.
// Files ending in .yaml or .yml hold a mapping of the same keys; anything
// else is parsed as KEY=VALUE lines.
func Load(configPath string) (*Config, error) {
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return loadYAML(configPath)
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
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

func loadYAML(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Sorted so that errors are reported deterministically.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := Default()
	for _, k := range keys {
		v := raw[k]
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			return nil, fmt.Errorf("config key %q: expected a scalar value", k)
		}
		value := ""
		if v != nil {
			value = fmt.Sprint(v)
		}
		if err := cfg.setValue(strings.ToUpper(k), value); err != nil {
			return nil, fmt.Errorf("config key %q: %w", k, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_SENSOR":
		c.TopicSensor = value
	case "TOPIC_HUMIDITY":
		c.TopicHumidity = value
	case "TOPIC_ERRORS":
		c.TopicErrors = value

	// Sensor hardware
	case "SENSOR_DRIVER":
		switch value {
		case "bme280", "dht22", "mock":
			c.SensorDriver = value
		default:
			return fmt.Errorf("SENSOR_DRIVER must be bme280, dht22 or mock, got %q", value)
		}
	case "DHT_PIN":
		c.DHTPin = value

	// BME280
	case "BME280_INTERFACE":
		if value != "i2c" && value != "spi" {
			return fmt.Errorf("BME280_INTERFACE must be i2c or spi, got %q", value)
		}
		c.BME280Interface = value
	case "BME280_I2C_BUS":
		c.BME280I2CBus = value
	case "BME280_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid BME280_I2C_ADDR %q: %w", value, err)
		}
		if addr != 0x76 && addr != 0x77 {
			return fmt.Errorf("BME280_I2C_ADDR must be 0x76 or 0x77, got 0x%02X", addr)
		}
		c.BME280I2CAddr = uint16(addr)
	case "BME280_SPI_DEVICE":
		c.BME280SPIDevice = value
	case "BME280_OVERSAMPLING":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BME280_OVERSAMPLING %q: %w", value, err)
		}
		switch val {
		case 1, 2, 4, 8, 16:
			c.BME280Oversampling = val
		default:
			return fmt.Errorf("BME280_OVERSAMPLING must be 1, 2, 4, 8 or 16, got %d", val)
		}

	// Timing
	case "SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.SampleInterval = interval
	case "READ_TIMEOUT":
		timeout, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid READ_TIMEOUT %q: %w", value, err)
		}
		if timeout <= 0 {
			return fmt.Errorf("READ_TIMEOUT must be positive, got %d", timeout)
		}
		c.ReadTimeout = timeout

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "METRICS_LISTEN_ADDR":
		c.MetricsListenAddr = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.SensorDriver == "" {
		return fmt.Errorf("SENSOR_DRIVER is required")
	}
	if c.SensorDriver == "dht22" && c.DHTPin == "" {
		return fmt.Errorf("DHT_PIN is required for the dht22 driver")
	}
	if c.SensorDriver == "bme280" && c.BME280Interface == "spi" && c.BME280SPIDevice == "" {
		return fmt.Errorf("BME280_SPI_DEVICE is required when BME280_INTERFACE=spi")
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL is required")
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
