package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/afroash/vpd-monitor/internal/greenhouse"
	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// AppConfig holds all configuration for the dashboard server
type AppConfig struct {
	Server     ServerSettings     `yaml:"server"`
	Controller ControllerSettings `yaml:"controller"`
	Advisory   AdvisorySettings   `yaml:"advisory"`
	Telemetry  TelemetrySettings  `yaml:"telemetry"`
	Alerts     AlertSettings      `yaml:"alerts"`
	Logging    LoggingConfig      `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"` // empty = operator routes are open
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	DashboardPath  string        `yaml:"dashboard_path"` // empty = built-in page
}

// ControllerSettings contains the simulated greenhouse session settings
type ControllerSettings struct {
	GreenhouseID        string        `yaml:"greenhouse_id"`
	Description         string        `yaml:"description"`
	Hardware            string        `yaml:"hardware"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	HistorySize         int           `yaml:"history_size"`
	InitialStage        string        `yaml:"initial_stage"`
	InitialMode         string        `yaml:"initial_mode"`
	// nil means unset; an explicit 0 is a valid starting value
	InitialTemperature  *float64      `yaml:"initial_temperature"`
	InitialHumidity     *float64      `yaml:"initial_humidity"`
	InitialSoilMoisture *float64      `yaml:"initial_soil_moisture"`
	Seed                uint64        `yaml:"seed"` // 0 = seed from the clock
}

// AdvisorySettings contains the language model settings
type AdvisorySettings struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	TopP        float32       `yaml:"top_p"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TelemetrySettings contains the snapshot publishing settings
type TelemetrySettings struct {
	BatchSize   int           `yaml:"batch_size"`
	FlushPeriod time.Duration `yaml:"flush_period"`
	QueueSize   int           `yaml:"queue_size"`
	MQTT        MQTTSettings  `yaml:"mqtt"`
	Kafka       KafkaSettings `yaml:"kafka"`
}

// MQTTSettings contains MQTT broker settings
type MQTTSettings struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         byte   `yaml:"qos"`
}

// KafkaSettings contains Kafka producer settings
type KafkaSettings struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// AlertSettings contains critical-VPD email settings
type AlertSettings struct {
	Cooldown time.Duration   `yaml:"cooldown"`
	Mailgun  MailgunSettings `yaml:"mailgun"`
}

// MailgunSettings is what Mailgun needs to send an email
type MailgunSettings struct {
	Enabled    bool     `yaml:"enabled"`
	Domain     string   `yaml:"domain"`
	APIKey     string   `yaml:"api_key"`
	Sender     string   `yaml:"sender"`
	Recipients []string `yaml:"recipients"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// LoadAppConfig loads configuration from a YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Default returns a config with only defaults and environment overrides applied
func Default() *AppConfig {
	var config AppConfig
	config.ApplyDefaults()
	config.OverrideFromEnv()
	return &config
}

// ApplyDefaults sets default values for any unset fields
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}

	gh := greenhouse.DefaultConfig()
	if ac.Controller.GreenhouseID == "" {
		ac.Controller.GreenhouseID = gh.GreenhouseID
	}
	if ac.Controller.Description == "" {
		ac.Controller.Description = "a small experimental greenhouse (20x20x30 cm)"
	}
	if ac.Controller.Hardware == "" {
		ac.Controller.Hardware = "ESP32-C3"
	}
	if ac.Controller.TickInterval == 0 {
		ac.Controller.TickInterval = gh.TickInterval
	}
	if ac.Controller.HistorySize == 0 {
		ac.Controller.HistorySize = gh.HistorySize
	}
	if ac.Controller.InitialStage == "" {
		ac.Controller.InitialStage = string(gh.InitialStage)
	}
	if ac.Controller.InitialMode == "" {
		ac.Controller.InitialMode = string(gh.InitialMode)
	}
	if ac.Controller.InitialTemperature == nil {
		ac.Controller.InitialTemperature = Float64(gh.InitialTemperature)
	}
	if ac.Controller.InitialHumidity == nil {
		ac.Controller.InitialHumidity = Float64(gh.InitialHumidity)
	}
	if ac.Controller.InitialSoilMoisture == nil {
		ac.Controller.InitialSoilMoisture = Float64(gh.InitialSoilMoisture)
	}

	if ac.Advisory.Model == "" {
		ac.Advisory.Model = "gemini-3-flash-preview"
	}
	if ac.Advisory.Temperature == 0 {
		ac.Advisory.Temperature = 0.7
	}
	if ac.Advisory.TopP == 0 {
		ac.Advisory.TopP = 0.9
	}
	if ac.Advisory.Timeout == 0 {
		ac.Advisory.Timeout = 60 * time.Second
	}

	if ac.Telemetry.BatchSize == 0 {
		ac.Telemetry.BatchSize = 10
	}
	if ac.Telemetry.FlushPeriod == 0 {
		ac.Telemetry.FlushPeriod = 15 * time.Second
	}
	if ac.Telemetry.QueueSize == 0 {
		ac.Telemetry.QueueSize = 100
	}
	if ac.Telemetry.MQTT.ClientID == "" {
		ac.Telemetry.MQTT.ClientID = "vpd-monitor"
	}
	if ac.Telemetry.MQTT.TopicPrefix == "" {
		ac.Telemetry.MQTT.TopicPrefix = "greenhouse/" + ac.Controller.GreenhouseID
	}
	if ac.Telemetry.Kafka.Topic == "" {
		ac.Telemetry.Kafka.Topic = "greenhouse.snapshots"
	}

	if ac.Alerts.Cooldown == 0 {
		ac.Alerts.Cooldown = 30 * time.Minute
	}

	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables
func (ac *AppConfig) OverrideFromEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			ac.Server.Port = port
		} else {
			fmt.Fprintln(os.Stderr, "Ignoring SERVER_PORT:", err)
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	// API_KEY is accepted for older deployments.
	if v := os.Getenv("API_KEY"); v != "" {
		ac.Advisory.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		ac.Advisory.APIKey = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		ac.Telemetry.MQTT.Broker = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		ac.Telemetry.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("MAILGUN_API_KEY"); v != "" {
		ac.Alerts.Mailgun.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Controller.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("tick interval must be at least 100ms")
	}
	if ac.Controller.HistorySize < 1 {
		return fmt.Errorf("history size must be at least 1")
	}
	if _, err := models.ParseControlMode(ac.Controller.InitialMode); err != nil {
		return fmt.Errorf("initial mode: %w", err)
	}
	if h := ac.Controller.InitialHumidity; h != nil && (*h < 0 || *h > 100) {
		return fmt.Errorf("initial humidity must be between 0 and 100")
	}
	if ac.Advisory.Enabled && ac.Advisory.APIKey == "" {
		return fmt.Errorf("advisory is enabled but no API key is set")
	}
	if ac.Telemetry.BatchSize < 1 {
		return fmt.Errorf("telemetry batch size must be at least 1")
	}
	if ac.Telemetry.MQTT.Enabled && ac.Telemetry.MQTT.Broker == "" {
		return fmt.Errorf("mqtt is enabled but no broker is set")
	}
	if ac.Telemetry.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2")
	}
	if ac.Telemetry.Kafka.Enabled && len(ac.Telemetry.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka is enabled but no brokers are set")
	}
	if mg := ac.Alerts.Mailgun; mg.Enabled {
		if mg.Domain == "" || mg.APIKey == "" || mg.Sender == "" {
			return fmt.Errorf("mailgun requires domain, api key and sender")
		}
		if len(mg.Recipients) == 0 {
			return fmt.Errorf("mailgun requires at least one recipient")
		}
	}
	if _, err := zerolog.ParseLevel(ac.Logging.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if ac.Logging.Format != "json" && ac.Logging.Format != "text" {
		return fmt.Errorf("log format must be json or text")
	}
	return nil
}

// GreenhouseConfig converts the controller section into session settings
func (ac *AppConfig) GreenhouseConfig() greenhouse.Config {
	mode, err := models.ParseControlMode(ac.Controller.InitialMode)
	if err != nil {
		mode = models.ModeAutomatic
	}
	defaults := greenhouse.DefaultConfig()
	return greenhouse.Config{
		GreenhouseID:        ac.Controller.GreenhouseID,
		TickInterval:        ac.Controller.TickInterval,
		HistorySize:         ac.Controller.HistorySize,
		InitialTemperature:  valueOr(ac.Controller.InitialTemperature, defaults.InitialTemperature),
		InitialHumidity:     valueOr(ac.Controller.InitialHumidity, defaults.InitialHumidity),
		InitialSoilMoisture: valueOr(ac.Controller.InitialSoilMoisture, defaults.InitialSoilMoisture),
		InitialStage:        models.GrowthStage(ac.Controller.InitialStage),
		InitialMode:         mode,
	}
}

// Float64 returns a pointer to v, for the optional initial reading fields
func Float64(v float64) *float64 {
	return &v
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// EnclosureDescription is the sentence used in the advisory prompt
func (ac *AppConfig) EnclosureDescription() string {
	if ac.Controller.Hardware == "" {
		return ac.Controller.Description
	}
	return ac.Controller.Description + " using " + ac.Controller.Hardware
}

// String returns a safe string representation (hides secrets)
func (ac *AppConfig) String() string {
	server := ac.Server
	server.AuthToken = maskToken(server.AuthToken)
	advisory := ac.Advisory
	advisory.APIKey = maskToken(advisory.APIKey)
	telemetry := ac.Telemetry
	telemetry.MQTT.Password = maskToken(telemetry.MQTT.Password)
	alerts := ac.Alerts
	alerts.Mailgun.APIKey = maskToken(alerts.Mailgun.APIKey)

	return fmt.Sprintf("AppConfig{Server: %+v, Controller: %+v, Advisory: %+v, Telemetry: %+v, Alerts: %+v, Logging: %+v}",
		server,
		ac.GreenhouseConfig(),
		advisory,
		telemetry,
		alerts,
		ac.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
