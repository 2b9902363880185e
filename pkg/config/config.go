package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/HKUDS/meshgate-go/pkg/radar"
)

// PortList is the serial device setting. It accepts a single path or an
// ordered list of candidates.
type PortList []string

func (p *PortList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = splitPorts(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("serial port must be a string or a list of strings")
	}
	*p = list
	return nil
}

func (p *PortList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*p = splitPorts(node.Value)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("serial port must be a string or a list of strings")
	}
	*p = list
	return nil
}

func splitPorts(s string) PortList {
	var out PortList
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type SerialConfig struct {
	Port           PortList `json:"port" yaml:"port"`
	Baud           int      `json:"baud" yaml:"baud"`
	ReadTimeout    int      `json:"read_timeout" yaml:"read_timeout"`
	ReconnectDelay int      `json:"reconnect_delay" yaml:"reconnect_delay"`
}

type RelayConfig struct {
	CLIPath      string `json:"cli_path" yaml:"cli_path"`
	ChunkSize    int    `json:"chunk_size" yaml:"chunk_size"`
	Timeout      int    `json:"timeout" yaml:"timeout"`
	RetryTimeout int    `json:"retry_timeout" yaml:"retry_timeout"`
	Pause        int    `json:"pause" yaml:"pause"`
}

type LogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	File    string `json:"file" yaml:"file"`
	APIURL  string `json:"api_url" yaml:"api_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type SMTPConfig struct {
	Server   string `json:"server" yaml:"server"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type MailConfig struct {
	SMTP          SMTPConfig `json:"smtp" yaml:"smtp"`
	DefaultSender string     `json:"default_sender" yaml:"default_sender"`
}

type WeatherConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	URL      string `json:"url" yaml:"url"`
}

type SearchConfig struct {
	URL          string `json:"url" yaml:"url"`
	MaxResults   int    `json:"max_results" yaml:"max_results"`
	SummaryWords int    `json:"summary_words" yaml:"summary_words"`
}

type NewsConfig struct {
	FeedURL  string `json:"feed_url" yaml:"feed_url"`
	MaxItems int    `json:"max_items" yaml:"max_items"`
}

type WikiConfig struct {
	URL       string   `json:"url" yaml:"url"`
	Languages []string `json:"languages" yaml:"languages"`
}

type TranslateConfig struct {
	URL string `json:"url" yaml:"url"`
}

// CorrelationConfig tunes radar echo suppression. Offsets and tolerance are
// in seconds.
type CorrelationConfig struct {
	EchoOffsets    []int `json:"echo_offsets" yaml:"echo_offsets"`
	EchoTolerance  int   `json:"echo_tolerance" yaml:"echo_tolerance"`
	EchoMemorySize int   `json:"echo_memory_size" yaml:"echo_memory_size"`
}

type AggregationConfig struct {
	URL string `json:"url" yaml:"url"`
	Key string `json:"key" yaml:"key"`
}

type WarnConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Interval     int    `json:"interval" yaml:"interval"`
	State        string `json:"state" yaml:"state"`
	MinLevel     int    `json:"min_level" yaml:"min_level"`
	DWDURL       string `json:"dwd_url" yaml:"dwd_url"`
	MoWaSURL     string `json:"mowas_url" yaml:"mowas_url"`
	ChannelIndex int    `json:"channel_index" yaml:"channel_index"`
}

type TelegramConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Token   string  `json:"token" yaml:"token"`
	ChatIDs []int64 `json:"chat_ids" yaml:"chat_ids"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type LoggingConfig struct {
	Dir   string `json:"dir" yaml:"dir"`
	Level string `json:"level" yaml:"level"`
}

type SupervisorConfig struct {
	RestartDelay int `json:"restart_delay" yaml:"restart_delay"`
}

type Config struct {
	Serial            SerialConfig              `json:"serial" yaml:"serial"`
	Relay             RelayConfig               `json:"relay" yaml:"relay"`
	Services          map[string]bool           `json:"services" yaml:"services"`
	Log               LogConfig                 `json:"log" yaml:"log"`
	Mail              MailConfig                `json:"mail" yaml:"mail"`
	Weather           WeatherConfig             `json:"weather" yaml:"weather"`
	Search            SearchConfig              `json:"search" yaml:"search"`
	News              NewsConfig                `json:"news" yaml:"news"`
	Wiki              WikiConfig                `json:"wiki" yaml:"wiki"`
	Translate         TranslateConfig           `json:"translate" yaml:"translate"`
	Radar             map[string]radar.Settings `json:"radar" yaml:"radar"`
	RadarChannelIndex int                       `json:"radar_channel_index" yaml:"radar_channel_index"`
	EchoChannelIndex  int                       `json:"echo_channel_index" yaml:"echo_channel_index"`
	Correlation       CorrelationConfig         `json:"correlation" yaml:"correlation"`
	Aggregation       AggregationConfig         `json:"aggregation" yaml:"aggregation"`
	Warn              WarnConfig                `json:"warn" yaml:"warn"`
	Telegram          TelegramConfig            `json:"telegram" yaml:"telegram"`
	Metrics           MetricsConfig             `json:"metrics" yaml:"metrics"`
	Logging           LoggingConfig             `json:"logging" yaml:"logging"`
	Supervisor        SupervisorConfig          `json:"supervisor" yaml:"supervisor"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:           PortList{"/dev/ttyUSB0", "/dev/ttyACM0"},
			Baud:           115200,
			ReadTimeout:    1,
			ReconnectDelay: 5,
		},
		Relay: RelayConfig{
			CLIPath:      "meshtastic",
			ChunkSize:    200,
			Timeout:      15,
			RetryTimeout: 30,
			Pause:        2,
		},
		Services: map[string]bool{},
		Log: LogConfig{
			Enabled: true,
			File:    "messages.jsonl",
		},
		Mail: MailConfig{
			SMTP:          SMTPConfig{Port: 587},
			DefaultSender: "Mesh-Service",
		},
		Weather: WeatherConfig{
			Provider: "wttr.in",
			URL:      "https://wttr.in",
		},
		Search: SearchConfig{
			URL:          "https://html.duckduckgo.com/html/",
			MaxResults:   5,
			SummaryWords: 10,
		},
		News: NewsConfig{
			FeedURL:  "https://www.tagesschau.de/xml/rss2",
			MaxItems: 10,
		},
		Wiki: WikiConfig{
			URL:       "https://%s.wikipedia.org/api/rest_v1/page/summary/",
			Languages: []string{"de", "en"},
		},
		Translate: TranslateConfig{
			URL: "https://translate.googleapis.com/translate_a/single",
		},
		Radar:             map[string]radar.Settings{},
		RadarChannelIndex: 3,
		EchoChannelIndex:  0,
		Correlation: CorrelationConfig{
			EchoOffsets:    []int{3600, 7200, 10800},
			EchoTolerance:  5,
			EchoMemorySize: 60,
		},
		Warn: WarnConfig{
			Enabled:      true,
			Interval:     900,
			State:        "BY",
			MinLevel:     3,
			DWDURL:       "https://warnung.bund.de/bbk.dwd/unwetter.json",
			MoWaSURL:     "https://warnung.bund.de/bbk.mowas/gefahrendurchsagen.json",
			ChannelIndex: 0,
		},
		Logging: LoggingConfig{
			Dir:   filepath.Join(".meshgate", "logs"),
			Level: "info",
		},
		Supervisor: SupervisorConfig{
			RestartDelay: 10,
		},
	}
}

// LoadConfig loads the configuration from the given path. A missing file
// yields the defaults. Files ending in .yaml or .yml are decoded as YAML,
// everything else as JSON. Secrets may be supplied through the environment
// or a .env file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	_ = godotenv.Load()

	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := decode(path, data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(data, config)
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MESHGATE_SERIAL_PORT"); v != "" {
		c.Serial.Port = splitPorts(v)
	}
	if v := os.Getenv("MESHGATE_LOG_API_URL"); v != "" {
		c.Log.APIURL = v
	}
	if v := os.Getenv("MESHGATE_LOG_API_KEY"); v != "" {
		c.Log.APIKey = v
	}
	if v := os.Getenv("MESHGATE_SMTP_PASSWORD"); v != "" {
		c.Mail.SMTP.Password = v
	}
	if v := os.Getenv("MESHGATE_AGGREGATION_KEY"); v != "" {
		c.Aggregation.Key = v
	}
	if v := os.Getenv("MESHGATE_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
}

// Validate checks settings that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if len(c.Serial.Port) == 0 {
		return errors.New("no serial port configured")
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial.read_timeout must be positive, got %d", c.Serial.ReadTimeout)
	}
	if c.Serial.ReconnectDelay <= 0 {
		return fmt.Errorf("serial.reconnect_delay must be positive, got %d", c.Serial.ReconnectDelay)
	}
	if c.Relay.ChunkSize <= 0 {
		return fmt.Errorf("relay.chunk_size must be positive, got %d", c.Relay.ChunkSize)
	}
	if c.Relay.Timeout <= 0 || c.Relay.RetryTimeout <= 0 {
		return errors.New("relay timeouts must be positive")
	}
	if c.Warn.Enabled && c.Warn.Interval <= 0 {
		return fmt.Errorf("warn.interval must be positive, got %d", c.Warn.Interval)
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return errors.New("telegram mirror enabled without a token")
	}
	return nil
}

// LogEnabled reports whether inbound messages are forwarded to the remote
// collector. Logging without an endpoint and key is treated as disabled.
func (c *Config) LogEnabled() bool {
	return c.Log.Enabled && c.Log.APIURL != "" && c.Log.APIKey != ""
}

// RadarTuning converts the correlation settings.
func (c *Config) RadarTuning() radar.Tuning {
	t := radar.Tuning{
		EchoTolerance:  Seconds(c.Correlation.EchoTolerance),
		EchoMemorySize: c.Correlation.EchoMemorySize,
		EchoOffsets:    make([]time.Duration, 0, len(c.Correlation.EchoOffsets)),
	}
	for _, off := range c.Correlation.EchoOffsets {
		t.EchoOffsets = append(t.EchoOffsets, Seconds(off))
	}
	return t
}

// Seconds converts a configured number of seconds.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// SaveConfig writes c as indented JSON to path.
func SaveConfig(path string, c *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
