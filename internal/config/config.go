// Package config loads the daemon configuration from a YAML file.
//
// Every field is optional; Defaults holds the standard timings. Load applies
// defaults, decodes the file over them and validates the result. Timings are
// fixed once the daemon starts.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Link      LinkConfig      `yaml:"link"`
	KeepAlive KeepAliveConfig `yaml:"keepalive"`
	Transmit  TransmitConfig  `yaml:"transmit"`
	Pattern   PatternConfig   `yaml:"pattern"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Diag      DiagConfig      `yaml:"diag"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// ---- LINK ----

type LinkConfig struct {
	Port             string `yaml:"port"`
	Baud             int    `yaml:"baud"`
	ReceiveTimeoutMs int    `yaml:"receive_timeout_ms"`
	ChannelSize      int    `yaml:"channel_size"` // power of two
	HighWater        int    `yaml:"high_water"`
	LineCapacity     int    `yaml:"line_capacity"`
}

// ---- KEEP-ALIVE ----

type KeepAliveConfig struct {
	IntervalMs        int `yaml:"interval_ms"`
	JitterMs          int `yaml:"jitter_ms"`
	ResponseTimeoutMs int `yaml:"response_timeout_ms"`
}

// ---- TRANSMIT ----

type TransmitConfig struct {
	Attempts     int `yaml:"attempts"`
	RetryDelayMs int `yaml:"retry_delay_ms"`
}

// ---- PATTERN ----

type PatternConfig struct {
	Chip       string `yaml:"chip"`
	PinA       int    `yaml:"pin_a"`
	PinB       int    `yaml:"pin_b"`
	PeriodMs   int    `yaml:"period_ms"`
	TimerQueue int    `yaml:"timer_queue"`
}

// ---- WATCHDOG ----

type WatchdogConfig struct {
	CheckPeriodMs      int `yaml:"check_period_ms"`
	ProcessorTimeoutMs int `yaml:"processor_timeout_ms"`
	LogSinkTimeoutMs   int `yaml:"log_sink_timeout_ms"`
	TimerTimeoutMs     int `yaml:"timer_timeout_ms"`
}

// ---- DIAGNOSTIC OUTPUT ----

type DiagConfig struct {
	Port       string `yaml:"port"` // empty logs through glog
	Baud       int    `yaml:"baud"`
	QueueDepth int    `yaml:"queue_depth"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker      string `yaml:"broker"` // empty disables publishing
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// ---- HTTP ----

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// Defaults returns the configuration used when a field is not set.
func Defaults() Config {
	return Config{
		Link: LinkConfig{
			Port:             "/dev/ttyAMA0",
			Baud:             115200,
			ReceiveTimeoutMs: 100,
			ChannelSize:      128,
			HighWater:        64,
			LineCapacity:     64,
		},
		KeepAlive: KeepAliveConfig{
			IntervalMs:        10000,
			JitterMs:          2000,
			ResponseTimeoutMs: 1000,
		},
		Transmit: TransmitConfig{
			Attempts:     3,
			RetryDelayMs: 10,
		},
		Pattern: PatternConfig{
			Chip:       "gpiochip0",
			PinA:       12,
			PinB:       13,
			PeriodMs:   100,
			TimerQueue: 10,
		},
		Watchdog: WatchdogConfig{
			CheckPeriodMs:      1000,
			ProcessorTimeoutMs: 5000,
			LogSinkTimeoutMs:   5000,
			TimerTimeoutMs:     5000,
		},
		Diag: DiagConfig{
			Baud:       115200,
			QueueDepth: 5,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "ledlink",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Defaults()
		return &cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Ms converts a millisecond field to a duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
