package config

import (
	"errors"
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only and never mutates cfg.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	positive := func(name string, v int) {
		if v <= 0 {
			fail("%s must be positive, got %d", name, v)
		}
	}

	// ---- link ----
	l := cfg.Link
	if l.Port == "" {
		fail("link.port is required")
	}
	positive("link.baud", l.Baud)
	positive("link.receive_timeout_ms", l.ReceiveTimeoutMs)
	if l.ChannelSize < 2 || l.ChannelSize&(l.ChannelSize-1) != 0 {
		fail("link.channel_size must be a power of two >= 2, got %d", l.ChannelSize)
	}
	if l.HighWater <= 0 || l.HighWater > l.ChannelSize {
		fail("link.high_water must be in 1..%d, got %d", l.ChannelSize, l.HighWater)
	}
	if l.LineCapacity < 16 || l.LineCapacity > 1024 {
		fail("link.line_capacity must be in 16..1024, got %d", l.LineCapacity)
	}

	// ---- keep-alive ----
	k := cfg.KeepAlive
	positive("keepalive.interval_ms", k.IntervalMs)
	if k.JitterMs < 0 {
		fail("keepalive.jitter_ms must not be negative, got %d", k.JitterMs)
	}
	positive("keepalive.response_timeout_ms", k.ResponseTimeoutMs)
	if k.ResponseTimeoutMs >= k.IntervalMs {
		fail("keepalive.response_timeout_ms (%d) must be shorter than interval_ms (%d)", k.ResponseTimeoutMs, k.IntervalMs)
	}

	// ---- transmit ----
	if cfg.Transmit.Attempts < 1 || cfg.Transmit.Attempts > 10 {
		fail("transmit.attempts must be in 1..10, got %d", cfg.Transmit.Attempts)
	}
	if cfg.Transmit.RetryDelayMs < 0 {
		fail("transmit.retry_delay_ms must not be negative, got %d", cfg.Transmit.RetryDelayMs)
	}

	// ---- pattern ----
	p := cfg.Pattern
	if p.Chip == "" {
		fail("pattern.chip is required")
	}
	if p.PinA < 0 || p.PinB < 0 {
		fail("pattern pins must not be negative, got %d and %d", p.PinA, p.PinB)
	}
	if p.PinA == p.PinB {
		fail("pattern.pin_a and pattern.pin_b must differ, both %d", p.PinA)
	}
	positive("pattern.period_ms", p.PeriodMs)
	positive("pattern.timer_queue", p.TimerQueue)

	// ---- watchdog ----
	w := cfg.Watchdog
	positive("watchdog.check_period_ms", w.CheckPeriodMs)
	for _, t := range []struct {
		name string
		v    int
	}{
		{"watchdog.processor_timeout_ms", w.ProcessorTimeoutMs},
		{"watchdog.log_sink_timeout_ms", w.LogSinkTimeoutMs},
		{"watchdog.timer_timeout_ms", w.TimerTimeoutMs},
	} {
		if t.v <= w.CheckPeriodMs {
			fail("%s (%d) must exceed watchdog.check_period_ms (%d)", t.name, t.v, w.CheckPeriodMs)
		}
	}
	if w.ProcessorTimeoutMs <= cfg.Link.ReceiveTimeoutMs {
		fail("watchdog.processor_timeout_ms must exceed link.receive_timeout_ms")
	}

	// ---- diag ----
	if cfg.Diag.Port != "" {
		positive("diag.baud", cfg.Diag.Baud)
		if cfg.Diag.Port == cfg.Link.Port {
			fail("diag.port must differ from link.port (%s)", l.Port)
		}
	}
	positive("diag.queue_depth", cfg.Diag.QueueDepth)

	// ---- mqtt ----
	if cfg.MQTT.Broker != "" && cfg.MQTT.TopicPrefix == "" {
		fail("mqtt.topic_prefix is required when mqtt.broker is set")
	}

	return errors.Join(errs...)
}
