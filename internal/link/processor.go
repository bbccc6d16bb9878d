// Package link is the command processor: it drains the byte channel,
// assembles lines, dispatches commands to the pattern engine and keeps the
// peer link alive with jittered probes.
//
// All processor state (line buffer, keep-alive state, current pattern) is
// owned by the goroutine calling Run and needs no locking.
package link

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sweeney/ledlink/internal/bytechan"
	"github.com/sweeney/ledlink/internal/pattern"
	"github.com/sweeney/ledlink/internal/protocol"
	"github.com/sweeney/ledlink/internal/retry"
	"github.com/sweeney/ledlink/internal/watchdog"
)

// WatchdogName is the liveness registry name of the processor.
const WatchdogName = "link"

// Transmitter sends one line to the peer. The terminator is added by the
// implementation.
type Transmitter interface {
	Transmit(line string) error
}

// PatternSetter is the pattern engine as seen by the processor.
type PatternSetter interface {
	Set(pattern.State) error
	Current() pattern.State
}

// Watchdog is the subset of the liveness registry the processor uses.
type Watchdog interface {
	Register(name string, timeout time.Duration) watchdog.ID
	Feed(id watchdog.ID)
}

// Notifier receives controller events. Notify must not block.
type Notifier interface {
	Notify(protocol.Event)
}

// Logger receives diagnostic lines.
type Logger interface {
	Printf(format string, args ...any)
}

// Config holds the processor timings.
type Config struct {
	ProbeInterval   time.Duration
	ProbeJitter     time.Duration // jitter is uniform in [0, ProbeJitter)
	ResponseTimeout time.Duration
	ReceiveTimeout  time.Duration
	WatchdogTimeout time.Duration
	LineCapacity    int
	Transmit        retry.Policy
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:   10 * time.Second,
		ProbeJitter:     2 * time.Second,
		ResponseTimeout: time.Second,
		ReceiveTimeout:  100 * time.Millisecond,
		WatchdogTimeout: 5 * time.Second,
		LineCapacity:    protocol.DefaultLineCapacity,
		Transmit:        retry.Transmit,
	}
}

type keepAlive struct {
	lastProbe time.Time
	waiting   bool
	degraded  bool
	jitter    time.Duration
}

// Processor is the command processor task.
type Processor struct {
	cfg    Config
	ch     *bytechan.Channel
	tx     Transmitter
	engine PatternSetter
	wd     Watchdog
	notify Notifier
	log    Logger

	line *protocol.LineBuffer
	ka   keepAlive
	wdID watchdog.ID

	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

// NewProcessor creates a processor reading from ch. wd and notify may be nil.
func NewProcessor(cfg Config, ch *bytechan.Channel, tx Transmitter, engine PatternSetter, wd Watchdog, notify Notifier, log Logger) *Processor {
	def := DefaultConfig()
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = def.ResponseTimeout
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = def.ReceiveTimeout
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = def.WatchdogTimeout
	}
	if cfg.LineCapacity <= 0 {
		cfg.LineCapacity = def.LineCapacity
	}
	if cfg.Transmit.Attempts <= 0 {
		cfg.Transmit = def.Transmit
	}
	return &Processor{
		cfg:    cfg,
		ch:     ch,
		tx:     tx,
		engine: engine,
		wd:     wd,
		notify: notify,
		log:    log,
		line:   protocol.NewLineBuffer(cfg.LineCapacity),
		wdID:   watchdog.InvalidID,
		now:    time.Now,
		jitter: randomJitter,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Run sends the banner, registers with the watchdog and then loops until
// ctx is done.
func (p *Processor) Run(ctx context.Context) {
	p.Start()
	for ctx.Err() == nil {
		p.Step(ctx)
	}
}

// Start performs the one-time startup work. Run calls it.
func (p *Processor) Start() {
	// A single attempt; the peer may not be listening yet.
	if err := p.tx.Transmit(protocol.Banner); err != nil {
		p.logf("[LINK] ERROR: Failed to send banner: %v", err)
	}
	if p.wd != nil {
		p.wdID = p.wd.Register(WatchdogName, p.cfg.WatchdogTimeout)
		if p.wdID == watchdog.InvalidID {
			p.logf("[LINK] Failed to register with watchdog!")
		}
	}
	p.ka = keepAlive{lastProbe: p.now(), jitter: p.jitter(p.cfg.ProbeJitter)}
	p.logf("[LINK] Command processor started")
}

// Step runs one loop iteration: keep-alive housekeeping, one bounded
// receive, a watchdog feed and, if a byte arrived, line handling. The
// housekeeping runs whether or not a byte was received.
func (p *Processor) Step(ctx context.Context) {
	p.checkKeepAlive(p.now())

	b, ok := p.ch.Receive(ctx, p.cfg.ReceiveTimeout)

	if p.wd != nil && p.wdID != watchdog.InvalidID {
		p.wd.Feed(p.wdID)
	}
	if !ok {
		return
	}
	if p.ch.CheckHighWater() {
		p.logf("[LINK] WARNING: Receive buffer filling up, peer sending too fast!")
	}
	p.HandleByte(b)
}

// HandleByte feeds one byte into the line buffer and dispatches a completed line.
func (p *Processor) HandleByte(b byte) {
	line, res := p.line.Feed(b)
	switch res {
	case protocol.Complete:
		p.dispatch(line)
	case protocol.Overflow:
		p.overflow()
	}
}

// LineLen returns the number of buffered bytes of the current line.
func (p *Processor) LineLen() int { return p.line.Len() }

// Degraded reports whether the peer missed its last probe reply.
func (p *Processor) Degraded() bool { return p.ka.degraded }

// Waiting reports whether a probe reply is outstanding.
func (p *Processor) Waiting() bool { return p.ka.waiting }

func (p *Processor) dispatch(line string) {
	p.logf("[LINK] <- Received: '%s'", line)

	msg := protocol.Parse(line)
	switch msg.Kind {
	case protocol.KindPing:
		p.handlePing()
	case protocol.KindPong:
		p.handlePong()
	case protocol.KindPattern:
		p.handlePattern(msg.Digit)
	}
}

func (p *Processor) handlePing() {
	if err := p.send(protocol.ReplyPong); err != nil {
		p.logf("[LINK] ERROR: Failed to send PONG")
		return
	}
	p.logf("[LINK] <- PING received, sent PONG")
	p.emit(protocol.Event{Type: protocol.EventPing})
}

func (p *Processor) handlePong() {
	if p.ka.degraded {
		p.ka.degraded = false
		p.logf("[LINK] UART connection restored!")
		p.emit(protocol.Event{Type: protocol.EventLinkRestored})
	}
	p.ka.waiting = false
	p.logf("[LINK] <- STM32_PONG received")
	p.emit(protocol.Event{Type: protocol.EventPong})
}

func (p *Processor) handlePattern(digit byte) {
	s, ok := pattern.FromDigit(digit)
	if !ok {
		if err := p.send(protocol.ReplyInvalidPattern); err != nil {
			p.logf("[LED] ERROR: Failed to send ACK to peer")
		}
		p.logf("[LED] ERROR: Invalid pattern command")
		detail := ""
		if digit != 0 {
			detail = string(digit)
		}
		p.emit(protocol.Event{Type: protocol.EventInvalidPattern, Detail: detail})
		return
	}

	ev := protocol.Event{Type: protocol.EventPatternChanged, Pattern: s.String()}
	if err := p.engine.Set(s); err != nil {
		ev.Detail = err.Error()
	}
	if err := p.send(protocol.Ack(s.AckName())); err != nil {
		p.logf("[LED] ERROR: Failed to send ACK to peer")
	}
	p.logf("[LED] %s", s.Describe())
	p.emit(ev)
}

func (p *Processor) overflow() {
	if err := p.send(protocol.ReplyBufferOverflow); err != nil {
		p.logf("[LINK] ERROR: Failed to send overflow reply")
	}
	p.logf("[LINK] ERROR: Buffer overflow, discarding data")
	p.emit(protocol.Event{Type: protocol.EventBufferOverflow})
}

// checkKeepAlive probes the peer once the jittered interval has elapsed
// and flags the link degraded when a probe goes unanswered.
func (p *Processor) checkKeepAlive(now time.Time) {
	if now.Sub(p.ka.lastProbe) >= p.cfg.ProbeInterval+p.ka.jitter {
		if err := p.send(protocol.ReplyProbe); err != nil {
			// lastProbe is left alone so the next iteration tries again.
			p.logf("[LINK] ERROR: Failed to send STM32_PING")
		} else {
			p.ka.lastProbe = now
			p.ka.waiting = true
			p.ka.jitter = p.jitter(p.cfg.ProbeJitter)
			p.logf("[LINK] -> Sending STM32_PING...")
			p.emit(protocol.Event{Type: protocol.EventProbeSent})
		}
	}

	if p.ka.waiting && now.Sub(p.ka.lastProbe) >= p.cfg.ResponseTimeout {
		if !p.ka.degraded {
			p.ka.degraded = true
			p.logf("[LINK] ALERT: No STM32_PONG response!")
			p.logf("[LINK] UART connection may be broken")
			p.emit(protocol.Event{Type: protocol.EventLinkDegraded})
		}
		p.ka.waiting = false
	}
}

// send transmits line with the transmit retry policy. Persistent failure
// is reported as an event and returned for logging.
func (p *Processor) send(line string) error {
	err := p.cfg.Transmit.Do(func() error { return p.tx.Transmit(line) })
	if err != nil {
		p.emit(protocol.Event{Type: protocol.EventTransmitFailed, Detail: line})
	}
	return err
}

func (p *Processor) emit(ev protocol.Event) {
	if p.notify == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	p.notify.Notify(ev)
}

func (p *Processor) logf(format string, args ...any) {
	if p.log != nil {
		p.log.Printf(format, args...)
	}
}

// Fanout delivers every event to each notifier in order.
type Fanout []Notifier

// Notify implements Notifier.
func (f Fanout) Notify(ev protocol.Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ev)
		}
	}
}
