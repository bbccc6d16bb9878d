// Command ledlink drives two LED outputs from pattern commands received on a
// serial link and keeps the link alive with jittered probes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/sweeney/ledlink/internal/bytechan"
	"github.com/sweeney/ledlink/internal/config"
	"github.com/sweeney/ledlink/internal/gpio"
	"github.com/sweeney/ledlink/internal/link"
	"github.com/sweeney/ledlink/internal/logsink"
	"github.com/sweeney/ledlink/internal/mqtt"
	"github.com/sweeney/ledlink/internal/pattern"
	"github.com/sweeney/ledlink/internal/protocol"
	"github.com/sweeney/ledlink/internal/retry"
	"github.com/sweeney/ledlink/internal/serial"
	"github.com/sweeney/ledlink/internal/softtimer"
	"github.com/sweeney/ledlink/internal/status"
	"github.com/sweeney/ledlink/internal/watchdog"
	"github.com/sweeney/ledlink/internal/web"
)

// Names under which the helper goroutines register with the watchdog.
const timersWatchdogName = "timers"

// timerEnqueueWait bounds how long a timer request waits for queue space.
const timerEnqueueWait = 10 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "YAML config file (empty uses built-in defaults)")
	port := flag.String("port", "", "Serial device for the command link (overrides link.port)")
	broker := flag.String("broker", "", "MQTT broker address (overrides mqtt.broker)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides http.addr, "off" disables)`)
	listPorts := flag.Bool("list-ports", false, "List serial devices and exit")

	flag.Parse()
	defer glog.Flush()

	if *listPorts {
		ports, err := serial.ListPorts()
		if err != nil {
			glog.Exitf("%v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	applyFlags(cfg, *port, *broker, *httpAddr)
	if err := config.Validate(cfg); err != nil {
		glog.Exitf("config: %v", err)
	}

	d, err := openDaemon(cfg)
	if err != nil {
		glog.Exitf("startup: %v", err)
	}
	defer d.close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := d.run(context.Background(), sigCh); err != nil {
		glog.Exitf("fatal: %v", err)
	}
}

// applyFlags overrides file settings with non-empty flag values.
func applyFlags(cfg *config.Config, port, broker, httpAddr string) {
	if port != "" {
		cfg.Link.Port = port
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
}

// daemon bundles the hardware boundaries so run can be driven by fakes.
type daemon struct {
	cfg  *config.Config
	port serial.Port
	out  gpio.Writer
	diag io.Writer
	pub  mqtt.Publisher // nil disables MQTT
	now  func() time.Time

	closers []io.Closer
}

func openDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg, now: time.Now, diag: glogWriter{}}

	port, err := serial.OpenReal(cfg.Link.Port, cfg.Link.Baud, config.Ms(cfg.Link.ReceiveTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("init link: %w", err)
	}
	d.port = port
	d.closers = append(d.closers, port)

	if cfg.Diag.Port != "" {
		diag, err := serial.OpenReal(cfg.Diag.Port, cfg.Diag.Baud, 0)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("init diag port: %w", err)
		}
		d.diag = diag
		d.closers = append(d.closers, diag)
	}

	out, err := gpio.NewRealWriter(cfg.Pattern.Chip, cfg.Pattern.PinA, cfg.Pattern.PinB)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	d.out = out
	d.closers = append(d.closers, out)

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Prefix:   cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			glog.Warningf("mqtt disabled: %v", err)
		} else {
			d.pub = pub
		}
	}
	return d, nil
}

func (d *daemon) close() {
	if d.pub != nil {
		d.pub.Close()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			glog.Warningf("close: %v", err)
		}
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Port:              cfg.Link.Port,
		Baud:              cfg.Link.Baud,
		ProbeIntervalMs:   int64(cfg.KeepAlive.IntervalMs),
		ProbeJitterMs:     int64(cfg.KeepAlive.JitterMs),
		ResponseTimeoutMs: int64(cfg.KeepAlive.ResponseTimeoutMs),
		PeriodMs:          int64(cfg.Pattern.PeriodMs),
		Broker:            cfg.MQTT.Broker,
		HTTPAddr:          cfg.HTTP.Addr,
	}
}

func linkConfig(cfg *config.Config) link.Config {
	return link.Config{
		ProbeInterval:   config.Ms(cfg.KeepAlive.IntervalMs),
		ProbeJitter:     config.Ms(cfg.KeepAlive.JitterMs),
		ResponseTimeout: config.Ms(cfg.KeepAlive.ResponseTimeoutMs),
		ReceiveTimeout:  config.Ms(cfg.Link.ReceiveTimeoutMs),
		WatchdogTimeout: config.Ms(cfg.Watchdog.ProcessorTimeoutMs),
		LineCapacity:    cfg.Link.LineCapacity,
		Transmit: retry.Policy{
			Attempts: cfg.Transmit.Attempts,
			Delay:    config.Ms(cfg.Transmit.RetryDelayMs),
		},
	}
}

// run wires the controller, serves until a signal arrives or ctx is done,
// then stops every goroutine and publishes the shutdown event.
func (d *daemon) run(ctx context.Context, sig <-chan os.Signal) error {
	cfg := d.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := logsink.New(d.diag, cfg.Diag.QueueDepth, "\r\n")
	reg := watchdog.New(sink, config.Ms(cfg.Watchdog.CheckPeriodMs))
	ch := bytechan.New(cfg.Link.ChannelSize, cfg.Link.HighWater)

	tracker := status.NewTracker(d.now(), statusConfig(cfg))
	tracker.SetSources(ch.Overruns, reg.Entries)

	notify := link.Fanout{tracker}
	var async *mqtt.Async
	if d.pub != nil {
		async = mqtt.NewAsync(d.pub, mqtt.DefaultQueueSize)
		notify = append(notify, async)
	}

	reg.SetCallback(func(a watchdog.Alert) {
		sink.Print(watchdog.FormatAlert(a))
		glog.Warningf("watchdog: %s unfed for %v (timeout %v)", a.Name, a.Elapsed, a.Timeout)
		notify.Notify(protocol.Event{
			Timestamp: a.At,
			Type:      protocol.EventWatchdogAlert,
			Task:      a.Name,
			Detail:    fmt.Sprintf("no feed for %dms, timeout %dms", a.Elapsed.Milliseconds(), a.Timeout.Milliseconds()),
		})
	})

	timers := softtimer.NewService(cfg.Pattern.TimerQueue, timerEnqueueWait)
	timersTimeout := config.Ms(cfg.Watchdog.TimerTimeoutMs)
	timersID := reg.Register(timersWatchdogName, timersTimeout)
	timers.SetHeartbeat(heartbeatInterval(config.Ms(cfg.Watchdog.CheckPeriodMs), timersTimeout), func() { reg.Feed(timersID) })

	engine := pattern.NewEngine(d.out, pattern.FromService(timers), config.Ms(cfg.Pattern.PeriodMs), sink)
	proc := link.NewProcessor(linkConfig(cfg), ch, serial.NewLink(d.port), engine, reg, notify, sink)

	var wg sync.WaitGroup
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			glog.V(2).Infof("start %s", name)
			fn()
			glog.V(2).Infof("%s stopped", name)
		}()
	}

	spawn("log-sink", func() { sink.Run(ctx, sinkWatchdog{reg, config.Ms(cfg.Watchdog.LogSinkTimeoutMs)}) })
	spawn("watchdog", func() { reg.Run(ctx) })
	spawn("timers", func() { timers.Run(ctx) })
	spawn("receive", func() {
		if err := serial.Pump(ctx, d.port, ch); err != nil {
			glog.Errorf("receive stopped: %v", err)
		}
	})
	if async != nil {
		spawn("mqtt", func() { async.Run(ctx) })
	}

	sink.Print("[BOOT] Establishing output baseline")
	if err := engine.Set(pattern.None); err != nil {
		glog.Warningf("baseline: %v", err)
	}
	spawn("processor", func() { proc.Run(ctx) })

	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				glog.Errorf("http server error: %v", err)
			}
		}()
		glog.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	d.publishSystem(tracker, "STARTUP", "")
	glog.Infof("started: port=%s baud=%d pattern period=%dms broker=%q",
		cfg.Link.Port, cfg.Link.Baud, cfg.Pattern.PeriodMs, cfg.MQTT.Broker)

	reason := "CONTEXT"
	select {
	case s := <-sig:
		glog.Infof("received %v, shutting down", s)
		reason = signalName(s)
	case <-ctx.Done():
	}

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		srv.Shutdown(shutdownCtx)
		done()
	}
	cancel()
	wg.Wait()

	d.publishSystem(tracker, "SHUTDOWN", reason)
	return nil
}

func (d *daemon) publishSystem(tracker *status.Tracker, event, reason string) {
	if d.pub == nil {
		return
	}
	if c, ok := d.pub.(mqtt.ConnectionStatus); ok {
		tracker.SetMQTTConnected(c.IsConnected())
	}
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.pub.PublishSystem(ev); err != nil {
		glog.Errorf("failed to publish %s event: %v", strings.ToLower(event), err)
		return
	}
	glog.Infof("published %s event", strings.ToLower(event))
}

// heartbeatInterval is how often the timer service feeds the watchdog: at
// least once per check and at least twice per timeout.
func heartbeatInterval(check, timeout time.Duration) time.Duration {
	every := timeout / 2
	if check > 0 && check < every {
		every = check
	}
	if every < time.Millisecond {
		every = time.Millisecond
	}
	return every
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// sinkWatchdog registers the log sink with its configured timeout.
type sinkWatchdog struct {
	reg     *watchdog.Registry
	timeout time.Duration
}

func (w sinkWatchdog) Register(name string, _ time.Duration) watchdog.ID {
	return w.reg.Register(name, w.timeout)
}

func (w sinkWatchdog) Feed(id watchdog.ID) { w.reg.Feed(id) }

// glogWriter is the diagnostic output when no diag port is configured.
type glogWriter struct{}

func (glogWriter) Write(p []byte) (int, error) {
	glog.InfoDepth(1, strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}
