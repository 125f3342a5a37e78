// Command ivish is an interactive SCPI shell for IEEE-488.2 instruments.
//
// Usage:
//
//	ivish [flags]
//
// Flags:
//
//	-resource string     VISA resource name or alias from the resource list
//	-settings string     Settings file (.yaml, .toml or .json)
//	-simulate            Talk to the built-in simulated instrument
//	-mode string         Service request mode: none, interrupt, poll
//	-poll duration       Status poll interval
//	-trace string        Append a CBOR I/O trace to this file
//	-metrics string      Serve Prometheus metrics on this address, e.g. :9100
//	-redis string        Publish status events to the Redis server at this address
//	-resources string    Resource list file
//	-log-level string    Log level: debug, info, warn, error
//	-log-backend string  Log backend: slog, logrus
//
// Examples:
//
//	# Poll a simulated multimeter every 100ms
//	ivish -simulate -mode poll -poll 100ms
//
//	# Talk to a LAN instrument with a model settings file
//	ivish -resource TCPIP0::192.168.1.20::5025::SOCKET -settings dmm.yaml -trace dmm.cbor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arloliu/go-ivi/config"
	"github.com/arloliu/go-ivi/errqueue"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/monitor"
	"github.com/arloliu/go-ivi/publish"
	"github.com/arloliu/go-ivi/resource"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/simulator"
	"github.com/arloliu/go-ivi/srq"
	"github.com/arloliu/go-ivi/tracelog"
	"github.com/arloliu/go-ivi/transport"
)

const simulatedResource = "TCPIP0::localhost::5025::SOCKET"

type flags struct {
	resource   string
	settings   string
	simulate   bool
	mode       string
	poll       time.Duration
	trace      string
	metrics    string
	redis      string
	resources  string
	logLevel   string
	logBackend string
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.resource, "resource", "", "VISA resource name or alias from the resource list")
	flag.StringVar(&f.settings, "settings", "", "Settings file (.yaml, .toml or .json)")
	flag.BoolVar(&f.simulate, "simulate", false, "Talk to the built-in simulated instrument")
	flag.StringVar(&f.mode, "mode", "", "Service request mode: none, interrupt, poll")
	flag.DurationVar(&f.poll, "poll", 0, "Status poll interval")
	flag.StringVar(&f.trace, "trace", "", "Append a CBOR I/O trace to this file")
	flag.StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address")
	flag.StringVar(&f.redis, "redis", "", "Publish status events to the Redis server at this address")
	flag.StringVar(&f.resources, "resources", "", "Resource list file")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&f.logBackend, "log-backend", "", "Log backend: slog, logrus")
	flag.Parse()

	return f
}

func main() {
	if err := run(parseFlags()); err != nil {
		fmt.Fprintln(os.Stderr, "ivish:", err)
		os.Exit(1)
	}
}

// loadSettings reads the settings file, if any, and applies the flag overrides.
func loadSettings(f flags) (*config.Settings, error) {
	st := config.Default()
	if f.settings != "" {
		loaded, err := config.Load(f.settings)
		if err != nil {
			return nil, err
		}
		st = loaded
	}

	if f.mode != "" {
		st.ServiceRequest.Mode = f.mode
	}
	if f.poll != 0 {
		st.ServiceRequest.PollInterval = config.Duration(f.poll)
	}
	if f.logLevel != "" {
		st.Log.Level = f.logLevel
	}
	if f.logBackend != "" {
		st.Log.Backend = f.logBackend
	}
	if f.resource != "" {
		st.Resource = f.resource
	}
	if f.simulate && st.Resource == "" {
		st.Resource = simulatedResource
	}

	return st, st.Validate()
}

func run(f flags) error {
	st, err := loadSettings(f)
	if err != nil {
		return err
	}
	if st.Resource == "" {
		return errors.New("no resource: use -resource or -simulate")
	}

	l := st.Logger()
	logger.SetDefault(l)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var list *resource.List
	if f.resources != "" {
		list = resource.NewList(f.resources, l)
		if err := list.Load(); err != nil {
			return err
		}
		go func() {
			err := list.Watch(ctx, func(entries []resource.Entry) {
				l.Info("resource list reloaded", "entries", len(entries))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				l.Warn("resource list watch stopped", "error", err)
			}
		}()
	}

	resourceName := st.Resource
	if list != nil && list.Contains(resourceName) {
		if resourceName, err = list.Resolve(resourceName); err != nil {
			return err
		}
	}

	opts, err := st.SessionOptions()
	if err != nil {
		return err
	}
	opts = append(opts, session.WithLogger(l))

	if f.simulate {
		inst := simulator.New(simulator.WithLogger(l))
		opts = append(opts, session.WithDialer(session.DialerFunc(
			func(context.Context, string, time.Duration) (session.Transport, error) {
				return inst, inst.Connect()
			})))
	} else {
		opts = append(opts, session.WithDialer(transport.NewDialer(append(st.DialerOptions(), transport.WithLogger(l))...)))
	}

	if f.trace != "" {
		tracer, err := tracelog.NewFileTracer(f.trace)
		if err != nil {
			return err
		}
		tracer.OnError = func(err error) { l.Warn("trace write failed", "error", err) }
		defer tracer.Close()
		opts = append(opts, session.WithTracer(tracer))
	}

	sess, err := session.New(opts...)
	if err != nil {
		return err
	}
	if err := sess.Open(ctx, resourceName, st.Timing.Timeout.Std()); err != nil {
		return err
	}
	defer sess.Close()

	stbMask, esrMask := st.EnableMasks()
	if err := sess.EnableServiceRequest(stbMask, esrMask); err != nil {
		l.Warn("enable service request failed", "error", err)
	}

	errReader, err := errqueue.NewReader(sess, append(st.ErrorQueueOptions(), errqueue.WithLogger(l))...)
	if err != nil {
		return err
	}

	coord, err := srq.New(sess, append(st.ServiceRequestOptions(), srq.WithErrorReader(errReader), srq.WithLogger(l))...)
	if err != nil {
		return err
	}
	defer coord.Close()

	sh, err := newShell(sess, coord, errReader, list, l)
	if err != nil {
		return err
	}
	coord.AddHandler(sh.printEvent)

	switch st.ServiceRequest.Mode {
	case config.ModeInterrupt:
		err = coord.AttachInterrupt()
	case config.ModePoll:
		err = coord.StartPolling(st.ServiceRequest.PollInterval.Std())
	}
	if err != nil {
		return err
	}

	if f.redis != "" {
		sink, err := publish.NewRedisSink(ctx, publish.Options{Addr: f.redis, Logger: l})
		if err != nil {
			return err
		}
		defer sink.Close()
		coord.AddHandler(sink.Handler(resourceName))
	}

	if f.metrics != "" {
		collector := monitor.NewCollector("")
		collector.Add(sess)
		collector.AddCoordinator(resourceName, coord)

		mux := http.NewServeMux()
		mux.Handle("/metrics", monitor.Handler(monitor.NewRegistry(collector)))
		srv := &http.Server{Addr: f.metrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		l.Info("serving metrics", "addr", f.metrics)
	}

	sh.Run(ctx, cancel)

	return nil
}
