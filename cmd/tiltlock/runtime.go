package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tiltlock/internal/config"
	"tiltlock/internal/indicator"
	"tiltlock/internal/inputs"
	"tiltlock/internal/notify"
	"tiltlock/internal/replay"
	"tiltlock/internal/session"
	"tiltlock/internal/udp"
	"tiltlock/internal/web"
)

// runtime owns everything built from one config: the session, its inputs
// and its outputs.
type runtime struct {
	cfg     config.Config
	svc     *session.Service
	status  *web.Status
	stream  *web.SnapshotBroadcaster
	logs    *web.LogBuffer
	source  string
	closers []func() error
}

func newRuntime(cfg config.Config, logs *web.LogBuffer) (*runtime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	engCfg, err := inputs.Engine(c)
	if err != nil {
		return nil, err
	}

	r := &runtime{cfg: c, logs: logs, source: c.Sensors.Source}
	scfg := session.Config{
		Engine:          engCfg,
		QueueSize:       c.Session.QueueSize,
		NavigateTimeout: c.Session.NavigateTimeout,
	}

	sensors, err := inputs.Sensors(c.Sensors)
	if err != nil {
		// Missing hardware leaves the session running without
		// orientation; bad files are fatal.
		if !errors.Is(err, inputs.ErrHardware) {
			return nil, err
		}
		log.Printf("sensors: %v", err)
	}
	if sensors != nil {
		scfg.Sources = append(scfg.Sources, sensors)
	}

	if c.Touch.Enable {
		ts, err := inputs.Touch(c)
		if err != nil {
			log.Printf("touch init failed: %v", err)
		} else {
			scfg.Sources = append(scfg.Sources, ts)
		}
	}

	if c.Record.Enable {
		w, err := replay.CreateWriter(c.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		rec := replay.NewRecorder(w)
		scfg.Taps = append(scfg.Taps, rec)
		r.closers = append(r.closers, rec.Close)
		log.Printf("recording inputs to %s", c.Record.Path)
	}

	scfg.Navigators = r.navigators()

	if c.Web.Enable {
		r.stream = web.NewSnapshotBroadcaster()
		scfg.Observers = append(scfg.Observers, r.stream)
	}

	svc, err := session.New(scfg)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.svc = svc
	r.status = web.NewStatus(svc)
	r.status.SetStatic(c.Device, c.Sensors.Source, c.Display.Metrics())
	return r, nil
}

// navigators builds the transition outputs. Each one is optional and a
// failure to set one up is logged, not fatal.
func (r *runtime) navigators() []session.Navigator {
	c := r.cfg
	var out []session.Navigator

	if c.UDP.Enable {
		b, err := udp.NewBroadcaster(c.UDP.Dest)
		if err != nil {
			log.Printf("udp init failed: %v", err)
		} else {
			out = append(out, notify.NewUDP(c.Device, b))
			r.closers = append(r.closers, b.Close)
			log.Printf("udp notices to %s", b.Dest())
		}
	}

	if c.MQTT.Enable {
		m, err := notify.DialMQTT(c.Device, notify.MQTTConfig{
			Broker:          c.MQTT.Broker,
			ClientID:        c.MQTT.ClientID,
			Username:        c.MQTT.Username,
			Password:        c.MQTT.Password,
			InsecureSkipTLS: c.MQTT.InsecureSkipTLS,
			Topic:           c.MQTT.Topic,
			QoS:             byte(c.MQTT.QoS),
			ConnectTimeout:  c.MQTT.ConnectTimeout,
		})
		if err != nil {
			log.Printf("mqtt init failed: %v", err)
		} else {
			out = append(out, m)
			r.closers = append(r.closers, func() error { m.Close(); return nil })
		}
	}

	if c.Indicator.Enable {
		ind, err := indicator.Open(indicator.Config{
			Line:      c.Indicator.Line,
			Pin:       c.Indicator.Pin,
			Chip:      c.Indicator.Chip,
			ActiveLow: c.Indicator.ActiveLow,
		})
		if err != nil {
			log.Printf("indicator init failed: %v", err)
		} else {
			out = append(out, ind)
			r.closers = append(r.closers, ind.Close)
		}
	}
	return out
}

// Run starts the session and the web UI and blocks until ctx is done or
// the session stops.
func (r *runtime) Run(ctx context.Context) error {
	if err := r.svc.Start(ctx); err != nil {
		return err
	}

	webErr := make(chan error, 1)
	if r.cfg.Web.Enable {
		h := web.Handler(r.status, r.svc, r.stream, r.logs, r.cfg.Web.Contacts)
		go func() {
			log.Printf("web listening on %s", r.cfg.Web.Listen)
			webErr <- web.Serve(ctx, r.cfg.Web.Listen, h)
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case <-r.svc.Done():
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("session stopped")
	case err := <-webErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("web: %w", err)
		}
		return nil
	}
}

// Close stops the session and releases outputs in reverse order.
func (r *runtime) Close() {
	if r.svc != nil {
		r.svc.Close()
		<-r.svc.Done()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
	r.closers = nil
}
