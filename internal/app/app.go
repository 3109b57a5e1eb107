// Package app wires the meter services onto a bus for a given board.
package app

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"energymon-go/bus"
	"energymon-go/internal/platform"
	"energymon-go/services/config"
	"energymon-go/services/heartbeat"
	"energymon-go/services/metering"
	"energymon-go/services/report"
	"energymon-go/services/zcr"
	"energymon-go/types"
)

// Options adjust a run.
type Options struct {
	// Config, if set, is published instead of the board's embedded config.
	Config *types.MeterConfig
	Log    *slog.Logger
	// Bus, if set, is used instead of a private one so callers can observe
	// or inject messages.
	Bus *bus.Bus
}

// Run starts the meter services and blocks until ctx ends or one of
// them fails.
func Run(ctx context.Context, b *platform.Board, opt Options) error {
	log := opt.Log
	if log == nil {
		log = slog.Default()
	}
	mb := opt.Bus
	if mb == nil {
		mb = bus.NewBus(4)
	}
	ctx = context.WithValue(ctx, config.CtxDeviceKey, b.Name)
	g, ctx := errgroup.WithContext(ctx)

	var mon atomic.Pointer[zcr.Monitor]
	meter := metering.NewService(mb.NewConnection("metering"), b.Chip, b.Store)
	meter.Engine().Log = log.With("service", "metering")
	meter.Engine().Frequency = func() uint64 {
		if m := mon.Load(); m != nil {
			return m.Frequency()
		}
		return 0
	}

	g.Go(func() error { return meter.Run(ctx) })
	g.Go(func() error {
		return report.NewService(b.Report).Run(ctx, mb.NewConnection("report"))
	})
	hb := heartbeat.NewService()
	hb.Log = log.With("service", "heartbeat")
	hb.Captures = func() uint32 {
		if m := mon.Load(); m != nil {
			return m.Captures()
		}
		return 0
	}
	g.Go(func() error { return hb.Run(ctx, mb.NewConnection("heartbeat")) })
	g.Go(func() error {
		return runFrequency(ctx, mb.NewConnection("zcr"), b, &mon, log)
	})

	cfgConn := mb.NewConnection("config")
	if opt.Config != nil {
		config.PublishMeter(cfgConn, config.Validate(*opt.Config))
	} else {
		svc := config.NewConfigService()
		svc.Log = log.With("service", "config")
		svc.Start(ctx, cfgConn)
	}

	return g.Wait()
}

// runFrequency starts edge capture once the first config fixes the depth,
// then retunes the monitor on every later config.
func runFrequency(ctx context.Context, conn *bus.Connection, b *platform.Board, mon *atomic.Pointer[zcr.Monitor], log *slog.Logger) error {
	sub := conn.SubscribeN(config.MeterTopic, 1)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-sub.Channel():
			cfg, ok := msg.Payload.(types.MeterConfig)
			if !ok {
				continue
			}
			if m := mon.Load(); m != nil {
				m.Retune(cfg.FrequencyZCRAdjust)
				if cfg.ZCRDepth != m.Depth() {
					log.Warn("zcr depth change takes effect after restart", "depth", cfg.ZCRDepth)
				}
				continue
			}
			if b.StartCapture == nil {
				log.Info("no zero-crossing input, frequency disabled")
				continue
			}
			m := zcr.New(cfg.ZCRDepth, b.CaptureHz, cfg.FrequencyZCRAdjust)
			if err := b.StartCapture(m); err != nil {
				log.Error("zero-crossing capture", "err", err)
				continue
			}
			mon.Store(m)
		}
	}
}
