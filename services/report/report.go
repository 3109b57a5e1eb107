// Package report writes completed sample batches as JSON lines.
package report

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"energymon-go/bus"
	"energymon-go/services/config"
	"energymon-go/services/metering"
	"energymon-go/types"
)

// Line is one output record. Absent fields are disabled in the config.
// Units: freq 10^-4 Hz, volt mV, curr 0.1 mA, powa mW, powr mvar, engy mWs.
type Line struct {
	TS    int64   `json:"ts"`
	Freq  *uint64 `json:"freq,omitempty"`
	Volt1 *uint64 `json:"volt1,omitempty"`
	Curr1 *uint64 `json:"curr1,omitempty"`
	Powa1 *int64  `json:"powa1,omitempty"`
	Powr1 *int64  `json:"powr1,omitempty"`
	Engy1 *int64  `json:"engy1,omitempty"`
	Volt2 *uint64 `json:"volt2,omitempty"`
	Curr2 *uint64 `json:"curr2,omitempty"`
	Powa2 *int64  `json:"powa2,omitempty"`
	Powr2 *int64  `json:"powr2,omitempty"`
	Engy2 *int64  `json:"engy2,omitempty"`
}

// Build selects the enabled quantities of b.
func Build(b metering.Batch, cfg types.MeterConfig) Line {
	l := Line{TS: b.TS}
	en := [2]types.ReportEnables{cfg.Channels[0].Report, cfg.Channels[1].Report}
	if en[0].Frequency || en[1].Frequency {
		f := b.Frequency
		l.Freq = &f
	}
	volt := [2]**uint64{&l.Volt1, &l.Volt2}
	curr := [2]**uint64{&l.Curr1, &l.Curr2}
	powa := [2]**int64{&l.Powa1, &l.Powa2}
	powr := [2]**int64{&l.Powr1, &l.Powr2}
	engy := [2]**int64{&l.Engy1, &l.Engy2}
	for i := range en {
		s := b.Calibrated[i]
		if en[i].Voltage {
			*volt[i] = &s.VoltageRMS
		}
		if en[i].Current {
			*curr[i] = &s.CurrentRMS
		}
		if en[i].ActivePower {
			*powa[i] = &s.PowerActive
		}
		if en[i].ReactivePower {
			*powr[i] = &s.PowerReactive
		}
		if en[i].Energy {
			*engy[i] = &s.EnergyActive
		}
	}
	return l
}

// Service follows config/meter and meter/samples and writes one line per
// batch to W.
type Service struct {
	W   io.Writer
	Log *slog.Logger
}

func NewService(w io.Writer) *Service {
	return &Service{W: w, Log: slog.Default()}
}

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	cfgSub := conn.SubscribeN(config.MeterTopic, 1)
	samples := conn.SubscribeN(metering.SamplesTopic, 1)
	defer cfgSub.Unsubscribe()
	defer samples.Unsubscribe()

	cfg := types.DefaultMeterConfig()
	enc := json.NewEncoder(s.W)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-cfgSub.Channel():
			if c, ok := m.Payload.(types.MeterConfig); ok {
				cfg = c
			}
		case m := <-samples.Channel():
			b, ok := m.Payload.(metering.Batch)
			if !ok {
				continue
			}
			if err := enc.Encode(Build(b, cfg)); err != nil {
				s.Log.Warn("report write failed", "err", err)
			}
		}
	}
}
