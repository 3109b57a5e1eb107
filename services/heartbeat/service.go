// Package heartbeat periodically publishes a liveness summary of the meter.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"energymon-go/bus"
	"energymon-go/services/metering"
	"energymon-go/types"
)

var (
	// ConfigTopic takes the interval in whole seconds (int).
	ConfigTopic = bus.T("config", "heartbeat")
	Topic       = bus.T("meter", "heartbeat")
)

const DefaultInterval = 10 * time.Second

type Beat struct {
	UptimeS  int64            `json:"uptime_s"`
	Level    types.MeterLevel `json:"level"`
	Status   string           `json:"status,omitempty"`
	Captures uint32           `json:"zcr_captures"`
}

type Service struct {
	Interval time.Duration
	// Captures, if set, reports the zero-crossing count.
	Captures func() uint32
	Log      *slog.Logger
}

func NewService() *Service {
	return &Service{Interval: DefaultInterval, Log: slog.Default()}
}

// Run publishes a retained Beat every Interval until ctx ends.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	cfgSub := conn.SubscribeN(ConfigTopic, 1)
	stateSub := conn.SubscribeN(metering.StateTopic, 1)
	defer cfgSub.Unsubscribe()
	defer stateSub.Unsubscribe()

	start := time.Now()
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	var state types.MeterState
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-stateSub.Channel():
			if st, ok := msg.Payload.(types.MeterState); ok {
				state = st
			}
		case msg := <-cfgSub.Channel():
			if sec, ok := msg.Payload.(int); ok && sec > 0 {
				tick.Reset(time.Duration(sec) * time.Second)
				s.Log.Info("heartbeat interval set", "seconds", sec)
			}
		case now := <-tick.C:
			b := Beat{
				UptimeS: int64(now.Sub(start) / time.Second),
				Level:   state.Level,
				Status:  state.Status,
			}
			if s.Captures != nil {
				b.Captures = s.Captures()
			}
			conn.Publish(conn.NewMessage(Topic, b, true))
			s.Log.Debug("heartbeat", "uptime_s", b.UptimeS, "level", b.Level)
		}
	}
}
