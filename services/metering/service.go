package metering

import (
	"context"

	"energymon-go/bus"
	"energymon-go/services/config"
	"energymon-go/services/persist"
	"energymon-go/types"
)

var (
	ConfigTopic  = config.MeterTopic
	ResetTopic   = bus.T("meter", "reset")
	SamplesTopic = bus.T("meter", "samples")
	StateTopic   = bus.T("meter", "state")
)

// Service connects an Engine to the bus: it feeds config/meter and
// meter/reset into the engine and publishes batches and state.
type Service struct {
	engine *Engine
	conn   *bus.Connection
}

// NewService builds the engine with a bus-publishing sink. Hooks on the
// returned engine may be adjusted before Run.
func NewService(conn *bus.Connection, chip Chip, store persist.Store) *Service {
	s := &Service{conn: conn}
	s.engine = New(chip, store, func(b Batch) {
		conn.Publish(conn.NewMessage(SamplesTopic, b, true))
	})
	s.engine.OnState = func(st types.MeterState) {
		conn.Publish(conn.NewMessage(StateTopic, st, true))
	}
	return s
}

func (s *Service) Engine() *Engine { return s.engine }

// Run blocks until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	cfgSub := s.conn.SubscribeN(ConfigTopic, 1)
	resetSub := s.conn.SubscribeN(ResetTopic, 1)
	defer cfgSub.Unsubscribe()
	defer resetSub.Unsubscribe()

	cfgCh := make(chan types.MeterConfig, 1)
	resetCh := make(chan struct{}, 1)
	go forward(ctx, cfgSub, cfgCh, func(m *bus.Message) (types.MeterConfig, bool) {
		cfg, ok := m.Payload.(types.MeterConfig)
		return cfg, ok
	})
	go forward(ctx, resetSub, resetCh, func(*bus.Message) (struct{}, bool) {
		return struct{}{}, true
	})

	return s.engine.Run(ctx, Inputs{Config: cfgCh, Reset: resetCh})
}

// forward converts bus messages into a typed channel, replacing any value
// the engine has not consumed yet.
func forward[T any](ctx context.Context, sub *bus.Subscription, out chan T, conv func(*bus.Message) (T, bool)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			v, ok := conv(m)
			if !ok {
				continue
			}
			select {
			case <-out:
			default:
			}
			out <- v
		}
	}
}
